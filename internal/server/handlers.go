package server

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"crashround/internal/game"
)

// Health handler
func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"database": s.db.Health(),
		"cache":    s.cache.Health(),
		"game": fiber.Map{
			"halted":            s.gameManager.IsHalted(),
			"connected_clients": s.gameHub.GetClientCount(),
		},
	}
	return c.JSON(health)
}

// Round engine handlers

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	var req game.BetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	req.RoundID = c.Params("roundId")

	if req.AccountID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Account ID is required",
		})
	}

	resp := s.gameManager.PlaceBet(req)
	if !resp.Success {
		return c.Status(fiber.StatusConflict).JSON(resp)
	}

	if balance, err := s.wallet.Balance(c.Context(), req.AccountID); err == nil {
		resp.Balance = balance
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (s *FiberServer) cashoutHandler(c *fiber.Ctx) error {
	betID := c.Params("betId")
	if betID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Bet ID is required",
		})
	}

	resp := s.gameManager.Cashout(game.CashoutRequest{BetID: betID})
	if !resp.Success {
		return c.Status(fiber.StatusConflict).JSON(resp)
	}

	return c.JSON(resp)
}

func (s *FiberServer) listRoundsHandler(c *fiber.Ctx) error {
	if s.history == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "Round history is unavailable",
		})
	}

	limit := c.QueryInt("limit", 20)
	entries, err := s.history.List(c.Context(), limit)
	if err != nil {
		log.Printf("[SERVER] History list failed: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to load round history",
		})
	}

	return c.JSON(fiber.Map{"rounds": entries})
}

func (s *FiberServer) recentCrashesHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	points, err := s.gameManager.RecentCrashPoints(c.Context(), limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to load recent rounds",
		})
	}
	return c.JSON(fiber.Map{"crash_points": points})
}

// verifyRoundHandler recomputes a settled round's crash point from its
// revealed seed material so players can audit the commit-reveal chain.
func (s *FiberServer) verifyRoundHandler(c *fiber.Ctx) error {
	if s.history == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "Round history is unavailable",
		})
	}

	roundID := c.Params("roundId")
	entry, err := s.history.Get(c.Context(), roundID)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "Round not found",
		})
	}

	cfg := game.ConfigFromEnv()
	seedOK := game.VerifySeed(entry.ServerSeed, entry.ServerSeedHash)
	crashOK := game.VerifyRound(entry.ServerSeed, entry.ClientSeed, entry.RoundID, cfg.HouseEdge, entry.CrashPoint)

	return c.JSON(fiber.Map{
		"round_id":         entry.RoundID,
		"server_seed":      entry.ServerSeed,
		"server_seed_hash": entry.ServerSeedHash,
		"client_seed":      entry.ClientSeed,
		"crash_point":      entry.CrashPoint,
		"seed_valid":       seedOK,
		"crash_valid":      crashOK,
	})
}

func (s *FiberServer) gameStateHandler(c *fiber.Ctx) error {
	snap := s.gameManager.Snapshot(c.Query("account_id"))
	if snap == nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "No active round",
		})
	}
	return c.JSON(snap)
}

func (s *FiberServer) clientSeedHandler(c *fiber.Ctx) error {
	var body struct {
		ClientSeed string `json:"client_seed"`
	}
	if err := c.BodyParser(&body); err != nil || body.ClientSeed == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "client_seed is required",
		})
	}

	s.gameManager.RegisterClientSeed(body.ClientSeed)
	return c.JSON(fiber.Map{
		"message": "Client seed registered for the next round",
	})
}

// Wallet admin handlers

func (s *FiberServer) getBalanceHandler(c *fiber.Ctx) error {
	accountID := c.Params("accountId")
	if accountID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Account ID is required",
		})
	}

	balance, err := s.wallet.Balance(c.Context(), accountID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to read balance",
		})
	}

	return c.JSON(fiber.Map{
		"account_id": accountID,
		"balance":    balance,
	})
}

func (s *FiberServer) setBalanceHandler(c *fiber.Ctx) error {
	accountID := c.Params("accountId")
	if accountID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Account ID is required",
		})
	}

	var body struct {
		Balance float64 `json:"balance"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := s.wallet.SetBalance(c.Context(), accountID, body.Balance); err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to set balance",
		})
	}

	return c.JSON(fiber.Map{
		"account_id": accountID,
		"balance":    body.Balance,
		"message":    "Balance updated successfully",
	})
}

// WebSocket handler

func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	accountID := conn.Query("account_id", "anonymous")

	log.Printf("[WS] New connection from account: %s", accountID)

	client := s.gameHub.RegisterClient(conn, accountID)
	client.SendSnapshot(s.gameManager.Snapshot(accountID))

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] Read error for account %s: %v", accountID, err)
			s.gameHub.UnregisterClient(conn)
			break
		}

		if messageType == websocket.TextMessage {
			var clientMsg map[string]interface{}
			if err := json.Unmarshal(message, &clientMsg); err != nil {
				continue
			}

			msgType, ok := clientMsg["type"].(string)
			if !ok {
				continue
			}

			switch msgType {
			// Replies go through client.Send: hub broadcasts share this
			// connection, and the conn tolerates only one writer at a time.
			case "place_bet":
				amount, _ := strconv.ParseFloat(fmt.Sprintf("%v", clientMsg["amount"]), 64)
				autoCashout, _ := strconv.ParseFloat(fmt.Sprintf("%v", clientMsg["auto_cashout_at"]), 64)
				slot, _ := strconv.Atoi(fmt.Sprintf("%v", clientMsg["slot_index"]))

				client.Send(s.gameManager.PlaceBet(game.BetRequest{
					AccountID:     accountID,
					SlotIndex:     slot,
					Amount:        amount,
					AutoCashOutAt: autoCashout,
				}))

			case "cashout":
				betID := fmt.Sprintf("%v", clientMsg["bet_id"])

				client.Send(s.gameManager.Cashout(game.CashoutRequest{BetID: betID}))

			case "ping":
				client.Send(map[string]string{"type": "pong"})
			}
		}
	}
}
