package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func (s *FiberServer) RegisterFiberRoutes() {
	// Apply CORS middleware
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	// Basic routes
	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")

	// Round engine
	api.Post("/rounds/:roundId/bets", s.placeBetHandler)
	api.Post("/bets/:betId/cashout", s.cashoutHandler)
	api.Get("/rounds", s.listRoundsHandler)
	api.Get("/rounds/recent", s.recentCrashesHandler)
	api.Get("/rounds/:roundId/verify", s.verifyRoundHandler)
	api.Get("/game/state", s.gameStateHandler)
	api.Post("/game/seed", s.clientSeedHandler)

	// Wallet admin (testing/operations)
	api.Get("/accounts/:accountId/balance", s.getBalanceHandler)
	api.Post("/accounts/:accountId/balance", s.setBalanceHandler)

	// WebSocket route
	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))
}
