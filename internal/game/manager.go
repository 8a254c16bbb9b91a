package game

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"crashround/internal/wallet"
)

const (
	BET_TIMEOUT     = 5 * time.Second
	CASHOUT_TIMEOUT = 500 * time.Millisecond

	REDIS_KEY_ROUND_PREFIX  = "crash:round:"
	REDIS_KEY_RECENT_ROUNDS = "crash:recent"
)

// RoundHistoryEntry is the immutable snapshot of a settled round, written
// once for audit and fairness verification.
type RoundHistoryEntry struct {
	RoundID        string    `json:"round_id"`
	CrashPoint     float64   `json:"crash_point"`
	ServerSeed     string    `json:"server_seed"`
	ServerSeedHash string    `json:"server_seed_hash"`
	ClientSeed     string    `json:"client_seed"`
	StartedAt      time.Time `json:"started_at"`
	CrashedAt      time.Time `json:"crashed_at"`
	TotalBets      float64   `json:"total_bets"`
	TotalPayout    float64   `json:"total_payout"`
}

// RoundRecorder archives settled rounds. Implemented by the history store.
type RoundRecorder interface {
	Record(ctx context.Context, entry RoundHistoryEntry) error
}

// Manager owns the authoritative round state machine for one table. A
// single goroutine runs the round lifecycle and serializes every mutation;
// bet and cashout requests reach it over channels, so the crash flag and a
// cashout acceptance can never race on shared memory.
type Manager struct {
	cfg         Config
	hub         *Hub
	wallet      wallet.Wallet
	reconciler  *wallet.Reconciler
	history     RoundRecorder
	redisClient *redis.Client
	clock       Clock
	ctx         context.Context

	stateMutex     sync.RWMutex
	currentRound   *Round
	ledger         *Ledger
	startedAt      time.Time
	halted         bool
	nextClientSeed string

	betChannel     chan BetRequest
	cashoutChannel chan CashoutRequest
	stopChan       chan struct{}
	stopOnce       sync.Once
}

func NewManager(cfg Config, hub *Hub, w wallet.Wallet, rec *wallet.Reconciler, history RoundRecorder, redisClient *redis.Client) *Manager {
	return &Manager{
		cfg:            cfg,
		hub:            hub,
		wallet:         w,
		reconciler:     rec,
		history:        history,
		redisClient:    redisClient,
		clock:          Clock{GrowthRate: cfg.GrowthRate},
		ctx:            context.Background(),
		betChannel:     make(chan BetRequest, 1000),
		cashoutChannel: make(chan CashoutRequest, 1000),
		stopChan:       make(chan struct{}),
	}
}

func (m *Manager) Start() {
	go m.gameLoop()
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// PlaceBet queues a bet for the round goroutine and waits for its verdict.
func (m *Manager) PlaceBet(req BetRequest) BetResponse {
	if m.IsHalted() {
		return BetResponse{Success: false, Reason: string(KindTableHalted), Message: "Table is halted"}
	}

	respChan := make(chan BetResponse, 1)
	req.ResponseChan = respChan

	select {
	case m.betChannel <- req:
		select {
		case resp := <-respChan:
			return resp
		case <-time.After(BET_TIMEOUT):
			return BetResponse{Success: false, Reason: string(KindValidation), Message: "Bet timeout"}
		}
	default:
		return BetResponse{Success: false, Reason: string(KindValidation), Message: "Bet queue full"}
	}
}

// Cashout queues a cashout for the round goroutine and waits for its verdict.
func (m *Manager) Cashout(req CashoutRequest) CashoutResponse {
	respChan := make(chan CashoutResponse, 1)
	req.ResponseChan = respChan

	select {
	case m.cashoutChannel <- req:
		select {
		case resp := <-respChan:
			return resp
		case <-time.After(CASHOUT_TIMEOUT):
			return CashoutResponse{Success: false, Reason: string(KindStaleCashOut), Message: "Cashout timeout"}
		}
	default:
		return CashoutResponse{Success: false, Reason: string(KindValidation), Message: "Cashout queue full"}
	}
}

// RegisterClientSeed records a player-supplied seed to be mixed into the
// next round's crash point. The current round's crash point is already
// fixed and is never recomputed.
func (m *Manager) RegisterClientSeed(seed string) {
	m.stateMutex.Lock()
	m.nextClientSeed = seed
	m.stateMutex.Unlock()
}

// Snapshot gives a late-joining or reconnecting client a consistent view of
// the table without replaying every tick. Every round field is copied while
// the lock is held; the round goroutine mutates Status and StartedAt in
// place, so the pointer must never be dereferenced after the unlock.
func (m *Manager) Snapshot(accountID string) *Snapshot {
	m.stateMutex.RLock()
	round := m.currentRound
	if round == nil {
		m.stateMutex.RUnlock()
		return nil
	}
	snap := &Snapshot{
		RoundID:           round.ID,
		Status:            round.Status,
		ServerSeedHash:    round.ServerSeedHash,
		CurrentMultiplier: MIN_MULTIPLIER,
	}
	crashPoint := round.CrashPoint
	startedAt := m.startedAt
	ledger := m.ledger
	m.stateMutex.RUnlock()

	if snap.Status == StatusRunning {
		elapsed := time.Since(startedAt)
		snap.Elapsed = elapsed.Seconds()
		mult := m.clock.Multiplier(elapsed)
		if mult >= crashPoint {
			mult = crashPoint
		}
		snap.CurrentMultiplier = mult
	}
	if accountID != "" && ledger != nil {
		snap.ActiveBets = ledger.BetsFor(accountID)
	}
	return snap
}

// IsHalted reports whether an invariant violation has shut the table.
func (m *Manager) IsHalted() bool {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	return m.halted
}

// halt shuts the table after a correctness bug. This is not a user-facing
// condition: no new rounds open and an operator is paged.
func (m *Manager) halt(err error) {
	m.stateMutex.Lock()
	m.halted = true
	m.stateMutex.Unlock()
	log.Printf("[ALERT] Table halted, operator intervention required: %v", err)
}

func (m *Manager) gameLoop() {
	for {
		select {
		case <-m.stopChan:
			log.Println("[GAME] Game loop stopped")
			return
		default:
		}
		if m.IsHalted() {
			log.Println("[GAME] Table halted, no further rounds")
			return
		}
		m.runRound()
	}
}

func (m *Manager) runRound() {
	commit := NewCommit()
	roundID := uuid.NewString()

	m.stateMutex.Lock()
	clientSeed := m.nextClientSeed
	m.nextClientSeed = ""
	m.stateMutex.Unlock()
	if clientSeed == "" {
		clientSeed = GenerateSeed()
	}

	// The crash point is fixed here and never recomputed.
	crashPoint := ComputeCrashPoint(commit.ServerSeed, clientSeed, roundID, m.cfg.HouseEdge)

	round := &Round{
		ID:             roundID,
		Status:         StatusWaiting,
		ServerSeed:     commit.ServerSeed,
		ServerSeedHash: commit.ServerSeedHash,
		ClientSeed:     clientSeed,
		CrashPoint:     crashPoint,
	}
	ledger := NewLedger(m.cfg, m.wallet, m.reconciler, roundID, crashPoint)

	m.stateMutex.Lock()
	m.currentRound = round
	m.ledger = ledger
	m.stateMutex.Unlock()

	m.storeRoundInRedis(round)

	log.Printf("=== ROUND %s ===", roundID)
	log.Printf("[FAIR] Commitment: %s...", commit.ServerSeedHash[:16])

	m.hub.Broadcast(WSMessage{Type: "round.waiting", Data: WaitingMessage{
		RoundID:        roundID,
		ServerSeedHash: commit.ServerSeedHash,
		TimeLeft:       m.cfg.BettingWindow.Seconds(),
	}})

	// Bets are accepted for the window minus a short cutoff, so nothing can
	// slip in at the same instant the flight starts.
	acceptTimer := time.NewTimer(m.cfg.BettingWindow - m.cfg.BetCutoff)
	if !m.waitForBets(acceptTimer.C) {
		return
	}
	ledger.CloseBetting()
	cutoffTimer := time.NewTimer(m.cfg.BetCutoff)
	if !m.waitForBets(cutoffTimer.C) {
		return
	}

	startedAt := time.Now()
	m.stateMutex.Lock()
	round.Status = StatusRunning
	round.StartedAt = startedAt
	m.startedAt = startedAt
	m.stateMutex.Unlock()

	m.hub.Broadcast(WSMessage{Type: "round.running", Data: TickMessage{
		RoundID:    roundID,
		Multiplier: MIN_MULTIPLIER,
	}})

	// The crash is scheduled, not discovered: the timer fires exactly when
	// the curve reaches the precomputed crash point, independent of tick
	// cadence and of wallet latency.
	crashTimer := time.NewTimer(m.clock.TimeToReach(crashPoint))
	defer crashTimer.Stop()
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	evaluator := NewAutoCashOutEvaluator(ledger)

	for {
		select {
		case <-crashTimer.C:
			if err := ledger.MarkCrashed(); err != nil {
				m.halt(err)
				return
			}
			m.crashRound(round, ledger)
			m.settleRound(round, ledger)
			m.cooldown()
			return

		case <-ticker.C:
			elapsed := time.Since(startedAt)
			mult := m.clock.Multiplier(elapsed)
			if mult >= crashPoint {
				// The timer owns the crash; ticks never display it early.
				continue
			}

			m.hub.Broadcast(WSMessage{Type: "round.tick", Data: TickMessage{
				RoundID:    roundID,
				Multiplier: mult,
			}})

			for _, bet := range evaluator.Evaluate(m.ctx, mult) {
				m.broadcastCashout(bet)
			}

		case req := <-m.betChannel:
			m.processBet(req)

		case req := <-m.cashoutChannel:
			m.processCashout(req)

		case <-m.stopChan:
			return
		}
	}
}

// waitForBets services bet and cashout requests until the given timer
// fires. Returns false if the manager is stopping.
func (m *Manager) waitForBets(deadline <-chan time.Time) bool {
	for {
		select {
		case <-deadline:
			return true
		case req := <-m.betChannel:
			m.processBet(req)
		case req := <-m.cashoutChannel:
			m.processCashout(req)
		case <-m.stopChan:
			return false
		}
	}
}

// crashRound runs the Crashed entry actions: settle losses, reveal the
// seed, fire the terminal broadcast exactly once.
func (m *Manager) crashRound(round *Round, ledger *Ledger) {
	crashedAt := time.Now()
	m.stateMutex.Lock()
	round.Status = StatusCrashed
	round.CrashedAt = crashedAt
	m.stateMutex.Unlock()

	lost := ledger.SettleLosses()

	m.hub.Broadcast(WSMessage{Type: "round.crashed", Data: CrashedMessage{
		RoundID:    round.ID,
		CrashPoint: round.CrashPoint,
		ServerSeed: round.ServerSeed,
		ClientSeed: round.ClientSeed,
	}})

	log.Printf("=== ROUND %s crashed at %.2fx (%d bets lost) ===", round.ID, round.CrashPoint, lost)
}

// settleRound archives the round and reopens the table after the cooldown.
// Archival failures are logged, never allowed to stall the next round.
func (m *Manager) settleRound(round *Round, ledger *Ledger) {
	staked, payout := ledger.Totals()

	m.stateMutex.Lock()
	round.Status = StatusSettled
	m.stateMutex.Unlock()

	entry := RoundHistoryEntry{
		RoundID:        round.ID,
		CrashPoint:     round.CrashPoint,
		ServerSeed:     round.ServerSeed,
		ServerSeedHash: round.ServerSeedHash,
		ClientSeed:     round.ClientSeed,
		StartedAt:      round.StartedAt,
		CrashedAt:      round.CrashedAt,
		TotalBets:      staked,
		TotalPayout:    payout,
	}
	if m.history != nil {
		if err := m.history.Record(m.ctx, entry); err != nil {
			log.Printf("[GAME] Failed to archive round %s: %v", round.ID, err)
		}
	}

	m.pushRecentCrash(round)

	m.hub.Broadcast(WSMessage{Type: "round.settled", Data: SettledMessage{
		RoundID:     round.ID,
		TotalBets:   staked,
		TotalPayout: payout,
	}})
}

// cooldown pauses between rounds while still answering queued requests,
// which by now can only be rejected.
func (m *Manager) cooldown() {
	timer := time.NewTimer(m.cfg.Cooldown)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return
		case req := <-m.betChannel:
			m.processBet(req)
		case req := <-m.cashoutChannel:
			m.processCashout(req)
		case <-m.stopChan:
			return
		}
	}
}

func (m *Manager) processBet(req BetRequest) {
	resp := BetResponse{}
	defer func() {
		if req.ResponseChan != nil {
			req.ResponseChan <- resp
		}
	}()

	m.stateMutex.RLock()
	round := m.currentRound
	ledger := m.ledger
	m.stateMutex.RUnlock()

	if round == nil || ledger == nil {
		resp.Reason = string(KindValidation)
		resp.Message = "No active round"
		return
	}
	if req.RoundID != "" && req.RoundID != round.ID {
		resp.Reason = string(KindValidation)
		resp.Message = "Round is no longer accepting bets"
		return
	}

	bet, err := ledger.PlaceBet(m.ctx, req)
	if err != nil {
		if rej := AsReject(err); rej != nil {
			resp.Reason = string(rej.Kind)
			resp.Message = rej.Message
		} else {
			resp.Reason = string(KindValidation)
			resp.Message = err.Error()
		}
		return
	}

	resp.Success = true
	resp.BetID = bet.ID
	resp.Message = "Bet placed"

	m.hub.Broadcast(WSMessage{Type: "bet.placed", Data: BetPlacedMessage{
		RoundID:   bet.RoundID,
		BetID:     bet.ID,
		AccountID: bet.AccountID,
		SlotIndex: bet.SlotIndex,
		Amount:    bet.Amount,
	}})

	log.Printf("[BET] Account %s staked %.2f on slot %d (ID: %s)", bet.AccountID, bet.Amount, bet.SlotIndex, bet.ID)
}

func (m *Manager) processCashout(req CashoutRequest) {
	resp := CashoutResponse{}
	defer func() {
		if req.ResponseChan != nil {
			req.ResponseChan <- resp
		}
	}()

	m.stateMutex.RLock()
	round := m.currentRound
	ledger := m.ledger
	startedAt := m.startedAt
	m.stateMutex.RUnlock()

	if round == nil || ledger == nil || round.Status != StatusRunning {
		resp.Reason = string(KindStaleCashOut)
		resp.Message = "Round is not running"
		return
	}

	// The server's own clock decides the multiplier; whatever the client
	// believed it saw is ignored.
	mult := m.clock.Multiplier(time.Since(startedAt))

	bet, err := ledger.CashOut(m.ctx, req.BetID, mult)
	if err != nil {
		if rej := AsReject(err); rej != nil {
			resp.Reason = string(rej.Kind)
			resp.Message = rej.Message
		} else {
			resp.Reason = string(KindValidation)
			resp.Message = err.Error()
		}
		return
	}

	resp.Success = true
	resp.Multiplier = bet.CashOutMult
	resp.Payout = bet.Payout
	resp.Message = "Cashed out"

	m.broadcastCashout(*bet)

	log.Printf("[CASHOUT] Account %s cashed out bet %s at %.2fx (payout %.2f)",
		bet.AccountID, bet.ID, bet.CashOutMult, bet.Payout)
}

func (m *Manager) broadcastCashout(bet Bet) {
	m.hub.Broadcast(WSMessage{Type: "bet.cashed_out", Data: CashedOutMessage{
		RoundID:    bet.RoundID,
		BetID:      bet.ID,
		AccountID:  bet.AccountID,
		Multiplier: bet.CashOutMult,
		Payout:     bet.Payout,
	}})
}

// storeRoundInRedis keeps the committed seed material for the live round so
// a restarted process can audit or void it.
func (m *Manager) storeRoundInRedis(round *Round) {
	if m.redisClient == nil {
		return
	}
	data, _ := json.Marshal(map[string]interface{}{
		"round_id":         round.ID,
		"server_seed_hash": round.ServerSeedHash,
		"client_seed":      round.ClientSeed,
		"status":           round.Status,
	})
	m.redisClient.Set(m.ctx, REDIS_KEY_ROUND_PREFIX+round.ID, data, 1*time.Hour)
}

// pushRecentCrash maintains the short list of recent crash points that UI
// history strips read.
func (m *Manager) pushRecentCrash(round *Round) {
	if m.redisClient == nil {
		return
	}
	m.redisClient.LPush(m.ctx, REDIS_KEY_RECENT_ROUNDS, round.CrashPoint)
	m.redisClient.LTrim(m.ctx, REDIS_KEY_RECENT_ROUNDS, 0, 49)
}

// RecentCrashPoints returns the newest-first crash points of recent rounds.
func (m *Manager) RecentCrashPoints(ctx context.Context, limit int) ([]float64, error) {
	if m.redisClient == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	vals, err := m.redisClient.LRange(ctx, REDIS_KEY_RECENT_ROUNDS, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out = append(out, f)
		}
	}
	return out, nil
}
