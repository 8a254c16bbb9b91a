package game

import (
	"time"
)

type RoundStatus string

const (
	StatusWaiting RoundStatus = "WAITING"
	StatusRunning RoundStatus = "RUNNING"
	StatusCrashed RoundStatus = "CRASHED"
	StatusSettled RoundStatus = "SETTLED"
)

type BetStatus string

const (
	BetActive    BetStatus = "ACTIVE"
	BetCashedOut BetStatus = "CASHED_OUT"
	BetLost      BetStatus = "LOST"
)

// Round is the authoritative state of one waiting-running-crashed-settled
// cycle. CrashPoint and ServerSeed stay out of JSON until the reveal.
type Round struct {
	ID             string      `json:"round_id"`
	Status         RoundStatus `json:"status"`
	ServerSeed     string      `json:"-"` // revealed only after crash
	ServerSeedHash string      `json:"server_seed_hash"`
	ClientSeed     string      `json:"client_seed"`
	CrashPoint     float64     `json:"-"` // fixed at creation, hidden until crash
	StartedAt      time.Time   `json:"started_at,omitempty"`
	CrashedAt      time.Time   `json:"crashed_at,omitempty"`
}

// Bet is one stake in one slot of one round. A player may hold several
// independent slots in the same round.
type Bet struct {
	ID            string    `json:"bet_id"`
	RoundID       string    `json:"round_id"`
	AccountID     string    `json:"account_id"`
	SlotIndex     int       `json:"slot_index"`
	Amount        float64   `json:"amount"`
	Status        BetStatus `json:"status"`
	AutoCashOutAt float64   `json:"auto_cashout_at,omitempty"`
	CashOutMult   float64   `json:"cashout_multiplier,omitempty"`
	Payout        float64   `json:"payout,omitempty"`
	PlacedAt      time.Time `json:"placed_at"`
}

type BetRequest struct {
	AccountID     string  `json:"account_id"`
	RoundID       string  `json:"round_id"`
	SlotIndex     int     `json:"slot_index"`
	Amount        float64 `json:"amount"`
	AutoCashOutAt float64 `json:"auto_cashout_at,omitempty"`

	ResponseChan chan BetResponse `json:"-"`
}

type BetResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Reason  string  `json:"reason,omitempty"`
	BetID   string  `json:"bet_id,omitempty"`
	Balance float64 `json:"balance,omitempty"`
}

type CashoutRequest struct {
	BetID   string `json:"bet_id"`
	RoundID string `json:"round_id,omitempty"`

	ResponseChan chan CashoutResponse `json:"-"`
}

type CashoutResponse struct {
	Success    bool    `json:"success"`
	Message    string  `json:"message"`
	Reason     string  `json:"reason,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty"`
	Payout     float64 `json:"payout,omitempty"`
}

// Snapshot is what a late-joining or reconnecting client fetches instead of
// replaying every tick: round status, elapsed flight time, the current
// multiplier, and (when an account is named) that account's live bets.
type Snapshot struct {
	RoundID           string      `json:"round_id"`
	Status            RoundStatus `json:"status"`
	ServerSeedHash    string      `json:"server_seed_hash"`
	Elapsed           float64     `json:"elapsed_seconds"`
	CurrentMultiplier float64     `json:"current_multiplier"`
	ActiveBets        []Bet       `json:"active_bets,omitempty"`
}

// WSMessage is the envelope every live-feed event travels in.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Broadcast event payloads carried over the live feed.

type WaitingMessage struct {
	RoundID        string  `json:"round_id"`
	ServerSeedHash string  `json:"server_seed_hash"`
	TimeLeft       float64 `json:"time_left"`
}

type TickMessage struct {
	RoundID    string  `json:"round_id"`
	Multiplier float64 `json:"multiplier"`
}

type CrashedMessage struct {
	RoundID    string  `json:"round_id"`
	CrashPoint float64 `json:"crash_point"`
	ServerSeed string  `json:"server_seed"`
	ClientSeed string  `json:"client_seed"`
}

type SettledMessage struct {
	RoundID     string  `json:"round_id"`
	TotalBets   float64 `json:"total_bets"`
	TotalPayout float64 `json:"total_payout"`
}

type BetPlacedMessage struct {
	RoundID   string  `json:"round_id"`
	BetID     string  `json:"bet_id"`
	AccountID string  `json:"account_id"`
	SlotIndex int     `json:"slot_index"`
	Amount    float64 `json:"amount"`
}

type CashedOutMessage struct {
	RoundID    string  `json:"round_id"`
	BetID      string  `json:"bet_id"`
	AccountID  string  `json:"account_id"`
	Multiplier float64 `json:"multiplier"`
	Payout     float64 `json:"payout"`
}
