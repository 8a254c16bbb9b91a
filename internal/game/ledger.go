package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"crashround/internal/wallet"
)

type slotKey struct {
	accountID string
	slotIndex int
}

// Ledger tracks every bet slot of a single round and owns the bet state
// machine: Active -> CashedOut or Active -> Lost, never both. All mutations
// happen under one lock, so "crash flagged" and "cashout accepted" are
// mutually exclusive outcomes for any one bet.
type Ledger struct {
	cfg        Config
	wallet     wallet.Wallet
	reconciler *wallet.Reconciler

	roundID    string
	crashPoint float64

	mu          sync.Mutex
	bettingOpen bool
	crashed     bool
	settled     bool
	bets        map[string]*Bet
	slots       map[slotKey]string // reserved before debit so a slot is taken at most once
	order       []string           // bet IDs in placement order
	totalStaked float64
	totalPayout float64
}

// NewLedger opens the book for one round. The true crash point is needed so
// the server, not the caller, decides whether a cashout multiplier is still
// reachable.
func NewLedger(cfg Config, w wallet.Wallet, rec *wallet.Reconciler, roundID string, crashPoint float64) *Ledger {
	return &Ledger{
		cfg:         cfg,
		wallet:      w,
		reconciler:  rec,
		roundID:     roundID,
		crashPoint:  crashPoint,
		bettingOpen: true,
		bets:        make(map[string]*Bet),
		slots:       make(map[slotKey]string),
	}
}

// PlaceBet validates, debits the stake, and only then makes the bet record
// visible. There is no window where a bet exists without a matching debit:
// the slot is reserved first, so a concurrent duplicate for the same
// (account, slot) is refused before anyone's wallet is touched.
func (l *Ledger) PlaceBet(ctx context.Context, req BetRequest) (*Bet, error) {
	if req.AccountID == "" {
		return nil, rejectf(KindValidation, "account id is required")
	}
	if req.Amount < l.cfg.MinBetAmount || req.Amount > l.cfg.MaxBetAmount {
		return nil, rejectf(KindValidation, "bet must be between %.2f and %.2f",
			l.cfg.MinBetAmount, l.cfg.MaxBetAmount)
	}
	if req.SlotIndex < 0 || req.SlotIndex >= l.cfg.MaxSlotsPerUser {
		return nil, rejectf(KindValidation, "slot index must be between 0 and %d",
			l.cfg.MaxSlotsPerUser-1)
	}
	if req.AutoCashOutAt != 0 && req.AutoCashOutAt < MIN_MULTIPLIER {
		return nil, rejectf(KindValidation, "auto cashout must be at least %.2f", MIN_MULTIPLIER)
	}

	key := slotKey{accountID: req.AccountID, slotIndex: req.SlotIndex}
	betID := uuid.NewString()

	l.mu.Lock()
	if !l.bettingOpen || l.crashed {
		l.mu.Unlock()
		return nil, rejectf(KindValidation, "betting is closed")
	}
	if _, taken := l.slots[key]; taken {
		l.mu.Unlock()
		return nil, rejectf(KindValidation, "slot %d already has a bet this round", req.SlotIndex)
	}
	l.slots[key] = betID
	l.mu.Unlock()

	// Debit outside the lock: the wallet may be slow and the round clock
	// must not wait on it.
	if err := l.wallet.Debit(ctx, req.AccountID, req.Amount); err != nil {
		l.mu.Lock()
		delete(l.slots, key)
		l.mu.Unlock()
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			return nil, rejectf(KindInsufficientFunds, "insufficient balance")
		}
		// Wallet unreachable: fail closed, never accept an unfunded bet.
		return nil, rejectf(KindInsufficientFunds, "wallet unavailable")
	}

	bet := &Bet{
		ID:            betID,
		RoundID:       l.roundID,
		AccountID:     req.AccountID,
		SlotIndex:     req.SlotIndex,
		Amount:        req.Amount,
		Status:        BetActive,
		AutoCashOutAt: req.AutoCashOutAt,
		PlacedAt:      time.Now(),
	}

	l.mu.Lock()
	if !l.bettingOpen || l.crashed {
		// Betting closed while the debit was in flight; refund and refuse.
		l.mu.Unlock()
		if err := l.wallet.Credit(ctx, req.AccountID, req.Amount, "refund:"+betID); err != nil && l.reconciler != nil {
			l.reconciler.Enqueue(wallet.PendingCredit{BetID: "refund:" + betID, AccountID: req.AccountID, Amount: req.Amount})
		}
		l.mu.Lock()
		delete(l.slots, key)
		l.mu.Unlock()
		return nil, rejectf(KindValidation, "betting is closed")
	}
	l.bets[betID] = bet
	l.order = append(l.order, betID)
	l.totalStaked += req.Amount
	l.mu.Unlock()

	return bet, nil
}

// CashOut settles a single bet as a win at the given multiplier. The
// multiplier is always server-computed; client-claimed values are at best a
// UI hint and are never trusted here. If the crash flag is already set the
// call is rejected no matter what any client-side clock believed -- the
// server flag wins ties.
func (l *Ledger) CashOut(ctx context.Context, betID string, atMultiplier float64) (*Bet, error) {
	l.mu.Lock()
	bet, ok := l.bets[betID]
	if !ok {
		l.mu.Unlock()
		return nil, rejectf(KindValidation, "bet not found")
	}
	if l.crashed {
		l.mu.Unlock()
		return nil, rejectf(KindStaleCashOut, "round already crashed")
	}
	if l.bettingOpen {
		l.mu.Unlock()
		return nil, rejectf(KindValidation, "round is not running")
	}
	if bet.Status != BetActive {
		l.mu.Unlock()
		return nil, rejectf(KindStaleCashOut, "bet is not active")
	}
	if atMultiplier >= l.crashPoint {
		l.mu.Unlock()
		return nil, rejectf(KindStaleCashOut, "multiplier no longer reachable")
	}
	if atMultiplier < MIN_MULTIPLIER {
		atMultiplier = MIN_MULTIPLIER
	}

	// Terminal transition under the lock: any concurrent CashOut for the
	// same bet loses here, so at most one payout can follow.
	bet.Status = BetCashedOut
	bet.CashOutMult = atMultiplier
	bet.Payout = bet.Amount * atMultiplier
	l.totalPayout += bet.Payout
	settled := *bet
	l.mu.Unlock()

	// Credit after the transition, keyed on the bet ID so a retry can never
	// pay twice. The bet stays CashedOut-pending-credit if the wallet is down.
	if err := l.wallet.Credit(ctx, settled.AccountID, settled.Payout, settled.ID); err != nil {
		log.Printf("[LEDGER] Credit failed for bet %s, handing to reconciler: %v", settled.ID, err)
		if l.reconciler != nil {
			l.reconciler.Enqueue(wallet.PendingCredit{
				BetID:     settled.ID,
				AccountID: settled.AccountID,
				Amount:    settled.Payout,
			})
		}
	}

	return &settled, nil
}

// CloseBetting seals the book when the round leaves Waiting. Bets arriving
// after this point are rejected.
func (l *Ledger) CloseBetting() {
	l.mu.Lock()
	l.bettingOpen = false
	l.mu.Unlock()
}

// MarkCrashed sets the crash flag. It is the single entry action of the
// Crashed state and may run exactly once; a second call is a correctness
// bug, not a race to tolerate.
func (l *Ledger) MarkCrashed() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.crashed {
		return fmt.Errorf("%w: round %s crashed twice", ErrInvariantViolation, l.roundID)
	}
	l.crashed = true
	return nil
}

// SettleLosses moves every still-Active bet to Lost with no credit. It is
// idempotent: a second call finds no Active bets and does nothing.
func (l *Ledger) SettleLosses() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.settled {
		return 0
	}
	l.settled = true

	lost := 0
	for _, id := range l.order {
		bet := l.bets[id]
		if bet.Status == BetActive {
			bet.Status = BetLost
			lost++
		}
	}
	return lost
}

// ActiveBets returns copies of the Active bets in placement order.
func (l *Ledger) ActiveBets() []Bet {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Bet
	for _, id := range l.order {
		if bet := l.bets[id]; bet.Status == BetActive {
			out = append(out, *bet)
		}
	}
	return out
}

// BetsFor returns copies of an account's bets in this round.
func (l *Ledger) BetsFor(accountID string) []Bet {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Bet
	for _, id := range l.order {
		if bet := l.bets[id]; bet.AccountID == accountID {
			out = append(out, *bet)
		}
	}
	return out
}

// Bet returns a copy of one bet.
func (l *Ledger) Bet(betID string) (Bet, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bet, ok := l.bets[betID]
	if !ok {
		return Bet{}, false
	}
	return *bet, true
}

// Totals reports the staked and paid-out sums for settlement bookkeeping.
func (l *Ledger) Totals() (staked, payout float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalStaked, l.totalPayout
}

// BetCount reports how many bets were placed this round.
func (l *Ledger) BetCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}
