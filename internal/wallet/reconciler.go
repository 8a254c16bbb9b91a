package wallet

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	reconcileMaxAttempts = 8
	reconcileBaseDelay   = 500 * time.Millisecond
)

// PendingCredit is a payout that could not be applied at settlement time.
// It is retried keyed on the bet ID so a duplicate delivery pays once.
type PendingCredit struct {
	BetID     string
	AccountID string
	Amount    float64
	Attempts  int
}

// Reconciler retries settlement credits that failed because the wallet was
// unreachable. A cashed-out bet stays pending-credit rather than losing the
// player's winnings; the round itself never waits on this loop.
type Reconciler struct {
	wallet      Wallet
	queue       chan PendingCredit
	baseDelay   time.Duration
	maxAttempts int
	mu          sync.Mutex
	deadLet     []PendingCredit
	stopChan    chan struct{}
	stopOnce    sync.Once
}

func NewReconciler(w Wallet) *Reconciler {
	return &Reconciler{
		wallet:      w,
		queue:       make(chan PendingCredit, 1000),
		baseDelay:   reconcileBaseDelay,
		maxAttempts: reconcileMaxAttempts,
		stopChan:    make(chan struct{}),
	}
}

// Enqueue hands a failed credit to the retry loop. Never blocks the caller;
// an overflowing queue goes straight to the dead letter list and the alert.
func (r *Reconciler) Enqueue(pc PendingCredit) {
	select {
	case r.queue <- pc:
	default:
		r.alert(pc, "reconcile queue full")
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	for {
		select {
		case pc := <-r.queue:
			r.retry(ctx, pc)
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

func (r *Reconciler) retry(ctx context.Context, pc PendingCredit) {
	delay := r.baseDelay * (1 << pc.Attempts)
	select {
	case <-time.After(delay):
	case <-r.stopChan:
		return
	case <-ctx.Done():
		return
	}

	err := r.wallet.Credit(ctx, pc.AccountID, pc.Amount, pc.BetID)
	if err == nil {
		log.Printf("[WALLET] Reconciled credit for bet %s after %d retries", pc.BetID, pc.Attempts+1)
		return
	}

	pc.Attempts++
	if pc.Attempts >= r.maxAttempts {
		r.alert(pc, err.Error())
		return
	}

	log.Printf("[WALLET] Credit retry %d for bet %s failed: %v", pc.Attempts, pc.BetID, err)
	r.Enqueue(pc)
}

// alert records an exhausted credit for operator intervention. The payout is
// never silently dropped.
func (r *Reconciler) alert(pc PendingCredit, reason string) {
	r.mu.Lock()
	r.deadLet = append(r.deadLet, pc)
	r.mu.Unlock()
	log.Printf("[ALERT] Unrecoverable credit for bet %s (account %s, %.2f): %s",
		pc.BetID, pc.AccountID, pc.Amount, reason)
}

// DeadLetters returns credits that exhausted their retries.
func (r *Reconciler) DeadLetters() []PendingCredit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PendingCredit, len(r.deadLet))
	copy(out, r.deadLet)
	return out
}
