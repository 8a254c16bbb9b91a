package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// flakyWallet fails the first failures credits, then succeeds. Credits are
// idempotent per key, like the real implementation.
type flakyWallet struct {
	mu       sync.Mutex
	failures int
	calls    int
	credited map[string]bool
}

func newFlakyWallet(failures int) *flakyWallet {
	return &flakyWallet{failures: failures, credited: make(map[string]bool)}
}

func (w *flakyWallet) Debit(ctx context.Context, accountID string, amount float64) error {
	return nil
}

func (w *flakyWallet) Credit(ctx context.Context, accountID string, amount float64, key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.calls <= w.failures {
		return errors.New("wallet unreachable")
	}
	if w.credited[key] {
		return nil
	}
	w.credited[key] = true
	return nil
}

func (w *flakyWallet) creditedKeys() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.credited)
}

func TestReconciler_RetriesUntilSuccess(t *testing.T) {
	w := newFlakyWallet(2)
	r := NewReconciler(w)
	r.baseDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)
	defer r.Stop()

	r.Enqueue(PendingCredit{BetID: "bet-1", AccountID: "alice", Amount: 50})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.creditedKeys() == 1 {
			if dead := r.DeadLetters(); len(dead) != 0 {
				t.Errorf("DeadLetters() = %d entries, want 0", len(dead))
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("credit was never reconciled")
}

func TestReconciler_ExhaustedRetriesAlert(t *testing.T) {
	w := newFlakyWallet(1000) // never succeeds
	r := NewReconciler(w)
	r.baseDelay = time.Millisecond
	r.maxAttempts = 3

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)
	defer r.Stop()

	r.Enqueue(PendingCredit{BetID: "bet-2", AccountID: "bob", Amount: 10})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		dead := r.DeadLetters()
		if len(dead) == 1 {
			if dead[0].BetID != "bet-2" {
				t.Errorf("dead letter bet = %s, want bet-2", dead[0].BetID)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("exhausted credit never reached the dead letter list")
}

func TestReconciler_QueueOverflowNeverBlocks(t *testing.T) {
	w := newFlakyWallet(1000)
	r := NewReconciler(w)
	// Not running: the queue fills and overflow must go to dead letters.

	done := make(chan bool, 1)
	go func() {
		for i := 0; i < 1100; i++ {
			r.Enqueue(PendingCredit{BetID: "bet", AccountID: "x", Amount: 1})
		}
		done <- true
	}()

	select {
	case <-done:
		if len(r.DeadLetters()) == 0 {
			t.Error("overflow credits were silently dropped")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue() blocked on a full queue")
	}
}
