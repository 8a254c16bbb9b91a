package wallet

import (
	"context"
	"testing"
)

func TestRedisWallet_Interface(t *testing.T) {
	// Verify that RedisWallet implements Wallet
	var _ Wallet = (*RedisWallet)(nil)
}

func TestRedisWallet_RejectsNonPositiveAmounts(t *testing.T) {
	// Amount validation happens before any Redis call
	w := NewRedisWallet(nil)
	ctx := context.Background()

	if err := w.Debit(ctx, "alice", 0); err == nil {
		t.Error("Debit(0) must fail")
	}
	if err := w.Debit(ctx, "alice", -5); err == nil {
		t.Error("Debit(-5) must fail")
	}
	if err := w.Credit(ctx, "alice", 0, "key"); err == nil {
		t.Error("Credit(0) must fail")
	}
	if err := w.Credit(ctx, "alice", -5, "key"); err == nil {
		t.Error("Credit(-5) must fail")
	}
}

// Balance round-trips, credit idempotency, and debit races run against a
// real Redis in redis_wallet_test.go.
