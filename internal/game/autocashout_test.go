package game

import (
	"context"
	"testing"
)

func TestAutoCashOut_SettlesAtConfiguredThreshold(t *testing.T) {
	// The tick the evaluator observes is 2.37x, but the bet asked for 2.00x:
	// the player gets exactly 2.00x.
	w := newFakeWallet(map[string]float64{"alice": 100})
	l := testLedger(w, 3.5)
	ctx := context.Background()

	bet, err := l.PlaceBet(ctx, BetRequest{
		AccountID: "alice", SlotIndex: 0, Amount: 10, AutoCashOutAt: 2.00,
	})
	if err != nil {
		t.Fatalf("PlaceBet(): %v", err)
	}
	l.CloseBetting()

	ev := NewAutoCashOutEvaluator(l)
	settled := ev.Evaluate(ctx, 2.37)

	if len(settled) != 1 {
		t.Fatalf("Evaluate() settled %d bets, want 1", len(settled))
	}
	if settled[0].ID != bet.ID {
		t.Errorf("settled bet = %s, want %s", settled[0].ID, bet.ID)
	}
	if settled[0].CashOutMult != 2.00 {
		t.Errorf("cashout multiplier = %v, want the configured 2.00, not the tick value", settled[0].CashOutMult)
	}
	if settled[0].Payout != 20 {
		t.Errorf("payout = %v, want 20", settled[0].Payout)
	}
}

func TestAutoCashOut_BelowThresholdUntouched(t *testing.T) {
	w := newFakeWallet(map[string]float64{"alice": 100})
	l := testLedger(w, 3.5)
	ctx := context.Background()

	l.PlaceBet(ctx, BetRequest{AccountID: "alice", SlotIndex: 0, Amount: 10, AutoCashOutAt: 2.00})
	l.CloseBetting()

	ev := NewAutoCashOutEvaluator(l)
	if settled := ev.Evaluate(ctx, 1.50); len(settled) != 0 {
		t.Errorf("Evaluate() below threshold settled %d bets, want 0", len(settled))
	}

	bets := l.ActiveBets()
	if len(bets) != 1 {
		t.Errorf("active bets = %d, want 1", len(bets))
	}
}

func TestAutoCashOut_NoThresholdIgnored(t *testing.T) {
	w := newFakeWallet(map[string]float64{"alice": 100})
	l := testLedger(w, 3.5)
	ctx := context.Background()

	l.PlaceBet(ctx, BetRequest{AccountID: "alice", SlotIndex: 0, Amount: 10})
	l.CloseBetting()

	ev := NewAutoCashOutEvaluator(l)
	if settled := ev.Evaluate(ctx, 3.0); len(settled) != 0 {
		t.Errorf("Evaluate() settled %d manual bets, want 0", len(settled))
	}
}

func TestAutoCashOut_AllEligibleInOneTick(t *testing.T) {
	// Several bets cross their thresholds on the same tick; none may be
	// skipped because an earlier settlement mutated shared state.
	w := newFakeWallet(map[string]float64{"a": 100, "b": 100, "c": 100, "d": 100})
	l := testLedger(w, 10.0)
	ctx := context.Background()

	thresholds := map[string]float64{"a": 1.5, "b": 2.0, "c": 2.5, "d": 9.0}
	for account, at := range thresholds {
		if _, err := l.PlaceBet(ctx, BetRequest{
			AccountID: account, SlotIndex: 0, Amount: 10, AutoCashOutAt: at,
		}); err != nil {
			t.Fatalf("PlaceBet(%s): %v", account, err)
		}
	}
	l.CloseBetting()

	ev := NewAutoCashOutEvaluator(l)
	settled := ev.Evaluate(ctx, 2.5)

	if len(settled) != 3 {
		t.Fatalf("Evaluate() settled %d bets, want 3", len(settled))
	}
	for _, bet := range settled {
		if bet.CashOutMult != thresholds[bet.AccountID] {
			t.Errorf("account %s settled at %v, want %v", bet.AccountID, bet.CashOutMult, thresholds[bet.AccountID])
		}
	}

	// The 9.0x bet is still riding.
	if active := l.ActiveBets(); len(active) != 1 || active[0].AccountID != "d" {
		t.Errorf("remaining active bets = %+v, want only account d", active)
	}
}

func TestAutoCashOut_LosesRaceToCrashQuietly(t *testing.T) {
	w := newFakeWallet(map[string]float64{"alice": 100})
	l := testLedger(w, 3.5)
	ctx := context.Background()

	l.PlaceBet(ctx, BetRequest{AccountID: "alice", SlotIndex: 0, Amount: 10, AutoCashOutAt: 2.0})
	l.CloseBetting()
	l.MarkCrashed()

	ev := NewAutoCashOutEvaluator(l)
	if settled := ev.Evaluate(ctx, 2.37); len(settled) != 0 {
		t.Errorf("Evaluate() after crash settled %d bets, want 0", len(settled))
	}
}
