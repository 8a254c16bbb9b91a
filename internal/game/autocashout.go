package game

import (
	"context"
	"log"
)

// AutoCashOutEvaluator fires pre-registered cashout instructions as the live
// multiplier climbs. It runs synchronously inside each tick so every
// eligible bet is processed before the next tick can move the goalposts.
type AutoCashOutEvaluator struct {
	ledger *Ledger
}

func NewAutoCashOutEvaluator(ledger *Ledger) *AutoCashOutEvaluator {
	return &AutoCashOutEvaluator{ledger: ledger}
}

// Evaluate cashes out every Active bet whose threshold the multiplier has
// reached. Each bet is settled at its own configured threshold, not at the
// tick value the evaluator happened to observe, so the player gets exactly
// the multiplier they asked for. Returns the bets settled this tick.
func (e *AutoCashOutEvaluator) Evaluate(ctx context.Context, currentMultiplier float64) []Bet {
	var settled []Bet
	for _, bet := range e.ledger.ActiveBets() {
		if bet.AutoCashOutAt <= 0 || bet.AutoCashOutAt > currentMultiplier {
			continue
		}
		done, err := e.ledger.CashOut(ctx, bet.ID, bet.AutoCashOutAt)
		if err != nil {
			// A manual cashout or the crash can win the race; that is the
			// expected outcome, not an anomaly.
			if AsReject(err) == nil {
				log.Printf("[AUTOCASHOUT] Bet %s: %v", bet.ID, err)
			}
			continue
		}
		settled = append(settled, *done)
	}
	return settled
}
