package game

import (
	"math"
	"time"
)

// Clock converts elapsed flight time into the displayed multiplier. The
// curve is exponential: multiplier(t) = e^(rate*t), so multiplier(0) = 1.00
// and the function is strictly increasing. Because it depends on elapsed
// time alone, every observer sees the same value and any disputed tick can
// be replayed after the fact.
type Clock struct {
	GrowthRate float64 // per-second exponent, e.g. 0.08 reaches 2.00x at ~8.7s
}

// Multiplier returns the multiplier after the given elapsed flight time,
// truncated to 2 decimal places. Negative elapsed is treated as zero.
func (c Clock) Multiplier(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return MIN_MULTIPLIER
	}
	mult := math.Exp(c.GrowthRate * elapsed.Seconds())
	mult = math.Trunc(mult*100) / 100.0
	if mult < MIN_MULTIPLIER {
		return MIN_MULTIPLIER
	}
	return mult
}

// TimeToReach is the inverse of Multiplier: the flight time at which the
// displayed multiplier first reaches target. The lifecycle manager uses it
// to arm the crash timer exactly instead of discovering the crash by
// comparing tick values.
func (c Clock) TimeToReach(target float64) time.Duration {
	if target <= MIN_MULTIPLIER {
		return 0
	}
	seconds := math.Log(target) / c.GrowthRate
	return time.Duration(seconds * float64(time.Second))
}
