package game

import (
	"errors"
	"fmt"
)

// RejectKind is the machine-readable reason code attached to every
// user-visible rejection. Handlers map these onto HTTP statuses.
type RejectKind string

const (
	KindValidation        RejectKind = "validation_error"
	KindInsufficientFunds RejectKind = "insufficient_funds"
	KindStaleCashOut      RejectKind = "stale_cashout"
	KindTableHalted       RejectKind = "table_halted"
)

// Reject is a synchronous, side-effect-free refusal of a bet or cashout.
// It is an expected outcome of normal play (late bets, crash races) and
// is never logged as an anomaly.
type Reject struct {
	Kind    RejectKind
	Message string
}

func (r *Reject) Error() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Message)
}

func rejectf(kind RejectKind, format string, args ...interface{}) *Reject {
	return &Reject{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsReject unwraps err into a *Reject, or nil if err is not a rejection.
func AsReject(err error) *Reject {
	var r *Reject
	if errors.As(err, &r) {
		return r
	}
	return nil
}

// ErrInvariantViolation marks a correctness bug inside the engine, such as
// a round crashing twice or a second credit for one bet. It is fatal to the
// table: the manager stops opening rounds and pages an operator.
var ErrInvariantViolation = errors.New("internal invariant violation")
