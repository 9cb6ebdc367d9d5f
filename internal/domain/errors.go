package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrDuplicateClaim = errors.New("event key already claimed")
	ErrLockHeld       = errors.New("lock already held")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrRateLimited    = errors.New("rate limited")
	ErrInvalidOrder   = errors.New("invalid order parameters")
)

// RiskDecision is the outcome of the pre-trade risk evaluation. Reason is
// populated with the first failed check when OK is false.
type RiskDecision struct {
	OK     bool
	Reason string
}

// Approve returns a passing decision.
func Approve() RiskDecision { return RiskDecision{OK: true} }

// Reject returns a failing decision with the given reason.
func Reject(reason string) RiskDecision { return RiskDecision{OK: false, Reason: reason} }
