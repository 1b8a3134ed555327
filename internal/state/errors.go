package state

import "errors"

// Sentinel errors surfaced to callers. Handlers map these to API error
// codes; the core records the rejection reason in metrics.
var (
	ErrInvalidTier       = errors.New("invalid policy tier")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient pool funds")
	ErrAccessDenied      = errors.New("access denied")
	ErrPolicyNotFound    = errors.New("policy not found")
	ErrPolicyNotActive   = errors.New("policy not active")
	ErrInvalidTransition = errors.New("invalid policy status transition")
)
