package repository

import "errors"

// Expected business conditions. Callers branch on these with errors.Is and
// render them to users; they are not failures.
var (
	ErrUserNotFound           = errors.New("user not found")
	ErrStyleNotFound          = errors.New("style not found")
	ErrGenerationNotFound     = errors.New("generation not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrActiveGenerationExists = errors.New("user already has an active generation")
	ErrPendingPaymentExists   = errors.New("user already has a pending payment")

	// ErrConflict means a state transition lost a race: the row exists but is
	// no longer in a state the transition is legal from. Safe to report as
	// "already handled".
	ErrConflict = errors.New("state already changed")
)
