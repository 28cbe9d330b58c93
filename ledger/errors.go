/*
errors.go - Centralized error types for the ledger

Sentinels for errors.Is checks, plus one structured error carrying the
balance context a caller needs to render an "insufficient credits" message.
Store implementations must return these sentinels (wrapped is fine) so
callers can branch without knowing the backend.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAccountNotFound is returned for operations on an identity that was
	// never registered via EnsureAccount. This is a programming error
	// upstream: every inbound event must ensure the account first.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientCredits is returned when a debit would take the balance
	// below zero. Expected and user-recoverable.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidAmount is returned when a debit/credit/grant amount is not
	// strictly positive.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InsufficientCreditsError carries the balance context for user messaging.
type InsufficientCreditsError struct {
	Identity  Identity
	Balance   int64
	Requested int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: balance %d, requested %d", e.Balance, e.Requested)
}

func (e *InsufficientCreditsError) Unwrap() error { return ErrInsufficientCredits }

// IsUserError reports whether the error is an expected, user-recoverable
// condition rather than an operational failure.
func IsUserError(err error) bool {
	return errors.Is(err, ErrInsufficientCredits)
}
