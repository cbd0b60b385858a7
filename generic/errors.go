/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch with errors.Is on the sentinels and errors.As on the
  structured types when they need the details (e.g. the current balance
  to show next to a rejected redemption).

ERROR CATEGORIES:
  1. Caller intent errors - duplicate settlement, bad amounts, overspend
  2. Missing prerequisites - unknown user, unknown note
  3. Input format errors - malformed day strings

  None of these are transient. The core never retries; everything is
  surfaced to the caller.

NOT AN ERROR:
  Settling a day with no DayRecord. That yields earned=0 and is recorded.

SEE ALSO:
  - ledger/service.go: Returns these errors
  - api/handlers.go:   Maps them to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAlreadySettled is returned when an earned entry already exists for
	// the (user, day). Rejected, not retried.
	ErrAlreadySettled = errors.New("already settled")

	// ErrInvalidAmount is returned for zero, negative (where not allowed),
	// fractional, non-finite or out-of-range minutes.
	ErrInvalidAmount = errors.New("invalid minutes")

	// ErrInsufficientBalance is returned when a redemption exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNoSuchUser is returned when the user (account) does not exist.
	ErrNoSuchUser = errors.New("no such user")

	// ErrInvalidDay is returned when a day string is not YYYY-MM-DD.
	ErrInvalidDay = errors.New("invalid day")

	// ErrInvalidEntry is returned when an entry violates the ledger shape
	// (unknown reason, zero delta on redeem/adjust, wrong sign on redeem).
	ErrInvalidEntry = errors.New("invalid ledger entry")

	// ErrNotFound is returned for missing records other than users (notes).
	ErrNotFound = errors.New("not found")

	// ErrDuplicateUsername is returned when creating a user whose name is taken.
	ErrDuplicateUsername = errors.New("username already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AlreadySettledError reports which entry already settled the day.
// ExistingID is empty when the duplicate was caught by the storage
// constraint rather than the fast-path check.
type AlreadySettledError struct {
	User       UserID
	Day        Day
	ExistingID string
}

func (e *AlreadySettledError) Error() string {
	if e.ExistingID == "" {
		return fmt.Sprintf("already settled: user %d day %s", e.User, e.Day)
	}
	return fmt.Sprintf("already settled: user %d day %s (entry %s)", e.User, e.Day, e.ExistingID)
}

func (e *AlreadySettledError) Unwrap() error {
	return ErrAlreadySettled
}

// InsufficientBalanceError carries the balance at the time of the check so
// the caller can disclose it.
type InsufficientBalanceError struct {
	User      UserID
	Balance   int
	Requested int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: balance %d, requested %d", e.Balance, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller intent.
func IsClientError(err error) bool {
	return errors.Is(err, ErrAlreadySettled) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidDay) ||
		errors.Is(err, ErrInvalidEntry) ||
		errors.Is(err, ErrDuplicateUsername)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNoSuchUser) || errors.Is(err, ErrNotFound)
}
