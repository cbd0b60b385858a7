/*
ledger.go - Append-only ledger rules shared by every store

PURPOSE:
  The ledger is the immutable source of truth for game-time minutes.
  Every settlement, redemption and adjustment is one Entry. Balance is
  always computed by folding the entries - there's no separate balance
  field that can get out of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. SETTLE-ONCE: At most one earned entry per (user, day).
  3. SHAPE: redeem < 0, adjust != 0, earned >= 0.
  4. DERIVED BALANCE: Balance == sum(Delta), 0 for an empty ledger.

CORRECTIONS:
  A wrong settlement is never edited or re-settled. An admin appends an
  adjust entry with the difference; both lines stay in the history.

EXAMPLE FLOW:
  1. Day settles:       earned +30
  2. Parent bonus:      adjust +10
  3. Game session:      redeem -25
  Balance: 30 + 10 - 25 = 15

SEE ALSO:
  - store.go:          Persistence interfaces
  - ledger/service.go: Settle / Redeem / Adjust on top of these rules
*/
package generic

import "fmt"

// ValidateEntry checks the shape rules every store enforces before Append.
func ValidateEntry(e Entry) error {
	if !e.Reason.Valid() {
		return fmt.Errorf("%w: unknown reason %q", ErrInvalidEntry, e.Reason)
	}
	if e.User == 0 {
		return fmt.Errorf("%w: missing user", ErrInvalidEntry)
	}
	if e.Day.IsZero() {
		return fmt.Errorf("%w: missing day", ErrInvalidEntry)
	}

	switch e.Reason {
	case ReasonEarned:
		// Zero is a legitimate settlement outcome.
		if e.Delta < 0 {
			return fmt.Errorf("%w: earned delta %d is negative", ErrInvalidEntry, e.Delta)
		}
	case ReasonRedeem:
		if e.Delta >= 0 {
			return fmt.Errorf("%w: redeem delta %d must be negative", ErrInvalidEntry, e.Delta)
		}
	case ReasonAdjust:
		if e.Delta == 0 {
			return fmt.Errorf("%w: adjust delta must be nonzero", ErrInvalidEntry)
		}
	}
	return nil
}

// SumDeltas folds entries into a balance.
func SumDeltas(entries []Entry) int {
	total := 0
	for _, e := range entries {
		total += e.Delta
	}
	return total
}
