/*
service.go - Settlement, redemption and adjustment on the append-only ledger

PURPOSE:
  The LedgerService owns every write to the ledger. It turns a day of
  activity into exactly one earned entry, lets the student spend minutes
  without going below zero, and lets an admin correct the balance.

INVARIANTS:
  1. SETTLE-ONCE: (user, day) moves Unsettled -> Settled on the first
     successful Settle and never back. A zero result is still recorded,
     so later edits to the day's record can never change the outcome.
  2. NO OVERSPEND: Redeem checks balance and appends inside one
     transaction. Two concurrent redemptions cannot both pass the check.
  3. BALANCE = sum(Delta) over the user's entries. Always recomputed.
  4. ATOMIC: Each operation is one append or nothing.

CONCURRENCY:
  The check-then-append sequences run inside TxStore.WithTx. The stores
  serialize write transactions, and the storage-level unique index on
  earned entries catches anything the fast-path check could miss.

STATE MACHINE (per user, day):
  Unsettled --Settle--> Settled
  Redeem and Adjust are independent of it and allowed on any day.

ERRORS:
  *AlreadySettledError     (errors.Is ErrAlreadySettled)
  *InsufficientBalanceError (errors.Is ErrInsufficientBalance), carries balance
  ErrInvalidAmount, ErrInvalidDay, ErrNoSuchUser
  Infrastructure errors are wrapped and returned as-is.

SEE ALSO:
  - rewards/calculator.go: Compute, the pure reward rules
  - generic/store.go:      TxStore contract
  - breakdown.go:          Audit note encoding
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/gametime/generic"
	"github.com/warp/gametime/rewards"
)

// MaxAmount bounds a single redemption or adjustment.
const MaxAmount = 100000

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store generic.TxStore
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDFunc overrides entry ID generation.
func WithIDFunc(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func New(store generic.TxStore, opts ...Option) *Service {
	s := &Service{
		store: store,
		log:   zap.NewNop(),
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// RESULTS
// =============================================================================

// Settlement is the outcome of a successful Settle.
type Settlement struct {
	Entry                   generic.Entry
	Earned                  int
	Breakdown               rewards.Breakdown
	YesterdayScreenViolated bool
}

// Preview is what Settle would compute right now, without writing.
type Preview struct {
	Record                  *generic.DayRecord
	NotesCount              int
	Result                  rewards.Result
	YesterdayScreenViolated bool
	Settled                 *generic.Entry // the earned entry, when already settled
}

// =============================================================================
// SETTLE
// =============================================================================

// Settle credits the day's earned minutes exactly once.
func (s *Service) Settle(ctx context.Context, user generic.UserID, day generic.Day) (Settlement, error) {
	if day.IsZero() {
		return Settlement{}, generic.ErrInvalidDay
	}

	var out Settlement
	err := s.store.WithTx(ctx, func(tx generic.Store) error {
		if err := requireUser(ctx, tx, user); err != nil {
			return err
		}

		// Fast path only; the store's unique constraint is authoritative.
		existing, err := tx.EarnedEntry(ctx, user, day)
		if err != nil {
			return fmt.Errorf("check settlement: %w", err)
		}
		if existing != nil {
			return &generic.AlreadySettledError{User: user, Day: day, ExistingID: existing.ID}
		}

		in, err := gatherInputs(ctx, tx, user, day)
		if err != nil {
			return err
		}
		res := rewards.Compute(in)

		note, err := EncodeBreakdown(res.Breakdown)
		if err != nil {
			return err
		}

		entry := generic.Entry{
			ID:        s.newID(),
			User:      user,
			Day:       day,
			Delta:     res.Earned,
			Reason:    generic.ReasonEarned,
			Note:      note,
			CreatedAt: s.now().UTC(),
		}
		if err := tx.Append(ctx, entry); err != nil {
			return err
		}

		out = Settlement{
			Entry:                   entry,
			Earned:                  res.Earned,
			Breakdown:               res.Breakdown,
			YesterdayScreenViolated: in.YesterdayScreenViolated,
		}
		return nil
	})
	if err != nil {
		s.logRejected("settle", user, day, err)
		return Settlement{}, err
	}

	s.log.Info("day settled",
		zap.Int64("user", int64(user)),
		zap.Stringer("day", day),
		zap.Int("earned", out.Earned),
		zap.Int("base", out.Breakdown.Base),
		zap.Bool("cap_applied", out.Breakdown.CapApplied),
		zap.Bool("screen_violated", out.Breakdown.ScreenViolated),
	)
	return out, nil
}

// Preview computes the day without settling it.
func (s *Service) Preview(ctx context.Context, user generic.UserID, day generic.Day) (Preview, error) {
	if day.IsZero() {
		return Preview{}, generic.ErrInvalidDay
	}
	if err := requireUser(ctx, s.store, user); err != nil {
		return Preview{}, err
	}

	in, err := gatherInputs(ctx, s.store, user, day)
	if err != nil {
		return Preview{}, err
	}
	settled, err := s.store.EarnedEntry(ctx, user, day)
	if err != nil {
		return Preview{}, fmt.Errorf("check settlement: %w", err)
	}

	return Preview{
		Record:                  in.Today,
		NotesCount:              in.NotesCount,
		Result:                  rewards.Compute(in),
		YesterdayScreenViolated: in.YesterdayScreenViolated,
		Settled:                 settled,
	}, nil
}

// gatherInputs reads today's record, today's note count and yesterday's
// record. A missing record is a normal input, not an error.
func gatherInputs(ctx context.Context, st generic.Store, user generic.UserID, day generic.Day) (rewards.Input, error) {
	rec, err := st.DayRecord(ctx, user, day)
	if err != nil {
		return rewards.Input{}, fmt.Errorf("load day record: %w", err)
	}
	notes, err := st.NotesCount(ctx, user, day)
	if err != nil {
		return rewards.Input{}, fmt.Errorf("count notes: %w", err)
	}
	yesterday, err := st.DayRecord(ctx, user, day.Prev())
	if err != nil {
		return rewards.Input{}, fmt.Errorf("load previous day record: %w", err)
	}

	return rewards.Input{
		Today:                   rec,
		NotesCount:              notes,
		ParentChecked:           rec != nil && rec.ParentChecked,
		YesterdayScreenViolated: rewards.IsScreenViolated(yesterday),
	}, nil
}

// =============================================================================
// REDEEM / ADJUST
// =============================================================================

// Redeem spends minutes. day is the day the redemption happens.
func (s *Service) Redeem(ctx context.Context, user generic.UserID, minutes int, note string, day generic.Day) (generic.Entry, error) {
	if minutes <= 0 || minutes > MaxAmount {
		return generic.Entry{}, fmt.Errorf("%w: redeem %d", generic.ErrInvalidAmount, minutes)
	}
	if day.IsZero() {
		return generic.Entry{}, generic.ErrInvalidDay
	}

	entry := generic.Entry{
		User:   user,
		Day:    day,
		Delta:  -minutes,
		Reason: generic.ReasonRedeem,
		Note:   note,
	}

	err := s.store.WithTx(ctx, func(tx generic.Store) error {
		if err := requireUser(ctx, tx, user); err != nil {
			return err
		}
		balance, err := tx.Balance(ctx, user)
		if err != nil {
			return fmt.Errorf("load balance: %w", err)
		}
		if minutes > balance {
			return &generic.InsufficientBalanceError{User: user, Balance: balance, Requested: minutes}
		}

		entry.ID = s.newID()
		entry.CreatedAt = s.now().UTC()
		return tx.Append(ctx, entry)
	})
	if err != nil {
		s.logRejected("redeem", user, day, err)
		return generic.Entry{}, err
	}

	s.log.Info("minutes redeemed",
		zap.Int64("user", int64(user)),
		zap.Stringer("day", day),
		zap.Int("minutes", minutes),
	)
	return entry, nil
}

// Adjust appends an admin correction of either sign. There is no balance
// floor: a penalty may leave the balance negative.
func (s *Service) Adjust(ctx context.Context, user generic.UserID, minutes int, note string, day generic.Day) (generic.Entry, error) {
	if minutes == 0 || minutes > MaxAmount || minutes < -MaxAmount {
		return generic.Entry{}, fmt.Errorf("%w: adjust %d", generic.ErrInvalidAmount, minutes)
	}
	if day.IsZero() {
		return generic.Entry{}, generic.ErrInvalidDay
	}

	entry := generic.Entry{
		User:   user,
		Day:    day,
		Delta:  minutes,
		Reason: generic.ReasonAdjust,
		Note:   note,
	}

	err := s.store.WithTx(ctx, func(tx generic.Store) error {
		if err := requireUser(ctx, tx, user); err != nil {
			return err
		}
		entry.ID = s.newID()
		entry.CreatedAt = s.now().UTC()
		return tx.Append(ctx, entry)
	})
	if err != nil {
		s.logRejected("adjust", user, day, err)
		return generic.Entry{}, err
	}

	s.log.Info("balance adjusted",
		zap.Int64("user", int64(user)),
		zap.Stringer("day", day),
		zap.Int("minutes", minutes),
		zap.String("note", note),
	)
	return entry, nil
}

// =============================================================================
// READS
// =============================================================================

// Balance returns sum(Delta) over the user's entries, 0 when there are none.
func (s *Service) Balance(ctx context.Context, user generic.UserID) (int, error) {
	if err := requireUser(ctx, s.store, user); err != nil {
		return 0, err
	}
	balance, err := s.store.Balance(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("load balance: %w", err)
	}
	return balance, nil
}

// History returns entries newest first. limit <= 0 returns everything.
func (s *Service) History(ctx context.Context, user generic.UserID, limit int) ([]generic.Entry, error) {
	if err := requireUser(ctx, s.store, user); err != nil {
		return nil, err
	}
	entries, err := s.store.Entries(ctx, user, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return entries, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func requireUser(ctx context.Context, st generic.Store, user generic.UserID) error {
	ok, err := st.UserExists(ctx, user)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %d", generic.ErrNoSuchUser, user)
	}
	return nil
}

func (s *Service) logRejected(op string, user generic.UserID, day generic.Day, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.Int64("user", int64(user)),
		zap.Stringer("day", day),
		zap.Error(err),
	}
	var insufficient *generic.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		fields = append(fields, zap.Int("balance", insufficient.Balance))
	}

	if generic.IsClientError(err) || generic.IsNotFound(err) {
		s.log.Info("ledger operation rejected", fields...)
		return
	}
	s.log.Error("ledger operation failed", fields...)
}
