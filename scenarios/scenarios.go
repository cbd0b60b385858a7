/*
Package scenarios seeds demo households for local development.

PURPOSE:
  Each scenario creates one new student and replays a few days of
  activity through the same paths real use takes: records and notes via
  the store's RecordWriter, credits via ledger.Service.Settle, spending
  via Redeem, corrections via Adjust. Nothing is written to the ledger
  directly, so a loaded scenario is indistinguishable from real history.

SCENARIOS:
  steady-week   Seven days meeting every goal, one redemption
  screen-slip   A screen violation followed by the carry-over penalty
  bookworm      Parent-checked bonus days, one of them capped at 60
  penalty       An adjustment that leaves the balance negative

DAYS:
  All days are relative to the caller's "today" and end on yesterday, so
  today stays open for the student to log.

SEE ALSO:
  - api/scenarios.go:      HTTP endpoints (admin only, opt-in)
  - cmd/gametime/main.go:  "seed" command
*/
package scenarios

import (
	"context"
	"fmt"

	"github.com/warp/gametime/generic"
	"github.com/warp/gametime/ledger"
)

// Scenario describes one loadable demo.
type Scenario struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	load func(ctx context.Context, s *seeder) error
}

// Env is what a scenario writes through.
type Env struct {
	Store  generic.AppStore
	Ledger *ledger.Service
	Today  generic.Day
}

// Result reports what a load produced.
type Result struct {
	Scenario string       `json:"scenario"`
	Student  generic.User `json:"-"`
	Settled  int          `json:"settled"`
	Balance  int          `json:"balance"`
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var catalogue = []Scenario{
	{
		ID:          "steady-week",
		Name:        "Steady Week",
		Description: "Every goal met for seven days, then 45 minutes redeemed",
		load:        loadSteadyWeek,
	},
	{
		ID:          "screen-slip",
		Name:        "Screen Slip",
		Description: "Too much screen time voids a day and trims the next day's base",
		load:        loadScreenSlip,
	},
	{
		ID:          "bookworm",
		Name:        "Bookworm",
		Description: "Parent-checked reading and exercise bonuses, one day hits the cap",
		load:        loadBookworm,
	},
	{
		ID:          "penalty",
		Name:        "Penalty",
		Description: "A manual deduction pushes the balance below zero",
		load:        loadPenalty,
	},
}

// All returns the catalogue in display order.
func All() []Scenario {
	out := make([]Scenario, len(catalogue))
	copy(out, catalogue)
	return out
}

// Find returns the scenario with id.
func Find(id string) (Scenario, bool) {
	for _, s := range catalogue {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

// Load creates student and replays scenario id for them. student.Role is
// forced to RoleStudent; a taken username fails with ErrDuplicateUsername
// before anything else is written.
func Load(ctx context.Context, env Env, id string, student generic.User) (Result, error) {
	sc, ok := Find(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: scenario %q", generic.ErrNotFound, id)
	}
	if env.Today.IsZero() {
		return Result{}, fmt.Errorf("%w: today is not set", generic.ErrInvalidDay)
	}

	student.Role = generic.RoleStudent
	created, err := env.Store.CreateUser(ctx, student)
	if err != nil {
		return Result{}, fmt.Errorf("creating student: %w", err)
	}

	s := &seeder{env: env, user: created.ID}
	if err := sc.load(ctx, s); err != nil {
		return Result{}, fmt.Errorf("loading %s: %w", id, err)
	}

	balance, err := env.Ledger.Balance(ctx, created.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{Scenario: id, Student: created, Settled: s.settled, Balance: balance}, nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// goalsMet meets every base threshold exactly.
var goalsMet = generic.Activity{
	ScreenMinutes:   60,
	HomeworkDone:    true,
	ReadingMinutes:  30,
	ExerciseMinutes: 25,
}

// loadSteadyWeek: 7 x 30 earned, 45 redeemed -> 165.
func loadSteadyWeek(ctx context.Context, s *seeder) error {
	for back := 7; back >= 1; back-- {
		if err := s.day(ctx, back, goalsMet, 1, false); err != nil {
			return err
		}
	}
	_, err := s.env.Ledger.Redeem(ctx, s.user, 45, "Saturday match", s.ago(1))
	return err
}

// loadScreenSlip: 30, then 0 (violation), then 20 (carry-over) -> 50.
func loadScreenSlip(ctx context.Context, s *seeder) error {
	if err := s.day(ctx, 3, goalsMet, 1, false); err != nil {
		return err
	}
	binge := goalsMet
	binge.ScreenMinutes = 150
	if err := s.day(ctx, 2, binge, 1, false); err != nil {
		return err
	}
	return s.day(ctx, 1, goalsMet, 1, false)
}

// loadBookworm: 30+15 = 45, then 30+45+10 = 85 capped to 60 -> 105.
func loadBookworm(ctx context.Context, s *seeder) error {
	steady := goalsMet
	steady.ReadingMinutes = 50
	if err := s.day(ctx, 2, steady, 2, true); err != nil {
		return err
	}
	marathon := goalsMet
	marathon.ReadingMinutes = 90
	marathon.ExerciseMinutes = 45
	return s.day(ctx, 1, marathon, 4, true)
}

// loadPenalty: 30 earned, 40 deducted -> -10.
func loadPenalty(ctx context.Context, s *seeder) error {
	if err := s.day(ctx, 2, goalsMet, 1, false); err != nil {
		return err
	}
	_, err := s.env.Ledger.Adjust(ctx, s.user, -40, "phone at the dinner table", s.ago(1))
	return err
}

// =============================================================================
// SEEDER
// =============================================================================

type seeder struct {
	env     Env
	user    generic.UserID
	settled int
}

func (s *seeder) ago(n int) generic.Day { return s.env.Today.AddDays(-n) }

// day logs activity and notes for today-back, optionally parent-checks it,
// then settles it.
func (s *seeder) day(ctx context.Context, back int, a generic.Activity, notes int, checked bool) error {
	d := s.ago(back)
	if err := s.env.Store.UpsertActivity(ctx, s.user, d, a); err != nil {
		return err
	}
	for i := 0; i < notes; i++ {
		if _, err := s.env.Store.AddNote(ctx, s.user, d, fmt.Sprintf("chapter %d", i+1)); err != nil {
			return err
		}
	}
	if checked {
		if err := s.env.Store.SetParentChecked(ctx, s.user, d, true); err != nil {
			return err
		}
	}
	if _, err := s.env.Ledger.Settle(ctx, s.user, d); err != nil {
		return err
	}
	s.settled++
	return nil
}
