/*
Package rewards computes how many game-time minutes a day of activity earns.

PURPOSE:
  A pure function of one day's record, its reading-note count, the
  parent-approval flag and whether yesterday broke the screen limit.
  No I/O, no clock, no randomness. The ledger service gathers the inputs
  and persists the result; this package only does arithmetic.

RULES (in order):
  1. No record                      -> 0, empty breakdown
  2. Screen > 90 min                -> 0, screenViolated (voids bonuses too)
  3. Homework + reading(30m, 1 note) + exercise(25m) + screen ok -> base 30
  4. Yesterday's screen violation   -> base - 10 (only when base > 0)
  5. Parent checked                 -> reading and exercise bonuses
  6. Daily cap                      -> min(total, 60)

UNITS:
  Everything is whole minutes. Division truncates. No floating point.

EXAMPLE:
  reading 70m with 3 notes, parent checked:
    extra reading 40m -> 2 steps of 20m
    extra notes 2     -> 2 units
    bonusReading = min(2, 2) * 15 = 30

SEE ALSO:
  - calculator.go:     Compute and IsScreenViolated
  - badges.go:         Display-only achievement flags
  - ledger/service.go: Settle, the caller that persists results
*/
package rewards

import "github.com/warp/gametime/generic"

// =============================================================================
// POLICY CONSTANTS
// =============================================================================

const (
	BaseMinutes = 30 // Reward when every daily goal is met
	DailyCap    = 60 // Upper bound on one day's earnings
	ScreenLimit = 90 // Screen minutes above this void the day

	ReadingMinutes  = 30 // Reading goal
	MinNotes        = 1  // Reading notes required for the reading goal
	ExerciseMinutes = 25 // Exercise goal

	CarryOverPenalty = 10 // Base reduction after a screen-violation day

	ReadingBonusStep     = 20 // Extra reading minutes per bonus unit (plus one extra note)
	ReadingBonusMinutes  = 15 // Minutes per reading bonus unit
	ExerciseBonusStep    = 10 // Extra exercise minutes per bonus unit
	ExerciseBonusMinutes = 5  // Minutes per exercise bonus unit
)

// ExerciseBadgeMinutes is the encouragement threshold shown in the UI.
// It never feeds Compute; the monetary exercise goal is ExerciseMinutes.
const ExerciseBadgeMinutes = 20

// =============================================================================
// INPUT / RESULT
// =============================================================================

// Input is everything Compute needs. Today may be nil (nothing logged).
type Input struct {
	Today                   *generic.DayRecord
	NotesCount              int
	ParentChecked           bool
	YesterdayScreenViolated bool
}

// Breakdown itemizes a result. The JSON names are the audit format stored
// in the note of earned ledger entries.
type Breakdown struct {
	Base           int  `json:"base"`
	BonusReading   int  `json:"bonusReading"`
	BonusExercise  int  `json:"bonusExercise"`
	CapApplied     bool `json:"capApplied"`
	ScreenViolated bool `json:"screenViolated"`
}

// Result is the outcome of Compute. Empty is set only when there was no
// record at all, so callers can tell "nothing logged" from "logged, earned 0".
type Result struct {
	Earned    int
	Breakdown Breakdown
	Empty     bool
}
