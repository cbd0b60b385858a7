/*
Package generic provides the shared vocabulary of the gametime ledger.

PURPOSE:
  Types that every layer agrees on: who (UserID), when (Day), what the
  student did (DayRecord), and what the ledger recorded (Entry). The
  reward calculator, the ledger service, both stores and the HTTP API
  all speak these types and nothing else.

KEY CONCEPTS IN THIS FILE (types.go):
  - DayRecord: One student's activity for one civil day
  - Entry:     An immutable ledger line (earned / redeem / adjust)
  - Reason:    Why an entry exists
  - User:      An account (student or admin)

DESIGN PRINCIPLES:
  1. Immutability: Entries are never modified, only appended
  2. Integers: Minutes are whole numbers, no floating point anywhere
  3. Derived balance: Balance is sum(Delta), never stored

SEE ALSO:
  - time.go:   Day type and civil-date arithmetic
  - ledger.go: Entry validation and balance folding
  - store.go:  Persistence interfaces
  - errors.go: Error taxonomy
*/
package generic

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID int64

type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool { return r == RoleStudent || r == RoleAdmin }

// User is an account. PasswordHash is opaque to everything except auth.
type User struct {
	ID           UserID
	Username     string
	PasswordHash string
	Role         Role
	ChildName    string
	CreatedAt    time.Time
}

// =============================================================================
// DAY RECORD - What the student logged for one day
// =============================================================================

// DayRecord is unique per (User, Day). Students upsert the activity fields;
// only an admin flips ParentChecked. Records are never deleted and are read
// as a snapshot at settlement time.
type DayRecord struct {
	User            UserID
	Day             Day
	ScreenMinutes   int
	HomeworkDone    bool
	ReadingMinutes  int
	ExerciseMinutes int
	ParentChecked   bool
	CreatedAt       time.Time
}

// Activity is the student-editable part of a DayRecord.
type Activity struct {
	ScreenMinutes   int
	HomeworkDone    bool
	ReadingMinutes  int
	ExerciseMinutes int
}

// Note is a reading note. Only the count feeds the reward calculation.
type Note struct {
	ID        int64
	User      UserID
	Day       Day
	Content   string
	CreatedAt time.Time
}

// =============================================================================
// LEDGER ENTRY - Atomic change to a user's balance
// =============================================================================

type Reason string

const (
	ReasonEarned Reason = "earned" // Settlement credit, at most one per (user, day)
	ReasonRedeem Reason = "redeem" // Game time spent, always negative
	ReasonAdjust Reason = "adjust" // Manual admin correction, either sign
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonEarned, ReasonRedeem, ReasonAdjust:
		return true
	}
	return false
}

// Entry is one line of the append-only ledger.
//
// Day is the day the entry applies to: for earned entries the settled day,
// for redemptions the day the redemption happened. Seq is assigned by the
// store at insertion and gives the total order used by History.
type Entry struct {
	ID        string
	Seq       int64
	User      UserID
	Day       Day
	Delta     int
	Reason    Reason
	Note      string
	CreatedAt time.Time
}
