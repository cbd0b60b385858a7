/*
store.go - Persistence interfaces for the ledger, day records and users

PURPOSE:
  Defines the interface between the core and the database. The ledger
  service receives a TxStore explicitly (no global handle), so tests can
  hand it the in-memory implementation and production hands it SQLite.

KEY INTERFACES:
  LedgerStore:  Append-only entries, balance, earned lookup
  RecordStore:  Read side of day records and note counts (calculator inputs)
  Store:        Everything the ledger service reads or writes
  TxStore:      Store + WithTx for atomic check-then-append
  RecordWriter: Write side of day records and notes (outer layer only)
  UserStore:    Accounts

APPEND-ONLY CONTRACT:
  LedgerStore has Append and nothing else that writes. No Update, no
  Delete. Corrections are adjust entries.

SETTLE-ONCE:
  Append MUST reject a second earned entry for the same (user, day) with
  an error wrapping ErrAlreadySettled. This storage-level rule is the
  source of truth; the service's EarnedEntry check is only a fast path.

ATOMICITY:
  WithTx runs fn against a Store view bound to one transaction. If fn
  returns an error nothing it wrote is visible. Mutations of one user's
  ledger run serialized with respect to each other.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go:   Production SQLite
  - generic/store/memory.go:  In-memory for tests and dev

SEE ALSO:
  - ledger.go:         Entry validation shared by both stores
  - ledger/service.go: The only caller of WithTx
*/
package generic

import "context"

// =============================================================================
// LEDGER STORE - Append-only entry persistence
// =============================================================================

type LedgerStore interface {
	// Append persists one entry. This is the ONLY ledger write.
	Append(ctx context.Context, e Entry) error

	// Entries returns the user's entries newest first. limit <= 0 means all.
	Entries(ctx context.Context, user UserID, limit int) ([]Entry, error)

	// Balance returns sum(Delta) over the user's entries, 0 when none.
	Balance(ctx context.Context, user UserID) (int, error)

	// EarnedEntry returns the earned entry for (user, day), or nil.
	EarnedEntry(ctx context.Context, user UserID, day Day) (*Entry, error)
}

// =============================================================================
// RECORD STORE - Calculator inputs (read only from the core's view)
// =============================================================================

type RecordStore interface {
	// DayRecord returns the record for (user, day), or nil when absent.
	DayRecord(ctx context.Context, user UserID, day Day) (*DayRecord, error)

	// NotesCount returns how many reading notes exist for (user, day).
	NotesCount(ctx context.Context, user UserID, day Day) (int, error)
}

// Store is everything the ledger service touches.
type Store interface {
	LedgerStore
	RecordStore

	// UserExists reports whether the account exists.
	UserExists(ctx context.Context, user UserID) (bool, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic check-then-append
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// RECORD WRITER - Day records and notes (outer layer)
// =============================================================================

type RecordWriter interface {
	// UpsertActivity writes the student fields and leaves ParentChecked alone.
	UpsertActivity(ctx context.Context, user UserID, day Day, a Activity) error

	// SetParentChecked sets the flag, creating an empty record if needed.
	SetParentChecked(ctx context.Context, user UserID, day Day, checked bool) error

	AddNote(ctx context.Context, user UserID, day Day, content string) (Note, error)
	Notes(ctx context.Context, user UserID, day Day) ([]Note, error)

	// DeleteNote removes a note owned by user. ErrNotFound otherwise.
	DeleteNote(ctx context.Context, user UserID, id int64) error
}

// =============================================================================
// USER STORE
// =============================================================================

type UserStore interface {
	// CreateUser inserts a user and returns it with ID and CreatedAt set.
	// ErrDuplicateUsername when the name is taken.
	CreateUser(ctx context.Context, u User) (User, error)

	// User and UserByName return nil, nil when absent.
	User(ctx context.Context, id UserID) (*User, error)
	UserByName(ctx context.Context, username string) (*User, error)

	// Students returns all students ordered by ID.
	Students(ctx context.Context) ([]User, error)
}

// AppStore is the full surface the outer layers (API, CLI, scheduler) need.
type AppStore interface {
	TxStore
	RecordWriter
	UserStore
}
