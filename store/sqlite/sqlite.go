/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.AppStore (ledger, day records, notes, users) on a
  single SQLite file. This is the production store for a household
  deployment: one process, one database file.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on ledger_entries
  - No DELETE statements on ledger_entries
  - Corrections are adjust entries only

SETTLE-ONCE:
  The partial unique index idx_ledger_entries_earned_once on
  (user_id, day) WHERE reason = 'earned' is the authoritative guard.
  A violation surfaces as *generic.AlreadySettledError.

KEY TABLES:
  users:          Accounts (student / admin)
  day_records:    One row per (user, day), PRIMARY KEY (user_id, day)
  reading_notes:  Free-text notes, counted by the calculator
  ledger_entries: Immutable ledger; seq gives insertion order

CONCURRENCY:
  The pool is limited to one connection so ":memory:" databases behave
  like files and writers never hit SQLITE_BUSY against themselves.
  Writes and WithTx take the mutex. The view handed to WithTx callbacks
  queries through the *sql.Tx only and never re-enters the Store.

MIGRATION:
  Schema is applied with goose from the embedded migrations/ directory
  on New().

USAGE:
  st, err := sqlite.New(ctx, "./data/gametime.db")
  if err != nil {
      return err
  }
  defer st.Close()

  svc := ledger.New(st)

SEE ALSO:
  - generic/store.go:        Interface definitions
  - generic/store/memory.go: In-memory implementation for tests
  - migrations/:             Schema
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/warp/gametime/generic"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// goose keeps its settings in package globals.
var gooseMu sync.Mutex

// Store implements generic.AppStore using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

var _ generic.AppStore = (*Store)(nil)

// New opens the database at dbPath and migrates it.
// Use ":memory:" for an in-memory database.
func New(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, "migrations")
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// LEDGER (generic.LedgerStore)
// =============================================================================

// Append adds an entry to the ledger.
func (s *Store) Append(ctx context.Context, e generic.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendEntry(ctx, s.db, e, s.now)
}

func appendEntry(ctx context.Context, q querier, e generic.Entry, now func() time.Time) error {
	if err := generic.ValidateEntry(e); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, user_id, day, delta, reason, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, int64(e.User), e.Day.String(), e.Delta, string(e.Reason), e.Note,
		formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) && strings.Contains(err.Error(), "ledger_entries.day") {
			settled := &generic.AlreadySettledError{User: e.User, Day: e.Day}
			if existing, lookupErr := earnedEntry(ctx, q, e.User, e.Day); lookupErr == nil && existing != nil {
				settled.ExistingID = existing.ID
			}
			return settled
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// Entries returns the user's entries newest first.
func (s *Store) Entries(ctx context.Context, user generic.UserID, limit int) ([]generic.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return entries(ctx, s.db, user, limit)
}

func entries(ctx context.Context, q querier, user generic.UserID, limit int) ([]generic.Entry, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := q.QueryContext(ctx, `
		SELECT seq, id, user_id, day, delta, reason, note, created_at
		FROM ledger_entries
		WHERE user_id = ?
		ORDER BY seq DESC
		LIMIT ?`,
		int64(user), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var result []generic.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// Balance is always computed from the entries, never cached.
func (s *Store) Balance(ctx context.Context, user generic.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return balance(ctx, s.db, user)
}

func balance(ctx context.Context, q querier, user generic.UserID) (int, error) {
	var total int
	err := q.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE user_id = ?",
		int64(user),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum entries: %w", err)
	}
	return total, nil
}

func (s *Store) EarnedEntry(ctx context.Context, user generic.UserID, day generic.Day) (*generic.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return earnedEntry(ctx, s.db, user, day)
}

func earnedEntry(ctx context.Context, q querier, user generic.UserID, day generic.Day) (*generic.Entry, error) {
	row := q.QueryRowContext(ctx, `
		SELECT seq, id, user_id, day, delta, reason, note, created_at
		FROM ledger_entries
		WHERE user_id = ? AND day = ? AND reason = 'earned'`,
		int64(user), day.String(),
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEntry(r rowScanner) (generic.Entry, error) {
	var (
		e         generic.Entry
		userID    int64
		day       string
		reason    string
		createdAt string
	)
	if err := r.Scan(&e.Seq, &e.ID, &userID, &day, &e.Delta, &reason, &e.Note, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	d, err := generic.ParseDay(day)
	if err != nil {
		return e, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	e.User = generic.UserID(userID)
	e.Day = d
	e.Reason = generic.Reason(reason)
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

// =============================================================================
// DAY RECORDS AND NOTES (generic.RecordStore, generic.RecordWriter)
// =============================================================================

func (s *Store) DayRecord(ctx context.Context, user generic.UserID, day generic.Day) (*generic.DayRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return dayRecord(ctx, s.db, user, day)
}

func dayRecord(ctx context.Context, q querier, user generic.UserID, day generic.Day) (*generic.DayRecord, error) {
	var (
		rec       generic.DayRecord
		createdAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT screen_minutes, homework_done, reading_minutes, exercise_minutes,
		       parent_checked, created_at
		FROM day_records
		WHERE user_id = ? AND day = ?`,
		int64(user), day.String(),
	).Scan(&rec.ScreenMinutes, &rec.HomeworkDone, &rec.ReadingMinutes,
		&rec.ExerciseMinutes, &rec.ParentChecked, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load day record: %w", err)
	}

	rec.User = user
	rec.Day = day
	rec.CreatedAt = parseTime(createdAt)
	return &rec, nil
}

func (s *Store) NotesCount(ctx context.Context, user generic.UserID, day generic.Day) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return notesCount(ctx, s.db, user, day)
}

func notesCount(ctx context.Context, q querier, user generic.UserID, day generic.Day) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reading_notes WHERE user_id = ? AND day = ?",
		int64(user), day.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count notes: %w", err)
	}
	return n, nil
}

// UpsertActivity writes the student-entered fields. parent_checked is left
// untouched on conflict.
func (s *Store) UpsertActivity(ctx context.Context, user generic.UserID, day generic.Day, a generic.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := formatTime(s.now().UTC())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO day_records
		(user_id, day, screen_minutes, homework_done, reading_minutes, exercise_minutes,
		 parent_checked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(user_id, day) DO UPDATE SET
			screen_minutes = excluded.screen_minutes,
			homework_done = excluded.homework_done,
			reading_minutes = excluded.reading_minutes,
			exercise_minutes = excluded.exercise_minutes,
			updated_at = excluded.updated_at`,
		int64(user), day.String(), a.ScreenMinutes, a.HomeworkDone,
		a.ReadingMinutes, a.ExerciseMinutes, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert day record: %w", err)
	}
	return nil
}

// SetParentChecked creates an empty record for the day if none exists.
func (s *Store) SetParentChecked(ctx context.Context, user generic.UserID, day generic.Day, checked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := formatTime(s.now().UTC())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO day_records (user_id, day, parent_checked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, day) DO UPDATE SET
			parent_checked = excluded.parent_checked,
			updated_at = excluded.updated_at`,
		int64(user), day.String(), checked, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to set parent check: %w", err)
	}
	return nil
}

func (s *Store) AddNote(ctx context.Context, user generic.UserID, day generic.Day, content string) (generic.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := generic.Note{User: user, Day: day, Content: content, CreatedAt: s.now().UTC()}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO reading_notes (user_id, day, content, created_at) VALUES (?, ?, ?, ?)",
		int64(user), day.String(), content, formatTime(n.CreatedAt),
	)
	if err != nil {
		return generic.Note{}, fmt.Errorf("failed to add note: %w", err)
	}
	if n.ID, err = res.LastInsertId(); err != nil {
		return generic.Note{}, fmt.Errorf("failed to read note id: %w", err)
	}
	return n, nil
}

// Notes returns the day's notes newest first.
func (s *Store) Notes(ctx context.Context, user generic.UserID, day generic.Day) ([]generic.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, created_at
		FROM reading_notes
		WHERE user_id = ? AND day = ?
		ORDER BY id DESC`,
		int64(user), day.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var notes []generic.Note
	for rows.Next() {
		var (
			n         = generic.Note{User: user, Day: day}
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		n.CreatedAt = parseTime(createdAt)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// DeleteNote only deletes notes owned by user.
func (s *Store) DeleteNote(ctx context.Context, user generic.UserID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM reading_notes WHERE id = ? AND user_id = ?",
		id, int64(user),
	)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	if n == 0 {
		return generic.ErrNotFound
	}
	return nil
}

// =============================================================================
// USERS (generic.UserStore)
// =============================================================================

func (s *Store) UserExists(ctx context.Context, user generic.UserID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return userExists(ctx, s.db, user)
}

func userExists(ctx context.Context, q querier, user generic.UserID) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE id = ?", int64(user)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return count > 0, nil
}

func (s *Store) CreateUser(ctx context.Context, u generic.User) (generic.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.CreatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, child_name, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.Username, u.PasswordHash, string(u.Role), u.ChildName, formatTime(u.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.User{}, generic.ErrDuplicateUsername
		}
		return generic.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return generic.User{}, fmt.Errorf("failed to read user id: %w", err)
	}
	u.ID = generic.UserID(id)
	return u, nil
}

const userColumns = "id, username, password_hash, role, child_name, created_at"

func (s *Store) User(ctx context.Context, id generic.UserID) (*generic.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", int64(id))
	return scanOptionalUser(row)
}

// UserByName matches case-insensitively (the column is COLLATE NOCASE).
func (s *Store) UserByName(ctx context.Context, username string) (*generic.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	return scanOptionalUser(row)
}

func (s *Store) Students(ctx context.Context) ([]generic.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE role = ? ORDER BY id ASC",
		string(generic.RoleStudent),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	var users []generic.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanOptionalUser(r rowScanner) (*generic.User, error) {
	u, err := scanUser(r)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanUser(r rowScanner) (generic.User, error) {
	var (
		u         generic.User
		id        int64
		role      string
		createdAt string
	)
	if err := r.Scan(&id, &u.Username, &u.PasswordHash, &role, &u.ChildName, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, err
		}
		return u, fmt.Errorf("failed to scan user: %w", err)
	}
	u.ID = generic.UserID(id)
	u.Role = generic.Role(role)
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. Rolled back if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, now: s.now}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore reads and writes through the open transaction only.
type txStore struct {
	tx  *sql.Tx
	now func() time.Time
}

func (ts *txStore) Append(ctx context.Context, e generic.Entry) error {
	return appendEntry(ctx, ts.tx, e, ts.now)
}

func (ts *txStore) Entries(ctx context.Context, user generic.UserID, limit int) ([]generic.Entry, error) {
	return entries(ctx, ts.tx, user, limit)
}

func (ts *txStore) Balance(ctx context.Context, user generic.UserID) (int, error) {
	return balance(ctx, ts.tx, user)
}

func (ts *txStore) EarnedEntry(ctx context.Context, user generic.UserID, day generic.Day) (*generic.Entry, error) {
	return earnedEntry(ctx, ts.tx, user, day)
}

func (ts *txStore) DayRecord(ctx context.Context, user generic.UserID, day generic.Day) (*generic.DayRecord, error) {
	return dayRecord(ctx, ts.tx, user, day)
}

func (ts *txStore) NotesCount(ctx context.Context, user generic.UserID, day generic.Day) (int, error) {
	return notesCount(ctx, ts.tx, user, day)
}

func (ts *txStore) UserExists(ctx context.Context, user generic.UserID) (bool, error) {
	return userExists(ctx, ts.tx, user)
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
