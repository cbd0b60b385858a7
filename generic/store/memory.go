// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/gametime/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.AppStore. One RWMutex guards everything; WithTx
// holds the write lock for the whole callback, which serializes every
// ledger mutation across users as well as within one.
type Memory struct {
	mu      sync.RWMutex
	state   memoryState
	nowFunc func() time.Time
}

type memoryState struct {
	entries map[generic.UserID][]generic.Entry // insertion order
	earned  map[earnedKey]string               // settle-once index -> entry ID
	records map[recordKey]generic.DayRecord
	notes   []generic.Note
	users   map[generic.UserID]generic.User
	seq     int64
	noteSeq int64
	userSeq int64
}

type earnedKey struct {
	User generic.UserID
	Day  string
}

type recordKey struct {
	User generic.UserID
	Day  string
}

func NewMemory() *Memory {
	return &Memory{
		state: memoryState{
			entries: make(map[generic.UserID][]generic.Entry),
			earned:  make(map[earnedKey]string),
			records: make(map[recordKey]generic.DayRecord),
			users:   make(map[generic.UserID]generic.User),
		},
		nowFunc: time.Now,
	}
}

var _ generic.AppStore = (*Memory)(nil)

// =============================================================================
// LEDGER (generic.LedgerStore)
// =============================================================================

// Append adds a single entry. Append-only.
func (m *Memory) Append(_ context.Context, e generic.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.append(e, m.nowFunc)
}

func (s *memoryState) append(e generic.Entry, now func() time.Time) error {
	if err := generic.ValidateEntry(e); err != nil {
		return err
	}
	if e.Reason == generic.ReasonEarned {
		k := earnedKey{User: e.User, Day: e.Day.String()}
		if existing, ok := s.earned[k]; ok {
			return &generic.AlreadySettledError{User: e.User, Day: e.Day, ExistingID: existing}
		}
		s.earned[k] = e.ID
	}

	s.seq++
	e.Seq = s.seq
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now().UTC()
	}
	s.entries[e.User] = append(s.entries[e.User], e)
	return nil
}

func (m *Memory) Entries(_ context.Context, user generic.UserID, limit int) ([]generic.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.newestFirst(user, limit), nil
}

func (s *memoryState) newestFirst(user generic.UserID, limit int) []generic.Entry {
	all := s.entries[user]
	n := len(all)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]generic.Entry, 0, n)
	for i := len(all) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, all[i])
	}
	return result
}

func (m *Memory) Balance(_ context.Context, user generic.UserID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return generic.SumDeltas(m.state.entries[user]), nil
}

func (m *Memory) EarnedEntry(_ context.Context, user generic.UserID, day generic.Day) (*generic.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.earnedEntry(user, day), nil
}

func (s *memoryState) earnedEntry(user generic.UserID, day generic.Day) *generic.Entry {
	id, ok := s.earned[earnedKey{User: user, Day: day.String()}]
	if !ok {
		return nil
	}
	for _, e := range s.entries[user] {
		if e.ID == id && e.Reason == generic.ReasonEarned {
			found := e
			return &found
		}
	}
	return nil
}

// =============================================================================
// RECORDS (generic.RecordStore, generic.RecordWriter)
// =============================================================================

func (m *Memory) DayRecord(_ context.Context, user generic.UserID, day generic.Day) (*generic.DayRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.dayRecord(user, day), nil
}

func (s *memoryState) dayRecord(user generic.UserID, day generic.Day) *generic.DayRecord {
	rec, ok := s.records[recordKey{User: user, Day: day.String()}]
	if !ok {
		return nil
	}
	return &rec
}

func (m *Memory) NotesCount(_ context.Context, user generic.UserID, day generic.Day) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.notesFor(user, day)), nil
}

func (s *memoryState) notesFor(user generic.UserID, day generic.Day) []generic.Note {
	var result []generic.Note
	for _, n := range s.notes {
		if n.User == user && n.Day.Equal(day) {
			result = append(result, n)
		}
	}
	return result
}

func (m *Memory) UpsertActivity(_ context.Context, user generic.UserID, day generic.Day, a generic.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := recordKey{User: user, Day: day.String()}
	rec, ok := m.state.records[k]
	if !ok {
		rec = generic.DayRecord{User: user, Day: day, CreatedAt: m.nowFunc().UTC()}
	}
	rec.ScreenMinutes = a.ScreenMinutes
	rec.HomeworkDone = a.HomeworkDone
	rec.ReadingMinutes = a.ReadingMinutes
	rec.ExerciseMinutes = a.ExerciseMinutes
	m.state.records[k] = rec
	return nil
}

func (m *Memory) SetParentChecked(_ context.Context, user generic.UserID, day generic.Day, checked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := recordKey{User: user, Day: day.String()}
	rec, ok := m.state.records[k]
	if !ok {
		rec = generic.DayRecord{User: user, Day: day, CreatedAt: m.nowFunc().UTC()}
	}
	rec.ParentChecked = checked
	m.state.records[k] = rec
	return nil
}

func (m *Memory) AddNote(_ context.Context, user generic.UserID, day generic.Day, content string) (generic.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.noteSeq++
	n := generic.Note{
		ID:        m.state.noteSeq,
		User:      user,
		Day:       day,
		Content:   content,
		CreatedAt: m.nowFunc().UTC(),
	}
	m.state.notes = append(m.state.notes, n)
	return n, nil
}

// Notes returns the day's notes newest first.
func (m *Memory) Notes(_ context.Context, user generic.UserID, day generic.Day) ([]generic.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	notes := m.state.notesFor(user, day)
	sort.Slice(notes, func(i, j int) bool { return notes[i].ID > notes[j].ID })
	return notes, nil
}

func (m *Memory) DeleteNote(_ context.Context, user generic.UserID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, n := range m.state.notes {
		if n.ID == id && n.User == user {
			m.state.notes = append(m.state.notes[:i], m.state.notes[i+1:]...)
			return nil
		}
	}
	return generic.ErrNotFound
}

// =============================================================================
// USERS (generic.UserStore)
// =============================================================================

func (m *Memory) UserExists(_ context.Context, user generic.UserID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.state.users[user]
	return ok, nil
}

func (m *Memory) CreateUser(_ context.Context, u generic.User) (generic.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.state.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return generic.User{}, generic.ErrDuplicateUsername
		}
	}
	m.state.userSeq++
	u.ID = generic.UserID(m.state.userSeq)
	u.CreatedAt = m.nowFunc().UTC()
	m.state.users[u.ID] = u
	return u, nil
}

func (m *Memory) User(_ context.Context, id generic.UserID) (*generic.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.state.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) UserByName(_ context.Context, username string) (*generic.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.state.users {
		if strings.EqualFold(u.Username, username) {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}

func (m *Memory) Students(_ context.Context) ([]generic.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.User
	for _, u := range m.state.users {
		if u.Role == generic.RoleStudent {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// TRANSACTIONS (generic.TxStore)
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	view := &txMemoryView{state: &m.state, now: m.nowFunc}

	if err := fn(view); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (s *memoryState) clone() memoryState {
	c := *s
	c.entries = make(map[generic.UserID][]generic.Entry, len(s.entries))
	for k, v := range s.entries {
		c.entries[k] = append([]generic.Entry(nil), v...)
	}
	c.earned = make(map[earnedKey]string, len(s.earned))
	for k, v := range s.earned {
		c.earned[k] = v
	}
	c.records = make(map[recordKey]generic.DayRecord, len(s.records))
	for k, v := range s.records {
		c.records[k] = v
	}
	c.notes = append([]generic.Note(nil), s.notes...)
	c.users = make(map[generic.UserID]generic.User, len(s.users))
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

// txMemoryView reads and writes state directly; the parent's write lock is
// already held by WithTx.
type txMemoryView struct {
	state *memoryState
	now   func() time.Time
}

func (tv *txMemoryView) Append(_ context.Context, e generic.Entry) error {
	return tv.state.append(e, tv.now)
}

func (tv *txMemoryView) Entries(_ context.Context, user generic.UserID, limit int) ([]generic.Entry, error) {
	return tv.state.newestFirst(user, limit), nil
}

func (tv *txMemoryView) Balance(_ context.Context, user generic.UserID) (int, error) {
	return generic.SumDeltas(tv.state.entries[user]), nil
}

func (tv *txMemoryView) EarnedEntry(_ context.Context, user generic.UserID, day generic.Day) (*generic.Entry, error) {
	return tv.state.earnedEntry(user, day), nil
}

func (tv *txMemoryView) DayRecord(_ context.Context, user generic.UserID, day generic.Day) (*generic.DayRecord, error) {
	return tv.state.dayRecord(user, day), nil
}

func (tv *txMemoryView) NotesCount(_ context.Context, user generic.UserID, day generic.Day) (int, error) {
	return len(tv.state.notesFor(user, day)), nil
}

func (tv *txMemoryView) UserExists(_ context.Context, user generic.UserID) (bool, error) {
	_, ok := tv.state.users[user]
	return ok, nil
}
