package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/gametime/generic"
	"github.com/warp/gametime/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newStudent(t *testing.T, st *sqlite.Store, name string) generic.UserID {
	t.Helper()
	u, err := st.CreateUser(context.Background(), generic.User{Username: name, Role: generic.RoleStudent})
	require.NoError(t, err)
	return u.ID
}

// =============================================================================
// LEDGER
// =============================================================================

func TestSQLite_EarnedUniqueIndex(t *testing.T) {
	// GIVEN: A settled day
	st := newStore(t)
	ctx := context.Background()
	kid := newStudent(t, st, "kid")
	day := generic.MustParseDay("2024-03-10")

	require.NoError(t, st.Append(ctx, generic.Entry{ID: "e1", User: kid, Day: day, Delta: 30, Reason: generic.ReasonEarned}))

	// WHEN: A second earned entry for the same day bypasses any service check
	err := st.Append(ctx, generic.Entry{ID: "e2", User: kid, Day: day, Delta: 10, Reason: generic.ReasonEarned})

	// THEN: The index rejects it and reports the existing entry
	require.Error(t, err)
	assert.True(t, errors.Is(err, generic.ErrAlreadySettled))
	var settled *generic.AlreadySettledError
	require.True(t, errors.As(err, &settled))
	assert.Equal(t, "e1", settled.ExistingID)

	// AND: Redeem and adjust on the same day are unaffected
	require.NoError(t, st.Append(ctx, generic.Entry{ID: "r1", User: kid, Day: day, Delta: -5, Reason: generic.ReasonRedeem}))
	require.NoError(t, st.Append(ctx, generic.Entry{ID: "a1", User: kid, Day: day, Delta: 3, Reason: generic.ReasonAdjust}))

	balance, err := st.Balance(ctx, kid)
	require.NoError(t, err)
	assert.Equal(t, 28, balance)
}

func TestSQLite_EarnedIndexIsPerUser(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	a := newStudent(t, st, "a")
	b := newStudent(t, st, "b")
	day := generic.MustParseDay("2024-03-10")

	require.NoError(t, st.Append(ctx, generic.Entry{ID: "a-e", User: a, Day: day, Reason: generic.ReasonEarned}))
	require.NoError(t, st.Append(ctx, generic.Entry{ID: "b-e", User: b, Day: day, Reason: generic.ReasonEarned}))
}

func TestSQLite_EntriesNewestFirst(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	kid := newStudent(t, st, "kid")

	// Insertion order differs from day order on purpose.
	days := []string{"2024-03-12", "2024-03-10", "2024-03-11"}
	for i, d := range days {
		require.NoError(t, st.Append(ctx, generic.Entry{
			ID: d, User: kid, Day: generic.MustParseDay(d), Delta: i + 1, Reason: generic.ReasonAdjust,
		}))
	}

	all, err := st.Entries(ctx, kid, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2024-03-11", all[0].ID)
	assert.Equal(t, "2024-03-12", all[2].ID)
	assert.Greater(t, all[0].Seq, all[1].Seq)
	assert.False(t, all[0].CreatedAt.IsZero())

	limited, err := st.Entries(ctx, kid, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLite_BalanceEmptyIsZero(t *testing.T) {
	st := newStore(t)
	kid := newStudent(t, st, "kid")

	balance, err := st.Balance(context.Background(), kid)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestSQLite_AppendRejectsInvalidEntry(t *testing.T) {
	st := newStore(t)
	kid := newStudent(t, st, "kid")

	err := st.Append(context.Background(), generic.Entry{
		ID: "bad", User: kid, Day: generic.MustParseDay("2024-03-10"), Delta: 5, Reason: generic.ReasonRedeem,
	})
	assert.True(t, errors.Is(err, generic.ErrInvalidEntry))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLite_WithTxRollsBack(t *testing.T) {
	// GIVEN: A transaction that appends and then fails
	st := newStore(t)
	ctx := context.Background()
	kid := newStudent(t, st, "kid")
	day := generic.MustParseDay("2024-03-10")
	boom := errors.New("boom")

	err := st.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.Append(ctx, generic.Entry{ID: "e1", User: kid, Day: day, Delta: 30, Reason: generic.ReasonEarned}); err != nil {
			return err
		}
		inside, err := tx.Balance(ctx, kid)
		require.NoError(t, err)
		assert.Equal(t, 30, inside, "writes are visible inside the transaction")
		return boom
	})

	// THEN: Nothing persisted, and the day can still be settled
	assert.ErrorIs(t, err, boom)
	balance, err := st.Balance(ctx, kid)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	existing, err := st.EarnedEntry(ctx, kid, day)
	require.NoError(t, err)
	assert.Nil(t, existing)
}

func TestSQLite_WithTxCommits(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	kid := newStudent(t, st, "kid")
	day := generic.MustParseDay("2024-03-10")

	err := st.WithTx(ctx, func(tx generic.Store) error {
		ok, err := tx.UserExists(ctx, kid)
		require.NoError(t, err)
		require.True(t, ok)
		return tx.Append(ctx, generic.Entry{ID: "e1", User: kid, Day: day, Delta: 30, Reason: generic.ReasonEarned})
	})
	require.NoError(t, err)

	got, err := st.EarnedEntry(ctx, kid, day)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 30, got.Delta)
	assert.Equal(t, day, got.Day)
}

// =============================================================================
// RECORDS AND NOTES
// =============================================================================

func TestSQLite_UpsertActivityKeepsParentCheck(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	kid := newStudent(t, st, "kid")
	day := generic.MustParseDay("2024-03-10")

	// Parent checks first, before any activity exists.
	require.NoError(t, st.SetParentChecked(ctx, kid, day, true))
	rec, err := st.DayRecord(ctx, kid, day)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 0, rec.ScreenMinutes)

	require.NoError(t, st.UpsertActivity(ctx, kid, day, generic.Activity{
		ScreenMinutes: 60, HomeworkDone: true, ReadingMinutes: 35, ExerciseMinutes: 30,
	}))

	rec, err = st.DayRecord(ctx, kid, day)
	require.NoError(t, err)
	assert.True(t, rec.ParentChecked)
	assert.True(t, rec.HomeworkDone)
	assert.Equal(t, 60, rec.ScreenMinutes)
	assert.Equal(t, 35, rec.ReadingMinutes)

	missing, err := st.DayRecord(ctx, kid, day.Next())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_Notes(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	kid := newStudent(t, st, "kid")
	other := newStudent(t, st, "other")
	day := generic.MustParseDay("2024-03-10")

	first, err := st.AddNote(ctx, kid, day, "chapter 1")
	require.NoError(t, err)
	_, err = st.AddNote(ctx, kid, day, "chapter 2")
	require.NoError(t, err)

	count, err := st.NotesCount(ctx, kid, day)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	notes, err := st.Notes(ctx, kid, day)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "chapter 2", notes[0].Content)

	assert.ErrorIs(t, st.DeleteNote(ctx, other, first.ID), generic.ErrNotFound)
	require.NoError(t, st.DeleteNote(ctx, kid, first.ID))

	count, err = st.NotesCount(ctx, kid, day)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// =============================================================================
// USERS
// =============================================================================

func TestSQLite_Users(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	admin, err := st.CreateUser(ctx, generic.User{Username: "Mum", PasswordHash: "h", Role: generic.RoleAdmin})
	require.NoError(t, err)
	kid, err := st.CreateUser(ctx, generic.User{Username: "kid", Role: generic.RoleStudent, ChildName: "Kiddo"})
	require.NoError(t, err)

	_, err = st.CreateUser(ctx, generic.User{Username: "mum", Role: generic.RoleAdmin})
	assert.ErrorIs(t, err, generic.ErrDuplicateUsername)

	byName, err := st.UserByName(ctx, "MUM")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, admin.ID, byName.ID)
	assert.Equal(t, generic.RoleAdmin, byName.Role)

	students, err := st.Students(ctx)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "Kiddo", students[0].ChildName)

	missing, err := st.User(ctx, kid.ID+100)
	require.NoError(t, err)
	assert.Nil(t, missing)

	ok, err := st.UserExists(ctx, kid.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
