package scenarios_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/gametime/generic"
	"github.com/warp/gametime/generic/store"
	"github.com/warp/gametime/ledger"
	"github.com/warp/gametime/scenarios"
)

func newEnv() (scenarios.Env, *store.Memory) {
	mem := store.NewMemory()
	return scenarios.Env{
		Store:  mem,
		Ledger: ledger.New(mem),
		Today:  generic.MustParseDay("2024-03-12"),
	}, mem
}

func TestLoad_Balances(t *testing.T) {
	tests := []struct {
		id      string
		settled int
		balance int
	}{
		{id: "steady-week", settled: 7, balance: 165},
		{id: "screen-slip", settled: 3, balance: 50},
		{id: "bookworm", settled: 2, balance: 105},
		{id: "penalty", settled: 1, balance: -10},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			env, mem := newEnv()
			ctx := context.Background()

			res, err := scenarios.Load(ctx, env, tt.id, generic.User{Username: "demo-" + tt.id})
			require.NoError(t, err)

			assert.Equal(t, tt.settled, res.Settled)
			assert.Equal(t, tt.balance, res.Balance)
			assert.Equal(t, generic.RoleStudent, res.Student.Role)

			// Balance is derived from history, never stored on its own.
			entries, err := mem.Entries(ctx, res.Student.ID, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.balance, generic.SumDeltas(entries))
		})
	}
}

func TestLoad_TodayStaysOpen(t *testing.T) {
	env, mem := newEnv()
	ctx := context.Background()

	res, err := scenarios.Load(ctx, env, "steady-week", generic.User{Username: "demo"})
	require.NoError(t, err)

	earned, err := mem.EarnedEntry(ctx, res.Student.ID, env.Today)
	require.NoError(t, err)
	assert.Nil(t, earned)

	rec, err := mem.DayRecord(ctx, res.Student.ID, env.Today)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestLoad_CarryOverShowsInBreakdown(t *testing.T) {
	env, mem := newEnv()
	ctx := context.Background()

	res, err := scenarios.Load(ctx, env, "screen-slip", generic.User{Username: "demo"})
	require.NoError(t, err)

	earned, err := mem.EarnedEntry(ctx, res.Student.ID, env.Today.Prev())
	require.NoError(t, err)
	require.NotNil(t, earned)
	assert.Equal(t, 20, earned.Delta)

	b, ok := ledger.DecodeBreakdown(*earned)
	require.True(t, ok)
	assert.Equal(t, 20, b.Base)
	assert.False(t, b.ScreenViolated)
}

func TestLoad_UnknownScenario(t *testing.T) {
	env, mem := newEnv()

	_, err := scenarios.Load(context.Background(), env, "nope", generic.User{Username: "demo"})
	assert.ErrorIs(t, err, generic.ErrNotFound)

	students, err := mem.Students(context.Background())
	require.NoError(t, err)
	assert.Empty(t, students)
}

func TestLoad_DuplicateUsername(t *testing.T) {
	env, _ := newEnv()
	ctx := context.Background()

	_, err := scenarios.Load(ctx, env, "penalty", generic.User{Username: "demo"})
	require.NoError(t, err)

	_, err = scenarios.Load(ctx, env, "penalty", generic.User{Username: "demo"})
	assert.ErrorIs(t, err, generic.ErrDuplicateUsername)
}

func TestAll_IsACopy(t *testing.T) {
	all := scenarios.All()
	require.NotEmpty(t, all)
	all[0].ID = "mutated"

	_, ok := scenarios.Find("mutated")
	assert.False(t, ok)
}
