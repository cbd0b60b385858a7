package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/gametime/generic"
	"github.com/warp/gametime/generic/store"
	"github.com/warp/gametime/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type harness struct {
	t   *testing.T
	app *Context
	mem *store.Memory
	out *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := store.NewMemory()
	out := &bytes.Buffer{}
	return &harness{
		t:   t,
		mem: mem,
		out: out,
		app: &Context{
			Ctx:    context.Background(),
			Store:  mem,
			Ledger: ledger.New(mem),
			Loc:    time.UTC,
			Out:    out,
			Now:    func() time.Time { return time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC) },
		},
	}
}

// run parses args and executes the command, returning its output.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	h.out.Reset()

	var c CLI
	parser, err := NewParser(&c)
	require.NoError(h.t, err)
	kctx, err := parser.Parse(args)
	if err != nil {
		return "", err
	}
	err = kctx.Run(h.app)
	return h.out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, out)
	return out
}

// =============================================================================
// TESTS
// =============================================================================

func TestUserAdd(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("user", "add", "kid", "--child-name=Kiddo", "--password=pw")
	assert.Contains(t, out, "created student kid")

	h.mustRun("user", "add", "mum", "--role=admin", "--password=pw")

	out = h.mustRun("user", "list")
	assert.Contains(t, out, "Kiddo")
	assert.NotContains(t, out, "mum", "only students are listed")

	_, err := h.run("user", "add", "KID", "--password=pw")
	assert.ErrorContains(t, err, "taken")
}

func TestDayFlow(t *testing.T) {
	h := newHarness(t)
	h.mustRun("user", "add", "kid", "--password=pw")

	// GIVEN: Yesterday meets every goal with two notes and a parent check
	h.mustRun("record", "kid", "yesterday", "--screen=60", "--homework", "--reading=50", "--exercise=35")
	h.mustRun("note", "kid", "yesterday", "chapter 1")
	h.mustRun("note", "kid", "yesterday", "chapter 2")
	h.mustRun("check", "kid", "yesterday")

	out := h.mustRun("preview", "kid", "2024-03-11")
	assert.Contains(t, out, "would earn 50")

	// WHEN: Every student is settled
	out = h.mustRun("settle")

	// THEN: 30 base + 15 reading + 5 exercise
	assert.Contains(t, out, "kid 2024-03-11: earned 50")

	// AND: A second run skips without failing
	out = h.mustRun("settle", "kid", "--day=2024-03-11")
	assert.Contains(t, out, "already settled")

	out = h.mustRun("balance", "kid")
	assert.Contains(t, out, "balance: 50 minutes")

	out = h.mustRun("history", "kid")
	assert.Contains(t, out, "earned")
	assert.Contains(t, out, "base 30, reading +15, exercise +5")
}

func TestRedeem_Floor(t *testing.T) {
	h := newHarness(t)
	h.mustRun("user", "add", "kid", "--password=pw")
	h.mustRun("adjust", "kid", "--minutes=30", "--note=birthday")

	_, err := h.run("redeem", "kid", "31")
	assert.ErrorContains(t, err, "balance is 30")

	out := h.mustRun("redeem", "kid", "30", "--note=Mario Kart")
	assert.Contains(t, out, "balance: 0 minutes")
}

func TestAdjust_Negative(t *testing.T) {
	h := newHarness(t)
	h.mustRun("user", "add", "kid", "--password=pw")

	out := h.mustRun("adjust", "kid", "--minutes=-20", "--note=late to bed")
	assert.Contains(t, out, "balance: -20 minutes")

	_, err := h.run("adjust", "kid", "--minutes=0")
	assert.ErrorIs(t, err, generic.ErrInvalidAmount)
}

func TestSettle_FutureDay(t *testing.T) {
	h := newHarness(t)
	h.mustRun("user", "add", "kid", "--password=pw")

	_, err := h.run("settle", "kid", "--day=2024-03-13")
	assert.ErrorIs(t, err, generic.ErrInvalidDay)
}

func TestUnknownStudent(t *testing.T) {
	h := newHarness(t)
	h.mustRun("user", "add", "mum", "--role=admin", "--password=pw")

	_, err := h.run("balance", "ghost")
	assert.ErrorIs(t, err, generic.ErrNoSuchUser)

	_, err = h.run("balance", "mum")
	assert.ErrorContains(t, err, "not a student")
}

func TestRecord_Validation(t *testing.T) {
	h := newHarness(t)
	h.mustRun("user", "add", "kid", "--password=pw")

	_, err := h.run("record", "kid", "--screen=-5")
	assert.Error(t, err)

	_, err = h.run("record", "kid", "12-03-2024")
	assert.ErrorIs(t, err, generic.ErrInvalidDay)
}

func TestRecord_KeepsParentCheck(t *testing.T) {
	h := newHarness(t)
	h.mustRun("user", "add", "kid", "--password=pw")
	h.mustRun("check", "kid")
	h.mustRun("record", "kid", "--reading=40")

	kid, err := h.mem.UserByName(context.Background(), "kid")
	require.NoError(t, err)
	rec, err := h.mem.DayRecord(context.Background(), kid.ID, generic.MustParseDay("2024-03-12"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.ParentChecked)
	assert.Equal(t, 40, rec.ReadingMinutes)
}

func TestSeed(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("scenarios")
	assert.Contains(t, out, "screen-slip")

	out = h.mustRun("seed", "screen-slip", "demo", "--password=pw")
	assert.Contains(t, out, "3 days settled, balance 50")

	_, err := h.run("seed", "nope", "demo2", "--password=pw")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}
