/*
handlers_test.go - HTTP tests for the API

Tests for:
- Login and role enforcement
- Record entry, parent check, settlement and redemption end to end
- Error mapping (409 settled, 400 with balance, invalid amounts)
- Rate limiting and the settlement scheduler
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/gametime/auth"
	"github.com/warp/gametime/generic"
	"github.com/warp/gametime/generic/store"
	"github.com/warp/gametime/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fixedNow is Tuesday 2024-03-12 in UTC.
var fixedNow = time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	t            *testing.T
	store        *store.Memory
	handler      *Handler
	router       http.Handler
	adminToken   string
	studentToken string
	student      generic.User
}

func newTestEnv(t *testing.T, cfg RouterConfig) *testEnv {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)
	admin, err := mem.CreateUser(ctx, generic.User{Username: "mum", PasswordHash: hash, Role: generic.RoleAdmin})
	require.NoError(t, err)
	kid, err := mem.CreateUser(ctx, generic.User{Username: "kid", PasswordHash: hash, Role: generic.RoleStudent, ChildName: "Kiddo"})
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	tokens, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	h := NewHandler(mem, ledger.New(mem, ledger.WithLogger(log)), tokens, time.UTC, log)
	h.now = func() time.Time { return fixedNow }

	adminToken, err := tokens.Issue(admin)
	require.NoError(t, err)
	studentToken, err := tokens.Issue(kid)
	require.NoError(t, err)

	return &testEnv{
		t:            t,
		store:        mem,
		handler:      h,
		router:       NewRouter(h, cfg),
		adminToken:   adminToken,
		studentToken: studentToken,
		student:      kid,
	}
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// =============================================================================
// AUTH
// =============================================================================

func TestLogin(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})

	rec := env.do("POST", "/api/auth/login", "", LoginRequest{Username: "KID", Password: "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[LoginResponse](t, rec)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "student", resp.User.Role)

	// The issued token works.
	me := env.do("GET", "/api/me", resp.Token, nil)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, "Kiddo", decode[UserDTO](t, me).ChildName)

	rec = env.do("POST", "/api/auth/login", "", LoginRequest{Username: "kid", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do("POST", "/api/auth/login", "", LoginRequest{Username: "nobody", Password: "pw"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoles(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})

	assert.Equal(t, http.StatusUnauthorized, env.do("GET", "/api/balance", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do("GET", "/api/balance", "garbage", nil).Code)

	// Student cannot settle or adjust.
	assert.Equal(t, http.StatusForbidden, env.do("POST", "/api/days/2024-03-11/settle", env.studentToken, nil).Code)
	assert.Equal(t, http.StatusForbidden,
		env.do("POST", "/api/admin/ledger/adjust", env.studentToken, map[string]any{"minutes": 100}).Code)

	// Admin cannot redeem on the student's behalf.
	assert.Equal(t, http.StatusForbidden,
		env.do("POST", "/api/redeem", env.adminToken, map[string]any{"minutes": 5}).Code)
}

// =============================================================================
// END TO END
// =============================================================================

func TestDayFlow_RecordCheckSettleRedeem(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})

	// GIVEN: The student records Monday and adds three notes
	rec := env.do("PUT", "/api/days/2024-03-11", env.studentToken, UpsertDayRequest{
		ScreenMinutes: 60, HomeworkDone: true, ReadingMinutes: 70, ExerciseMinutes: 45,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, note := range []string{"ch 1", "ch 2", "ch 3"} {
		rec = env.do("POST", "/api/days/2024-03-11/notes", env.studentToken, AddNoteRequest{Content: note})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	// Before the parent check only the base shows in the preview.
	view := decode[DayViewDTO](t, env.do("GET", "/api/days/2024-03-11", env.studentToken, nil))
	assert.Equal(t, 30, view.Preview.Earned)
	assert.Len(t, view.Notes, 3)
	assert.True(t, view.Badges.Reading)
	assert.False(t, view.Settled)

	// WHEN: The parent approves and settles
	rec = env.do("POST", "/api/admin/days/2024-03-11/check", env.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[DayViewDTO](t, rec).Record.ParentChecked)

	rec = env.do("POST", "/api/days/2024-03-11/settle", env.adminToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	settled := decode[SettleResponse](t, rec)

	// THEN: 30 + 30 + 10 is capped at 60
	assert.Equal(t, 60, settled.Earned)
	assert.True(t, settled.Breakdown.CapApplied)
	assert.Equal(t, 60, settled.Balance)
	require.NotNil(t, settled.Entry.Breakdown)
	assert.Equal(t, 30, settled.Entry.Breakdown.BonusReading)

	// AND: Settling again conflicts
	rec = env.do("POST", "/api/days/2024-03-11/settle", env.adminToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_settled", decode[ErrorResponse](t, rec).Code)

	// WHEN: The student redeems more than the balance
	rec = env.do("POST", "/api/redeem", env.studentToken, map[string]any{"minutes": 61})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	require.NotNil(t, errResp.Balance)
	assert.Equal(t, 60, *errResp.Balance)

	// AND: Then a valid amount, sent as a string
	rec = env.do("POST", "/api/redeem", env.studentToken, map[string]any{"minutes": "45", "note": "minecraft"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	redeemed := decode[EntryResponse](t, rec)
	assert.Equal(t, -45, redeemed.Entry.Delta)
	assert.Equal(t, "2024-03-12", redeemed.Entry.Day, "redemptions are dated today")
	assert.Equal(t, 15, redeemed.Balance)

	// THEN: History is newest first and sums to the balance
	history := decode[HistoryResponse](t, env.do("GET", "/api/redeem/history", env.adminToken, nil))
	require.Len(t, history.Entries, 2)
	assert.Equal(t, "redeem", history.Entries[0].Reason)
	assert.Equal(t, "earned", history.Entries[1].Reason)

	balance := decode[BalanceDTO](t, env.do("GET", "/api/balance", env.studentToken, nil))
	assert.Equal(t, 15, balance.Balance)
	assert.Equal(t, int64(env.student.ID), balance.StudentID)
}

func TestSettle_FutureDayRejected(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})

	rec := env.do("POST", "/api/days/2024-03-13/settle", env.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Today is allowed.
	rec = env.do("POST", "/api/days/today/settle", env.adminToken, nil)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestSettle_UnknownStudent(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})

	rec := env.do("POST", "/api/days/2024-03-11/settle?student_id=999", env.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRedeem_InvalidAmounts(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})

	for _, body := range []string{
		`{"minutes": 12.5}`,
		`{"minutes": 0}`,
		`{"minutes": -10}`,
		`{"minutes": 100001}`,
		`{}`,
	} {
		rec := env.do("POST", "/api/redeem", env.studentToken, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec := env.do("POST", "/api/redeem", env.studentToken, `{"minutes": "ten"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdjust_PenaltyBlocksRedemption(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})

	rec := env.do("POST", "/api/admin/ledger/adjust", env.adminToken, map[string]any{"minutes": 20, "note": "bonus"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do("POST", "/api/admin/ledger/adjust", env.adminToken, map[string]any{
		"minutes":    -30,
		"note":       "penalty",
		"day":        "2024-03-01",
		"student_id": env.student.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[EntryResponse](t, rec)
	assert.Equal(t, -10, resp.Balance)
	assert.Equal(t, "2024-03-01", resp.Entry.Day)
	assert.Equal(t, "penalty", resp.Entry.Note)

	rec = env.do("POST", "/api/redeem", env.studentToken, map[string]any{"minutes": 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, -10, *decode[ErrorResponse](t, rec).Balance)

	rec = env.do("POST", "/api/admin/ledger/adjust", env.adminToken, map[string]any{"minutes": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// DAYS AND NOTES
// =============================================================================

func TestPutDay_Validation(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})

	rec := env.do("PUT", "/api/days/2024-03-11", env.studentToken, UpsertDayRequest{ScreenMinutes: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("PUT", "/api/days/2024-02-30", env.studentToken, UpsertDayRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("PUT", "/api/days/today", env.studentToken, UpsertDayRequest{ScreenMinutes: 91})
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[DayViewDTO](t, rec)
	assert.Equal(t, "2024-03-12", view.Day)
	assert.True(t, view.Badges.ScreenViolated)
}

func TestNotes_DeleteOwnOnly(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})
	ctx := context.Background()

	other, err := env.store.CreateUser(ctx, generic.User{Username: "sibling", Role: generic.RoleStudent})
	require.NoError(t, err)
	foreign, err := env.store.AddNote(ctx, other.ID, generic.MustParseDay("2024-03-11"), "not yours")
	require.NoError(t, err)

	rec := env.do("DELETE", "/api/days/notes/"+itoa(foreign.ID), env.studentToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do("POST", "/api/days/2024-03-11/notes", env.studentToken, AddNoteRequest{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("POST", "/api/days/2024-03-11/notes", env.studentToken, AddNoteRequest{Content: " mine "})
	require.Equal(t, http.StatusCreated, rec.Code)
	note := decode[NoteDTO](t, rec)
	assert.Equal(t, "mine", note.Content)

	rec = env.do("DELETE", "/api/days/notes/"+itoa(note.ID), env.studentToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

// =============================================================================
// INFRASTRUCTURE
// =============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})
	rec := env.do("GET", "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)
}

func TestRateLimit(t *testing.T) {
	// Two per minute gives a burst of one.
	env := newTestEnv(t, RouterConfig{RateLimitPerMinute: 2})

	assert.Equal(t, http.StatusOK, env.do("GET", "/api/health", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do("GET", "/api/health", "", nil).Code)
}

func TestScheduler_SettlesYesterdayOnce(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})
	ctx := context.Background()
	monday := generic.MustParseDay("2024-03-11")

	require.NoError(t, env.store.UpsertActivity(ctx, env.student.ID, monday, generic.Activity{
		ScreenMinutes: 30, HomeworkDone: true, ReadingMinutes: 30, ExerciseMinutes: 25,
	}))
	_, err := env.store.AddNote(ctx, env.student.ID, monday, "read")
	require.NoError(t, err)

	sched := NewSettlementScheduler(env.store, env.handler.Ledger, time.UTC, zaptest.NewLogger(t))
	sched.now = func() time.Time { return fixedNow }

	first := sched.RunNow(ctx)
	assert.Equal(t, monday, first.Day)
	assert.Equal(t, 1, first.Settled)

	second := sched.RunNow(ctx)
	assert.Equal(t, 0, second.Settled)
	assert.Equal(t, 1, second.Skipped)

	balance, err := env.handler.Ledger.Balance(ctx, env.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, balance)
}

func TestScheduler_StartStop(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})

	sched := NewSettlementScheduler(env.store, env.handler.Ledger, time.UTC, zaptest.NewLogger(t))
	sched.now = func() time.Time { return fixedNow }
	sched.Start() // disabled: no-op
	sched.Stop()

	sched.Enabled = true
	sched.CheckInterval = time.Hour
	sched.Start()
	defer sched.Stop()

	// The immediate pass on start settles Monday, which has no record.
	require.Eventually(t, func() bool {
		entries, err := env.store.Entries(context.Background(), env.student.ID, 0)
		return err == nil && len(entries) == 1 && entries[0].Delta == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenarios_DisabledByDefault(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})

	rec := env.do("GET", "/api/admin/scenarios", env.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScenarios_LoadCreatesStudent(t *testing.T) {
	env := newTestEnv(t, RouterConfig{EnableScenarios: true})

	list := decode[[]ScenarioDTO](t, env.do("GET", "/api/admin/scenarios", env.adminToken, nil))
	require.NotEmpty(t, list)

	// GIVEN: The parent loads the steady week for a new demo student
	rec := env.do("POST", "/api/admin/scenarios/load", env.adminToken, LoadScenarioRequest{
		ScenarioID: "steady-week", Username: "demo", Password: "demo-pw",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	loaded := decode[LoadScenarioResponse](t, rec)
	assert.Equal(t, 7, loaded.Settled)
	assert.Equal(t, 165, loaded.Balance)

	// THEN: The demo student can log in and sees the same balance
	login := decode[LoginResponse](t, env.do("POST", "/api/auth/login", "", LoginRequest{Username: "demo", Password: "demo-pw"}))
	bal := decode[BalanceDTO](t, env.do("GET", "/api/balance", login.Token, nil))
	assert.Equal(t, 165, bal.Balance)

	// AND: The existing student is untouched
	kid := decode[BalanceDTO](t, env.do("GET", "/api/balance", env.studentToken, nil))
	assert.Equal(t, 0, kid.Balance)

	// AND: The same username cannot be loaded twice
	rec = env.do("POST", "/api/admin/scenarios/load", env.adminToken, LoadScenarioRequest{
		ScenarioID: "penalty", Username: "demo", Password: "x",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestScenarios_LoadValidation(t *testing.T) {
	env := newTestEnv(t, RouterConfig{EnableScenarios: true})

	rec := env.do("POST", "/api/admin/scenarios/load", env.adminToken, LoadScenarioRequest{ScenarioID: "nope", Username: "a", Password: "b"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("POST", "/api/admin/scenarios/load", env.adminToken, LoadScenarioRequest{ScenarioID: "penalty"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("POST", "/api/admin/scenarios/load", env.studentToken, LoadScenarioRequest{ScenarioID: "penalty", Username: "a", Password: "b"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
