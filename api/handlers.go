/*
handlers.go - HTTP API handlers for the habit ledger

PURPOSE:
  Exposes the ledger service and the day-record store over REST. Handles
  HTTP request/response, JSON serialization, role-based subject
  resolution, and delegates every ledger write to ledger.Service.

ENDPOINTS:
  Public:
    GET    /api/health                     Liveness (pings the store)
    POST   /api/auth/login                 bcrypt check, JWT issue

  Any authenticated user:
    GET    /api/me                         Caller identity
    GET    /api/days/{day}                 Record, notes, preview, badges
    GET    /api/balance                    Current balance
    GET    /api/redeem/history             Ledger entries, newest first

  Student:
    PUT    /api/days/{day}                 Record the day's activity
    POST   /api/days/{day}/notes           Add a reading note
    DELETE /api/days/notes/{id}            Delete an own note
    POST   /api/redeem                     Spend minutes (day = today)

  Admin:
    POST   /api/days/{day}/settle          Settle a day
    GET    /api/admin/students             List students
    GET    /api/admin/days/{day}           Day view for a student
    POST   /api/admin/days/{day}/check     Parent approval flag
    POST   /api/admin/ledger/adjust        Manual correction
    (demo scenarios live in scenarios.go)

SUBJECT RESOLUTION:
  Students always act on themselves. Admin requests may name a student
  with student_id (query or body); when absent the first student by ID
  is used, which covers the single-child household.

DAYS:
  {day} is YYYY-MM-DD or "today". Today is evaluated in the configured
  timezone, the same one used for every other day boundary.

ERROR HANDLING:
  - 400: Validation errors, insufficient balance (with balance)
  - 401/403: Authentication / role
  - 404: Unknown student, note or route
  - 409: Day already settled
  - 500: Internal errors (logged, details withheld)

SEE ALSO:
  - dto.go:        Request/response data structures
  - server.go:     Router setup and middleware
  - ledger/:       The only writer of ledger entries
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/gametime/auth"
	"github.com/warp/gametime/generic"
	"github.com/warp/gametime/ledger"
	"github.com/warp/gametime/rewards"
)

const maxBodyBytes = 64 << 10

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  generic.AppStore
	Ledger *ledger.Service
	Tokens *auth.Issuer
	Loc    *time.Location
	Log    *zap.Logger

	now func() time.Time
}

// NewHandler creates a handler. A nil logger discards output.
func NewHandler(store generic.AppStore, svc *ledger.Service, tokens *auth.Issuer, loc *time.Location, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		Store:  store,
		Ledger: svc,
		Tokens: tokens,
		Loc:    loc,
		Log:    log,
		now:    time.Now,
	}
}

func (h *Handler) today() generic.Day {
	return generic.DayOf(h.now(), h.Loc)
}

// =============================================================================
// PUBLIC
// =============================================================================

// Health reports liveness. It pings the store when the store supports it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.Log.Error("health check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable", nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Time: h.now().UTC().Format(time.RFC3339)})
}

// Login checks the password and issues a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required", nil)
		return
	}

	user, err := h.Store.UserByName(r.Context(), req.Username)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		h.Log.Info("login failed", zap.String("username", req.Username))
		writeError(w, http.StatusUnauthorized, "invalid username or password", nil)
		return
	}

	token, err := h.Tokens.Issue(*user)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	h.Log.Info("login", zap.Int64("user", int64(user.ID)), zap.String("role", string(user.Role)))
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: toUserDTO(*user)})
}

// =============================================================================
// ANY AUTHENTICATED USER
// =============================================================================

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	user, err := h.Store.User(r.Context(), claims.UserID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user no longer exists", nil)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*user))
}

// GetDay returns the dashboard view of one day.
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dayParam(w, r)
	if !ok {
		return
	}
	student, err := h.subject(r, 0)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	view, err := h.dayView(r.Context(), student, day)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	student, err := h.subject(r, 0)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	balance, err := h.Ledger.Balance(r.Context(), student)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{StudentID: int64(student), Balance: balance})
}

// RedeemHistory returns up to MaxHistoryLimit entries, newest first.
func (h *Handler) RedeemHistory(w http.ResponseWriter, r *http.Request) {
	limit := MaxHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, MaxHistoryLimit)
	}

	student, err := h.subject(r, 0)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	entries, err := h.Ledger.History(r.Context(), student, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{StudentID: int64(student), Entries: toEntryDTOs(entries)})
}

// =============================================================================
// STUDENT
// =============================================================================

// PutDay records the student's activity. The parent flag is untouched.
// Editing an already settled day is allowed and never changes its credit.
func (h *Handler) PutDay(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dayParam(w, r)
	if !ok {
		return
	}
	var req UpsertDayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	student := ClaimsFrom(r.Context()).UserID
	if err := h.Store.UpsertActivity(r.Context(), student, day, req.Activity()); err != nil {
		h.internalError(w, r, err)
		return
	}

	view, err := h.dayView(r.Context(), student, day)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dayParam(w, r)
	if !ok {
		return
	}
	var req AddNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := req.Normalize(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	note, err := h.Store.AddNote(r.Context(), ClaimsFrom(r.Context()).UserID, day, req.Content)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNoteDTOs([]generic.Note{note})[0])
}

func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid note id", nil)
		return
	}

	if err := h.Store.DeleteNote(r.Context(), ClaimsFrom(r.Context()).UserID, id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Redeem spends minutes today. The balance floor is enforced by the ledger.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	minutes, err := wholeMinutes(req.Minutes)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	student := ClaimsFrom(r.Context()).UserID
	entry, err := h.Ledger.Redeem(r.Context(), student, minutes, req.Note, h.today())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeEntry(w, r, student, entry)
}

// =============================================================================
// ADMIN
// =============================================================================

// SettleDay credits the day once. Future days cannot be settled; a future
// settlement would lock in zero before the day has happened.
func (h *Handler) SettleDay(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dayParam(w, r)
	if !ok {
		return
	}
	if day.After(h.today()) {
		writeError(w, http.StatusBadRequest, "cannot settle a future day", nil)
		return
	}
	student, err := h.subject(r, 0)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	res, err := h.Ledger.Settle(r.Context(), student, day)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	balance, err := h.Ledger.Balance(r.Context(), student)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, SettleResponse{
		Entry:                   toEntryDTO(res.Entry),
		Earned:                  res.Earned,
		Breakdown:               res.Breakdown,
		YesterdayScreenViolated: res.YesterdayScreenViolated,
		Balance:                 balance,
	})
}

func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.Store.Students(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	out := make([]UserDTO, 0, len(students))
	for _, s := range students {
		out = append(out, toUserDTO(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// CheckDay sets the parent approval flag, creating the record if needed.
func (h *Handler) CheckDay(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dayParam(w, r)
	if !ok {
		return
	}
	var req CheckDayRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	checked := true
	if req.Checked != nil {
		checked = *req.Checked
	}

	student, err := h.subject(r, req.StudentID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Store.SetParentChecked(r.Context(), student, day, checked); err != nil {
		h.internalError(w, r, err)
		return
	}

	h.Log.Info("parent check",
		zap.Int64("user", int64(student)),
		zap.Stringer("day", day),
		zap.Bool("checked", checked),
	)

	view, err := h.dayView(r.Context(), student, day)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Adjust appends a manual correction of either sign.
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	minutes, err := wholeMinutes(req.Minutes)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	day := h.today()
	if req.Day != "" {
		if day, err = generic.ParseDay(req.Day); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}

	student, err := h.subject(r, req.StudentID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	entry, err := h.Ledger.Adjust(r.Context(), student, minutes, req.Note, day)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeEntry(w, r, student, entry)
}

// =============================================================================
// HELPERS
// =============================================================================

// subject resolves whose data a request acts on. Students are always
// themselves. Admins use explicit, then ?student_id, then the first student.
func (h *Handler) subject(r *http.Request, explicit int64) (generic.UserID, error) {
	claims := ClaimsFrom(r.Context())
	if claims.Role == generic.RoleStudent {
		return claims.UserID, nil
	}

	if explicit == 0 {
		if raw := r.URL.Query().Get("student_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id < 1 {
				return 0, fmt.Errorf("%w: invalid student_id %q", generic.ErrNoSuchUser, raw)
			}
			explicit = id
		}
	}

	if explicit > 0 {
		u, err := h.Store.User(r.Context(), generic.UserID(explicit))
		if err != nil {
			return 0, err
		}
		if u == nil || u.Role != generic.RoleStudent {
			return 0, fmt.Errorf("%w: student %d", generic.ErrNoSuchUser, explicit)
		}
		return u.ID, nil
	}

	students, err := h.Store.Students(r.Context())
	if err != nil {
		return 0, err
	}
	if len(students) == 0 {
		return 0, fmt.Errorf("%w: no student accounts", generic.ErrNoSuchUser)
	}
	return students[0].ID, nil
}

func (h *Handler) dayView(ctx context.Context, student generic.UserID, day generic.Day) (DayViewDTO, error) {
	preview, err := h.Ledger.Preview(ctx, student, day)
	if err != nil {
		return DayViewDTO{}, err
	}
	notes, err := h.Store.Notes(ctx, student, day)
	if err != nil {
		return DayViewDTO{}, err
	}

	view := DayViewDTO{
		StudentID: int64(student),
		Day:       day.String(),
		Record:    toDayRecordDTO(preview.Record),
		Notes:     toNoteDTOs(notes),
		Preview: PreviewDTO{
			Earned:    preview.Result.Earned,
			Breakdown: preview.Result.Breakdown,
			Empty:     preview.Result.Empty,
		},
		Badges:                  rewards.BadgesFor(preview.Record, preview.NotesCount),
		YesterdayScreenViolated: preview.YesterdayScreenViolated,
		Settled:                 preview.Settled != nil,
	}
	if preview.Settled != nil {
		entry := toEntryDTO(*preview.Settled)
		view.SettledEntry = &entry
	}
	return view, nil
}

func (h *Handler) dayParam(w http.ResponseWriter, r *http.Request) (generic.Day, bool) {
	raw := chi.URLParam(r, "day")
	if raw == "today" {
		return h.today(), true
	}
	day, err := generic.ParseDay(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD or today", nil)
		return generic.Day{}, false
	}
	return day, true
}

func (h *Handler) writeEntry(w http.ResponseWriter, r *http.Request, student generic.UserID, entry generic.Entry) {
	balance, err := h.Ledger.Balance(r.Context(), student)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, EntryResponse{Entry: toEntryDTO(entry), Balance: balance})
}

// writeDomainError maps ledger and store errors to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *generic.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		balance := insufficient.Balance
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "insufficient balance",
			Code:    "insufficient_balance",
			Details: err.Error(),
			Balance: &balance,
		})
	case errors.Is(err, generic.ErrAlreadySettled):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "day already settled", Code: "already_settled", Details: err.Error()})
	case errors.Is(err, generic.ErrInvalidAmount):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid amount", Code: "invalid_amount", Details: err.Error()})
	case errors.Is(err, generic.ErrInvalidDay):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid day", Code: "invalid_day", Details: err.Error()})
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, "invalid request", err)
	case errors.Is(err, generic.ErrNoSuchUser):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "student not found", Code: "no_such_user", Details: err.Error()})
	case errors.Is(err, generic.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found", nil)
	default:
		h.internalError(w, r, err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.Log.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error", nil)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeJSON(w, r, dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
