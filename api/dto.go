/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  domain types in generic/ and rewards/.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Composite response wrappers

AMOUNTS:
  Minutes in request bodies are decoded as decimal.Decimal so that "30",
  30 and 30.0 are all accepted, while 12.5 or 1e9 are rejected with 400
  before they reach the ledger.

VALIDATION:
  Field validation lives in the Validate methods here; business rules
  (balance floor, settle-once) stay in ledger/.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/warp/gametime/generic"
	"github.com/warp/gametime/ledger"
	"github.com/warp/gametime/rewards"
)

const (
	// MaxHistoryLimit caps GET /api/redeem/history.
	MaxHistoryLimit = 200
	// maxActivityMinutes is one full day.
	maxActivityMinutes = 24 * 60
	maxNoteLength      = 2000
)

// =============================================================================
// AUTH
// =============================================================================

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

type UserDTO struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	ChildName string `json:"child_name,omitempty"`
}

func toUserDTO(u generic.User) UserDTO {
	return UserDTO{ID: int64(u.ID), Username: u.Username, Role: string(u.Role), ChildName: u.ChildName}
}

// =============================================================================
// DAYS
// =============================================================================

// UpsertDayRequest carries the student-entered fields of a day.
type UpsertDayRequest struct {
	ScreenMinutes   int  `json:"screen_minutes"`
	HomeworkDone    bool `json:"homework_done"`
	ReadingMinutes  int  `json:"reading_minutes"`
	ExerciseMinutes int  `json:"exercise_minutes"`
}

func (r UpsertDayRequest) Validate() error {
	for name, v := range map[string]int{
		"screen_minutes":   r.ScreenMinutes,
		"reading_minutes":  r.ReadingMinutes,
		"exercise_minutes": r.ExerciseMinutes,
	} {
		if v < 0 || v > maxActivityMinutes {
			return fmt.Errorf("%s must be between 0 and %d", name, maxActivityMinutes)
		}
	}
	return nil
}

func (r UpsertDayRequest) Activity() generic.Activity {
	return generic.Activity{
		ScreenMinutes:   r.ScreenMinutes,
		HomeworkDone:    r.HomeworkDone,
		ReadingMinutes:  r.ReadingMinutes,
		ExerciseMinutes: r.ExerciseMinutes,
	}
}

type AddNoteRequest struct {
	Content string `json:"content"`
}

// Normalize trims the content and rejects empty or oversized notes.
func (r *AddNoteRequest) Normalize() error {
	r.Content = strings.TrimSpace(r.Content)
	if r.Content == "" {
		return errors.New("content is required")
	}
	if utf8.RuneCountInString(r.Content) > maxNoteLength {
		return fmt.Errorf("content must be at most %d characters", maxNoteLength)
	}
	return nil
}

type CheckDayRequest struct {
	StudentID int64 `json:"student_id,omitempty"`
	Checked   *bool `json:"checked,omitempty"` // default true
}

type DayRecordDTO struct {
	Day             string `json:"day"`
	ScreenMinutes   int    `json:"screen_minutes"`
	HomeworkDone    bool   `json:"homework_done"`
	ReadingMinutes  int    `json:"reading_minutes"`
	ExerciseMinutes int    `json:"exercise_minutes"`
	ParentChecked   bool   `json:"parent_checked"`
}

func toDayRecordDTO(rec *generic.DayRecord) *DayRecordDTO {
	if rec == nil {
		return nil
	}
	return &DayRecordDTO{
		Day:             rec.Day.String(),
		ScreenMinutes:   rec.ScreenMinutes,
		HomeworkDone:    rec.HomeworkDone,
		ReadingMinutes:  rec.ReadingMinutes,
		ExerciseMinutes: rec.ExerciseMinutes,
		ParentChecked:   rec.ParentChecked,
	}
}

type NoteDTO struct {
	ID        int64  `json:"id"`
	Day       string `json:"day"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func toNoteDTOs(notes []generic.Note) []NoteDTO {
	out := make([]NoteDTO, 0, len(notes))
	for _, n := range notes {
		out = append(out, NoteDTO{
			ID:        n.ID,
			Day:       n.Day.String(),
			Content:   n.Content,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

// PreviewDTO is what settling the day would credit right now.
type PreviewDTO struct {
	Earned    int               `json:"earned"`
	Breakdown rewards.Breakdown `json:"breakdown"`
	Empty     bool              `json:"empty"`
}

// DayViewDTO is everything the dashboard shows for one day.
type DayViewDTO struct {
	StudentID               int64          `json:"student_id"`
	Day                     string         `json:"day"`
	Record                  *DayRecordDTO  `json:"record"`
	Notes                   []NoteDTO      `json:"notes"`
	Preview                 PreviewDTO     `json:"preview"`
	Badges                  rewards.Badges `json:"badges"`
	YesterdayScreenViolated bool           `json:"yesterday_screen_violated"`
	Settled                 bool           `json:"settled"`
	SettledEntry            *EntryDTO      `json:"settled_entry,omitempty"`
}

// =============================================================================
// LEDGER
// =============================================================================

type EntryDTO struct {
	ID        string             `json:"id"`
	Day       string             `json:"day"`
	Delta     int                `json:"delta"`
	Reason    string             `json:"reason"`
	Note      string             `json:"note,omitempty"`
	Breakdown *rewards.Breakdown `json:"breakdown,omitempty"`
	CreatedAt string             `json:"created_at"`
}

func toEntryDTO(e generic.Entry) EntryDTO {
	dto := EntryDTO{
		ID:        e.ID,
		Day:       e.Day.String(),
		Delta:     e.Delta,
		Reason:    string(e.Reason),
		Note:      e.Note,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
	if b, ok := ledger.DecodeBreakdown(e); ok {
		dto.Breakdown = &b
		dto.Note = ""
	}
	return dto
}

func toEntryDTOs(entries []generic.Entry) []EntryDTO {
	out := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryDTO(e))
	}
	return out
}

type BalanceDTO struct {
	StudentID int64 `json:"student_id"`
	Balance   int   `json:"balance"`
}

type SettleResponse struct {
	Entry                   EntryDTO          `json:"entry"`
	Earned                  int               `json:"earned"`
	Breakdown               rewards.Breakdown `json:"breakdown"`
	YesterdayScreenViolated bool              `json:"yesterday_screen_violated"`
	Balance                 int               `json:"balance"`
}

type RedeemRequest struct {
	Minutes decimal.Decimal `json:"minutes"`
	Note    string          `json:"note,omitempty"`
}

type AdjustRequest struct {
	StudentID int64           `json:"student_id,omitempty"`
	Minutes   decimal.Decimal `json:"minutes"`
	Note      string          `json:"note,omitempty"`
	Day       string          `json:"day,omitempty"` // default today
}

// EntryResponse is returned by redeem and adjust.
type EntryResponse struct {
	Entry   EntryDTO `json:"entry"`
	Balance int      `json:"balance"`
}

type HistoryResponse struct {
	StudentID int64      `json:"student_id"`
	Entries   []EntryDTO `json:"entries"`
}

// wholeMinutes converts a decoded amount to int. Fractions and anything
// beyond ledger.MaxAmount are rejected; sign rules are the ledger's.
func wholeMinutes(d decimal.Decimal) (int, error) {
	if !d.IsInteger() {
		return 0, fmt.Errorf("%w: minutes must be a whole number", generic.ErrInvalidAmount)
	}
	if d.Abs().GreaterThan(decimal.NewFromInt(ledger.MaxAmount)) {
		return 0, fmt.Errorf("%w: minutes must be at most %d", generic.ErrInvalidAmount, ledger.MaxAmount)
	}
	return int(d.IntPart()), nil
}

// =============================================================================
// ERRORS / HEALTH
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
	Balance *int   `json:"balance,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest names the scenario and the demo student it creates.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	ChildName  string `json:"child_name"`
}

func (r *LoadScenarioRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	if r.ScenarioID == "" {
		return errors.New("scenario_id is required")
	}
	if r.Username == "" || r.Password == "" {
		return errors.New("username and password are required")
	}
	return nil
}

type LoadScenarioResponse struct {
	Scenario string  `json:"scenario"`
	Student  UserDTO `json:"student"`
	Settled  int     `json:"settled"`
	Balance  int     `json:"balance"`
}
