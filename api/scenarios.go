/*
scenarios.go - Demo scenario endpoints

PURPOSE:
  Lets a parent populate a dev instance with a believable history in one
  call. Each load creates a NEW student, so existing accounts and their
  ledgers are never touched.

ENDPOINTS (admin only, mounted when RouterConfig.EnableScenarios is set):
  GET  /api/admin/scenarios       List available scenarios
  POST /api/admin/scenarios/load  Create a student and replay a scenario

SEE ALSO:
  - scenarios/scenarios.go: The catalogue and loaders
*/
package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/gametime/auth"
	"github.com/warp/gametime/generic"
	"github.com/warp/gametime/scenarios"
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	all := scenarios.All()
	out := make([]ScenarioDTO, 0, len(all))
	for _, s := range all {
		out = append(out, ScenarioDTO{ID: s.ID, Name: s.Name, Description: s.Description})
	}
	writeJSON(w, http.StatusOK, out)
}

// LoadScenario creates a demo student and replays the scenario for them.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if _, ok := scenarios.Find(req.ScenarioID); !ok {
		writeError(w, http.StatusBadRequest, "unknown scenario", nil)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	env := scenarios.Env{Store: h.Store, Ledger: h.Ledger, Today: h.today()}
	res, err := scenarios.Load(r.Context(), env, req.ScenarioID, generic.User{
		Username:     req.Username,
		PasswordHash: hash,
		ChildName:    req.ChildName,
	})
	if errors.Is(err, generic.ErrDuplicateUsername) {
		writeError(w, http.StatusConflict, "username already exists", nil)
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	h.Log.Info("scenario loaded",
		zap.String("scenario", res.Scenario),
		zap.Int64("user", int64(res.Student.ID)),
		zap.Int("balance", res.Balance),
	)
	writeJSON(w, http.StatusCreated, LoadScenarioResponse{
		Scenario: res.Scenario,
		Student:  toUserDTO(res.Student),
		Settled:  res.Settled,
		Balance:  res.Balance,
	})
}
