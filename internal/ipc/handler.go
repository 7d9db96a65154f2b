// Package ipc provides the HTTP API used by the UI to start, follow and
// cancel clash section runs.
package ipc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rogers-f/clash-section-engine/internal/batch"
	"github.com/rogers-f/clash-section-engine/internal/bridge"
	"github.com/rogers-f/clash-section-engine/internal/domain"
)

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Bridge *bridge.Bridge
	Runs   *RunManager
	// MaxFailureDetails bounds the failure list in run messages.
	MaxFailureDetails int
}

// StartRunRequest is the body for POST /api/v1/runs.
type StartRunRequest struct {
	Test     string   `json:"test"`
	Statuses []string `json:"statuses,omitempty"`
}

// StartRunResponse is returned when a run has been accepted.
type StartRunResponse struct {
	RunID string `json:"run_id"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Document  bool   `json:"document"`
	Tests     int    `json:"tests"`
	ActiveRun string `json:"active_run,omitempty"`
}

// RunResponse is the response for GET /api/v1/runs/{runID}.
type RunResponse struct {
	Run      domain.RunRecord       `json:"run"`
	Active   bool                   `json:"active"`
	Progress *domain.ProgressUpdate `json:"progress,omitempty"`
	Failures []domain.FailedItem    `json:"failures"`
	Message  string                 `json:"message,omitempty"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Document:  h.Bridge.View != nil,
		Tests:     len(h.Bridge.Tests),
		ActiveRun: h.Runs.ActiveID(),
	})
}

// ListTests handles GET /api/v1/tests.
func (h *Handler) ListTests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Bridge.TestInfos())
}

// StartRun handles POST /api/v1/runs.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	var statuses []domain.ClashStatus
	for _, s := range req.Statuses {
		st, err := domain.ParseClashStatus(s)
		if err != nil {
			writeError(w, err)
			return
		}
		statuses = append(statuses, st)
	}

	runID, err := h.Runs.Start(r.Context(), StartRequest{Test: req.Test, Statuses: statuses})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, StartRunResponse{RunID: runID})
}

// ListRuns handles GET /api/v1/runs?limit=N.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	runs, err := h.Bridge.RecentRuns(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []domain.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /api/v1/runs/{runID}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	run, failures, err := h.Bridge.Run(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	if failures == nil {
		failures = []domain.FailedItem{}
	}

	resp := RunResponse{Run: *run, Failures: failures}
	if live, ok := h.Runs.Live(runID); ok {
		resp.Active = live.Active
		resp.Progress = live.Progress
		if live.Summary != nil {
			resp.Message = live.Summary.Message(h.maxDetails())
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelRun handles POST /api/v1/runs/{runID}/cancel. Cancelling a run that
// has already finished is a no-op.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	if h.Runs.Cancel(runID) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if _, _, err := h.Bridge.Run(r.Context(), runID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFolderItems handles GET /api/v1/folders/{name}/items?tree=....
func (h *Handler) ListFolderItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Bridge.FolderItems(r.Context(), r.URL.Query().Get("tree"), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []domain.SavedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) maxDetails() int {
	if h.MaxFailureDetails <= 0 {
		return batch.DefaultMaxFailureDetails
	}
	return h.MaxFailureDetails
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var engErr *domain.EngineError
	if errors.As(err, &engErr) {
		writeJSON(w, statusFor(engErr), APIError{Code: engErr.Code, Message: engErr.Message})
		return
	}
	if errors.Is(err, ErrManagerStopped) {
		writeJSON(w, http.StatusServiceUnavailable, APIError{Code: -1, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
}

func statusFor(engErr *domain.EngineError) int {
	switch engErr.Code {
	case domain.ErrRunNotFound.Code, domain.ErrTestNotFound.Code, domain.ErrItemNotFound.Code:
		return http.StatusNotFound
	case domain.ErrRunInProgress.Code:
		return http.StatusConflict
	case domain.ErrNoDocument.Code:
		return http.StatusServiceUnavailable
	case domain.ErrNoClashData.Code, domain.ErrNoEligibleClashes.Code, domain.ErrNoTestSelected.Code,
		domain.ErrInvalidFolder.Code, domain.ErrInvalidStatus.Code:
		return http.StatusUnprocessableEntity
	case domain.ErrConfigInvalid.Code:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
