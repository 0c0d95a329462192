package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agentorders/internal/core"
	"agentorders/internal/store"
)

type executionResponse struct {
	ID          string  `json:"id"`
	WorkOrderID int64   `json:"work_order_id"`
	Sequence    string  `json:"sequence"`
	Status      string  `json:"status"`
	ErrorKind   *string `json:"error_kind,omitempty"`
	Response    *string `json:"response,omitempty"`
	Error       *string `json:"error,omitempty"`
	StartedAt   string  `json:"started_at"`
	EndedAt     string  `json:"ended_at"`
	DurationMS  int64   `json:"duration_ms"`
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	wo, ok := s.loadWorkOrder(w, r)
	if !ok {
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

	execs, err := s.store.ListExecutions(r.Context(), wo.ID, limit, offset)
	if err != nil {
		s.logger.Error("list executions", "work_order", wo.Sequence, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list executions")
		return
	}
	resp := make([]executionResponse, 0, len(execs))
	for _, e := range execs {
		resp = append(resp, executionToResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": resp})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executionID")
	exec, err := s.store.GetExecution(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrExecutionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "execution not found")
		} else {
			s.logger.Error("get execution", "execution_id", id, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load execution")
		}
		return
	}
	writeJSON(w, http.StatusOK, executionToResponse(exec))
}

func executionToResponse(e *core.Execution) executionResponse {
	return executionResponse{
		ID:          e.ID,
		WorkOrderID: e.WorkOrderID,
		Sequence:    e.Sequence,
		Status:      string(e.Status),
		ErrorKind:   e.ErrorKind,
		Response:    e.Response,
		Error:       e.Error,
		StartedAt:   formatTime(e.StartedAt),
		EndedAt:     formatTime(e.EndedAt),
		DurationMS:  e.EndedAt.Sub(e.StartedAt).Milliseconds(),
	}
}
