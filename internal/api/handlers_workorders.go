package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"agentorders/internal/core"
	"agentorders/internal/store"
)

type eligibilityResponse struct {
	Eligible        bool    `json:"eligible"`
	Reason          string  `json:"reason"`
	WorkOrderWindow bool    `json:"work_order_window"`
	AgentWindow     bool    `json:"agent_window"`
	AgentActive     bool    `json:"agent_active"`
	ThrottleElapsed bool    `json:"throttle_elapsed"`
	LastSuccess     *string `json:"last_success,omitempty"`
	NextEligibleAt  *string `json:"next_eligible_at,omitempty"`
}

type agentResponse struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Active      bool        `json:"active"`
	Periodicity string      `json:"periodicity"`
	Window      core.Window `json:"window"`
	Model       string      `json:"model"`
	Provider    string      `json:"provider"`
}

type workOrderResponse struct {
	ID          int64                `json:"id"`
	Sequence    string               `json:"sequence"`
	Status      string               `json:"status"`
	Prompt      string               `json:"prompt"`
	Window      core.Window          `json:"window"`
	Agent       *agentResponse       `json:"agent,omitempty"`
	Eligibility *eligibilityResponse `json:"eligibility,omitempty"`
	CreatedAt   string               `json:"created_at"`
	UpdatedAt   string               `json:"updated_at"`
}

func (s *Server) handleListWorkOrders(w http.ResponseWriter, r *http.Request) {
	var (
		orders []*core.WorkOrder
		err    error
	)
	switch status := strings.TrimSpace(r.URL.Query().Get("status")); status {
	case "", "pending":
		orders, err = s.store.ListPendingWorkOrders(r.Context())
	case "all":
		orders, err = s.store.ListWorkOrders(r.Context(), nil)
	case string(core.WorkOrderStatusDraft), string(core.WorkOrderStatusWorking), string(core.WorkOrderStatusCompleted):
		st := core.WorkOrderStatus(status)
		orders, err = s.store.ListWorkOrders(r.Context(), &st)
	default:
		writeError(w, http.StatusBadRequest, "invalid_status", "status must be pending, all, draft, working or completed")
		return
	}
	if err != nil {
		s.logger.Error("list work orders", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list work orders")
		return
	}

	now := s.now()
	resp := make([]workOrderResponse, 0, len(orders))
	for _, wo := range orders {
		resp = append(resp, s.workOrderToResponse(wo, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"work_orders": resp})
}

func (s *Server) handleGetWorkOrder(w http.ResponseWriter, r *http.Request) {
	wo, ok := s.loadWorkOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.workOrderToResponse(wo, s.now()))
}

func (s *Server) loadWorkOrder(w http.ResponseWriter, r *http.Request) (*core.WorkOrder, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "workOrderID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "work order id must be a positive integer")
		return nil, false
	}
	wo, err := s.store.GetWorkOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrWorkOrderNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "work order not found")
		} else {
			s.logger.Error("get work order", "work_order_id", id, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load work order")
		}
		return nil, false
	}
	return wo, true
}

func (s *Server) workOrderToResponse(wo *core.WorkOrder, now time.Time) workOrderResponse {
	resp := workOrderResponse{
		ID:        wo.ID,
		Sequence:  wo.Sequence,
		Status:    string(wo.Status),
		Prompt:    wo.Prompt,
		Window:    wo.Window,
		CreatedAt: formatTime(wo.CreatedAt),
		UpdatedAt: formatTime(wo.UpdatedAt),
	}
	if a := wo.Agent; a != nil {
		resp.Agent = &agentResponse{
			ID:          a.ID,
			Name:        a.Name,
			Active:      a.Active,
			Periodicity: a.Periodicity.String(),
			Window:      a.Window,
		}
		if a.Model != nil {
			resp.Agent.Model = a.Model.Name
			resp.Agent.Provider = string(a.Model.Provider)
		}
	}
	if wo.Status == core.WorkOrderStatusDraft || wo.Status == core.WorkOrderStatusWorking {
		e := s.selector.Evaluate(wo, now)
		resp.Eligibility = &eligibilityResponse{
			Eligible:        e.Eligible(),
			Reason:          e.Reason(),
			WorkOrderWindow: e.WorkOrderWindow,
			AgentWindow:     e.AgentWindow,
			AgentActive:     e.AgentActive,
			ThrottleElapsed: e.ThrottleElapsed,
			LastSuccess:     formatTimePtr(e.LastSuccess),
			NextEligibleAt:  formatTimePtr(e.NextEligibleAt),
		}
	}
	return resp
}
