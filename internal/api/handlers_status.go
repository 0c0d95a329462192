package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"agentorders/internal/core"
)

type cycleResponse struct {
	StartedAt string  `json:"started_at"`
	EndedAt   string  `json:"ended_at"`
	Selected  int     `json:"selected"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	Skipped   int     `json:"skipped"`
	Error     *string `json:"error,omitempty"`
}

type statusResponse struct {
	State           string         `json:"state"`
	Cycles          uint64         `json:"cycles"`
	IntervalSeconds float64        `json:"interval_s"`
	Workers         int            `json:"workers"`
	Location        string         `json:"location"`
	LastCycle       *cycleResponse `json:"last_cycle,omitempty"`
}

type throttleEntry struct {
	WorkOrderID int64  `json:"work_order_id"`
	LastSuccess string `json:"last_success"`
}

type windowCheckRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
	At    string `json:"at,omitempty"`
}

type windowCheckResponse struct {
	Within    bool   `json:"within"`
	TimeOfDay string `json:"time_of_day"`
	Window    string `json:"window"`
	Location  string `json:"location"`
	Message   string `json:"message,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("health check", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"scheduler": string(s.scheduler.Status().State),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusToResponse(s.scheduler.Status(), s.selector.Location()))
}

func statusToResponse(st core.SchedulerStatus, loc *time.Location) statusResponse {
	resp := statusResponse{
		State:           string(st.State),
		Cycles:          st.Cycles,
		IntervalSeconds: st.Interval.Seconds(),
		Workers:         st.Workers,
		Location:        loc.String(),
	}
	if c := st.LastCycle; c != nil {
		resp.LastCycle = &cycleResponse{
			StartedAt: formatTime(c.StartedAt),
			EndedAt:   formatTime(c.EndedAt),
			Selected:  c.Selected,
			Succeeded: c.Succeeded,
			Failed:    c.Failed,
			Skipped:   c.Skipped,
		}
		if c.Err != nil {
			msg := c.Err.Error()
			resp.LastCycle.Error = &msg
		}
	}
	return resp
}

func (s *Server) handleThrottle(w http.ResponseWriter, r *http.Request) {
	snapshot := s.throttle.Snapshot()
	entries := make([]throttleEntry, 0, len(snapshot))
	for id, last := range snapshot {
		entries = append(entries, throttleEntry{WorkOrderID: id, LastSuccess: formatTime(last)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].WorkOrderID < entries[j].WorkOrderID })
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleWindowCheck(w http.ResponseWriter, r *http.Request) {
	var req windowCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	start, err := core.ParseTimeOfDay(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "start: "+err.Error())
		return
	}
	end, err := core.ParseTimeOfDay(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "end: "+err.Error())
		return
	}

	loc := s.selector.Location()
	at := s.now()
	if strings.TrimSpace(req.At) != "" {
		parsed, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "at must be RFC3339")
			return
		}
		at = parsed
	}

	window := core.Window{Start: start, End: end}
	local := at.In(loc)
	resp := windowCheckResponse{
		Within:    window.Contains(local),
		TimeOfDay: core.TimeOfDayOf(local).String(),
		Window:    window.String(),
		Location:  loc.String(),
	}
	if start > end {
		resp.Message = "windows do not wrap past midnight; this window never matches"
	}
	writeJSON(w, http.StatusOK, resp)
}
