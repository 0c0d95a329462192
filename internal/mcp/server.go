package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"agentorders/internal/core"
	"agentorders/internal/store"
)

const serverVersion = "1.0.0"

// MCPServer exposes read-only scheduler tools over the Model Context Protocol.
type MCPServer struct {
	store     *store.Store
	scheduler *core.Scheduler
	selector  *core.Selector
	throttle  *core.ThrottleTracker
	logger    *slog.Logger
	now       func() time.Time
	server    *server.MCPServer
}

// NewMCPServer creates a new MCP server instance with all tools registered.
func NewMCPServer(st *store.Store, scheduler *core.Scheduler, selector *core.Selector, throttle *core.ThrottleTracker, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		store:     st,
		scheduler: scheduler,
		selector:  selector,
		throttle:  throttle,
		logger:    logger,
		now:       time.Now,
	}
	s.server = server.NewMCPServer(
		"agentorders",
		serverVersion,
		server.WithToolCapabilities(true),
	)
	s.registerTools(s.server)
	return s
}

// Run serves the MCP protocol on stdio until stdin closes or ctx is cancelled.
func (s *MCPServer) Run(ctx context.Context) error {
	s.logger.Info("MCP server starting on stdio")
	stdio := server.NewStdioServer(s.server)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// HTTPHandler serves the MCP protocol over streamable HTTP.
func (s *MCPServer) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.server)
}

// registerTools registers all available MCP tools.
func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("scheduler_status",
		mcp.WithDescription("Show the work order scheduler state and the result of its last cycle"),
	), s.handleSchedulerStatus)

	mcpServer.AddTool(mcp.NewTool("list_work_orders",
		mcp.WithDescription("List work orders with the eligibility of pending ones at the current time"),
		mcp.WithString("status",
			mcp.Description("Filter: pending (default), all, draft, working or completed"),
			mcp.Enum("pending", "all", "draft", "working", "completed"),
		),
	), s.handleListWorkOrders)

	mcpServer.AddTool(mcp.NewTool("list_executions",
		mcp.WithDescription("Show recent dispatch executions, optionally for one work order"),
		mcp.WithNumber("work_order_id",
			mcp.Description("Work order ID; omit for all work orders"),
			mcp.Min(0),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of executions to return, default 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleListExecutions)

	mcpServer.AddTool(mcp.NewTool("check_window",
		mcp.WithDescription("Check whether a time falls inside a daily HH:MM window. Windows never wrap past midnight"),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Window start, HH:MM or HH:MM:SS"),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("Window end, HH:MM or HH:MM:SS"),
		),
		mcp.WithString("at",
			mcp.Description("RFC3339 time to check; defaults to now"),
		),
	), s.handleCheckWindow)

	s.logger.Debug("MCP tools registered", "count", 4)
}

func (s *MCPServer) handleSchedulerStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.scheduler.Status()

	var b strings.Builder
	fmt.Fprintf(&b, "State: %s\n", st.State)
	fmt.Fprintf(&b, "Cycles: %d\n", st.Cycles)
	fmt.Fprintf(&b, "Interval: %s\n", st.Interval)
	fmt.Fprintf(&b, "Workers: %d\n", st.Workers)
	fmt.Fprintf(&b, "Timezone: %s\n", s.selector.Location())
	if summary := s.throttleSummary(); summary != "" {
		b.WriteString("Last successful dispatch per work order:\n")
		b.WriteString(summary)
	}
	if c := st.LastCycle; c != nil {
		fmt.Fprintf(&b, "\nLast cycle: %s\n", formatTime(c.StartedAt, s.selector.Location()))
		fmt.Fprintf(&b, "  selected=%d succeeded=%d failed=%d skipped=%d\n", c.Selected, c.Succeeded, c.Failed, c.Skipped)
		if c.Err != nil {
			fmt.Fprintf(&b, "  error: %v\n", c.Err)
		}
	} else {
		b.WriteString("\nNo cycle has run yet\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleListWorkOrders(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		orders []*core.WorkOrder
		err    error
	)
	switch status := mcp.ParseString(request, "status", "pending"); status {
	case "", "pending":
		orders, err = s.store.ListPendingWorkOrders(ctx)
	case "all":
		orders, err = s.store.ListWorkOrders(ctx, nil)
	case string(core.WorkOrderStatusDraft), string(core.WorkOrderStatusWorking), string(core.WorkOrderStatusCompleted):
		st := core.WorkOrderStatus(status)
		orders, err = s.store.ListWorkOrders(ctx, &st)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown status: %s", status)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list work orders: %v", err)), nil
	}
	if len(orders) == 0 {
		return mcp.NewToolResultText("No work orders found"), nil
	}

	now := s.now()
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d work orders:\n\n", len(orders))
	for _, wo := range orders {
		fmt.Fprintf(&b, "%s [%s] (id %d)\n", wo.Sequence, wo.Status, wo.ID)
		if a := wo.Agent; a != nil {
			provider := "-"
			if a.Model != nil {
				provider = string(a.Model.Provider)
			}
			fmt.Fprintf(&b, "    Agent: %s (%s, %s, window %s)\n", a.Name, provider, a.Periodicity, a.Window)
		}
		fmt.Fprintf(&b, "    Window: %s\n", wo.Window)
		fmt.Fprintf(&b, "    Prompt: %s\n", truncateString(wo.Prompt, 80))
		if wo.Status != core.WorkOrderStatusCompleted {
			e := s.selector.Evaluate(wo, now)
			fmt.Fprintf(&b, "    Eligible now: %t (%s)\n", e.Eligible(), e.Reason())
			if e.NextEligibleAt != nil && !e.ThrottleElapsed {
				fmt.Fprintf(&b, "    Next eligible: %s\n", formatTime(*e.NextEligibleAt, s.selector.Location()))
			}
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleListExecutions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workOrderID := int64(mcp.ParseFloat64(request, "work_order_id", 0))
	limit := int(mcp.ParseFloat64(request, "limit", 20))

	execs, err := s.store.ListExecutions(ctx, workOrderID, limit, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list executions: %v", err)), nil
	}
	if len(execs) == 0 {
		return mcp.NewToolResultText("No executions recorded"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d executions:\n\n", len(execs))
	for _, e := range execs {
		fmt.Fprintf(&b, "[%s] %s %s\n", statusToIcon(e.Status), e.Sequence, e.ID)
		fmt.Fprintf(&b, "    Started: %s (%s)\n", formatTime(e.StartedAt, s.selector.Location()), e.EndedAt.Sub(e.StartedAt).Round(time.Millisecond))
		if e.ErrorKind != nil {
			fmt.Fprintf(&b, "    Error kind: %s\n", *e.ErrorKind)
		}
		if e.Error != nil {
			fmt.Fprintf(&b, "    Error: %s\n", truncateString(*e.Error, 200))
		}
		if e.Response != nil {
			fmt.Fprintf(&b, "    Response: %s\n", truncateString(*e.Response, 200))
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleCheckWindow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, err := core.ParseTimeOfDay(mcp.ParseString(request, "start", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid start: %v", err)), nil
	}
	end, err := core.ParseTimeOfDay(mcp.ParseString(request, "end", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid end: %v", err)), nil
	}
	at := s.now()
	if raw := strings.TrimSpace(mcp.ParseString(request, "at", "")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid at, expected RFC3339: %v", err)), nil
		}
		at = parsed
	}

	loc := s.selector.Location()
	local := at.In(loc)
	window := core.Window{Start: start, End: end}
	within := window.Contains(local)

	var b strings.Builder
	fmt.Fprintf(&b, "Window: %s (%s)\n", window, loc)
	fmt.Fprintf(&b, "Time of day: %s\n", core.TimeOfDayOf(local))
	fmt.Fprintf(&b, "Within window: %t\n", within)
	if start > end {
		b.WriteString("Note: windows do not wrap past midnight, so this window never matches\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

// throttleSummary lists throttle entries sorted by work order ID, one per line.
func (s *MCPServer) throttleSummary() string {
	snapshot := s.throttle.Snapshot()
	ids := make([]int64, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "  %d: %s\n", id, formatTime(snapshot[id], s.selector.Location()))
	}
	return b.String()
}

// Helper functions

func formatTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02 15:04:05")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func statusToIcon(status core.ExecutionStatus) string {
	switch status {
	case core.ExecutionStatusSucceeded:
		return "✅"
	case core.ExecutionStatusFailed:
		return "❌"
	case core.ExecutionStatusSkipped:
		return "⏭️"
	default:
		return "❓"
	}
}
