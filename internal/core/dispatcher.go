package core

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"agentorders/internal/backend"
)

// Generator executes a prompt against the backend registered for a provider kind.
type Generator interface {
	Generate(ctx context.Context, kind backend.Kind, req backend.Request) (string, error)
}

// Dispatcher executes single work orders and keeps throttle bookkeeping.
type Dispatcher struct {
	store    Store
	backends Generator
	throttle Throttle
	observer OutcomeObserver
	logger   *slog.Logger
	timeout  time.Duration
	clock    func() time.Time
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchTimeout bounds each backend call.
func WithDispatchTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithOutcomeObserver registers observers notified after every dispatch.
func WithOutcomeObserver(observers ...OutcomeObserver) DispatcherOption {
	return func(disp *Dispatcher) {
		disp.observer = Observers(observers)
	}
}

// WithDispatchClock overrides the clock used to stamp the end of a dispatch.
func WithDispatchClock(clock func() time.Time) DispatcherOption {
	return func(disp *Dispatcher) {
		disp.clock = clock
	}
}

// NewDispatcher constructs a dispatcher with the given dependencies.
func NewDispatcher(store Store, backends Generator, throttle Throttle, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		backends: backends,
		throttle: throttle,
		logger:   logger,
		timeout:  backend.DefaultRequestTimeout,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes wo once. A draft work order is persisted as working before the call.
// Only a successful call updates the throttle, at time now.
func (d *Dispatcher) Run(ctx context.Context, wo *WorkOrder, now time.Time) Outcome {
	outcome := Outcome{
		WorkOrderID: wo.ID,
		Sequence:    wo.Sequence,
		StartedAt:   now,
	}
	if wo.Agent != nil {
		outcome.AgentName = wo.Agent.Name
		if wo.Agent.Model != nil {
			outcome.Provider = wo.Agent.Model.Provider
		}
	}

	d.logger.Info("executing work order",
		"work_order", wo.Sequence,
		"agent", outcome.AgentName,
		"provider", outcome.Provider,
		"prompt", truncateText(wo.Prompt, 100))

	if wo.Status == WorkOrderStatusDraft {
		if err := d.store.UpdateWorkOrderStatus(ctx, wo.ID, WorkOrderStatusWorking); err != nil {
			outcome.Err = &StoreError{Op: "mark work order working", Err: err}
			return d.finish(ctx, outcome)
		}
		wo.Status = WorkOrderStatusWorking
	}

	response, err := d.generate(ctx, wo)
	if err != nil {
		outcome.Err = err
		return d.finish(ctx, outcome)
	}
	outcome.Response = response
	d.throttle.RecordSuccess(wo.ID, now)
	return d.finish(ctx, outcome)
}

func (d *Dispatcher) generate(ctx context.Context, wo *WorkOrder) (string, error) {
	if wo.Agent == nil || wo.Agent.Model == nil {
		return "", backend.NewNotConfigured("", "work order has no agent model")
	}
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	agent := wo.Agent
	return d.backends.Generate(callCtx, agent.Model.Provider, backend.Request{
		SystemPrompt: agent.Prompt,
		UserPrompt:   wo.Prompt,
		Credential:   agent.Model.Credential,
	})
}

func (d *Dispatcher) finish(ctx context.Context, outcome Outcome) Outcome {
	outcome.EndedAt = d.clock()
	d.logOutcome(outcome)
	if d.observer != nil {
		d.observer.ObserveOutcome(ctx, outcome)
	}
	return outcome
}

func (d *Dispatcher) logOutcome(o Outcome) {
	if o.Err == nil {
		d.logger.Info("work order executed",
			"work_order", o.Sequence,
			"duration", o.Duration(),
			"response", truncateText(o.Response, 100))
		return
	}

	var de *backend.DispatchError
	var storeErr *StoreError
	switch {
	case errors.As(o.Err, &de) && de.Kind == backend.NotConfigured:
		d.logger.Warn("work order skipped: model not configured",
			"work_order", o.Sequence, "provider", o.Provider, "reason", de.Reason)
	case errors.As(o.Err, &de) && de.Kind == backend.Timeout:
		d.logger.Error("work order timed out",
			"work_order", o.Sequence, "provider", o.Provider, "err", o.Err)
	case errors.As(o.Err, &de):
		d.logger.Error("work order api error",
			"work_order", o.Sequence, "provider", o.Provider, "status", de.StatusCode, "body", de.Body, "err", o.Err)
	case errors.As(o.Err, &storeErr):
		d.logger.Error("work order status update failed", "work_order", o.Sequence, "err", o.Err)
	default:
		d.logger.Error("work order execution failed", "work_order", o.Sequence, "err", o.Err)
	}
}

// truncateText cuts s to at most maxLen bytes without splitting a rune.
func truncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
