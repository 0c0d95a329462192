package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentorders/internal/backend"
)

// ErrAlreadyRunning is reported when a work order is still being dispatched.
var ErrAlreadyRunning = errors.New("work order is already running")

// StoreError wraps a failed read or write against the work-order store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Outcome is the observable result of dispatching one work order.
type Outcome struct {
	WorkOrderID int64
	Sequence    string
	AgentName   string
	Provider    backend.Kind
	Response    string
	Err         error
	StartedAt   time.Time
	EndedAt     time.Time
}

// Succeeded reports whether the backend returned a response.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Duration is the wall time spent on the dispatch.
func (o Outcome) Duration() time.Duration {
	if o.EndedAt.Before(o.StartedAt) {
		return 0
	}
	return o.EndedAt.Sub(o.StartedAt)
}

// ErrorKind classifies Err. It returns "" for successful outcomes.
func (o Outcome) ErrorKind() string {
	if o.Err == nil {
		return ""
	}
	if kind, ok := backend.KindOf(o.Err); ok {
		return string(kind)
	}
	var storeErr *StoreError
	if errors.As(o.Err, &storeErr) {
		return "store_error"
	}
	if errors.Is(o.Err, ErrAlreadyRunning) {
		return "already_running"
	}
	return "unexpected"
}

// ExecutionStatus maps the outcome to the status recorded in the execution history.
func (o Outcome) ExecutionStatus() ExecutionStatus {
	switch {
	case o.Err == nil:
		return ExecutionStatusSucceeded
	case backend.IsNotConfigured(o.Err):
		return ExecutionStatusSkipped
	default:
		return ExecutionStatusFailed
	}
}

// OutcomeObserver receives every dispatch outcome.
type OutcomeObserver interface {
	ObserveOutcome(ctx context.Context, outcome Outcome)
}

// OutcomeObserverFunc adapts a function to OutcomeObserver.
type OutcomeObserverFunc func(ctx context.Context, outcome Outcome)

func (f OutcomeObserverFunc) ObserveOutcome(ctx context.Context, outcome Outcome) {
	f(ctx, outcome)
}

// Observers fans an outcome out to each observer in order.
type Observers []OutcomeObserver

func (o Observers) ObserveOutcome(ctx context.Context, outcome Outcome) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveOutcome(ctx, outcome)
		}
	}
}
