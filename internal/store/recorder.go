package store

import (
	"context"
	"log/slog"

	"agentorders/internal/core"
)

// ExecutionRecorder persists every dispatch outcome as an execution record.
type ExecutionRecorder struct {
	store  *Store
	logger *slog.Logger
}

func NewExecutionRecorder(store *Store, logger *slog.Logger) *ExecutionRecorder {
	return &ExecutionRecorder{store: store, logger: logger}
}

// ObserveOutcome implements core.OutcomeObserver. Write failures are logged, never returned.
func (r *ExecutionRecorder) ObserveOutcome(ctx context.Context, o core.Outcome) {
	exec := &core.Execution{
		WorkOrderID: o.WorkOrderID,
		Sequence:    o.Sequence,
		Status:      o.ExecutionStatus(),
		StartedAt:   o.StartedAt,
		EndedAt:     o.EndedAt,
	}
	if o.Err != nil {
		kind := o.ErrorKind()
		msg := o.Err.Error()
		exec.ErrorKind = &kind
		exec.Error = &msg
	}
	if o.Response != "" {
		resp := o.Response
		exec.Response = &resp
	}
	if err := r.store.InsertExecution(ctx, exec); err != nil {
		r.logger.Error("record execution", "work_order", o.Sequence, "err", err)
		return
	}
	r.logger.Debug("execution recorded", "work_order", o.Sequence, "execution_id", exec.ID, "status", exec.Status)
}
