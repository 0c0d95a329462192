package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ExecutionPruner trims the execution history to the newest keep records per work order.
type ExecutionPruner interface {
	PruneExecutions(ctx context.Context, keep int) (int64, error)
}

// Housekeeper prunes the execution history on a cron schedule.
type Housekeeper struct {
	pruner   ExecutionPruner
	keep     int
	logger   *slog.Logger
	location *time.Location
	schedule cron.Schedule
	cron     *cron.Cron
	ctx      context.Context
}

// NewHousekeeper validates expr and prepares the prune job. keep values below 1 are raised to 1.
func NewHousekeeper(pruner ExecutionPruner, keep int, expr string, logger *slog.Logger, location *time.Location) (*Housekeeper, error) {
	schedule, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}
	if location == nil {
		location = time.Local
	}
	if keep < 1 {
		keep = 1
	}
	h := &Housekeeper{
		pruner:   pruner,
		keep:     keep,
		logger:   logger,
		location: location,
		schedule: schedule,
		cron:     cron.New(cron.WithParser(scheduleParser), cron.WithLocation(location)),
	}
	h.cron.Schedule(schedule, cron.FuncJob(func() {
		_, _ = h.PruneNow(h.ctxOrBackground())
	}))
	return h, nil
}

// Start begins the cron loop. ctx is used for the prune queries.
func (h *Housekeeper) Start(ctx context.Context) {
	h.ctx = ctx
	h.cron.Start()
}

// Stop stops the cron loop and returns a context that is done when a running prune finishes.
func (h *Housekeeper) Stop() context.Context {
	return h.cron.Stop()
}

// PruneNow runs the prune job immediately.
func (h *Housekeeper) PruneNow(ctx context.Context) (int64, error) {
	removed, err := h.pruner.PruneExecutions(ctx, h.keep)
	if err != nil {
		h.logger.Error("prune execution history", "err", err)
		return 0, err
	}
	h.logger.Info("pruned execution history", "removed", removed, "keep", h.keep)
	return removed, nil
}

// NextRun returns the next prune time after now.
func (h *Housekeeper) NextRun(now time.Time) time.Time {
	return NextOccurrences(h.schedule, now.In(h.location), 1)[0]
}

func (h *Housekeeper) ctxOrBackground() context.Context {
	if h.ctx != nil {
		return h.ctx
	}
	return context.Background()
}
