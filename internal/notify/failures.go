package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"agentorders/internal/core"
)

// FailureNotifier raises a notification when a work order starts failing, when the kind of
// failure changes, and when it recovers. Repeated identical failures stay quiet.
type FailureNotifier struct {
	notifier Notifier
	logger   *slog.Logger

	mu     sync.Mutex
	failed map[int64]string // work order ID -> last error kind
}

func NewFailureNotifier(notifier Notifier, logger *slog.Logger) *FailureNotifier {
	return &FailureNotifier{
		notifier: notifier,
		logger:   logger,
		failed:   make(map[int64]string),
	}
}

// ObserveOutcome implements core.OutcomeObserver.
func (f *FailureNotifier) ObserveOutcome(ctx context.Context, o core.Outcome) {
	title, body, ok := f.transition(o)
	if !ok {
		return
	}
	if err := f.notifier.Send(ctx, title, body); err != nil {
		f.logger.Error("failed to send notification", "work_order", o.Sequence, "err", err)
	}
}

func (f *FailureNotifier) transition(o core.Outcome) (title, body string, notify bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	previous, wasFailing := f.failed[o.WorkOrderID]
	if o.Succeeded() {
		if !wasFailing {
			return "", "", false
		}
		delete(f.failed, o.WorkOrderID)
		return fmt.Sprintf("Work order %s recovered", o.Sequence),
			fmt.Sprintf("Agent %s is responding again after %s.", o.AgentName, previous), true
	}

	kind := o.ErrorKind()
	if wasFailing && previous == kind {
		return "", "", false
	}
	f.failed[o.WorkOrderID] = kind
	return fmt.Sprintf("Work order %s failed: %s", o.Sequence, kind),
		fmt.Sprintf("Agent: %s\nProvider: %s\nError: %v", o.AgentName, o.Provider, o.Err), true
}
