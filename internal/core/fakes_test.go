package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"agentorders/internal/backend"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// at returns 2026-10-16 hh:mm UTC.
func at(hour, minute int) time.Time {
	return time.Date(2026, 10, 16, hour, minute, 0, 0, time.UTC)
}

type statusUpdate struct {
	id     int64
	status WorkOrderStatus
}

type memStore struct {
	mu        sync.Mutex
	orders    []*WorkOrder
	updates   []statusUpdate
	lists     int
	listErr   error
	updateErr error
}

func newMemStore(orders ...*WorkOrder) *memStore {
	return &memStore{orders: orders}
}

func (m *memStore) ListPendingWorkOrders(ctx context.Context) ([]*WorkOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*WorkOrder, 0, len(m.orders))
	for _, o := range m.orders {
		if o.Status == WorkOrderStatusDraft || o.Status == WorkOrderStatusWorking {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) UpdateWorkOrderStatus(ctx context.Context, id int64, status WorkOrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, statusUpdate{id: id, status: status})
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, o := range m.orders {
		if o.ID == id {
			o.Status = status
		}
	}
	return nil
}

func (m *memStore) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.updates)
}

func (m *memStore) status(id int64) WorkOrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			return o.Status
		}
	}
	return ""
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls []backend.Request
	kinds []backend.Kind
	fn    func(ctx context.Context, kind backend.Kind, req backend.Request) (string, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, kind backend.Kind, req backend.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.kinds = append(f.kinds, kind)
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return "ok", nil
	}
	return fn(ctx, kind, req)
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func replyWith(text string, err error) func(context.Context, backend.Kind, backend.Request) (string, error) {
	return func(context.Context, backend.Kind, backend.Request) (string, error) {
		return text, err
	}
}

// newWorkOrder builds the reference fixture: agent window 08:00-20:00, work order window
// 09:00-18:00, active agent, every 5 minutes, cloud-chat model with a credential.
func newWorkOrder(id int64, status WorkOrderStatus) *WorkOrder {
	model := &InferenceModel{ID: 1, Name: "gpt", Provider: backend.KindCloudChat, Credential: "sk-test"}
	agent := &Agent{
		ID:          1,
		Name:        "reporter",
		Prompt:      "you are a reporter",
		Active:      true,
		Periodicity: Periodicity{Value: 5, Unit: PeriodMinutes},
		Window:      Window{Start: NewTimeOfDay(8, 0, 0), End: NewTimeOfDay(20, 0, 0)},
		ModelID:     model.ID,
		Model:       model,
	}
	return &WorkOrder{
		ID:       id,
		Sequence: sequenceLabel(id),
		AgentID:  agent.ID,
		Agent:    agent,
		Prompt:   "summarize the news",
		Status:   status,
		Window:   Window{Start: NewTimeOfDay(9, 0, 0), End: NewTimeOfDay(18, 0, 0)},
	}
}

func sequenceLabel(id int64) string {
	const digits = "0123456789"
	b := []byte("OT-000000")
	for i := len(b) - 1; i >= 3 && id > 0; i-- {
		b[i] = digits[id%10]
		id /= 10
	}
	return string(b)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *recordingObserver) ObserveOutcome(ctx context.Context, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recordingObserver) all() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}
