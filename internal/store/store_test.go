package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentorders/internal/backend"
	"agentorders/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "state", "agentorders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedAgent(t *testing.T, s *Store, provider backend.Kind, credential string) *core.Agent {
	t.Helper()
	ctx := context.Background()
	model := &core.InferenceModel{Name: "primary", Provider: provider, Credential: credential}
	require.NoError(t, s.InsertModel(ctx, model))
	agent := &core.Agent{
		Name:        "reporter",
		Description: "daily news digest",
		Prompt:      "you are a reporter",
		Active:      true,
		Periodicity: core.Periodicity{Value: 5, Unit: core.PeriodMinutes},
		Window:      core.Window{Start: core.NewTimeOfDay(8, 0, 0), End: core.NewTimeOfDay(20, 0, 0)},
		Model:       model,
	}
	require.NoError(t, s.InsertAgent(ctx, agent))
	return agent
}

func seedWorkOrder(t *testing.T, s *Store, agent *core.Agent, prompt string, status core.WorkOrderStatus) *core.WorkOrder {
	t.Helper()
	wo := &core.WorkOrder{
		Agent:  agent,
		Prompt: prompt,
		Status: status,
		Window: core.Window{Start: core.NewTimeOfDay(9, 0, 0), End: core.NewTimeOfDay(18, 30, 0)},
	}
	require.NoError(t, s.InsertWorkOrder(context.Background(), wo))
	return wo
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	var count int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(1) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 2, count)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestWorkOrders_RoundTripWithAgentAndModel(t *testing.T) {
	s := openTestStore(t)
	agent := seedAgent(t, s, backend.KindCloudChat, "sk-test")
	wo := seedWorkOrder(t, s, agent, "summarize the news", "")

	assert.Equal(t, "OT-000001", wo.Sequence)
	assert.Equal(t, core.WorkOrderStatusDraft, wo.Status)

	got, err := s.GetWorkOrder(context.Background(), wo.ID)
	require.NoError(t, err)
	assert.Equal(t, wo.ID, got.ID)
	assert.Equal(t, "summarize the news", got.Prompt)
	assert.Equal(t, core.WorkOrderStatusDraft, got.Status)
	assert.Equal(t, core.NewTimeOfDay(18, 30, 0), got.Window.End)
	assert.WithinDuration(t, wo.CreatedAt, got.CreatedAt, time.Microsecond)

	require.NotNil(t, got.Agent)
	assert.Equal(t, "reporter", got.Agent.Name)
	assert.Equal(t, "daily news digest", got.Agent.Description)
	assert.True(t, got.Agent.Active)
	assert.Equal(t, core.Periodicity{Value: 5, Unit: core.PeriodMinutes}, got.Agent.Periodicity)
	assert.Equal(t, core.NewTimeOfDay(8, 0, 0), got.Agent.Window.Start)

	require.NotNil(t, got.Agent.Model)
	assert.Equal(t, backend.KindCloudChat, got.Agent.Model.Provider)
	assert.Equal(t, "sk-test", got.Agent.Model.Credential)
}

func TestWorkOrders_SequenceContinuesFromLast(t *testing.T) {
	s := openTestStore(t)
	agent := seedAgent(t, s, backend.KindLocalGenerate, "")

	first := seedWorkOrder(t, s, agent, "one", core.WorkOrderStatusDraft)
	custom := &core.WorkOrder{Agent: agent, Prompt: "two", Sequence: "OT-000041"}
	require.NoError(t, s.InsertWorkOrder(context.Background(), custom))
	third := seedWorkOrder(t, s, agent, "three", core.WorkOrderStatusDraft)

	assert.Equal(t, "OT-000001", first.Sequence)
	assert.Equal(t, "OT-000042", third.Sequence)
}

func TestListPendingWorkOrders(t *testing.T) {
	s := openTestStore(t)
	agent := seedAgent(t, s, backend.KindCloudChat, "sk")

	older := seedWorkOrder(t, s, agent, "older", core.WorkOrderStatusDraft)
	working := seedWorkOrder(t, s, agent, "working", core.WorkOrderStatusWorking)
	seedWorkOrder(t, s, agent, "finished", core.WorkOrderStatusCompleted)
	newest := seedWorkOrder(t, s, agent, "newest", core.WorkOrderStatusDraft)

	got, err := s.ListPendingWorkOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, newest.ID, got[0].ID)
	assert.Equal(t, working.ID, got[1].ID)
	assert.Equal(t, older.ID, got[2].ID)

	completed := core.WorkOrderStatusCompleted
	done, err := s.ListWorkOrders(context.Background(), &completed)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "finished", done[0].Prompt)

	all, err := s.ListWorkOrders(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestUpdateWorkOrderStatus(t *testing.T) {
	s := openTestStore(t)
	agent := seedAgent(t, s, backend.KindCloudChat, "sk")
	wo := seedWorkOrder(t, s, agent, "p", core.WorkOrderStatusDraft)

	require.NoError(t, s.UpdateWorkOrderStatus(context.Background(), wo.ID, core.WorkOrderStatusWorking))
	got, err := s.GetWorkOrder(context.Background(), wo.ID)
	require.NoError(t, err)
	assert.Equal(t, core.WorkOrderStatusWorking, got.Status)

	err = s.UpdateWorkOrderStatus(context.Background(), 999, core.WorkOrderStatusWorking)
	assert.ErrorIs(t, err, ErrWorkOrderNotFound)

	_, err = s.GetWorkOrder(context.Background(), 999)
	assert.ErrorIs(t, err, ErrWorkOrderNotFound)
}

func TestStoreSatisfiesCoreInterfaces(t *testing.T) {
	var _ core.Store = (*Store)(nil)
	var _ core.ExecutionPruner = (*Store)(nil)
	var _ core.OutcomeObserver = (*ExecutionRecorder)(nil)
}

func TestExecutions_InsertGetList(t *testing.T) {
	s := openTestStore(t)
	agent := seedAgent(t, s, backend.KindCloudChat, "sk")
	wo := seedWorkOrder(t, s, agent, "p", core.WorkOrderStatusWorking)
	ctx := context.Background()

	base := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	kind := "api_error"
	msg := "cloud-chat returned status 401"
	failed := &core.Execution{
		WorkOrderID: wo.ID, Sequence: wo.Sequence, Status: core.ExecutionStatusFailed,
		ErrorKind: &kind, Error: &msg, StartedAt: base, EndedAt: base.Add(time.Second),
	}
	require.NoError(t, s.InsertExecution(ctx, failed))
	assert.NotEmpty(t, failed.ID)

	resp := "done"
	ok := &core.Execution{
		WorkOrderID: wo.ID, Sequence: wo.Sequence, Status: core.ExecutionStatusSucceeded,
		Response: &resp, StartedAt: base.Add(5 * time.Minute), EndedAt: base.Add(5*time.Minute + time.Second),
	}
	require.NoError(t, s.InsertExecution(ctx, ok))

	got, err := s.GetExecution(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ExecutionStatusFailed, got.Status)
	require.NotNil(t, got.ErrorKind)
	assert.Equal(t, "api_error", *got.ErrorKind)
	assert.Nil(t, got.Response)
	assert.True(t, got.StartedAt.Equal(base))

	list, err := s.ListExecutions(ctx, wo.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ok.ID, list[0].ID)
	assert.Equal(t, failed.ID, list[1].ID)

	page, err := s.ListExecutions(ctx, 0, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, failed.ID, page[0].ID)

	_, err = s.GetExecution(ctx, "missing")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestPruneExecutions_KeepsNewestPerWorkOrder(t *testing.T) {
	s := openTestStore(t)
	agent := seedAgent(t, s, backend.KindCloudChat, "sk")
	a := seedWorkOrder(t, s, agent, "a", core.WorkOrderStatusWorking)
	b := seedWorkOrder(t, s, agent, "b", core.WorkOrderStatusWorking)
	ctx := context.Background()

	base := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		started := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.InsertExecution(ctx, &core.Execution{
			WorkOrderID: a.ID, Sequence: a.Sequence, Status: core.ExecutionStatusSucceeded,
			StartedAt: started, EndedAt: started,
		}))
	}
	require.NoError(t, s.InsertExecution(ctx, &core.Execution{
		WorkOrderID: b.ID, Sequence: b.Sequence, Status: core.ExecutionStatusSucceeded,
		StartedAt: base, EndedAt: base,
	}))

	removed, err := s.PruneExecutions(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	kept, err := s.ListExecutions(ctx, a.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.True(t, kept[0].StartedAt.Equal(base.Add(4*time.Minute)))
	assert.True(t, kept[1].StartedAt.Equal(base.Add(3*time.Minute)))

	other, err := s.ListExecutions(ctx, b.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestExecutionRecorder(t *testing.T) {
	s := openTestStore(t)
	agent := seedAgent(t, s, backend.KindCloudChat, "")
	wo := seedWorkOrder(t, s, agent, "p", core.WorkOrderStatusWorking)
	rec := NewExecutionRecorder(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	started := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

	rec.ObserveOutcome(ctx, core.Outcome{
		WorkOrderID: wo.ID, Sequence: wo.Sequence, Response: "hello",
		StartedAt: started, EndedAt: started.Add(time.Second),
	})
	rec.ObserveOutcome(ctx, core.Outcome{
		WorkOrderID: wo.ID, Sequence: wo.Sequence,
		Err:       backend.NewNotConfigured(backend.KindCloudChat, "missing credential"),
		StartedAt: started.Add(time.Minute), EndedAt: started.Add(time.Minute),
	})
	rec.ObserveOutcome(ctx, core.Outcome{
		WorkOrderID: wo.ID, Sequence: wo.Sequence,
		Err:       &core.StoreError{Op: "mark work order working", Err: errors.New("disk full")},
		StartedAt: started.Add(2 * time.Minute), EndedAt: started.Add(2 * time.Minute),
	})

	list, err := s.ListExecutions(ctx, wo.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, core.ExecutionStatusFailed, list[0].Status)
	assert.Equal(t, "store_error", *list[0].ErrorKind)
	assert.Contains(t, *list[0].Error, "disk full")

	assert.Equal(t, core.ExecutionStatusSkipped, list[1].Status)
	assert.Equal(t, "not_configured", *list[1].ErrorKind)

	assert.Equal(t, core.ExecutionStatusSucceeded, list[2].Status)
	require.NotNil(t, list[2].Response)
	assert.Equal(t, "hello", *list[2].Response)
	assert.Nil(t, list[2].ErrorKind)
}
