package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentorders/internal/backend"
	"agentorders/internal/config"
	"agentorders/internal/core"
	"agentorders/internal/store"
)

func testServeConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Addr: "127.0.0.1:0"},
		Log:    config.LogConfig{Level: "error", Format: "text"},
		Scheduler: config.SchedulerConfig{
			PollInterval:    time.Hour,
			Workers:         1,
			DispatchTimeout: 10 * time.Second,
		},
		Backend: config.BackendConfig{
			OpenAIURL:   backendURL,
			OpenAIModel: "gpt-3.5-turbo",
			OllamaURL:   "http://127.0.0.1:1",
			OllamaModel: "llama2",
		},
		History:       config.HistoryConfig{Retention: 50, PruneCron: "0 3 * * *"},
		Mode:          config.ModeHTTP,
		DBPath:        filepath.Join(t.TempDir(), "agentorders.db"),
		UseUTC:        true,
		ShutdownGrace: 50 * time.Millisecond,
	}
}

// seedAlwaysEligible stores one draft cloud-chat work order whose windows cover the whole day.
func seedAlwaysEligible(t *testing.T, dbPath string) *core.WorkOrder {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, dbPath)
	require.NoError(t, err)
	defer st.Close()

	allDay := core.Window{Start: core.NewTimeOfDay(0, 0, 0), End: core.NewTimeOfDay(23, 59, 59)}
	model := &core.InferenceModel{Name: "gpt", Provider: backend.KindCloudChat, Credential: "sk-test"}
	require.NoError(t, st.InsertModel(ctx, model))
	agent := &core.Agent{
		Name:        "reporter",
		Prompt:      "you are a reporter",
		Active:      true,
		Periodicity: core.Periodicity{Value: 1, Unit: core.PeriodHours},
		Window:      allDay,
		Model:       model,
	}
	require.NoError(t, st.InsertAgent(ctx, agent))
	wo := &core.WorkOrder{Agent: agent, Prompt: "summarize the news", Window: allDay}
	require.NoError(t, st.InsertWorkOrder(ctx, wo))
	return wo
}

func TestApp_ShutdownFinishesInFlightDispatch(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(500 * time.Millisecond)
		finished.Store(true)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"all quiet"}}]}`)
	}))
	defer srv.Close()

	cfg := testServeConfig(t, srv.URL)
	require.NoError(t, cfg.Validate())
	wo := seedAlwaysEligible(t, cfg.DBPath)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer a.store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.run(ctx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("backend was never called")
	}
	cancel()

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}

	assert.True(t, finished.Load(), "run returned before the backend call completed")

	_, ok := a.throttle.LastSuccess(wo.ID)
	assert.True(t, ok, "successful dispatch updates the throttle")

	execs, err := a.store.ListExecutions(context.Background(), wo.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, core.ExecutionStatusSucceeded, execs[0].Status)
	require.NotNil(t, execs[0].Response)
	assert.Equal(t, "all quiet", *execs[0].Response)

	got, err := a.store.GetWorkOrder(context.Background(), wo.ID)
	require.NoError(t, err)
	assert.Equal(t, core.WorkOrderStatusWorking, got.Status)

	assert.Equal(t, core.SchedulerStateStopped, a.scheduler.Status().State)
}
