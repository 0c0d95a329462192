package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"agentorders/internal/api"
	"agentorders/internal/backend"
	"agentorders/internal/config"
	"agentorders/internal/core"
	"agentorders/internal/logging"
	agentmcp "agentorders/internal/mcp"
	"agentorders/internal/metrics"
	"agentorders/internal/notify"
	"agentorders/internal/store"
)

const metricsNamespace = "agentorders"

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler with the HTTP API and/or the MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, cfg)
		},
	}
}

// app bundles the long-lived components of one serve run.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *store.Store
	throttle    *core.ThrottleTracker
	selector    *core.Selector
	scheduler   *core.Scheduler
	housekeeper *core.Housekeeper
	metrics     *metrics.Collector
	mcp         *agentmcp.MCPServer
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// stdout belongs to the MCP protocol when it is served on stdio.
	var logOut io.Writer = os.Stdout
	if cfg.ServesMCP() {
		logOut = os.Stderr
	}
	logger := logging.New(logOut, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.store.Close()

	return a.run(ctx)
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := store.Open(ctx, cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := backend.NewRegistry(
		backend.NewCloudChat(backend.CloudChatConfig{
			URL:        cfg.Backend.OpenAIURL,
			Model:      cfg.Backend.OpenAIModel,
			Timeout:    cfg.Scheduler.DispatchTimeout,
			RatePerSec: cfg.Backend.RatePerSec,
		}),
		backend.NewLocalGenerate(backend.LocalGenerateConfig{
			BaseURL:    cfg.Backend.OllamaURL,
			Model:      cfg.Backend.OllamaModel,
			Timeout:    cfg.Scheduler.DispatchTimeout,
			RatePerSec: cfg.Backend.RatePerSec,
		}),
	)

	collector := metrics.New(metricsNamespace, nil)
	observers := []core.OutcomeObserver{store.NewExecutionRecorder(st, logger), collector}
	notifier, err := buildNotifier(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	if notifier != nil {
		observers = append(observers, notify.NewFailureNotifier(notifier, logger))
	}

	loc := cfg.Location()
	throttle := core.NewThrottleTracker()
	selector := core.NewSelector(st, throttle, loc)
	dispatcher := core.NewDispatcher(st, registry, throttle, logger,
		core.WithDispatchTimeout(cfg.Scheduler.DispatchTimeout),
		core.WithOutcomeObserver(observers...),
	)
	scheduler := core.NewScheduler(selector, dispatcher, logger,
		core.WithInterval(cfg.Scheduler.PollInterval),
		core.WithWorkers(cfg.Scheduler.Workers),
		core.WithCycleObserver(collector),
	)
	housekeeper, err := core.NewHousekeeper(st, cfg.History.Retention, cfg.History.PruneCron, logger, loc)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create housekeeper: %w", err)
	}

	return &app{
		cfg:         cfg,
		logger:      logger,
		store:       st,
		throttle:    throttle,
		selector:    selector,
		scheduler:   scheduler,
		housekeeper: housekeeper,
		metrics:     collector,
		mcp:         agentmcp.NewMCPServer(st, scheduler, selector, throttle, logger),
	}, nil
}

// buildNotifier returns nil when no notification channel is enabled.
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	var notifiers []notify.Notifier
	if cfg.Notification.Bark.Enabled {
		bark, err := notify.NewBarkNotifier(cfg.Notification.Bark.URL)
		if err != nil {
			return nil, fmt.Errorf("create bark notifier: %w", err)
		}
		notifiers = append(notifiers, bark)
	}
	if len(notifiers) == 0 {
		return nil, nil
	}
	return notify.NewMultiNotifier(notifiers...), nil
}

func (a *app) run(ctx context.Context) error {
	a.logger.Info("agentordersd starting",
		"version", Version,
		"mode", a.cfg.Mode,
		"db", a.store.Path,
		"timezone", a.selector.Location().String(),
	)

	a.scheduler.Start(ctx)
	a.housekeeper.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.ServesHTTP() {
		srv := api.NewServer(api.Options{
			Addr:      a.cfg.Server.Addr,
			AuthToken: a.cfg.Server.AuthToken,
			Store:     a.store,
			Scheduler: a.scheduler,
			Selector:  a.selector,
			Throttle:  a.throttle,
			Metrics:   a.metrics.Handler(),
			MCP:       a.mcp.HTTPHandler(),
			Logger:    a.logger,
		})
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGrace)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	if a.cfg.ServesMCP() {
		g.Go(func() error {
			err := a.mcp.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("mcp server: %w", err)
			}
			a.logger.Info("mcp stdio session ended")
			return nil
		})
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.logger.Warn("sd_notify ready", "err", err)
	}

	err := g.Wait()
	if err != nil {
		a.logger.Error("serve failed", "err", err)
	} else if ctx.Err() != nil {
		a.logger.Info("received shutdown signal")
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.shutdown()
	return err
}

// shutdown stops the background loops and returns only once the current cycle
// has finished, so its outcomes reach the store before it is closed. Each
// dispatch of that cycle is bounded by the dispatch timeout.
func (a *app) shutdown() {
	schedulerDone := a.scheduler.Stop()
	housekeeperDone := a.housekeeper.Stop()
	select {
	case <-schedulerDone.Done():
	case <-time.After(a.cfg.ShutdownGrace):
		a.logger.Info("waiting for in-flight dispatches to finish",
			"dispatch_timeout", a.cfg.Scheduler.DispatchTimeout)
		<-schedulerDone.Done()
	}
	<-housekeeperDone.Done()
	a.logger.Info("agentordersd stopped")
}
