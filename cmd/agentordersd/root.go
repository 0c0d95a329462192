package main

import (
	"github.com/spf13/cobra"

	"agentorders/internal/config"
)

// newRootCmd builds the command tree. Flags default to the values already
// loaded from the environment, so a flag only wins when it is given.
func newRootCmd(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentordersd",
		Short: "Dispatch agent work orders to inference backends on a schedule",
		Long: `agentordersd polls the work order database, picks the work orders whose agent
and work order time windows contain the current time and whose agent periodicity
has elapsed, and sends their prompts to the configured inference backend.

Without a subcommand it runs the daemon, the same as "agentordersd serve".`,
		Version:      Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.Mode, "mode", cfg.Mode, "surfaces to serve next to the scheduler: http, mcp or both")
	flags.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "HTTP listen address")
	flags.StringVar(&cfg.Server.AuthToken, "auth-token", cfg.Server.AuthToken, "bearer token required by /v1 and /mcp (empty disables auth)")
	flags.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory holding the database")
	flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, "database file, overrides --state-dir")
	flags.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level: debug, info, warn or error")
	flags.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "log format: text or json")
	flags.BoolVar(&cfg.UseUTC, "utc", cfg.UseUTC, "evaluate time windows in UTC instead of local time")
	flags.DurationVar(&cfg.Scheduler.PollInterval, "poll-interval", cfg.Scheduler.PollInterval, "pause between scheduler cycles")
	flags.IntVar(&cfg.Scheduler.Workers, "workers", cfg.Scheduler.Workers, "work orders dispatched concurrently within a cycle")
	flags.DurationVar(&cfg.Scheduler.DispatchTimeout, "dispatch-timeout", cfg.Scheduler.DispatchTimeout, "timeout of one backend call")
	flags.Float64Var(&cfg.Backend.RatePerSec, "backend-rps", cfg.Backend.RatePerSec, "outbound requests per second per backend (0 for unlimited)")
	flags.IntVar(&cfg.History.Retention, "retention", cfg.History.Retention, "executions kept per work order")
	flags.StringVar(&cfg.History.PruneCron, "prune-cron", cfg.History.PruneCron, "5-field cron schedule of the execution history prune")
	flags.DurationVar(&cfg.ShutdownGrace, "shutdown-grace", cfg.ShutdownGrace, "time allowed for HTTP requests to drain at shutdown")

	rootCmd.AddCommand(newServeCmd(cfg))
	rootCmd.AddCommand(newCheckCmd(cfg))
	rootCmd.AddCommand(versionCmd)
	return rootCmd
}
