package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"agentorders/internal/config"
	"agentorders/internal/core"
	"agentorders/internal/store"
)

func newCheckCmd(cfg *config.Config) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Show which pending work orders would be dispatched, without dispatching",
		Long: `Evaluate every pending work order against its agent and work order windows
at the given time (default: now) and print the verdict. The throttle lives in
the daemon's memory, so a check always treats the periodicity as elapsed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at, expected RFC3339: %w", err)
				}
				now = parsed
			}

			st, err := store.Open(cmd.Context(), cfg.DatabasePath())
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			selector := core.NewSelector(st, core.NewThrottleTracker(), cfg.Location())
			evaluated, err := selector.Explain(cmd.Context(), now)
			if err != nil {
				return err
			}
			return printEligibility(cmd.OutOrStdout(), evaluated, now.In(selector.Location()))
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 time to evaluate instead of now")
	return cmd
}

func printEligibility(out io.Writer, evaluated []core.Eligibility, now time.Time) error {
	fmt.Fprintf(out, "Evaluated at %s\n\n", now.Format("2006-01-02 15:04:05 MST"))
	if len(evaluated) == 0 {
		fmt.Fprintln(out, "No pending work orders")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQUENCE\tSTATUS\tAGENT\tWINDOW\tDISPATCH\tREASON")
	for _, e := range evaluated {
		wo := e.WorkOrder
		agent := "-"
		if wo.Agent != nil {
			agent = wo.Agent.Name
		}
		verdict := "no"
		if e.Eligible() {
			verdict = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", wo.Sequence, wo.Status, agent, wo.Window, verdict, e.Reason())
	}
	return tw.Flush()
}
