package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/torosent/ratefire/internal/config"
	"github.com/torosent/ratefire/internal/history"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "ratefire",
		Short:         "Constant arrival rate HTTP load generator",
		Long:          "ratefire starts requests at a fixed rate for a fixed duration, independent of how fast the target answers.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewLoader().LoadFlags(cmd.Flags())
			if err != nil {
				return err
			}
			return execute(cmd.Context(), cfg, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	config.RegisterFlags(root)
	root.AddCommand(newHistoryCommand(stdout))
	return root
}

func newHistoryCommand(stdout io.Writer) *cobra.Command {
	var (
		dbPath string
		limit  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				return fmt.Errorf("history database is required (--history-db or HISTORY_DB)")
			}
			store, err := history.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				rec, err := store.Get(args[0])
				if err != nil {
					return err
				}
				return printReport(stdout, config.OutputFormat(format), rec.Report)
			}

			records, err := store.List(limit)
			if err != nil {
				return err
			}
			if config.OutputFormat(format) == config.OutputJSON {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			printHistory(stdout, records)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "history-db", os.Getenv("HISTORY_DB"), "Path to the run history database")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list (0 = all)")
	cmd.Flags().StringVarP(&format, "output", "o", string(config.OutputText), "Output format: text or json (yaml also accepted for a single run)")
	return cmd
}

func printHistory(w io.Writer, records []history.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tTARGET\tRATE\tGENERATED\tDROPPED\tFAILED\tP95\tRESULT")
	for _, rec := range records {
		r := rec.Report
		result := "pass"
		if !rec.Passed {
			result = "fail"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%d\t%d\t%d\t%d\t%.1fms\t%s\n",
			rec.ID,
			r.Run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Run.Method, r.Run.Target,
			r.Run.Rate,
			r.Summary.TicksGenerated,
			r.Summary.TicksDropped,
			r.Summary.Failures,
			r.Metrics.P95LatencyMs,
			result,
		)
	}
	tw.Flush()
}
