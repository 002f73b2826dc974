package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/history"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/report"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/postgres"
	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit    int
		strategy string
		runID    string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, or the per-query results of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			db, err := postgres.New(cmd.Context(), cfg.History)
			if err != nil {
				return err
			}
			defer db.Close()
			store := history.NewStore(db)
			out := cmd.OutOrStdout()

			if runID != "" {
				results, err := store.Results(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if opts.format == report.FormatJSON {
					return writeJSON(out, results)
				}
				return writeResults(out, results)
			}

			runs, err := store.ListRuns(cmd.Context(), strategy, limit)
			if err != nil {
				return err
			}
			if opts.format == report.FormatJSON {
				return writeJSON(out, runs)
			}
			return writeRuns(out, runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum number of runs to list")
	cmd.Flags().StringVar(&strategy, "strategy", "", "only list runs of this query strategy")
	cmd.Flags().StringVar(&runID, "run", "", "show the per-query results of this run")
	return cmd
}

func writeRuns(w io.Writer, runs []history.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tFINISHED\tSTRATEGY\tSCORE\tCASES\tFAILED\tSKIPPED\tNOTE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d / %d\t%d\t%d\t%d\t%s\n",
			r.ID, r.FinishedAt.Local().Format(time.DateTime), r.Strategy,
			r.Combined, r.Max, r.Cases, r.Failed, r.Skipped, r.Note)
	}
	return tw.Flush()
}

func writeResults(w io.Writer, results []history.QueryResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tQUERY\tEXPECTED\tPOSITION\tSCORE\tERROR")
	for _, r := range results {
		pos := "-"
		if r.Found {
			pos = fmt.Sprint(r.Position)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n", r.Line, r.Query, r.Expected, pos, r.Score, r.Error)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
