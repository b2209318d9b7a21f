package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/propdata/rera-ingest/internal/model"
	"github.com/propdata/rera-ingest/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect ingest run history",
	Long:  "Commands for listing, viewing, and summarizing ingest runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingest runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		mode, _ := cmd.Flags().GetString("mode")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.RunFilter{
			Status: model.RunStatus(status),
			Mode:   model.RunMode(mode),
			Limit:  limit,
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "runs show %s", args[0])
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		}

		formatRunSummary(os.Stdout, run)
		if run.Error != "" {
			fmt.Printf("Error: %s\n", run.Error)
		}

		// Per-record decisions for this run.
		provs, err := st.ListProvenance(ctx, store.ProvenanceFilter{RunID: run.ID, Limit: 1000})
		if err != nil {
			return eris.Wrap(err, "runs show provenance")
		}
		if len(provs) > 0 {
			fmt.Println()
			formatProvenanceList(os.Stdout, provs)
		}
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recent ingest activity",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		hours, _ := cmd.Flags().GetInt("hours")
		since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

		decisions, err := st.DecisionCounts(ctx, since)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "Window:\tlast %dh\n", hours)
		for _, d := range []model.Decision{
			model.DecisionCreated, model.DecisionUpdated,
			model.DecisionUnchanged, model.DecisionFailed,
		} {
			fmt.Fprintf(tw, "%s:\t%d\n", d, decisions[d])
		}
		tw.Flush()
		return nil
	},
}

func formatRunsList(w io.Writer, runs []model.IngestRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODE\tSTATUS\tPROCESSED\tCREATED\tUPDATED\tUNCHANGED\tFAILED\tSKIPPED\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.Mode, r.Status,
			r.Counts.Processed, r.Counts.Created, r.Counts.Updated,
			r.Counts.Unchanged, r.Counts.Failed, r.Counts.Skipped,
			r.StartedAt.Format(time.RFC3339))
	}
	tw.Flush()
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by status (running, complete, failed)")
	runsListCmd.Flags().String("mode", "", "filter by mode (full, delta)")
	runsListCmd.Flags().Int("limit", 20, "maximum runs to list")

	runsShowCmd.Flags().Bool("json", false, "emit the run as JSON")

	runsStatsCmd.Flags().Int("hours", 24, "lookback window in hours")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}
