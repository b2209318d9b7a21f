package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/propdata/rera-ingest/internal/source"
)

var (
	candidatesFile  string
	candidatesState string
	candidatesLimit int
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Manage the crawl frontier of known registration numbers",
}

// -- candidates load --

var candidatesLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Bulk-load a state's published registration index",
	Long: "Parses an XLSX or CSV registration index (local path or URL) and upserts the " +
		"entries into the candidate table the crawler works from.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("candidates"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		loader := source.NewLoader(newHTTPFetcher(), newFTPFetcher(), "")
		rows, err := loader.ReadCandidates(ctx, candidatesFile, candidatesState)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(os.Stderr, "Index contained no candidates.")
			return nil
		}

		affected, err := st.UpsertCandidates(ctx, rows)
		if err != nil {
			return err
		}

		zap.L().Info("candidates loaded",
			zap.String("state", candidatesState),
			zap.Int("parsed", len(rows)),
			zap.Int64("affected", affected),
		)
		fmt.Printf("Loaded %d candidates (%d rows affected).\n", len(rows), affected)
		return nil
	},
}

// -- candidates list --

var candidatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known candidate registrations",
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

		rows, err := st.ListCandidates(ctx, candidatesState, candidatesLimit)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(os.Stderr, "No candidates found.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STATE\tREGISTRATION\tPROJECT\tDISTRICT\tLISTED")
		for _, c := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				c.StateCode, c.RegistrationNo, c.ProjectName, c.District,
				c.ListedAt.Format("2006-01-02"))
		}
		tw.Flush()
		return nil
	},
}

func init() {
	candidatesLoadCmd.Flags().StringVar(&candidatesFile, "file", "", "registration index: .xlsx, .csv, or URL")
	candidatesLoadCmd.Flags().StringVar(&candidatesState, "state", "", "state code the index belongs to")
	candidatesLoadCmd.MarkFlagRequired("file")  //nolint:errcheck
	candidatesLoadCmd.MarkFlagRequired("state") //nolint:errcheck

	candidatesListCmd.Flags().StringVar(&candidatesState, "state", "", "filter by state code")
	candidatesListCmd.Flags().IntVar(&candidatesLimit, "limit", 50, "maximum rows to list")

	candidatesCmd.AddCommand(candidatesLoadCmd)
	candidatesCmd.AddCommand(candidatesListCmd)
	rootCmd.AddCommand(candidatesCmd)
}
