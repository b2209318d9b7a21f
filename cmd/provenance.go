package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/propdata/rera-ingest/internal/model"
	"github.com/propdata/rera-ingest/internal/normalize"
	"github.com/propdata/rera-ingest/internal/store"
)

var (
	provenanceRegistration string
	provenanceRun          string
	provenanceDecision     string
	provenanceLimit        int
	provenanceJSON         bool
)

var provenanceCmd = &cobra.Command{
	Use:   "provenance",
	Short: "Show the ingest decision log for a registration",
	Long: "Lists the append-only provenance trail: every created/updated/unchanged/failed " +
		"decision ever taken for a registration, newest first.",
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

		filter := store.ProvenanceFilter{
			RunID:    provenanceRun,
			Decision: model.Decision(provenanceDecision),
			Limit:    provenanceLimit,
		}
		if provenanceRegistration != "" {
			state, regNo, err := splitRegistrationKey(provenanceRegistration)
			if err != nil {
				return err
			}
			filter.StateCode = state
			filter.RegistrationNo = regNo
		}

		provs, err := st.ListProvenance(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "provenance")
		}

		if len(provs) == 0 {
			fmt.Fprintln(os.Stderr, "No provenance records found.")
			return nil
		}

		if provenanceJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(provs)
		}

		formatProvenanceList(os.Stdout, provs)
		return nil
	},
}

// splitRegistrationKey parses "STATE:REGNO" (the cache-key form operators
// see in logs). Both parts are normalized so a key pasted from a portal
// page, lowercased or hyphenated, matches the stored form.
func splitRegistrationKey(key string) (string, string, error) {
	state, regNo, ok := strings.Cut(key, ":")
	if !ok || state == "" || regNo == "" {
		return "", "", eris.Errorf("invalid registration key %q (want STATE:REGNO)", key)
	}
	return normalize.Key(state), normalize.Key(regNo), nil
}

func formatProvenanceList(w io.Writer, provs []model.ProvenanceRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tRUN\tREGISTRATION\tDECISION\tDETAIL")
	for _, p := range provs {
		detail := p.Error
		if detail == "" && p.Diff != nil {
			detail = summarizeDiff(p.Diff)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s:%s\t%s\t%s\n",
			p.CreatedAt.Format(time.RFC3339), p.RunID,
			p.StateCode, p.RegistrationNo, p.Decision, detail)
	}
	tw.Flush()
}

func summarizeDiff(diff *model.ChangeSummary) string {
	var parts []string
	if len(diff.Fields) > 0 {
		parts = append(parts, "fields: "+strings.Join(diff.Fields, ","))
	}
	names := make([]string, 0, len(diff.Collections))
	for name := range diff.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d := diff.Collections[name]
		if d.Empty() {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: +%d ~%d -%d !%d",
			name, d.Inserted, d.Updated, d.Removed, d.Flagged))
	}
	return strings.Join(parts, "; ")
}

func init() {
	provenanceCmd.Flags().StringVar(&provenanceRegistration, "registration", "", "registration key as STATE:REGNO")
	provenanceCmd.Flags().StringVar(&provenanceRun, "run", "", "filter by run id")
	provenanceCmd.Flags().StringVar(&provenanceDecision, "decision", "", "filter by decision (created, updated, unchanged, failed)")
	provenanceCmd.Flags().IntVar(&provenanceLimit, "limit", 50, "maximum records to list")
	provenanceCmd.Flags().BoolVar(&provenanceJSON, "json", false, "emit records as JSON")
	rootCmd.AddCommand(provenanceCmd)
}
