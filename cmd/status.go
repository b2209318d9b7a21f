package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/propdata/rera-ingest/internal/model"
	"github.com/propdata/rera-ingest/internal/monitoring"
	"github.com/propdata/rera-ingest/internal/scrapecache"
)

var (
	statusHours int
	statusJSON  bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store, cache, and recent ingestion health",
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

		snap, err := monitoring.NewCollector(st).Collect(ctx, statusHours)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		cache := scrapecache.Load(cfg.Cache.Path)

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				*monitoring.MetricsSnapshot
				CacheKeys int    `json:"cache_keys"`
				CachePath string `json:"cache_path"`
			}{snap, cache.Len(), cache.Path()})
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "Store:\t%s\n", cfg.Store.Driver)
		if snap.Entities != nil {
			fmt.Fprintf(tw, "Parent projects:\t%d\n", snap.Entities.ParentProjects)
			fmt.Fprintf(tw, "Registrations:\t%d\n", snap.Entities.Registrations)
			fmt.Fprintf(tw, "Buildings:\t%d\n", snap.Entities.Buildings)
			fmt.Fprintf(tw, "Unit types:\t%d\n", snap.Entities.UnitTypes)
			fmt.Fprintf(tw, "Bank accounts:\t%d\n", snap.Entities.BankAccounts)
			fmt.Fprintf(tw, "Documents:\t%d\n", snap.Entities.Documents)
			fmt.Fprintf(tw, "Periodic updates:\t%d\n", snap.Entities.PeriodicUpdates)
			fmt.Fprintf(tw, "Provenance rows:\t%d\n", snap.Entities.Provenance)
			fmt.Fprintf(tw, "Candidates:\t%d\n", snap.Entities.Candidates)
			fmt.Fprintf(tw, "Runs:\t%d\n", snap.Entities.Runs)
		}
		fmt.Fprintf(tw, "Cache keys:\t%d (%s)\n", cache.Len(), cache.Path())
		fmt.Fprintf(tw, "Runs (last %dh):\t%d complete, %d failed, %d running\n",
			statusHours, snap.RunsComplete, snap.RunsFailed, snap.RunsRunning)
		fmt.Fprintf(tw, "Records (last %dh):\t%d processed, %.1f%% failed\n",
			statusHours, snap.RecordsProcessed, snap.RecordFailRate*100)
		for _, d := range []model.Decision{
			model.DecisionCreated, model.DecisionUpdated,
			model.DecisionUnchanged, model.DecisionFailed,
		} {
			if n := snap.Decisions[d]; n > 0 {
				fmt.Fprintf(tw, "  %s:\t%d\n", d, n)
			}
		}
		if snap.HoursSinceLastDelta >= 0 {
			fmt.Fprintf(tw, "Last delta run:\t%s ago\n",
				(time.Duration(snap.HoursSinceLastDelta*float64(time.Hour))).Round(time.Minute))
		} else {
			fmt.Fprintf(tw, "Last delta run:\tnever\n")
		}
		tw.Flush()
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusHours, "hours", 24, "lookback window in hours")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "emit status as JSON")
	rootCmd.AddCommand(statusCmd)
}
