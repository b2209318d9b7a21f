package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/propdata/rera-ingest/internal/scrapecache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or reset the delta-scrape cache",
}

// -- cache stats --

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show scrape cache contents by state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cache := scrapecache.Load(cfg.Cache.Path)

		perState := make(map[string]int)
		for _, key := range cache.Keys() {
			state, _, err := splitRegistrationKey(key)
			if err != nil {
				state = "?"
			}
			perState[state]++
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "Path:\t%s\n", cache.Path())
		fmt.Fprintf(tw, "Keys:\t%d\n", cache.Len())
		states := make([]string, 0, len(perState))
		for s := range perState {
			states = append(states, s)
		}
		sort.Strings(states)
		for _, s := range states {
			fmt.Fprintf(tw, "  %s:\t%d\n", s, perState[s])
		}
		tw.Flush()
		return nil
	},
}

// -- cache reset --

var cacheResetYes bool

var cacheResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the scrape cache (next delta run re-scrapes everything)",
	Long: "Clears the durable scraped-ID set. Safe with respect to data: the upsert " +
		"engine's hash check turns re-scraped records into no-ops. Requires --yes.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !cacheResetYes {
			return eris.New("cache reset is destructive to crawl progress; pass --yes to confirm")
		}

		cache := scrapecache.Load(cfg.Cache.Path)
		before := cache.Len()
		if err := cache.Reset(); err != nil {
			return err
		}
		fmt.Printf("Cache reset: %d keys cleared (%s).\n", before, cache.Path())
		return nil
	},
}

func init() {
	cacheResetCmd.Flags().BoolVar(&cacheResetYes, "yes", false, "confirm the reset")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheResetCmd)
	rootCmd.AddCommand(cacheCmd)
}
