package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civicsignal/ballotbox-cli/pkg/geocode"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show geocode progress and recent analysis runs",
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

		counts, err := st.CountBySource(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		total := 0
		for _, c := range counts {
			fmt.Fprintf(w, "buildings via %s\t%d\n", c.Source, c.Count)
			total += c.Count
		}
		fmt.Fprintf(w, "buildings total\t%d\n", total)

		cache, err := geocode.NewCache(cfg.Geocode.CacheDir)
		if err != nil {
			return err
		}
		for _, source := range []geocode.Source{geocode.SourceCensus, geocode.SourceGoogle} {
			successes, failures, err := cache.CountEntries(source)
			if err != nil {
				return eris.Wrap(err, "status")
			}
			fmt.Fprintf(w, "%s cache\t%d ok / %d failed\n", source, successes, failures)
		}

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListAnalysisRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		if len(runs) > 0 {
			fmt.Fprintln(w, "\nrecent runs\tmode\tminutes\tarrival\twithin")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.1f%%\n",
					r.CreatedAt.Format("2006-01-02 15:04"), r.TravelMode, r.TravelMinutes,
					r.Arrival, r.WithinShare*100)
			}
		}
		return w.Flush()
	},
}

func init() {
	statusCmd.Flags().Int("limit", 10, "number of analysis runs to show")
	rootCmd.AddCommand(statusCmd)
}
