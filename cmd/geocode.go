package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civicsignal/ballotbox-cli/internal/pipeline"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Geocode a voter table",
	Long:  "Loads a voter table, geocodes every new building through Census with Google fallback, and persists the results.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		votersPath, _ := cmd.Flags().GetString("voters")
		sheet, _ := cmd.Flags().GetString("sheet")
		if sheet == "" {
			sheet = cfg.Voters.Sheet
		}

		records, err := loadVoters(votersPath, sheet)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return eris.New("voter table has no rows")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		resolver, err := initResolver()
		if err != nil {
			return err
		}

		orch := pipeline.NewOrchestrator(st, resolver,
			pipeline.WithBatchSize(cfg.Pipeline.BatchSize),
			pipeline.WithWorkers(cfg.Pipeline.Workers),
		)

		rows, err := orch.Run(ctx, records)
		if err != nil {
			return eris.Wrap(err, "geocode")
		}

		var resolved int
		for _, r := range rows {
			if r.Lat != nil {
				resolved++
			}
		}

		counts, err := st.CountBySource(ctx)
		if err != nil {
			return eris.Wrap(err, "geocode")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "rows\t%d\n", len(rows))
		fmt.Fprintf(w, "resolved rows\t%d\n", resolved)
		fmt.Fprintf(w, "unresolved rows\t%d\n", len(rows)-resolved)
		for _, c := range counts {
			fmt.Fprintf(w, "buildings via %s\t%d\n", c.Source, c.Count)
		}
		return w.Flush()
	},
}

func init() {
	geocodeCmd.Flags().String("voters", "", "voter table path (.csv or .xlsx)")
	geocodeCmd.Flags().String("sheet", "", "XLSX sheet name (default: first sheet)")
	_ = geocodeCmd.MarkFlagRequired("voters")
	rootCmd.AddCommand(geocodeCmd)
}
