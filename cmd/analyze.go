package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/civicsignal/ballotbox-cli/internal/pipeline"
	"github.com/civicsignal/ballotbox-cli/internal/spatial"
	"github.com/civicsignal/ballotbox-cli/internal/store"
	"github.com/civicsignal/ballotbox-cli/pkg/traveltime"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full accessibility analysis",
	Long:  "Geocodes the voter table, fetches isochrones around every drop-box location, and reports the voter weight within and outside the covered area.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		votersPath, _ := cmd.Flags().GetString("voters")
		sheet, _ := cmd.Flags().GetString("sheet")
		weightCol, _ := cmd.Flags().GetString("weight-column")
		geojsonPath, _ := cmd.Flags().GetString("geojson")
		if sheet == "" {
			sheet = cfg.Voters.Sheet
		}
		if weightCol == "" {
			weightCol = cfg.Voters.WeightColumn
		}

		records, err := loadVoters(votersPath, sheet)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return eris.New("voter table has no rows")
		}

		locations, mode, minutes, arrival, err := isochroneArgs(cmd)
		if err != nil {
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
			return eris.Wrap(err, "analyze: geocode")
		}

		points, unresolvedWeight, err := pipeline.BuildingWeights(rows, weightCol)
		if err != nil {
			return eris.Wrap(err, "analyze: weights")
		}

		client, err := initTravelTime()
		if err != nil {
			return err
		}
		isochrones, err := client.Isochrones(ctx, locations, mode, arrival, minutes)
		if err != nil {
			return eris.Wrap(err, "analyze: isochrones")
		}

		var zones []*geom.MultiPolygon
		for _, iso := range isochrones {
			if iso.Geometry == nil {
				zap.L().Warn("isochrone has no reachable area", zap.String("location", iso.Location.ID))
				continue
			}
			zones = append(zones, iso.Geometry)
		}

		summary, err := spatial.Summarize(points, zones, unresolvedWeight)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		run := store.AnalysisRun{
			TravelMode:    string(mode),
			TravelMinutes: minutes,
			Arrival:       arrival.Format("Monday 15:04"),
			WeightColumn:  weightCol,
			WithinWeight:  summary.WithinWeight,
			OutsideWeight: summary.OutsideWeight,
			WithinShare:   summary.WithinShare,
			OutsideShare:  summary.OutsideShare,
		}
		if err := st.CreateAnalysisRun(ctx, run); err != nil {
			return eris.Wrap(err, "analyze: save run")
		}

		if geojsonPath != "" {
			if err := writeIsochroneGeoJSON(geojsonPath, isochrones, mode, minutes); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote isochrones to %s\n", geojsonPath)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "status\t%s\tshare\n", weightCol)
		for _, row := range summary.Rollup() {
			fmt.Fprintf(w, "%s\t%.1f\t%.1f%%\n", row.Status, row.Weight, row.Share*100)
		}
		return w.Flush()
	},
}

func writeIsochroneGeoJSON(path string, isochrones []traveltime.Isochrone, mode traveltime.Mode, minutes int) error {
	fc := &geojson.FeatureCollection{}
	for _, iso := range isochrones {
		if iso.Geometry == nil {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       iso.Location.ID,
			Geometry: iso.Geometry,
			Properties: map[string]any{
				"location": iso.Location.ID,
				"mode":     string(mode),
				"minutes":  minutes,
			},
		})
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "analyze: marshal geojson")
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "analyze: write %s", path)
}

func init() {
	analyzeCmd.Flags().String("voters", "", "voter table path (.csv or .xlsx)")
	analyzeCmd.Flags().String("sheet", "", "XLSX sheet name (default: first sheet)")
	analyzeCmd.Flags().String("weight-column", "", "voter-table column to sum (default from config)")
	analyzeCmd.Flags().String("geojson", "", "write fetched isochrones to this GeoJSON file")
	_ = analyzeCmd.MarkFlagRequired("voters")
	addIsochroneFlags(analyzeCmd)
	rootCmd.AddCommand(analyzeCmd)
}
