package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civicsignal/ballotbox-cli/pkg/traveltime"
)

var isochronesCmd = &cobra.Command{
	Use:   "isochrones",
	Short: "Fetch travel-time isochrones for drop-box locations",
	Long:  "Fetches one isochrone per drop-box location for the given mode, travel time, and arrival, caching raw responses on disk.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		locations, mode, minutes, arrival, err := isochroneArgs(cmd)
		if err != nil {
			return err
		}

		client, err := initTravelTime()
		if err != nil {
			return err
		}

		isochrones, err := client.Isochrones(ctx, locations, mode, arrival, minutes)
		if err != nil {
			return eris.Wrap(err, "isochrones")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "location\tgeometry")
		for _, iso := range isochrones {
			status := "ok"
			if iso.Geometry == nil {
				status = "empty"
			}
			fmt.Fprintf(w, "%s\t%s\n", iso.Location.ID, status)
		}
		return w.Flush()
	},
}

// isochroneArgs parses the flags shared by isochrones and analyze.
func isochroneArgs(cmd *cobra.Command) ([]traveltime.Location, traveltime.Mode, int, time.Time, error) {
	locationsPath, _ := cmd.Flags().GetString("locations")
	idField, _ := cmd.Flags().GetString("id-field")
	modeName, _ := cmd.Flags().GetString("mode")
	minutes, _ := cmd.Flags().GetInt("minutes")
	day, _ := cmd.Flags().GetString("day")
	hhmm, _ := cmd.Flags().GetString("time")

	locations, err := loadLocations(locationsPath, idField)
	if err != nil {
		return nil, "", 0, time.Time{}, err
	}
	if len(locations) == 0 {
		return nil, "", 0, time.Time{}, eris.New("no drop-box locations loaded")
	}

	mode, err := traveltime.ParseMode(modeName)
	if err != nil {
		return nil, "", 0, time.Time{}, err
	}

	weekday, err := traveltime.ParseWeekday(day)
	if err != nil {
		return nil, "", 0, time.Time{}, err
	}
	arrival, err := traveltime.NextArrival(weekday, hhmm, cfg.TravelTime.Timezone)
	if err != nil {
		return nil, "", 0, time.Time{}, err
	}

	return locations, mode, minutes, arrival, nil
}

func addIsochroneFlags(cmd *cobra.Command) {
	cmd.Flags().String("locations", "", "drop-box locations path (.csv or .shp)")
	cmd.Flags().String("id-field", "NAME", "shapefile attribute holding the location id")
	cmd.Flags().String("mode", "driving", "travel mode (driving, walking, public_transport)")
	cmd.Flags().Int("minutes", 15, "travel time in minutes")
	cmd.Flags().String("day", "Tuesday", "arrival weekday")
	cmd.Flags().String("time", "18:00", "arrival time of day (HH:MM)")
	_ = cmd.MarkFlagRequired("locations")
}

func init() {
	addIsochroneFlags(isochronesCmd)
	rootCmd.AddCommand(isochronesCmd)
}
