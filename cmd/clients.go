package main

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/civicsignal/ballotbox-cli/internal/address"
	"github.com/civicsignal/ballotbox-cli/internal/loader"
	"github.com/civicsignal/ballotbox-cli/pkg/geocode"
	"github.com/civicsignal/ballotbox-cli/pkg/traveltime"
)

func initResolver() (*geocode.Resolver, error) {
	cache, err := geocode.NewCache(cfg.Geocode.CacheDir)
	if err != nil {
		return nil, err
	}
	opts := []geocode.Option{
		geocode.WithRateLimit(cfg.Geocode.RateLimit),
	}
	if cfg.Geocode.GoogleAPIKey != "" {
		opts = append(opts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleAPIKey))
	}
	return geocode.NewResolver(cache, opts...), nil
}

func initTravelTime() (*traveltime.Client, error) {
	return traveltime.NewClient(
		cfg.TravelTime.AppID,
		cfg.TravelTime.APIKey,
		cfg.TravelTime.CacheDir,
		traveltime.WithPreRequestDelay(time.Duration(cfg.TravelTime.PreDelaySecs)*time.Second),
		traveltime.WithMaxRetries(cfg.TravelTime.MaxRetries),
		traveltime.WithBackoffBase(time.Duration(cfg.TravelTime.BackoffBaseSecs)*time.Second),
	)
}

// loadVoters dispatches on the file extension.
func loadVoters(path, sheet string) ([]address.Record, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return loader.VotersFromXLSX(path, cfg.Voters.Mapping, sheet)
	}
	return loader.VotersFromCSV(path, cfg.Voters.Mapping)
}

// loadLocations dispatches on the file extension.
func loadLocations(path, idField string) ([]traveltime.Location, error) {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		return loader.LocationsFromShapefile(path, idField)
	}
	return loader.LocationsFromCSV(path)
}
