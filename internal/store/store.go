// Package store persists geocoded buildings and analysis runs.
package store

import (
	"context"
	"time"
)

// GeocodedBuilding is one durable row of the address-geocode table, keyed by
// building identifier. Rows are created once on first successful resolution
// and never updated.
type GeocodedBuilding struct {
	BuildingID    string
	StreetAddress string
	City          string
	State         string
	ZipCode       string
	Lat           float64
	Lng           float64
	Source        string
	CreatedAt     time.Time
}

// AnalysisRun is one persisted aggregation result.
type AnalysisRun struct {
	ID            string
	TravelMode    string
	TravelMinutes int
	Arrival       string
	WeightColumn  string
	WithinWeight  float64
	OutsideWeight float64
	WithinShare   float64
	OutsideShare  float64
	CreatedAt     time.Time
}

// SourceCount is the number of geocoded buildings attributed to one source.
type SourceCount struct {
	Source string
	Count  int
}

// Store is the persistence interface for the geocoding pipeline. InsertBuildings
// runs in a single transaction: the batch is the unit of durability.
type Store interface {
	// Geocoded buildings
	ExistingBuildingIDs(ctx context.Context) (map[string]struct{}, error)
	InsertBuildings(ctx context.Context, buildings []GeocodedBuilding) error
	AllBuildings(ctx context.Context) ([]GeocodedBuilding, error)
	CountBySource(ctx context.Context) ([]SourceCount, error)

	// Analysis runs
	CreateAnalysisRun(ctx context.Context, run AnalysisRun) error
	ListAnalysisRuns(ctx context.Context, limit int) ([]AnalysisRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
