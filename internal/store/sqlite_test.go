package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "ballotbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testBuilding(id string, lat float64) GeocodedBuilding {
	return GeocodedBuilding{
		BuildingID:    id,
		StreetAddress: "123 Main St",
		City:          "Akron",
		State:         "OH",
		ZipCode:       "44301",
		Lat:           lat,
		Lng:           -81.52,
		Source:        "census",
	}
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestSQLite_InsertAndListBuildings(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	err := s.InsertBuildings(ctx, []GeocodedBuilding{
		testBuilding("bldg-1", 41.08),
		testBuilding("bldg-2", 41.09),
	})
	require.NoError(t, err)

	buildings, err := s.AllBuildings(ctx)
	require.NoError(t, err)
	require.Len(t, buildings, 2)
	assert.Equal(t, "bldg-1", buildings[0].BuildingID)
	assert.Equal(t, 41.08, buildings[0].Lat)
	assert.False(t, buildings[0].CreatedAt.IsZero())
}

func TestSQLite_InsertNeverUpdatesExisting(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.InsertBuildings(ctx, []GeocodedBuilding{testBuilding("bldg-1", 41.08)}))

	// Same building id with different coordinates must be ignored.
	changed := testBuilding("bldg-1", 99.99)
	changed.Source = "google"
	require.NoError(t, s.InsertBuildings(ctx, []GeocodedBuilding{changed}))

	buildings, err := s.AllBuildings(ctx)
	require.NoError(t, err)
	require.Len(t, buildings, 1)
	assert.Equal(t, 41.08, buildings[0].Lat)
	assert.Equal(t, "census", buildings[0].Source)
}

func TestSQLite_InsertEmptyBatch(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.InsertBuildings(context.Background(), nil))
}

func TestSQLite_ExistingBuildingIDs(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	ids, err := s.ExistingBuildingIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, s.InsertBuildings(ctx, []GeocodedBuilding{
		testBuilding("bldg-1", 41.08),
		testBuilding("bldg-2", 41.09),
	}))

	ids, err = s.ExistingBuildingIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	_, ok := ids["bldg-1"]
	assert.True(t, ok)
}

func TestSQLite_CountBySource(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	google := testBuilding("bldg-3", 41.10)
	google.Source = "google"
	require.NoError(t, s.InsertBuildings(ctx, []GeocodedBuilding{
		testBuilding("bldg-1", 41.08),
		testBuilding("bldg-2", 41.09),
		google,
	}))

	counts, err := s.CountBySource(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, SourceCount{Source: "census", Count: 2}, counts[0])
	assert.Equal(t, SourceCount{Source: "google", Count: 1}, counts[1])
}

func TestSQLite_AnalysisRuns(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run := AnalysisRun{
		TravelMode:    "driving",
		TravelMinutes: 15,
		Arrival:       "Tuesday 18:00",
		WeightColumn:  "total_reg_voters",
		WithinWeight:  820,
		OutsideWeight: 180,
		WithinShare:   0.82,
		OutsideShare:  0.18,
	}
	require.NoError(t, s.CreateAnalysisRun(ctx, run))

	runs, err := s.ListAnalysisRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotEmpty(t, runs[0].ID)
	assert.Equal(t, "driving", runs[0].TravelMode)
	assert.Equal(t, 15, runs[0].TravelMinutes)
	assert.InDelta(t, 0.82, runs[0].WithinShare, 1e-9)
}
