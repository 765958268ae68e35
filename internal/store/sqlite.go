package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS geocoded_buildings (
	building_id      TEXT PRIMARY KEY,
	street_address   TEXT NOT NULL,
	city             TEXT NOT NULL,
	state            TEXT NOT NULL,
	zip_code         TEXT NOT NULL,
	lat              REAL NOT NULL,
	lng              REAL NOT NULL,
	geocoding_source TEXT NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id             TEXT PRIMARY KEY,
	travel_mode    TEXT NOT NULL,
	travel_minutes INTEGER NOT NULL,
	arrival        TEXT NOT NULL,
	weight_column  TEXT NOT NULL,
	within_weight  REAL NOT NULL,
	outside_weight REAL NOT NULL,
	within_share   REAL NOT NULL,
	outside_share  REAL NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_geocoded_buildings_source ON geocoded_buildings(geocoding_source);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_created_at ON analysis_runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ExistingBuildingIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT building_id FROM geocoded_buildings`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query building ids")
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan building id")
		}
		ids[id] = struct{}{}
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate building ids")
}

// InsertBuildings writes a batch in one transaction. Rows whose building_id
// already exists are left untouched (insert-if-absent).
func (s *SQLiteStore) InsertBuildings(ctx context.Context, buildings []GeocodedBuilding) error {
	if len(buildings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin batch insert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO geocoded_buildings
			(building_id, street_address, city, state, zip_code, lat, lng, geocoding_source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare batch insert")
	}
	defer stmt.Close()

	for _, b := range buildings {
		createdAt := b.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			b.BuildingID, b.StreetAddress, b.City, b.State, b.ZipCode,
			b.Lat, b.Lng, b.Source, createdAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert building %s", b.BuildingID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit batch insert")
}

func (s *SQLiteStore) AllBuildings(ctx context.Context) ([]GeocodedBuilding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT building_id, street_address, city, state, zip_code, lat, lng, geocoding_source, created_at
		FROM geocoded_buildings`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query buildings")
	}
	defer rows.Close()

	var buildings []GeocodedBuilding
	for rows.Next() {
		var b GeocodedBuilding
		if err := rows.Scan(
			&b.BuildingID, &b.StreetAddress, &b.City, &b.State, &b.ZipCode,
			&b.Lat, &b.Lng, &b.Source, &b.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan building")
		}
		buildings = append(buildings, b)
	}
	return buildings, eris.Wrap(rows.Err(), "sqlite: iterate buildings")
}

func (s *SQLiteStore) CountBySource(ctx context.Context) ([]SourceCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT geocoding_source, COUNT(*)
		FROM geocoded_buildings
		GROUP BY geocoding_source
		ORDER BY geocoding_source`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by source")
	}
	defer rows.Close()

	var counts []SourceCount
	for rows.Next() {
		var c SourceCount
		if err := rows.Scan(&c.Source, &c.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source count")
		}
		counts = append(counts, c)
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: iterate source counts")
}

func (s *SQLiteStore) CreateAnalysisRun(ctx context.Context, run AnalysisRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_runs
			(id, travel_mode, travel_minutes, arrival, weight_column,
			 within_weight, outside_weight, within_share, outside_share, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.TravelMode, run.TravelMinutes, run.Arrival, run.WeightColumn,
		run.WithinWeight, run.OutsideWeight, run.WithinShare, run.OutsideShare, run.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert analysis run")
}

func (s *SQLiteStore) ListAnalysisRuns(ctx context.Context, limit int) ([]AnalysisRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, travel_mode, travel_minutes, arrival, weight_column,
		       within_weight, outside_weight, within_share, outside_share, created_at
		FROM analysis_runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analysis runs")
	}
	defer rows.Close()

	var runs []AnalysisRun
	for rows.Next() {
		var r AnalysisRun
		if err := rows.Scan(
			&r.ID, &r.TravelMode, &r.TravelMinutes, &r.Arrival, &r.WeightColumn,
			&r.WithinWeight, &r.OutsideWeight, &r.WithinShare, &r.OutsideShare, &r.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate analysis runs")
}
