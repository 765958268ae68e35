package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/civicsignal/ballotbox-cli/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Tests use this with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS geocoded_buildings (
	building_id      TEXT PRIMARY KEY,
	street_address   TEXT NOT NULL,
	city             TEXT NOT NULL,
	state            TEXT NOT NULL,
	zip_code         TEXT NOT NULL,
	lat              DOUBLE PRECISION NOT NULL,
	lng              DOUBLE PRECISION NOT NULL,
	geocoding_source TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id             UUID PRIMARY KEY,
	travel_mode    TEXT NOT NULL,
	travel_minutes INTEGER NOT NULL,
	arrival        TEXT NOT NULL,
	weight_column  TEXT NOT NULL,
	within_weight  DOUBLE PRECISION NOT NULL,
	outside_weight DOUBLE PRECISION NOT NULL,
	within_share   DOUBLE PRECISION NOT NULL,
	outside_share  DOUBLE PRECISION NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_geocoded_buildings_source ON geocoded_buildings(geocoding_source);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_created_at ON analysis_runs(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ExistingBuildingIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT building_id FROM geocoded_buildings`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query building ids")
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan building id")
		}
		ids[id] = struct{}{}
	}
	return ids, eris.Wrap(rows.Err(), "postgres: iterate building ids")
}

var buildingColumns = []string{
	"building_id", "street_address", "city", "state", "zip_code",
	"lat", "lng", "geocoding_source", "created_at",
}

// InsertBuildings bulk-loads a batch via COPY into a temp table and an
// insert-if-absent merge. The batch is one transaction.
func (s *PostgresStore) InsertBuildings(ctx context.Context, buildings []GeocodedBuilding) error {
	if len(buildings) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(buildings))
	for _, b := range buildings {
		createdAt := b.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		rows = append(rows, []any{
			b.BuildingID, b.StreetAddress, b.City, b.State, b.ZipCode,
			b.Lat, b.Lng, b.Source, createdAt,
		})
	}

	_, err := db.BulkInsertIgnore(ctx, s.pool, db.InsertConfig{
		Table:        "geocoded_buildings",
		Columns:      buildingColumns,
		ConflictKeys: []string{"building_id"},
	}, rows)
	return eris.Wrap(err, "postgres: insert buildings")
}

func (s *PostgresStore) AllBuildings(ctx context.Context) ([]GeocodedBuilding, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT building_id, street_address, city, state, zip_code, lat, lng, geocoding_source, created_at
		FROM geocoded_buildings`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query buildings")
	}
	defer rows.Close()

	var buildings []GeocodedBuilding
	for rows.Next() {
		var b GeocodedBuilding
		if err := rows.Scan(
			&b.BuildingID, &b.StreetAddress, &b.City, &b.State, &b.ZipCode,
			&b.Lat, &b.Lng, &b.Source, &b.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan building")
		}
		buildings = append(buildings, b)
	}
	return buildings, eris.Wrap(rows.Err(), "postgres: iterate buildings")
}

func (s *PostgresStore) CountBySource(ctx context.Context) ([]SourceCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT geocoding_source, COUNT(*)
		FROM geocoded_buildings
		GROUP BY geocoding_source
		ORDER BY geocoding_source`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by source")
	}
	defer rows.Close()

	var counts []SourceCount
	for rows.Next() {
		var c SourceCount
		if err := rows.Scan(&c.Source, &c.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source count")
		}
		counts = append(counts, c)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate source counts")
}

func (s *PostgresStore) CreateAnalysisRun(ctx context.Context, run AnalysisRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO analysis_runs
			(id, travel_mode, travel_minutes, arrival, weight_column,
			 within_weight, outside_weight, within_share, outside_share, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.TravelMode, run.TravelMinutes, run.Arrival, run.WeightColumn,
		run.WithinWeight, run.OutsideWeight, run.WithinShare, run.OutsideShare, run.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert analysis run")
}

func (s *PostgresStore) ListAnalysisRuns(ctx context.Context, limit int) ([]AnalysisRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, travel_mode, travel_minutes, arrival, weight_column,
		       within_weight, outside_weight, within_share, outside_share, created_at
		FROM analysis_runs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analysis runs")
	}
	defer rows.Close()

	var runs []AnalysisRun
	for rows.Next() {
		var r AnalysisRun
		if err := rows.Scan(
			&r.ID, &r.TravelMode, &r.TravelMinutes, &r.Arrival, &r.WeightColumn,
			&r.WithinWeight, &r.OutsideWeight, &r.WithinShare, &r.OutsideShare, &r.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate analysis runs")
}
