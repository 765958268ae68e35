// Package pipeline orchestrates batch geocoding of voter addresses.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/civicsignal/ballotbox-cli/internal/address"
	"github.com/civicsignal/ballotbox-cli/internal/store"
	"github.com/civicsignal/ballotbox-cli/pkg/geocode"
)

// Resolver resolves one address to coordinates. Satisfied by
// geocode.Resolver; tests substitute a fake.
type Resolver interface {
	Resolve(ctx context.Context, addr geocode.AddressInput) (*geocode.Result, error)
}

// JoinedRow is one voter-table row joined with its building's resolved
// coordinates. Lat and Lng are nil when the building never resolved.
type JoinedRow struct {
	Record   address.Record
	Identity address.Identity
	Lat      *float64
	Lng      *float64
	Source   string
}

// Orchestrator runs the geocoding pipeline: identity, dedupe, resolve,
// persist, join.
type Orchestrator struct {
	store     store.Store
	resolver  Resolver
	batchSize int
	workers   int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBatchSize sets how many unique buildings are resolved per transaction.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithWorkers sets the number of concurrent resolutions within a batch.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// NewOrchestrator creates an Orchestrator with defaults of 100 buildings per
// batch and 4 workers.
func NewOrchestrator(st store.Store, resolver Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		resolver:  resolver,
		batchSize: 100,
		workers:   4,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// uniqueBuilding is one deduplicated building pending resolution.
type uniqueBuilding struct {
	identity address.Identity
	record   address.Record
}

// Run geocodes every new building in the records and returns all records
// joined with the full geocoded table. Re-running after a partial failure
// resumes: buildings already in the table are never resolved again.
func (o *Orchestrator) Run(ctx context.Context, records []address.Record) ([]JoinedRow, error) {
	identities := make([]address.Identity, len(records))
	seen := make(map[string]struct{}, len(records))
	var pending []uniqueBuilding

	for i, r := range records {
		id, err := address.ComputeIdentity(r)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: record %d", i)
		}
		identities[i] = id
		if _, ok := seen[id.BuildingID]; ok {
			continue
		}
		seen[id.BuildingID] = struct{}{}
		pending = append(pending, uniqueBuilding{identity: id, record: r})
	}

	existing, err := o.store.ExistingBuildingIDs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load existing buildings")
	}

	var todo []uniqueBuilding
	for _, b := range pending {
		if _, ok := existing[b.identity.BuildingID]; !ok {
			todo = append(todo, b)
		}
	}

	zap.L().Info("geocoding pipeline start",
		zap.Int("rows", len(records)),
		zap.Int("unique_buildings", len(seen)),
		zap.Int("already_resolved", len(seen)-len(todo)),
		zap.Int("to_resolve", len(todo)),
	)

	for start := 0; start < len(todo); start += o.batchSize {
		end := min(start+o.batchSize, len(todo))
		if err := o.runBatch(ctx, todo[start:end], start/o.batchSize); err != nil {
			return nil, err
		}
	}

	return o.join(ctx, records, identities)
}

// runBatch resolves one batch concurrently and persists the matches in a
// single transaction.
func (o *Orchestrator) runBatch(ctx context.Context, batch []uniqueBuilding, batchNum int) error {
	results := make([]*geocode.Result, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, b := range batch {
		i, b := i, b
		g.Go(func() error {
			res, err := o.resolver.Resolve(gctx, geocode.AddressInput{
				ID:      b.identity.BuildingID,
				Street:  b.record.Street,
				City:    b.record.City,
				State:   b.record.State,
				ZipCode: b.record.Zip,
			})
			if err != nil {
				// Individual failures don't abort the batch.
				zap.L().Error("geocode failed",
					zap.String("building_id", b.identity.BuildingID),
					zap.Error(err),
				)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "pipeline: resolve batch")
	}

	var matched []store.GeocodedBuilding
	for i, res := range results {
		if res == nil || !res.Matched {
			continue
		}
		b := batch[i]
		matched = append(matched, store.GeocodedBuilding{
			BuildingID:    b.identity.BuildingID,
			StreetAddress: b.record.Street,
			City:          b.record.City,
			State:         b.record.State,
			ZipCode:       b.record.Zip,
			Lat:           res.Latitude,
			Lng:           res.Longitude,
			Source:        string(res.Source),
		})
	}

	if err := o.store.InsertBuildings(ctx, matched); err != nil {
		return eris.Wrapf(err, "pipeline: persist batch %d", batchNum)
	}

	zap.L().Info("geocoding batch complete",
		zap.Int("batch", batchNum),
		zap.Int("attempted", len(batch)),
		zap.Int("matched", len(matched)),
	)
	return nil
}

// join left-joins the geocoded table back onto every input row. Rows whose
// building never resolved keep nil coordinates.
func (o *Orchestrator) join(ctx context.Context, records []address.Record, identities []address.Identity) ([]JoinedRow, error) {
	buildings, err := o.store.AllBuildings(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load geocoded table")
	}
	byID := make(map[string]store.GeocodedBuilding, len(buildings))
	for _, b := range buildings {
		byID[b.BuildingID] = b
	}

	rows := make([]JoinedRow, len(records))
	for i, r := range records {
		row := JoinedRow{Record: r, Identity: identities[i]}
		if b, ok := byID[identities[i].BuildingID]; ok {
			lat, lng := b.Lat, b.Lng
			row.Lat = &lat
			row.Lng = &lng
			row.Source = b.Source
		}
		rows[i] = row
	}
	return rows, nil
}
