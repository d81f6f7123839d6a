package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/complaints/internal/cfpb"
	"stealthcompany.com/complaints/internal/metrics"
	"stealthcompany.com/complaints/internal/state"
	"stealthcompany.com/complaints/internal/store"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Fetcher is the slice of the search client the executor needs.
type Fetcher interface {
	FetchByCompany(ctx context.Context, company string, dateMin, dateMax time.Time, maxRecords int) ([]cfpb.Record, error)
}

// Result summarizes one entity's load. Failures are carried as data so the
// coordinator can keep going; Run never returns an error.
type Result struct {
	Entity    string
	Status    string
	DateRange state.DateRange
	Fetched   int
	Inserted  int
	Ignored   int
	Detail    string
}

// Executor fetches an entity's complaints for a date range and appends them
// to the analytical store.
type Executor struct {
	fetcher Fetcher
	store   store.Store

	// MaxRecords caps the fetch per entity. Zero means no cap.
	MaxRecords int
}

func NewExecutor(fetcher Fetcher, st store.Store) *Executor {
	return &Executor{fetcher: fetcher, store: st}
}

// Run loads one entity for the given range. Re-running the same range is
// harmless: the store ignores complaint ids it has already seen.
func (e *Executor) Run(ctx context.Context, rng state.DateRange, entity string) Result {
	res := Result{Entity: entity, DateRange: rng}

	log.Info().
		Str("entity", entity).
		Str("range", rng.String()).
		Msg("Loading complaints")

	records, err := e.fetcher.FetchByCompany(ctx, entity, rng.Min, rng.Max, e.MaxRecords)
	if err != nil {
		return e.failed(res, fmt.Errorf("fetch failed: %w", err))
	}
	res.Fetched = len(records)

	if err := e.store.EnsureEntity(ctx, entity); err != nil {
		return e.failed(res, err)
	}

	inserted, ignored, err := e.store.InsertComplaints(ctx, entity, records)
	res.Inserted = inserted
	res.Ignored = ignored
	if err != nil {
		return e.failed(res, fmt.Errorf("store write failed: %w", err))
	}

	res.Status = StatusSuccess
	res.Detail = fmt.Sprintf("loaded %d records (%d new, %d already present)", res.Fetched, inserted, ignored)
	metrics.RecordEntityLoad(entity, StatusSuccess, inserted, ignored)

	log.Info().
		Str("entity", entity).
		Int("fetched", res.Fetched).
		Int("inserted", inserted).
		Int("ignored", ignored).
		Msg("Completed loading complaints")
	return res
}

func (e *Executor) failed(res Result, err error) Result {
	res.Status = StatusFailed
	res.Detail = err.Error()
	metrics.RecordEntityLoad(res.Entity, StatusFailed, res.Inserted, res.Ignored)
	log.Error().Err(err).Str("entity", res.Entity).Msg("Entity load failed")
	return res
}
