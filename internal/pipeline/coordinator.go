package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/complaints/internal/loader"
	"stealthcompany.com/complaints/internal/state"
	"stealthcompany.com/complaints/internal/transform"
)

const (
	StatusSuccess        = "success"
	StatusPartialFailure = "partial_failure"
	StatusFailed         = "failed"
	StatusSkipped        = "skipped"
)

// StateTracker is the slice of the state tracker the coordinator drives.
type StateTracker interface {
	NextRange(start, today time.Time) (state.DateRange, error)
	Advance(d time.Time) error
}

// LoadExecutor runs one entity load, reporting the outcome as data.
type LoadExecutor interface {
	Run(ctx context.Context, rng state.DateRange, entity string) loader.Result
}

// Summary aggregates one pipeline run.
type Summary struct {
	Status        string
	DateRange     state.DateRange
	TotalEntities int
	Successful    int
	Failed        int
	Results       []loader.Result
	Transform     *transform.Result
	Detail        string
}

// Ok reports whether the run should exit zero.
func (s Summary) Ok() bool {
	return s.Status == StatusSuccess || s.Status == StatusSkipped
}

// Coordinator drives one incremental run: compute the date range once, load
// every configured entity sequentially, advance state only when all of them
// succeeded, then hand off to the downstream transforms. A failing entity
// never halts the others; it only blocks the state advance so the next run
// retries the identical range for every entity.
type Coordinator struct {
	Entities  []string
	StartDate time.Time
	Tracker   StateTracker
	Executor  LoadExecutor

	// Transform may be nil when transforms are disabled.
	Transform transform.Invoker

	// Now supplies the processing date; defaults to time.Now. It is read
	// exactly once per run so a run spanning midnight keeps one date.
	Now func() time.Time
}

func (c *Coordinator) Run(ctx context.Context) Summary {
	if len(c.Entities) == 0 {
		return Summary{Status: StatusFailed, Detail: "no entities configured"}
	}

	now := c.Now
	if now == nil {
		now = time.Now
	}
	today := now().UTC()

	rng, err := c.Tracker.NextRange(c.StartDate, today)
	if err != nil {
		return Summary{
			Status: StatusFailed,
			Detail: fmt.Sprintf("failed to compute date range: %v", err),
		}
	}
	if rng.Empty() {
		log.Info().Msg("Already up to date, nothing to load")
		return Summary{Status: StatusSkipped, DateRange: rng, Detail: "already up to date"}
	}

	log.Info().
		Int("entities", len(c.Entities)).
		Str("range", rng.String()).
		Msg("Starting incremental load")

	summary := Summary{DateRange: rng, TotalEntities: len(c.Entities)}
	for _, entity := range c.Entities {
		if err := ctx.Err(); err != nil {
			summary.Results = append(summary.Results, loader.Result{
				Entity:    entity,
				Status:    loader.StatusFailed,
				DateRange: rng,
				Detail:    fmt.Sprintf("run cancelled: %v", err),
			})
			continue
		}
		summary.Results = append(summary.Results, c.Executor.Run(ctx, rng, entity))
	}

	for _, res := range summary.Results {
		if res.Status == loader.StatusSuccess {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}

	switch {
	case summary.Failed == 0:
		if err := c.Tracker.Advance(rng.Max); err != nil {
			// The loads themselves are idempotent, so the next run simply
			// reloads this range.
			log.Error().Err(err).Msg("Failed to advance state, next run will reload this range")
			summary.Status = StatusFailed
			summary.Detail = fmt.Sprintf("all entities loaded but state advance failed: %v", err)
		} else {
			summary.Status = StatusSuccess
		}
	case summary.Successful > 0:
		summary.Status = StatusPartialFailure
		log.Warn().
			Int("successful", summary.Successful).
			Int("failed", summary.Failed).
			Msg("Not all entities loaded, state not advanced")
	default:
		summary.Status = StatusFailed
		log.Error().Int("failed", summary.Failed).Msg("Every entity load failed")
	}

	if summary.Successful > 0 && c.Transform != nil {
		res := c.Transform.Run(ctx)
		summary.Transform = &res
		if res.Status == transform.StatusFailed {
			summary.Status = StatusFailed
			if summary.Detail == "" {
				summary.Detail = "transform step failed: " + res.Detail
			}
		}
	} else if summary.Successful == 0 {
		log.Warn().Msg("No entity loaded successfully, skipping transforms")
	}

	log.Info().
		Str("status", summary.Status).
		Int("successful", summary.Successful).
		Int("failed", summary.Failed).
		Int("total", summary.TotalEntities).
		Msg("Run completed")
	return summary
}
