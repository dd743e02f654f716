package worker

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/service"
)

// SweepBatchSize caps how many overdue attempts one sweep finalizes.
const SweepBatchSize = 100

// OverdueLister finds in-progress attempts past their deadline.
type OverdueLister interface {
	ListOverdue(ctx context.Context, grace time.Duration, limit int) ([]model.Attempt, error)
}

// Finalizer force-submits a single attempt.
type Finalizer interface {
	ForceSubmit(ctx context.Context, attempt *model.Attempt) (*model.SubmissionResult, error)
}

// ExpirySweeper auto-submits attempts whose time ran out without the
// student submitting.
type ExpirySweeper struct {
	attempts OverdueLister
	scoring  Finalizer
	schedule string
	grace    time.Duration
	log      zerolog.Logger
}

// NewExpirySweeper creates a new ExpirySweeper.
func NewExpirySweeper(attempts OverdueLister, scoring Finalizer, schedule string, grace time.Duration, log zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		attempts: attempts,
		scoring:  scoring,
		schedule: schedule,
		grace:    grace,
		log:      log.With().Str("component", "expiry_sweeper").Logger(),
	}
}

// Start runs the sweep on its cron schedule until ctx is cancelled.
// Call in a goroutine.
func (w *ExpirySweeper) Start(ctx context.Context) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))

	_, err := c.AddFunc(w.schedule, func() {
		n, err := w.Sweep(ctx)
		if err != nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Sweep failed")
			return
		}
		if n > 0 {
			w.log.Info().Int("count", n).Msg("Auto-submitted overdue attempts")
		}
	})
	if err != nil {
		w.log.Error().Err(err).Str("schedule", w.schedule).Msg("Invalid sweep schedule, sweeper disabled")
		return
	}

	c.Start()
	w.log.Info().Str("schedule", w.schedule).Msg("ExpirySweeper started")

	<-ctx.Done()
	<-c.Stop().Done()
	w.log.Info().Msg("ExpirySweeper stopped")
}

// Sweep force-submits every overdue attempt and returns how many it closed.
// Attempts finalized concurrently are skipped.
func (w *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	closed := 0
	for {
		batch, err := w.attempts.ListOverdue(ctx, w.grace, SweepBatchSize)
		if err != nil {
			return closed, err
		}

		progressed := false
		for i := range batch {
			a := &batch[i]
			if _, err := w.scoring.ForceSubmit(ctx, a); err != nil {
				if errors.Is(err, service.ErrAttemptNotActive) || errors.Is(err, service.ErrNotFound) {
					progressed = true
					continue
				}
				w.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Force submit failed")
				continue
			}
			closed++
			progressed = true
		}

		// A short batch drains the backlog; a batch with nothing closed
		// would only return the same rows again.
		if len(batch) < SweepBatchSize || !progressed {
			return closed, nil
		}
	}
}
