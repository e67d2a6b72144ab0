package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/rs/zerolog"

	"github.com/gm0202/TicketSys/internal/metrics"
	"github.com/gm0202/TicketSys/internal/model"
)

// Retry budget for one transactional unit.  Both values are fixed.
const (
	retryAttempts = 3
	retryDelay    = 100 * time.Millisecond
)

// Retrier runs a transactional unit of work and re-runs it only when it
// failed on transient contention.  Domain errors and any other failure
// are returned unchanged on the first occurrence.
type Retrier struct {
	attempts int
	delay    time.Duration
	log      zerolog.Logger
}

// NewRetrier returns a Retrier with the fixed budget.
func NewRetrier(log zerolog.Logger) *Retrier {
	return &Retrier{attempts: retryAttempts, delay: retryDelay, log: log}
}

// Do runs unit until it succeeds, fails permanently or the budget is
// spent.  Exhaustion returns *model.RetriesExhaustedError wrapping the
// last transient failure.
func (r *Retrier) Do(ctx context.Context, op string, unit func(ctx context.Context) error) error {
	attempt := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.delay), uint64(r.attempts-1)),
		ctx,
	)
	err := backoff.RetryNotify(func() error {
		attempt++
		err := unit(ctx)
		if err == nil {
			return nil
		}
		if !model.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		metrics.RetryAttempts.Inc()
		r.log.Warn().Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("transient contention, retrying")
	})
	if err != nil && model.IsTransient(err) {
		metrics.RetriesExhausted.Inc()
		r.log.Error().Err(err).Str("op", op).Int("attempts", attempt).Msg("retry budget exhausted")
		return &model.RetriesExhaustedError{Attempts: attempt, Last: err}
	}
	return err
}
