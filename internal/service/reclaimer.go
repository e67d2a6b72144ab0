package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gm0202/TicketSys/internal/metrics"
	"github.com/gm0202/TicketSys/internal/model"
	"github.com/gm0202/TicketSys/internal/service/ports"
)

const (
	defaultSweepInterval = 30 * time.Second
	sweepBatch           = 100
)

// Reclaimer returns the seats of pending bookings whose window ran out.
//
// Schedule arms an in-process timer per booking; timers are lost on
// restart, so Run also sweeps the store on a fixed interval for lapsed
// pending bookings.  Expire is safe to call any number of times for the
// same booking from either path.
type Reclaimer struct {
	store    ports.Store
	retry    *Retrier
	machine  *lifecycle
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger

	// onExpired runs after an expiry commits.
	onExpired func(ctx context.Context, b *model.Booking)

	mu      sync.Mutex
	timers  map[uint64]*time.Timer
	stopped bool
}

// Schedule arms a one-shot expiry for booking id at expiresAt.
func (r *Reclaimer) Schedule(id uint64, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if t, ok := r.timers[id]; ok {
		t.Stop()
	}
	delay := expiresAt.Sub(r.now())
	if delay < 0 {
		delay = 0
	}
	r.timers[id] = time.AfterFunc(delay, func() { r.fire(id) })
}

// Cancel disarms the timer for id, if any.
func (r *Reclaimer) Cancel(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
}

func (r *Reclaimer) fire(id uint64) {
	r.mu.Lock()
	delete(r.timers, id)
	r.mu.Unlock()

	if _, err := r.Expire(context.Background(), id); err != nil {
		r.log.Error().Err(err).Uint64("booking_id", id).Msg("scheduled expiry failed")
	}
}

// Expire moves booking id to expired and frees its seats if it is still
// pending past its deadline.  It reports whether this call expired it.
func (r *Reclaimer) Expire(ctx context.Context, id uint64) (bool, error) {
	var (
		b       *model.Booking
		expired bool
	)
	err := r.retry.Do(ctx, "expire booking", func(ctx context.Context) error {
		return r.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
			var err error
			b, expired, err = r.machine.expire(ctx, tx, id)
			return err
		})
	})
	if err != nil {
		return false, err
	}
	if !expired {
		return false, nil
	}
	r.log.Info().Uint64("booking_id", id).Uint64("show_id", b.ShowID).Ints("seats", b.SeatNumbers).Msg("booking expired")
	if r.onExpired != nil {
		r.onExpired(ctx, b)
	}
	return true, nil
}

// Sweep expires one batch of lapsed pending bookings and returns how
// many it expired.
func (r *Reclaimer) Sweep(ctx context.Context) (int, error) {
	ids, err := r.store.ListExpiredPending(ctx, r.now(), sweepBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		ok, err := r.Expire(ctx, id)
		if err != nil {
			r.log.Error().Err(err).Uint64("booking_id", id).Msg("sweep expiry failed")
			continue
		}
		if ok {
			n++
		}
	}
	metrics.ReclaimSweeps.Observe(float64(n))
	return n, nil
}

// Run sweeps until ctx is done, then disarms every pending timer.
func (r *Reclaimer) Run(ctx context.Context) error {
	r.log.Info().Dur("interval", r.interval).Msg("reclaimer started")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer r.Stop()

	r.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reclaimer stopped")
			return nil
		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

func (r *Reclaimer) sweepOnce(ctx context.Context) {
	n, err := r.Sweep(ctx)
	if err != nil && ctx.Err() == nil {
		r.log.Error().Err(err).Msg("sweep failed")
		return
	}
	if n > 0 {
		r.log.Info().Int("expired", n).Msg("sweep reclaimed bookings")
	}
}

// Stop disarms every timer and ignores later Schedule calls.
func (r *Reclaimer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}
