package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/gm0202/TicketSys/internal/model"
	"github.com/gm0202/TicketSys/internal/service/ports"
)

// errLapsed is returned from a confirm transaction when the booking's
// window has run out; the caller expires it outside that transaction.
var errLapsed = errors.New("pending booking past its deadline")

// lifecycle applies booking transitions inside a caller-owned transaction.
// Every method assumes it runs under the Retrier and holds no state
// between calls.
type lifecycle struct {
	guard *InventoryGuard
	seats *SeatClaimer
	now   func() time.Time
}

// created is the outcome of a create transaction.  Reclaimed lists the
// lapsed bookings expired inline to free requested seats.
type created struct {
	Booking   *model.Booking
	Reclaimed []*model.Booking
}

func (l *lifecycle) create(ctx context.Context, tx ports.Tx, in CreateBookingInput) (*created, error) {
	show, err := l.guard.Lock(ctx, tx, in.ShowID, true)
	if err != nil {
		return nil, err
	}
	for _, n := range in.SeatNumbers {
		if n > show.TotalSeats {
			return nil, &model.ValidationError{
				Field:  "seat_numbers",
				Reason: fmt.Sprintf("seat %d is outside 1..%d", n, show.TotalSeats),
			}
		}
	}

	now := l.now()
	dup, err := tx.HasActivePending(ctx, show.ID, in.CustomerEmail, now)
	if err != nil {
		return nil, errors.Wrap(err, "check pending bookings")
	}
	if dup {
		return nil, model.ErrDuplicatePendingBooking
	}

	used, err := tx.ActiveSeatCount(ctx, show.ID, now, 0)
	if err != nil {
		return nil, errors.Wrap(err, "count active seats")
	}
	if avail := show.TotalSeats - used; avail < in.NumSeats {
		if avail < 0 {
			avail = 0
		}
		return nil, &model.NotEnoughSeatsError{Available: avail}
	}

	idx, err := l.seats.Load(ctx, tx, show.ID, in.SeatNumbers)
	if err != nil {
		return nil, err
	}
	reclaimed, err := l.reclaimLapsedHolders(ctx, tx, idx, now)
	if err != nil {
		return nil, err
	}
	if err := l.seats.Conflicts(idx, show.ID, in.SeatNumbers); err != nil {
		return nil, err
	}

	seats := make([]int, len(in.SeatNumbers))
	copy(seats, in.SeatNumbers)
	b := &model.Booking{
		ShowID:           show.ID,
		Status:           model.BookingStatusPending,
		NumSeats:         in.NumSeats,
		SeatNumbers:      seats,
		CustomerName:     in.CustomerName,
		CustomerEmail:    in.CustomerEmail,
		TotalAmountCents: uint64(show.PriceCents) * uint64(in.NumSeats),
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        now.Add(model.PendingWindow),
	}
	if err := tx.InsertBooking(ctx, b); err != nil {
		return nil, errors.Wrap(err, "insert booking")
	}
	if err := l.seats.Claim(ctx, tx, idx, show.ID, b.SeatNumbers, b.ID); err != nil {
		return nil, err
	}
	return &created{Booking: b, Reclaimed: reclaimed}, nil
}

// reclaimLapsedHolders expires every pending booking past its deadline
// that still holds one of the loaded seats, and marks those seats free
// in idx.
func (l *lifecycle) reclaimLapsedHolders(ctx context.Context, tx ports.Tx, idx seatIndex, now time.Time) ([]*model.Booking, error) {
	var out []*model.Booking
	seen := map[uint64]bool{}
	for _, seat := range idx {
		if !seat.IsBooked || seat.BookingID == nil || seen[*seat.BookingID] {
			continue
		}
		ownerID := *seat.BookingID
		seen[ownerID] = true
		owner, err := tx.LockBooking(ctx, ownerID)
		if errors.Is(err, model.ErrBookingNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !owner.PastDeadline(now) {
			continue
		}
		if err := l.release(ctx, tx, owner, model.BookingStatusExpired); err != nil {
			return nil, err
		}
		out = append(out, owner)
	}
	for _, b := range out {
		for _, seat := range idx {
			if seat.BookingID != nil && *seat.BookingID == b.ID {
				seat.IsBooked = false
				seat.BookingID = nil
			}
		}
	}
	return out, nil
}

// confirm approves a pending booking.  The show may already have started:
// the seats were claimed while it was upcoming.
func (l *lifecycle) confirm(ctx context.Context, tx ports.Tx, showID, id uint64) (*model.Booking, error) {
	show, err := l.guard.Lock(ctx, tx, showID, false)
	if err != nil {
		return nil, err
	}
	b, err := tx.LockBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BookingStatusPending {
		return nil, &model.TransitionError{From: b.Status, To: model.BookingStatusConfirmed}
	}
	now := l.now()
	if b.PastDeadline(now) {
		return nil, errLapsed
	}

	used, err := tx.ActiveSeatCount(ctx, show.ID, now, b.ID)
	if err != nil {
		return nil, errors.Wrap(err, "count active seats")
	}
	avail := show.TotalSeats - used
	if avail < 0 {
		avail = 0
	}
	claimed, err := tx.CountClaimedSeats(ctx, b.ID)
	if err != nil {
		return nil, errors.Wrap(err, "count claimed seats")
	}
	if claimed != b.NumSeats || avail < b.NumSeats {
		return nil, &model.NotEnoughSeatsError{Available: avail}
	}

	if err := l.move(ctx, tx, b, model.BookingStatusConfirmed, now); err != nil {
		return nil, err
	}
	return b, nil
}

func (l *lifecycle) cancel(ctx context.Context, tx ports.Tx, showID, id uint64) (*model.Booking, error) {
	if _, err := l.guard.Lock(ctx, tx, showID, false); err != nil {
		return nil, err
	}
	b, err := tx.LockBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.release(ctx, tx, b, model.BookingStatusCancelled); err != nil {
		return nil, err
	}
	return b, nil
}

// expire moves a lapsed pending booking to expired.  It reports false,
// with no error, when the booking is missing, already resolved or still
// inside its window.
func (l *lifecycle) expire(ctx context.Context, tx ports.Tx, id uint64) (*model.Booking, bool, error) {
	b, err := tx.LockBooking(ctx, id)
	if errors.Is(err, model.ErrBookingNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !b.PastDeadline(l.now()) {
		return b, false, nil
	}
	if err := l.release(ctx, tx, b, model.BookingStatusExpired); err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (l *lifecycle) fail(ctx context.Context, tx ports.Tx, id uint64) (*model.Booking, error) {
	b, err := tx.LockBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.release(ctx, tx, b, model.BookingStatusFailed); err != nil {
		return nil, err
	}
	return b, nil
}

// release frees b's seats and moves it to a status that gives them up.
func (l *lifecycle) release(ctx context.Context, tx ports.Tx, b *model.Booking, to model.BookingStatus) error {
	if !model.CanTransition(b.Status, to) {
		return &model.TransitionError{From: b.Status, To: to}
	}
	if _, err := l.seats.Release(ctx, tx, b.ID); err != nil {
		return err
	}
	return l.move(ctx, tx, b, to, l.now())
}

func (l *lifecycle) move(ctx context.Context, tx ports.Tx, b *model.Booking, to model.BookingStatus, at time.Time) error {
	if !model.CanTransition(b.Status, to) {
		return &model.TransitionError{From: b.Status, To: to}
	}
	if err := tx.UpdateBookingStatus(ctx, b.ID, to, at); err != nil {
		return errors.Wrapf(err, "set booking %d %s", b.ID, to)
	}
	b.Status = to
	b.UpdatedAt = at
	return nil
}
