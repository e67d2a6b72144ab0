package service

import (
	"context"

	"github.com/pkg/errors"

	"github.com/gm0202/TicketSys/internal/model"
	"github.com/gm0202/TicketSys/internal/service/ports"
)

// seatIndex holds the locked seat rows of one claim, addressed by key.
// Requested numbers without a row are simply absent.
type seatIndex map[model.SeatKey]*model.Seat

// SeatClaimer validates and claims specific seats for a booking.  It must
// run inside a transaction that already holds the show lock.
type SeatClaimer struct{}

// Load locks the existing rows for the requested seats and indexes them.
func (c *SeatClaimer) Load(ctx context.Context, tx ports.Tx, showID uint64, numbers []int) (seatIndex, error) {
	rows, err := tx.SeatsForUpdate(ctx, showID, numbers)
	if err != nil {
		return nil, errors.Wrap(err, "load seats")
	}
	idx := make(seatIndex, len(rows))
	for _, s := range rows {
		idx[s.Key()] = s
	}
	return idx, nil
}

// Conflicts returns a *model.SeatsAlreadyBookedError naming every
// requested seat that is booked, in request order, or nil.
func (c *SeatClaimer) Conflicts(idx seatIndex, showID uint64, numbers []int) error {
	var taken []int
	for _, n := range numbers {
		if s, ok := idx[model.SeatKey{ShowID: showID, Number: n}]; ok && s.IsBooked {
			taken = append(taken, n)
		}
	}
	if len(taken) > 0 {
		return &model.SeatsAlreadyBookedError{Seats: taken}
	}
	return nil
}

// Claim marks every requested seat as booked by bookingID, creating rows
// that do not exist yet.  Nothing is written when any seat conflicts.
func (c *SeatClaimer) Claim(ctx context.Context, tx ports.Tx, idx seatIndex, showID uint64, numbers []int, bookingID uint64) error {
	if err := c.Conflicts(idx, showID, numbers); err != nil {
		return err
	}
	for _, n := range numbers {
		key := model.SeatKey{ShowID: showID, Number: n}
		if s, ok := idx[key]; ok {
			if err := tx.ClaimSeat(ctx, s.ID, bookingID); err != nil {
				return errors.Wrapf(err, "claim seat %d", n)
			}
			s.IsBooked = true
			s.BookingID = &bookingID
			continue
		}
		id := bookingID
		seat := &model.Seat{ShowID: showID, Number: n, IsBooked: true, BookingID: &id}
		if err := tx.InsertSeat(ctx, seat); err != nil {
			return errors.Wrapf(err, "insert seat %d", n)
		}
		idx[key] = seat
	}
	return nil
}

// ClaimSeats is Load followed by Claim.
func (c *SeatClaimer) ClaimSeats(ctx context.Context, tx ports.Tx, showID uint64, numbers []int, bookingID uint64) error {
	idx, err := c.Load(ctx, tx, showID, numbers)
	if err != nil {
		return err
	}
	return c.Claim(ctx, tx, idx, showID, numbers, bookingID)
}

// Release frees every seat that references bookingID.
func (c *SeatClaimer) Release(ctx context.Context, tx ports.Tx, bookingID uint64) (int64, error) {
	n, err := tx.ReleaseSeats(ctx, bookingID)
	if err != nil {
		return 0, errors.Wrap(err, "release seats")
	}
	return n, nil
}
