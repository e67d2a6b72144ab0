package ports

import (
	"context"
	"time"

	"github.com/gm0202/TicketSys/internal/model"
)

// Store is the persistent source of truth for shows, seats and bookings.
// Every inventory change happens inside WithinTx; the plain reads below
// never take locks.
type Store interface {
	// WithinTx runs fn in one transaction.  The transaction commits when
	// fn returns nil and rolls back on error or panic.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetBooking(ctx context.Context, id uint64) (*model.Booking, error)
	ListBookingsByShow(ctx context.Context, showID uint64, status model.BookingStatus) ([]*model.Booking, error)
	ListBookingsByStatus(ctx context.Context, status model.BookingStatus) ([]*model.Booking, error)
	ListBookingsByEmail(ctx context.Context, email string) ([]*model.Booking, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uint64, error)
	GetShow(ctx context.Context, id uint64) (*model.Show, error)
	ListSeats(ctx context.Context, showID uint64) ([]*model.Seat, error)
}

// Tx is the locked view of the store held by one transaction.
type Tx interface {
	// LockShow takes an exclusive lock on the show row.  A missing show
	// returns model.ErrShowNotFoundOrStarted.
	LockShow(ctx context.Context, showID uint64) (*model.Show, error)

	// SeatsForUpdate locks and returns the existing seat rows among numbers.
	SeatsForUpdate(ctx context.Context, showID uint64, numbers []int) ([]*model.Seat, error)
	InsertSeat(ctx context.Context, seat *model.Seat) error
	ClaimSeat(ctx context.Context, seatID, bookingID uint64) error
	ReleaseSeats(ctx context.Context, bookingID uint64) (int64, error)
	CountClaimedSeats(ctx context.Context, bookingID uint64) (int, error)

	// ActiveSeatCount sums NumSeats over the show's confirmed bookings and
	// pending bookings whose deadline is after now, skipping excludeID.
	ActiveSeatCount(ctx context.Context, showID uint64, now time.Time, excludeID uint64) (int, error)
	HasActivePending(ctx context.Context, showID uint64, email string, now time.Time) (bool, error)

	InsertBooking(ctx context.Context, b *model.Booking) error
	// LockBooking takes an exclusive lock on the booking row.  A missing
	// booking returns model.ErrBookingNotFound.
	LockBooking(ctx context.Context, id uint64) (*model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id uint64, status model.BookingStatus, at time.Time) error
}
