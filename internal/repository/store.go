package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/gm0202/TicketSys/internal/model"
	"github.com/gm0202/TicketSys/internal/service/ports"
)

// Store implements ports.Store on MySQL.
type Store struct {
	db       *sql.DB
	shows    *ShowRepo
	seats    *SeatRepo
	bookings *BookingRepo
}

var _ ports.Store = (*Store)(nil)

// NewStore builds the repositories on db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		shows:    NewShowRepo(db),
		seats:    NewSeatRepo(db),
		bookings: NewBookingRepo(db),
	}
}

// Shows exposes the show repository for seeding.
func (s *Store) Shows() *ShowRepo { return s.shows }

// WithinTx runs fn in a READ COMMITTED transaction.  It commits when fn
// returns nil and rolls back otherwise, including when fn panics.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(classify(err), "begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, &txStore{tx: tx, store: s}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	committed = true
	return nil
}

func (s *Store) GetBooking(ctx context.Context, id uint64) (*model.Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

func (s *Store) ListBookingsByShow(ctx context.Context, showID uint64, status model.BookingStatus) ([]*model.Booking, error) {
	return s.bookings.ListByShowAndStatus(ctx, showID, status)
}

func (s *Store) ListBookingsByStatus(ctx context.Context, status model.BookingStatus) ([]*model.Booking, error) {
	return s.bookings.ListByStatus(ctx, status)
}

func (s *Store) ListBookingsByEmail(ctx context.Context, email string) ([]*model.Booking, error) {
	return s.bookings.ListByEmail(ctx, email)
}

func (s *Store) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	return s.bookings.ListExpiredPending(ctx, now, limit)
}

func (s *Store) GetShow(ctx context.Context, id uint64) (*model.Show, error) {
	return s.shows.GetByID(ctx, id)
}

func (s *Store) ListSeats(ctx context.Context, showID uint64) ([]*model.Seat, error) {
	return s.seats.ListByShow(ctx, showID)
}

// txStore binds the repositories to one open transaction.
type txStore struct {
	tx    *sql.Tx
	store *Store
}

func (t *txStore) LockShow(ctx context.Context, showID uint64) (*model.Show, error) {
	return t.store.shows.LockTx(ctx, t.tx, showID)
}

func (t *txStore) SeatsForUpdate(ctx context.Context, showID uint64, numbers []int) ([]*model.Seat, error) {
	return t.store.seats.ForUpdateTx(ctx, t.tx, showID, numbers)
}

func (t *txStore) InsertSeat(ctx context.Context, seat *model.Seat) error {
	return t.store.seats.InsertTx(ctx, t.tx, seat)
}

func (t *txStore) ClaimSeat(ctx context.Context, seatID, bookingID uint64) error {
	return t.store.seats.ClaimTx(ctx, t.tx, seatID, bookingID)
}

func (t *txStore) ReleaseSeats(ctx context.Context, bookingID uint64) (int64, error) {
	return t.store.seats.ReleaseByBookingTx(ctx, t.tx, bookingID)
}

func (t *txStore) CountClaimedSeats(ctx context.Context, bookingID uint64) (int, error) {
	return t.store.seats.CountClaimedTx(ctx, t.tx, bookingID)
}

func (t *txStore) ActiveSeatCount(ctx context.Context, showID uint64, now time.Time, excludeID uint64) (int, error) {
	return t.store.bookings.ActiveSeatCountTx(ctx, t.tx, showID, now, excludeID)
}

func (t *txStore) HasActivePending(ctx context.Context, showID uint64, email string, now time.Time) (bool, error) {
	return t.store.bookings.HasActivePendingTx(ctx, t.tx, showID, email, now)
}

func (t *txStore) InsertBooking(ctx context.Context, b *model.Booking) error {
	return t.store.bookings.InsertTx(ctx, t.tx, b)
}

func (t *txStore) LockBooking(ctx context.Context, id uint64) (*model.Booking, error) {
	return t.store.bookings.LockTx(ctx, t.tx, id)
}

func (t *txStore) UpdateBookingStatus(ctx context.Context, id uint64, status model.BookingStatus, at time.Time) error {
	return t.store.bookings.UpdateStatusTx(ctx, t.tx, id, status, at)
}
