package repository

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/gm0202/TicketSys/internal/model"
)

const bookingColumns = `id, show_id, status, num_seats, seat_numbers, customer_name, customer_email,
	total_amount_cents, created_at, updated_at, expires_at`

// BookingRepo manages the bookings table.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to db.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// encodeSeats stores seat numbers as "1,2,3" in request order.
func encodeSeats(seats []int) string {
	parts := make([]string, len(seats))
	for i, n := range seats {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func decodeSeats(s string) ([]int, error) {
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Wrapf(err, "decode seat_numbers %q", s)
		}
		out[i] = n
	}
	return out, nil
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b     model.Booking
		seats string
	)
	err := row.Scan(&b.ID, &b.ShowID, &b.Status, &b.NumSeats, &seats, &b.CustomerName, &b.CustomerEmail,
		&b.TotalAmountCents, &b.CreatedAt, &b.UpdatedAt, &b.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrBookingNotFound
		}
		return nil, err
	}
	if b.SeatNumbers, err = decodeSeats(seats); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]*model.Booking, error) {
	defer rows.Close()
	var out []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BookingRepo) list(ctx context.Context, where string, args ...any) ([]*model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list bookings")
	}
	return scanBookings(rows)
}

// GetByID returns the committed booking.  A missing row is
// model.ErrBookingNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	return scanBooking(row)
}

// ListByShowAndStatus returns a show's bookings in one status, newest first.
func (r *BookingRepo) ListByShowAndStatus(ctx context.Context, showID uint64, status model.BookingStatus) ([]*model.Booking, error) {
	return r.list(ctx, `show_id = ? AND status = ?`, showID, status)
}

// ListByStatus returns every booking in status, newest first.
func (r *BookingRepo) ListByStatus(ctx context.Context, status model.BookingStatus) ([]*model.Booking, error) {
	return r.list(ctx, `status = ?`, status)
}

// ListByEmail returns every booking made with email, newest first.
func (r *BookingRepo) ListByEmail(ctx context.Context, email string) ([]*model.Booking, error) {
	return r.list(ctx, `customer_email = ?`, email)
}

// ListExpiredPending returns up to limit ids of pending bookings whose
// deadline is at or before now, oldest deadline first.
func (r *BookingRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM bookings WHERE status = ? AND expires_at <= ? ORDER BY expires_at, id LIMIT ?`,
		model.BookingStatusPending, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "list expired pending")
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertTx writes a new booking and sets its generated ID.
func (r *BookingRepo) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `INSERT INTO bookings (show_id, status, num_seats, seat_numbers, customer_name, customer_email,
		total_amount_cents, created_at, updated_at, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, b.ShowID, b.Status, b.NumSeats, encodeSeats(b.SeatNumbers),
		b.CustomerName, b.CustomerEmail, b.TotalAmountCents,
		b.CreatedAt.UTC(), b.UpdatedAt.UTC(), b.ExpiresAt.UTC())
	if err != nil {
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// LockTx reads the booking with an exclusive row lock held until tx ends.
func (r *BookingRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Booking, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ? FOR UPDATE`, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, classify(err)
	}
	return b, nil
}

// UpdateStatusTx sets the booking's status and updated_at.
func (r *BookingRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.BookingStatus, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`, status, at.UTC(), id)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrBookingNotFound
	}
	return nil
}

// ActiveSeatCountTx sums the seats of the show's confirmed bookings and
// of its pending bookings still inside their window, skipping excludeID.
func (r *BookingRepo) ActiveSeatCountTx(ctx context.Context, tx *sql.Tx, showID uint64, now time.Time, excludeID uint64) (int, error) {
	const q = `SELECT COALESCE(SUM(num_seats), 0) FROM bookings
		WHERE show_id = ? AND id <> ? AND (status = ? OR (status = ? AND expires_at > ?))`
	var n int
	err := tx.QueryRowContext(ctx, q, showID, excludeID,
		model.BookingStatusConfirmed, model.BookingStatusPending, now.UTC()).Scan(&n)
	return n, classify(err)
}

// HasActivePendingTx reports whether email already holds a pending
// booking for the show that has not lapsed.
func (r *BookingRepo) HasActivePendingTx(ctx context.Context, tx *sql.Tx, showID uint64, email string, now time.Time) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM bookings
		WHERE show_id = ? AND customer_email = ? AND status = ? AND expires_at > ?)`
	var found bool
	err := tx.QueryRowContext(ctx, q, showID, email, model.BookingStatusPending, now.UTC()).Scan(&found)
	return found, classify(err)
}
