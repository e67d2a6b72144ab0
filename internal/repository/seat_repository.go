package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/gm0202/TicketSys/internal/model"
)

const seatColumns = `id, show_id, seat_number, is_booked, booking_id, updated_at`

// SeatRepo manages the seat index.  Rows are unique per
// (show_id, seat_number) and are created the first time a seat is claimed.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo returns a SeatRepo bound to db.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

func scanSeats(rows *sql.Rows) ([]*model.Seat, error) {
	defer rows.Close()
	var out []*model.Seat
	for rows.Next() {
		var (
			s       model.Seat
			booking sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.ShowID, &s.Number, &s.IsBooked, &booking, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if booking.Valid {
			id := uint64(booking.Int64)
			s.BookingID = &id
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// ListByShow returns the existing seat rows of a show ordered by number.
func (r *SeatRepo) ListByShow(ctx context.Context, showID uint64) ([]*model.Seat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+seatColumns+` FROM seats WHERE show_id = ? ORDER BY seat_number`, showID)
	if err != nil {
		return nil, errors.Wrap(err, "list seats")
	}
	return scanSeats(rows)
}

// ForUpdateTx locks and returns the existing rows among numbers.  Numbers
// without a row are not returned.
func (r *SeatRepo) ForUpdateTx(ctx context.Context, tx *sql.Tx, showID uint64, numbers []int) ([]*model.Seat, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(numbers)+1)
	args = append(args, showID)
	for _, n := range numbers {
		args = append(args, n)
	}
	q := `SELECT ` + seatColumns + ` FROM seats WHERE show_id = ? AND seat_number IN (` +
		placeholders(len(numbers)) + `) ORDER BY seat_number FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	seats, err := scanSeats(rows)
	return seats, classify(err)
}

// InsertTx creates a seat row and sets its ID.  Losing a race for the
// same (show_id, seat_number) surfaces as *model.ContentionError.
func (r *SeatRepo) InsertTx(ctx context.Context, tx *sql.Tx, s *model.Seat) error {
	const q = `INSERT INTO seats (show_id, seat_number, is_booked, booking_id) VALUES (?, ?, ?, ?)`
	var booking any
	if s.BookingID != nil {
		booking = *s.BookingID
	}
	res, err := tx.ExecContext(ctx, q, s.ShowID, s.Number, s.IsBooked, booking)
	if err != nil {
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// ClaimTx marks an existing seat row as booked by bookingID.
func (r *SeatRepo) ClaimTx(ctx context.Context, tx *sql.Tx, seatID, bookingID uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE seats SET is_booked = 1, booking_id = ? WHERE id = ?`, bookingID, seatID)
	return classify(err)
}

// ReleaseByBookingTx frees every seat held by bookingID and returns how
// many rows changed.
func (r *SeatRepo) ReleaseByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE seats SET is_booked = 0, booking_id = NULL WHERE booking_id = ?`, bookingID)
	if err != nil {
		return 0, classify(err)
	}
	return res.RowsAffected()
}

// CountClaimedTx counts the booked seats that reference bookingID.
func (r *SeatRepo) CountClaimedTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seats WHERE booking_id = ? AND is_booked = 1`, bookingID).Scan(&n)
	return n, classify(err)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
