package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/gm0202/TicketSys/internal/model"
)

const showColumns = `id, name, start_time, end_time, total_seats, price_cents`

// ShowRepo reads and locks rows of the shows table.  Shows are written
// by the catalog; Create exists for seeding and tests.
type ShowRepo struct {
	db *sql.DB
}

// NewShowRepo returns a ShowRepo bound to db.
func NewShowRepo(db *sql.DB) *ShowRepo { return &ShowRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShow(row rowScanner) (*model.Show, error) {
	var s model.Show
	if err := row.Scan(&s.ID, &s.Name, &s.StartTime, &s.EndTime, &s.TotalSeats, &s.PriceCents); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrShowNotFoundOrStarted
		}
		return nil, err
	}
	return &s, nil
}

// Create inserts a show and sets its generated ID.
func (r *ShowRepo) Create(ctx context.Context, s *model.Show) error {
	const q = `INSERT INTO shows (name, start_time, end_time, total_seats, price_cents) VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, s.Name, s.StartTime.UTC(), s.EndTime.UTC(), s.TotalSeats, s.PriceCents)
	if err != nil {
		return errors.Wrap(err, "insert show")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// GetByID returns the show without locking it.  A missing show is
// model.ErrShowNotFoundOrStarted.
func (r *ShowRepo) GetByID(ctx context.Context, id uint64) (*model.Show, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+showColumns+` FROM shows WHERE id = ?`, id)
	return scanShow(row)
}

// LockTx reads the show with an exclusive row lock held until tx ends.
// Every inventory change on the show serializes behind this lock.
func (r *ShowRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Show, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+showColumns+` FROM shows WHERE id = ? FOR UPDATE`, id)
	s, err := scanShow(row)
	if err != nil {
		return nil, classify(err)
	}
	return s, nil
}
