package database

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// schema creates the tables the booking core reads and writes.  Seat
// uniqueness per show is the last line of defence against a double claim.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS shows (
		id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name        VARCHAR(255)    NOT NULL,
		start_time  DATETIME(6)     NOT NULL,
		end_time    DATETIME(6)     NOT NULL,
		total_seats INT             NOT NULL,
		price_cents INT UNSIGNED    NOT NULL DEFAULT 0,
		created_at  DATETIME(6)     NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id                 BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		show_id            BIGINT UNSIGNED NOT NULL,
		status             VARCHAR(16)     NOT NULL,
		num_seats          INT             NOT NULL,
		seat_numbers       TEXT            NOT NULL,
		customer_name      VARCHAR(255)    NOT NULL,
		customer_email     VARCHAR(255)    NOT NULL,
		total_amount_cents BIGINT UNSIGNED NOT NULL,
		created_at         DATETIME(6)     NOT NULL,
		updated_at         DATETIME(6)     NOT NULL,
		expires_at         DATETIME(6)     NOT NULL,
		KEY idx_bookings_status_expires (status, expires_at),
		KEY idx_bookings_show_email_status (show_id, customer_email, status),
		KEY idx_bookings_email (customer_email),
		CONSTRAINT fk_bookings_show FOREIGN KEY (show_id) REFERENCES shows (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS seats (
		id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		show_id     BIGINT UNSIGNED NOT NULL,
		seat_number INT             NOT NULL,
		is_booked   TINYINT(1)      NOT NULL DEFAULT 0,
		booking_id  BIGINT UNSIGNED NULL,
		updated_at  DATETIME(6)     NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_seats_show_number (show_id, seat_number),
		KEY idx_seats_booking (booking_id),
		CONSTRAINT fk_seats_show FOREIGN KEY (show_id) REFERENCES shows (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates missing tables.  Existing tables are left as they are.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "ensure schema")
		}
	}
	return nil
}
