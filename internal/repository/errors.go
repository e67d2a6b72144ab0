// Package repository implements the booking store on MySQL.  Every
// method that changes inventory takes the caller's *sql.Tx; the caller
// commits or rolls back.  Driver errors caused by competing transactions
// are reported as *model.ContentionError so that callers may retry them.
package repository

import (
	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/gm0202/TicketSys/internal/model"
)

// MySQL server error numbers that mean another transaction got in the way.
const (
	errLockWaitTimeout uint16 = 1205
	errDeadlock        uint16 = 1213
	errDuplicateEntry  uint16 = 1062
)

// classify wraps contention failures in *model.ContentionError and
// returns every other error unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errLockWaitTimeout, errDeadlock, errDuplicateEntry:
			return &model.ContentionError{Err: err}
		}
	}
	return err
}
