package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Booking failures form a closed set.  Callers match them with errors.Is
// against the sentinels below; the payload types add detail and unwrap to
// their sentinel.  Only ErrTransientContention is ever retried.
var (
	ErrShowNotFoundOrStarted   = errors.New("show not found or has already started")
	ErrNotEnoughSeats          = errors.New("not enough seats available")
	ErrSeatsAlreadyBooked      = errors.New("seats already booked")
	ErrDuplicatePendingBooking = errors.New("customer already has a pending booking for this show")
	ErrInvalidStateTransition  = errors.New("invalid booking state transition")
	ErrBookingNotFound         = errors.New("booking not found")
	ErrValidation              = errors.New("validation error")
	ErrTransientContention     = errors.New("transient contention")
	ErrOperationFailed         = errors.New("operation failed")
)

// NotEnoughSeatsError carries the number of seats still available.
type NotEnoughSeatsError struct {
	Available int
}

func (e *NotEnoughSeatsError) Error() string {
	return fmt.Sprintf("not enough seats available: only %d left", e.Available)
}

func (e *NotEnoughSeatsError) Unwrap() error { return ErrNotEnoughSeats }

// SeatsAlreadyBookedError lists the requested seats held by another booking.
type SeatsAlreadyBookedError struct {
	Seats []int
}

func (e *SeatsAlreadyBookedError) Error() string {
	parts := make([]string, len(e.Seats))
	for i, n := range e.Seats {
		parts[i] = strconv.Itoa(n)
	}
	return "seats already booked: " + strings.Join(parts, ",")
}

func (e *SeatsAlreadyBookedError) Unwrap() error { return ErrSeatsAlreadyBooked }

// ValidationError rejects a request before any inventory is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransitionError records a move the state graph does not allow.
type TransitionError struct {
	From BookingStatus
	To   BookingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move booking from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// ContentionError marks a persistence failure caused by competing
// transactions: lock wait timeout, deadlock or a unique key race.
type ContentionError struct {
	Err error
}

func (e *ContentionError) Error() string {
	return "transient contention: " + e.Err.Error()
}

func (e *ContentionError) Is(target error) bool { return target == ErrTransientContention }

func (e *ContentionError) Unwrap() error { return e.Err }

// RetriesExhaustedError is returned once the retry budget is spent.  It
// matches ErrOperationFailed and unwraps to the last transient failure.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Is(target error) bool { return target == ErrOperationFailed }

func (e *RetriesExhaustedError) Unwrap() error { return e.Last }

// IsDomainError reports whether err belongs to the final, non-retryable
// part of the taxonomy.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrShowNotFoundOrStarted,
		ErrNotEnoughSeats,
		ErrSeatsAlreadyBooked,
		ErrDuplicatePendingBooking,
		ErrInvalidStateTransition,
		ErrBookingNotFound,
		ErrValidation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err may succeed when the unit of work is retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientContention)
}
