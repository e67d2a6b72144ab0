package model

import "time"

// BookingStatus is the life-cycle state of a booking.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusExpired   BookingStatus = "expired"
	BookingStatusFailed    BookingStatus = "failed"
)

// PendingWindow is how long a booking may stay pending before the
// reclaimer expires it.  It is fixed for every booking.
const PendingWindow = 2 * time.Minute

// transitions is the complete booking state graph.  Any pair not listed
// here is rejected.
var transitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired, BookingStatusFailed},
	BookingStatusConfirmed: {BookingStatusCancelled, BookingStatusFailed},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves the status.
func (s BookingStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled,
		BookingStatusExpired, BookingStatusFailed:
		return true
	}
	return false
}

// Booking reserves specific seats of one show for one customer.
//
// Fields:
//  ID               – primary key identifier.
//  ShowID           – show being booked.
//  Status           – life-cycle state (see BookingStatus).
//  NumSeats         – number of seats; always len(SeatNumbers).
//  SeatNumbers      – the claimed seat numbers in request order.
//  CustomerName     – name given by the customer.
//  CustomerEmail    – email given by the customer.
//  TotalAmountCents – show price times NumSeats.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last status change.
//  ExpiresAt        – CreatedAt + PendingWindow; only meaningful while pending.
type Booking struct {
	ID               uint64        `json:"id"`                 // bookings.id
	ShowID           uint64        `json:"show_id"`            // bookings.show_id
	Status           BookingStatus `json:"status"`             // bookings.status
	NumSeats         int           `json:"num_seats"`          // bookings.num_seats
	SeatNumbers      []int         `json:"seat_numbers"`       // bookings.seat_numbers
	CustomerName     string        `json:"customer_name"`      // bookings.customer_name
	CustomerEmail    string        `json:"customer_email"`     // bookings.customer_email
	TotalAmountCents uint64        `json:"total_amount_cents"` // bookings.total_amount_cents
	CreatedAt        time.Time     `json:"created_at"`         // bookings.created_at
	UpdatedAt        time.Time     `json:"updated_at"`         // bookings.updated_at
	ExpiresAt        time.Time     `json:"expires_at"`         // bookings.expires_at
}

// Active reports whether the booking holds inventory at now: confirmed,
// or pending with its deadline still ahead.
func (b *Booking) Active(now time.Time) bool {
	switch b.Status {
	case BookingStatusConfirmed:
		return true
	case BookingStatusPending:
		return b.ExpiresAt.After(now)
	}
	return false
}

// PastDeadline reports whether a pending booking's window has run out.
func (b *Booking) PastDeadline(now time.Time) bool {
	return b.Status == BookingStatusPending && !b.ExpiresAt.After(now)
}

// BookingEventType names a life-cycle event published after commit.
type BookingEventType string

const (
	BookingEventCreated   BookingEventType = "booking.created"
	BookingEventConfirmed BookingEventType = "booking.confirmed"
	BookingEventCancelled BookingEventType = "booking.cancelled"
	BookingEventExpired   BookingEventType = "booking.expired"
	BookingEventFailed    BookingEventType = "booking.failed"
)

// BookingEvent describes a committed booking transition for downstream
// consumers that should not query the primary database.
type BookingEvent struct {
	Type             BookingEventType `json:"type"`
	BookingID        uint64           `json:"booking_id"`
	ShowID           uint64           `json:"show_id"`
	Status           BookingStatus    `json:"status"`
	SeatNumbers      []int            `json:"seat_numbers"`
	CustomerEmail    string           `json:"customer_email"`
	TotalAmountCents uint64           `json:"total_amount_cents"`
	OccurredAt       time.Time        `json:"occurred_at"`
}

// NewBookingEvent builds the event for b's current status.
func NewBookingEvent(t BookingEventType, b *Booking, at time.Time) BookingEvent {
	seats := make([]int, len(b.SeatNumbers))
	copy(seats, b.SeatNumbers)
	return BookingEvent{
		Type:             t,
		BookingID:        b.ID,
		ShowID:           b.ShowID,
		Status:           b.Status,
		SeatNumbers:      seats,
		CustomerEmail:    b.CustomerEmail,
		TotalAmountCents: b.TotalAmountCents,
		OccurredAt:       at.UTC(),
	}
}
