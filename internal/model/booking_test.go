package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]BookingStatus]bool{
		{BookingStatusPending, BookingStatusConfirmed}:   true,
		{BookingStatusPending, BookingStatusCancelled}:   true,
		{BookingStatusPending, BookingStatusExpired}:     true,
		{BookingStatusPending, BookingStatusFailed}:      true,
		{BookingStatusConfirmed, BookingStatusCancelled}: true,
		{BookingStatusConfirmed, BookingStatusFailed}:    true,
	}
	all := []BookingStatus{
		BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled,
		BookingStatusExpired, BookingStatusFailed,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]BookingStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestBookingStatus_Terminal(t *testing.T) {
	assert.False(t, BookingStatusPending.Terminal())
	assert.False(t, BookingStatusConfirmed.Terminal())
	assert.True(t, BookingStatusCancelled.Terminal())
	assert.True(t, BookingStatusExpired.Terminal())
	assert.True(t, BookingStatusFailed.Terminal())
	assert.False(t, BookingStatus("bogus").Valid())
}

func TestBooking_Active(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	pending := &Booking{Status: BookingStatusPending, ExpiresAt: now.Add(time.Second)}
	assert.True(t, pending.Active(now))
	assert.False(t, pending.PastDeadline(now))

	lapsed := &Booking{Status: BookingStatusPending, ExpiresAt: now}
	assert.False(t, lapsed.Active(now))
	assert.True(t, lapsed.PastDeadline(now))

	confirmed := &Booking{Status: BookingStatusConfirmed, ExpiresAt: now.Add(-time.Hour)}
	assert.True(t, confirmed.Active(now))
	assert.False(t, confirmed.PastDeadline(now))

	cancelled := &Booking{Status: BookingStatusCancelled}
	assert.False(t, cancelled.Active(now))
}

func TestNewBookingEvent_CopiesSeats(t *testing.T) {
	b := &Booking{ID: 7, ShowID: 3, Status: BookingStatusConfirmed, SeatNumbers: []int{4, 5}}
	ev := NewBookingEvent(BookingEventConfirmed, b, time.Now())

	b.SeatNumbers[0] = 99
	assert.Equal(t, []int{4, 5}, ev.SeatNumbers)
	assert.Equal(t, uint64(7), ev.BookingID)
	assert.Equal(t, BookingStatusConfirmed, ev.Status)
}
