package model

import "time"

// Show is a sellable event instance with a fixed seat capacity.  Shows
// are owned by the catalog; the booking core only reads them and locks
// their row while it changes the show's inventory.
//
// Fields:
//  ID         – primary key identifier.
//  Name       – display name of the show, trip or appointment slot.
//  StartTime  – when the show begins; bookings close at this instant.
//  EndTime    – when the show ends.
//  TotalSeats – capacity; seat numbers run from 1 to TotalSeats.
//  PriceCents – price of a single seat in cents.
type Show struct {
	ID         uint64    `json:"id"`          // shows.id
	Name       string    `json:"name"`        // shows.name
	StartTime  time.Time `json:"start_time"`  // shows.start_time
	EndTime    time.Time `json:"end_time"`    // shows.end_time
	TotalSeats int       `json:"total_seats"` // shows.total_seats
	PriceCents uint32    `json:"price_cents"` // shows.price_cents
}

// Upcoming reports whether the show has not started at now.
func (s *Show) Upcoming(now time.Time) bool {
	return s.StartTime.After(now)
}
