package model

import "time"

// SeatKey addresses one seat slot of the seat index.  A show's seat
// numbers are unique, so the pair identifies exactly one row.
type SeatKey struct {
	ShowID uint64
	Number int
}

// Seat is the atomic inventory unit of a show.  Rows are created lazily
// on the first claim of a (show, number) pair and are reset, never
// deleted, when the claiming booking lets them go.
//
// Fields:
//  ID         – primary key identifier.
//  ShowID     – show the seat belongs to.
//  Number     – seat number within the show (1..TotalSeats).
//  IsBooked   – whether an active booking currently holds the seat.
//  BookingID  – booking holding the seat (nil when free).  Lookup only;
//               the seat never owns the booking.
//  UpdatedAt  – last claim or release.
type Seat struct {
	ID        uint64    `json:"id"`                   // seats.id
	ShowID    uint64    `json:"show_id"`              // seats.show_id
	Number    int       `json:"seat_number"`          // seats.seat_number
	IsBooked  bool      `json:"is_booked"`            // seats.is_booked
	BookingID *uint64   `json:"booking_id,omitempty"` // seats.booking_id (nullable)
	UpdatedAt time.Time `json:"updated_at"`           // seats.updated_at
}

// Key returns the seat's index key.
func (s *Seat) Key() SeatKey {
	return SeatKey{ShowID: s.ShowID, Number: s.Number}
}
