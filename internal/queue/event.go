// Package queue carries committed booking transitions over RabbitMQ: a
// publisher used by the booking service and an audit consumer that
// appends every event to a log file.
package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/gm0202/TicketSys/internal/model"
)

const contentType = "application/json"

// Encode serializes an event for the broker.
func Encode(ev model.BookingEvent) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrap(err, "encode booking event")
	}
	return body, nil
}

// Decode parses a message body and rejects events that cannot describe a
// booking transition.
func Decode(body []byte) (model.BookingEvent, error) {
	var ev model.BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, errors.Wrap(err, "decode booking event")
	}
	if ev.BookingID == 0 {
		return ev, errors.New("booking event without booking_id")
	}
	if !ev.Status.Valid() {
		return ev, errors.Errorf("booking event with unknown status %q", ev.Status)
	}
	return ev, nil
}

// AuditLine renders one event as a single human-readable line.
func AuditLine(ev model.BookingEvent) string {
	seats := make([]string, len(ev.SeatNumbers))
	for i, n := range ev.SeatNumbers {
		seats[i] = strconv.Itoa(n)
	}
	return fmt.Sprintf("[%s] %s | booking_id=%d | show_id=%d | status=%s | email=%q | total=%d cents | seats=[%s]\n",
		ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.BookingID, ev.ShowID, ev.Status,
		ev.CustomerEmail, ev.TotalAmountCents, strings.Join(seats, ","))
}
