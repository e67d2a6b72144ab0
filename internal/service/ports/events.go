package ports

import (
	"context"

	"github.com/gm0202/TicketSys/internal/model"
)

// EventPublisher hands committed booking transitions to a broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.BookingEvent) error
}
