package queue

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/gm0202/TicketSys/internal/model"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url string) (channel, io.Closer, error)

func dialAMQP(url string) (channel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return ch, conn, nil
}

// Publisher sends booking events to a durable queue.  It opens a
// connection per publish; events are low volume and a broken connection
// never outlives one message.
type Publisher struct {
	url   string
	queue string
	log   zerolog.Logger
	dial  dialFunc
}

// NewPublisher returns a Publisher for queue on the broker at url.
func NewPublisher(url, queue string, log zerolog.Logger) *Publisher {
	return &Publisher{
		url:   url,
		queue: queue,
		log:   log.With().Str("component", "publisher").Logger(),
		dial:  dialAMQP,
	}
}

// Publish sends ev as a persistent JSON message.  The message id is a
// fresh UUID so consumers can drop redeliveries.
func (p *Publisher) Publish(ctx context.Context, ev model.BookingEvent) error {
	body, err := Encode(ev)
	if err != nil {
		return err
	}

	ch, conn, err := p.dial(p.url)
	if err != nil {
		return errors.Wrap(err, "dial broker")
	}
	defer func() {
		_ = ch.Close()
		_ = conn.Close()
	}()

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "declare queue")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg := amqp.Publishing{
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         string(ev.Type),
		Timestamp:    ev.OccurredAt,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return errors.Wrap(err, "publish booking event")
	}
	p.log.Debug().Str("event", string(ev.Type)).Uint64("booking_id", ev.BookingID).Str("message_id", msg.MessageId).Msg("event published")
	return nil
}
