package queue

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AuditConsumer appends every booking event on the queue to a log file.
// Malformed messages are rejected without requeue.
type AuditConsumer struct {
	url     string
	queue   string
	logPath string
	log     zerolog.Logger

	mu sync.Mutex
}

// NewAuditConsumer returns a consumer writing to logPath.
func NewAuditConsumer(url, queue, logPath string, log zerolog.Logger) *AuditConsumer {
	return &AuditConsumer{
		url:     url,
		queue:   queue,
		logPath: logPath,
		log:     log.With().Str("component", "audit-consumer").Logger(),
	}
}

// Run consumes until ctx is done, reconnecting with exponential backoff
// whenever the broker goes away.
func (c *AuditConsumer) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(b, ctx)

	for {
		conn, err := amqp.Dial(c.url)
		if err == nil {
			policy.Reset()
			err = c.consume(ctx, conn)
			_ = conn.Close()
		}
		if ctx.Err() != nil {
			return nil
		}
		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return nil
		}
		c.log.Warn().Err(err).Dur("retry_in", wait).Msg("broker unavailable")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (c *AuditConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "open channel")
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn().Err(err).Msg("set qos")
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "declare queue")
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "consume")
	}

	c.log.Info().Str("queue", c.queue).Msg("consuming booking events")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(d.Body); err != nil {
				c.log.Error().Err(err).Str("message_id", d.MessageId).Msg("reject booking event")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message body and appends it to the audit log.
func (c *AuditConsumer) Handle(body []byte) error {
	ev, err := Decode(body)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
		return errors.Wrap(err, "create audit dir")
	}
	f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open audit log")
	}
	defer f.Close()
	if _, err := f.WriteString(AuditLine(ev)); err != nil {
		return errors.Wrap(err, "write audit log")
	}
	c.log.Info().Str("event", string(ev.Type)).Uint64("booking_id", ev.BookingID).Msg("booking event recorded")
	return nil
}
