package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/gm0202/TicketSys/internal/metrics"
	"github.com/gm0202/TicketSys/internal/model"
	"github.com/gm0202/TicketSys/internal/service/ports"
)

// CreateBookingInput is a request for specific seats of one show.
type CreateBookingInput struct {
	ShowID        uint64 `json:"show_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	NumSeats      int    `json:"num_seats"`
	SeatNumbers   []int  `json:"seat_numbers"`
}

// Normalize trims the customer fields and lower-cases the email.
func (in *CreateBookingInput) Normalize() {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerEmail = strings.ToLower(strings.TrimSpace(in.CustomerEmail))
}

// Validate checks the request shape.  Seat numbers are checked against
// the show's capacity later, under the show lock.
func (in *CreateBookingInput) Validate() error {
	if in.ShowID == 0 {
		return &model.ValidationError{Field: "show_id", Reason: "is required"}
	}
	if in.CustomerName == "" {
		return &model.ValidationError{Field: "customer_name", Reason: "is required"}
	}
	if in.CustomerEmail == "" {
		return &model.ValidationError{Field: "customer_email", Reason: "is required"}
	}
	if _, err := mail.ParseAddress(in.CustomerEmail); err != nil {
		return &model.ValidationError{Field: "customer_email", Reason: "is not a valid address"}
	}
	if in.NumSeats < 1 {
		return &model.ValidationError{Field: "num_seats", Reason: "must be at least 1"}
	}
	if len(in.SeatNumbers) != in.NumSeats {
		return &model.ValidationError{Field: "seat_numbers", Reason: "must list exactly num_seats seats"}
	}
	seen := make(map[int]struct{}, len(in.SeatNumbers))
	for _, n := range in.SeatNumbers {
		if n < 1 {
			return &model.ValidationError{Field: "seat_numbers", Reason: "must be positive"}
		}
		if _, dup := seen[n]; dup {
			return &model.ValidationError{Field: "seat_numbers", Reason: "must not repeat a seat"}
		}
		seen[n] = struct{}{}
	}
	return nil
}

// Option configures a BookingService.
type Option func(*BookingService)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *BookingService) { s.now = now }
}

// WithSweepInterval sets how often the reclaimer scans for lapsed bookings.
func WithSweepInterval(d time.Duration) Option {
	return func(s *BookingService) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// BookingService exposes the booking operations.  Each mutating call is
// one transaction, retried on transient contention.
type BookingService struct {
	store         ports.Store
	events        ports.EventPublisher
	log           zerolog.Logger
	now           func() time.Time
	sweepInterval time.Duration

	retry     *Retrier
	machine   *lifecycle
	reclaimer *Reclaimer
}

// NewBookingService wires the booking core.  events may be nil.
func NewBookingService(store ports.Store, events ports.EventPublisher, log zerolog.Logger, opts ...Option) *BookingService {
	s := &BookingService{
		store:         store,
		events:        events,
		log:           log.With().Str("component", "booking").Logger(),
		now:           time.Now,
		sweepInterval: defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry = NewRetrier(s.log)
	s.machine = &lifecycle{
		guard: &InventoryGuard{now: s.now},
		seats: &SeatClaimer{},
		now:   s.now,
	}
	s.reclaimer = &Reclaimer{
		store:    store,
		retry:    s.retry,
		machine:  s.machine,
		interval: s.sweepInterval,
		now:      s.now,
		log:      log.With().Str("component", "reclaimer").Logger(),
		timers:   map[uint64]*time.Timer{},
	}
	s.reclaimer.onExpired = func(ctx context.Context, b *model.Booking) {
		s.committed(ctx, model.BookingEventExpired, b)
	}
	return s
}

// Reclaimer returns the expiry reclaimer so the caller can run its sweep.
func (s *BookingService) Reclaimer() *Reclaimer { return s.reclaimer }

// CreateBooking claims the requested seats and records a pending booking
// that expires after model.PendingWindow unless confirmed.
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*model.Booking, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		s.rejected(err)
		return nil, err
	}

	var out *created
	err := s.retry.Do(ctx, "create booking", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
			var err error
			out, err = s.machine.create(ctx, tx, in)
			return err
		})
	})
	if err != nil {
		s.rejected(err)
		return nil, err
	}

	for _, r := range out.Reclaimed {
		s.reclaimer.Cancel(r.ID)
		s.committed(ctx, model.BookingEventExpired, r)
	}
	b := out.Booking
	s.reclaimer.Schedule(b.ID, b.ExpiresAt)
	s.committed(ctx, model.BookingEventCreated, b)
	return b, nil
}

// ConfirmBooking approves a pending booking.  A booking found past its
// deadline is expired on the spot and the confirm fails.
func (s *BookingService) ConfirmBooking(ctx context.Context, id uint64) (*model.Booking, error) {
	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		s.rejected(err)
		return nil, err
	}

	var b *model.Booking
	err = s.retry.Do(ctx, "confirm booking", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
			var err error
			b, err = s.machine.confirm(ctx, tx, current.ShowID, id)
			return err
		})
	})
	if errors.Is(err, errLapsed) {
		err = s.lapsed(ctx, id)
	}
	if err != nil {
		s.rejected(err)
		return nil, err
	}

	s.reclaimer.Cancel(b.ID)
	s.committed(ctx, model.BookingEventConfirmed, b)
	return b, nil
}

// lapsed expires a booking that confirm found past its deadline and
// reports the state it ended in.  A concurrent cancel may resolve the
// booking first, so the state is read back rather than assumed.
func (s *BookingService) lapsed(ctx context.Context, id uint64) error {
	if _, err := s.reclaimer.Expire(ctx, id); err != nil {
		return errors.Wrap(err, "expire lapsed booking")
	}
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	return &model.TransitionError{From: b.Status, To: model.BookingStatusConfirmed}
}

// CancelBooking releases the seats of a pending or confirmed booking.
func (s *BookingService) CancelBooking(ctx context.Context, id uint64) (*model.Booking, error) {
	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		s.rejected(err)
		return nil, err
	}

	var b *model.Booking
	err = s.retry.Do(ctx, "cancel booking", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
			var err error
			b, err = s.machine.cancel(ctx, tx, current.ShowID, id)
			return err
		})
	})
	if err != nil {
		s.rejected(err)
		return nil, err
	}

	s.reclaimer.Cancel(b.ID)
	s.committed(ctx, model.BookingEventCancelled, b)
	return b, nil
}

// MarkFailed moves a pending or confirmed booking to failed and frees
// its seats.  It is used by internal callers when a booking can no
// longer be honoured.
func (s *BookingService) MarkFailed(ctx context.Context, id uint64, cause error) (*model.Booking, error) {
	var b *model.Booking
	err := s.retry.Do(ctx, "fail booking", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
			var err error
			b, err = s.machine.fail(ctx, tx, id)
			return err
		})
	})
	if err != nil {
		s.rejected(err)
		return nil, err
	}

	s.log.Warn().Err(cause).Uint64("booking_id", id).Msg("booking marked failed")
	s.reclaimer.Cancel(b.ID)
	s.committed(ctx, model.BookingEventFailed, b)
	return b, nil
}

// GetBookingByID returns the committed state of a booking.
func (s *BookingService) GetBookingByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

// ListConfirmedByShow returns a show's confirmed bookings, newest first.
func (s *BookingService) ListConfirmedByShow(ctx context.Context, showID uint64) ([]*model.Booking, error) {
	if _, err := s.store.GetShow(ctx, showID); err != nil {
		return nil, err
	}
	return s.store.ListBookingsByShow(ctx, showID, model.BookingStatusConfirmed)
}

// ListPending returns every pending booking, newest first.
func (s *BookingService) ListPending(ctx context.Context) ([]*model.Booking, error) {
	return s.store.ListBookingsByStatus(ctx, model.BookingStatusPending)
}

// ListByCustomer returns the bookings made with email, newest first.
func (s *BookingService) ListByCustomer(ctx context.Context, email string) ([]*model.Booking, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, &model.ValidationError{Field: "email", Reason: "is required"}
	}
	return s.store.ListBookingsByEmail(ctx, email)
}

// SeatMap is the claim state of every seat of a show.
type SeatMap struct {
	Show  *model.Show   `json:"show"`
	Seats []*model.Seat `json:"seats"`
}

// SeatMap returns one entry per seat number 1..TotalSeats.  Seats that
// were never claimed have no row and are reported free with ID 0.
func (s *BookingService) SeatMap(ctx context.Context, showID uint64) (*SeatMap, error) {
	show, err := s.store.GetShow(ctx, showID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListSeats(ctx, showID)
	if err != nil {
		return nil, err
	}
	byNumber := make(map[int]*model.Seat, len(rows))
	for _, r := range rows {
		byNumber[r.Number] = r
	}
	seats := make([]*model.Seat, 0, show.TotalSeats)
	for n := 1; n <= show.TotalSeats; n++ {
		if r, ok := byNumber[n]; ok {
			seats = append(seats, r)
			continue
		}
		seats = append(seats, &model.Seat{ShowID: showID, Number: n})
	}
	return &SeatMap{Show: show, Seats: seats}, nil
}

// committed records a transition that has been durably written.
func (s *BookingService) committed(ctx context.Context, t model.BookingEventType, b *model.Booking) {
	metrics.BookingTransitions.WithLabelValues(string(b.Status)).Inc()
	s.log.Info().
		Str("event", string(t)).
		Uint64("booking_id", b.ID).
		Uint64("show_id", b.ShowID).
		Ints("seats", b.SeatNumbers).
		Msg("booking transition committed")

	if s.events == nil {
		return
	}
	ev := model.NewBookingEvent(t, b, s.now())
	pctx := context.WithoutCancel(ctx)
	go func() {
		if err := s.events.Publish(pctx, ev); err != nil {
			s.log.Warn().Err(err).Str("event", string(t)).Uint64("booking_id", b.ID).Msg("publish booking event")
		}
	}()
}

func (s *BookingService) rejected(err error) {
	metrics.RejectedBookings.WithLabelValues(rejectReason(err)).Inc()
	if model.IsDomainError(err) {
		s.log.Debug().Err(err).Msg("booking request rejected")
		return
	}
	s.log.Error().Err(err).Msg("booking operation failed")
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, model.ErrShowNotFoundOrStarted):
		return "show_unavailable"
	case errors.Is(err, model.ErrNotEnoughSeats):
		return "not_enough_seats"
	case errors.Is(err, model.ErrSeatsAlreadyBooked):
		return "seats_taken"
	case errors.Is(err, model.ErrDuplicatePendingBooking):
		return "duplicate_pending"
	case errors.Is(err, model.ErrInvalidStateTransition):
		return "invalid_transition"
	case errors.Is(err, model.ErrBookingNotFound):
		return "not_found"
	case errors.Is(err, model.ErrOperationFailed):
		return "retries_exhausted"
	}
	return "internal"
}
