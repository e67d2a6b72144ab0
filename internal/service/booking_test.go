package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gm0202/TicketSys/internal/model"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.BookingEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) has(t model.BookingEventType, bookingID uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ev := range p.events {
		if ev.Type == t && ev.BookingID == bookingID {
			return true
		}
	}
	return false
}

var baseTime = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func testShow(id uint64, seats int) model.Show {
	return model.Show{
		ID:         id,
		Name:       "Evening show",
		StartTime:  baseTime.Add(24 * time.Hour),
		EndTime:    baseTime.Add(26 * time.Hour),
		TotalSeats: seats,
		PriceCents: 1500,
	}
}

type fixture struct {
	svc    *BookingService
	store  *memStore
	clock  *fakeClock
	events *recordingPublisher
}

func newFixture(t *testing.T, shows ...model.Show) *fixture {
	t.Helper()
	f := &fixture{
		store:  newMemStore(shows...),
		clock:  &fakeClock{t: baseTime},
		events: &recordingPublisher{},
	}
	f.svc = NewBookingService(f.store, f.events, zerolog.Nop(), WithClock(f.clock.Now))
	f.svc.retry.delay = time.Millisecond
	t.Cleanup(f.svc.reclaimer.Stop)
	return f
}

func input(showID uint64, email string, seats ...int) CreateBookingInput {
	return CreateBookingInput{
		ShowID:        showID,
		CustomerName:  "Ada Lovelace",
		CustomerEmail: email,
		NumSeats:      len(seats),
		SeatNumbers:   seats,
	}
}

func TestCreateBooking_ClaimsSeatsAsPending(t *testing.T) {
	f := newFixture(t, testShow(1, 10))

	b, err := f.svc.CreateBooking(context.Background(), input(1, "Ada@Example.com", 1, 2, 3))
	require.NoError(t, err)

	assert.Equal(t, model.BookingStatusPending, b.Status)
	assert.Equal(t, []int{1, 2, 3}, b.SeatNumbers)
	assert.Equal(t, 3, b.NumSeats)
	assert.Equal(t, uint64(4500), b.TotalAmountCents)
	assert.Equal(t, "ada@example.com", b.CustomerEmail)
	assert.Equal(t, baseTime.Add(model.PendingWindow), b.ExpiresAt)

	for _, n := range []int{1, 2, 3} {
		seat, ok := f.store.seat(1, n)
		require.True(t, ok)
		assert.True(t, seat.IsBooked)
		require.NotNil(t, seat.BookingID)
		assert.Equal(t, b.ID, *seat.BookingID)
	}
	assert.Eventually(t, func() bool { return f.events.has(model.BookingEventCreated, b.ID) },
		time.Second, 5*time.Millisecond)
}

func TestCreateBooking_TotalDoesNotOverflow(t *testing.T) {
	show := testShow(1, 10)
	show.PriceCents = 2_000_000_000
	f := newFixture(t, show)

	b, err := f.svc.CreateBooking(context.Background(), input(1, "a@example.com", 1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, uint64(6_000_000_000), b.TotalAmountCents)
}

func TestCreateBooking_OverlapRejectsWholeRequest(t *testing.T) {
	f := newFixture(t, testShow(1, 10))
	ctx := context.Background()

	_, err := f.svc.CreateBooking(ctx, input(1, "a@example.com", 1, 2, 3))
	require.NoError(t, err)

	_, err = f.svc.CreateBooking(ctx, input(1, "b@example.com", 3, 4))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSeatsAlreadyBooked))
	var taken *model.SeatsAlreadyBookedError
	require.True(t, errors.As(err, &taken))
	assert.Equal(t, []int{3}, taken.Seats)

	_, ok := f.store.seat(1, 4)
	assert.False(t, ok, "seat 4 must not be claimed by a rejected request")
	pending, err := f.svc.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestCreateBooking_ShowUnavailable(t *testing.T) {
	started := testShow(2, 10)
	started.StartTime = baseTime.Add(-time.Minute)
	f := newFixture(t, testShow(1, 10), started)
	ctx := context.Background()

	_, err := f.svc.CreateBooking(ctx, input(99, "a@example.com", 1))
	assert.True(t, errors.Is(err, model.ErrShowNotFoundOrStarted))

	_, err = f.svc.CreateBooking(ctx, input(2, "a@example.com", 1))
	assert.True(t, errors.Is(err, model.ErrShowNotFoundOrStarted))
}

func TestCreateBooking_Validation(t *testing.T) {
	f := newFixture(t, testShow(1, 10))

	cases := map[string]struct {
		in    CreateBookingInput
		field string
	}{
		"missing show":      {in: input(0, "a@example.com", 1), field: "show_id"},
		"missing name":      {in: CreateBookingInput{ShowID: 1, CustomerEmail: "a@example.com", NumSeats: 1, SeatNumbers: []int{1}}, field: "customer_name"},
		"bad email":         {in: input(1, "not-an-email", 1), field: "customer_email"},
		"zero seats":        {in: input(1, "a@example.com"), field: "num_seats"},
		"count mismatch":    {in: CreateBookingInput{ShowID: 1, CustomerName: "A", CustomerEmail: "a@example.com", NumSeats: 2, SeatNumbers: []int{1}}, field: "seat_numbers"},
		"non-positive seat": {in: input(1, "a@example.com", 0), field: "seat_numbers"},
		"repeated seat":     {in: input(1, "a@example.com", 4, 4), field: "seat_numbers"},
		"beyond capacity":   {in: input(1, "a@example.com", 11), field: "seat_numbers"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateBooking(context.Background(), tc.in)
			require.Error(t, err)
			var verr *model.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.field, verr.Field)
			assert.True(t, errors.Is(err, model.ErrValidation))
		})
	}
	assert.Zero(t, f.store.booked(1))
}

func TestCreateBooking_DuplicatePending(t *testing.T) {
	f := newFixture(t, testShow(1, 10))
	ctx := context.Background()

	_, err := f.svc.CreateBooking(ctx, input(1, "a@example.com", 1))
	require.NoError(t, err)

	_, err = f.svc.CreateBooking(ctx, input(1, "A@example.com ", 2))
	assert.True(t, errors.Is(err, model.ErrDuplicatePendingBooking))

	f.clock.Advance(model.PendingWindow + time.Second)
	_, err = f.svc.CreateBooking(ctx, input(1, "a@example.com", 2))
	assert.NoError(t, err, "a lapsed pending booking no longer blocks the customer")
}

func TestCreateBooking_NotEnoughSeats(t *testing.T) {
	f := newFixture(t, testShow(1, 5))
	id := f.store.put(model.Booking{
		ShowID: 1, Status: model.BookingStatusConfirmed, NumSeats: 4,
		SeatNumbers: []int{1, 2, 3, 4}, CustomerEmail: "x@example.com",
	})
	f.store.claim(1, id, 1, 2, 3, 4)

	_, err := f.svc.CreateBooking(context.Background(), input(1, "a@example.com", 5, 1))
	require.Error(t, err)
	var short *model.NotEnoughSeatsError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, 1, short.Available)
}

func TestCreateBooking_ReclaimsLapsedHolder(t *testing.T) {
	f := newFixture(t, testShow(1, 10))
	stale := f.store.put(model.Booking{
		ShowID: 1, Status: model.BookingStatusPending, NumSeats: 2, SeatNumbers: []int{7, 8},
		CustomerEmail: "old@example.com", ExpiresAt: baseTime.Add(-time.Second),
	})
	f.store.claim(1, stale, 7, 8)

	b, err := f.svc.CreateBooking(context.Background(), input(1, "new@example.com", 7))
	require.NoError(t, err)

	old, err := f.store.GetBooking(context.Background(), stale)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusExpired, old.Status)

	seat7, _ := f.store.seat(1, 7)
	assert.Equal(t, b.ID, *seat7.BookingID)
	seat8, _ := f.store.seat(1, 8)
	assert.False(t, seat8.IsBooked)
	assert.Nil(t, seat8.BookingID)
	assert.Eventually(t, func() bool { return f.events.has(model.BookingEventExpired, stale) },
		time.Second, 5*time.Millisecond)
}

func TestCreateBooking_ConcurrentDisjointRequestsAllSucceed(t *testing.T) {
	f := newFixture(t, testShow(1, 20))
	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := string(rune('a'+i)) + "@example.com"
			_, errs[i] = f.svc.CreateBooking(context.Background(), input(1, email, 2*i+1, 2*i+2))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 20, f.store.booked(1))
}

func TestCreateBooking_ConcurrentSameSeatExactlyOneWins(t *testing.T) {
	f := newFixture(t, testShow(1, 10))
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		conflicts int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := string(rune('a'+i)) + "@example.com"
			_, err := f.svc.CreateBooking(context.Background(), input(1, email, 5))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, model.ErrSeatsAlreadyBooked):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 9, conflicts)
	assert.Equal(t, 1, f.store.booked(1))
}

func TestConfirmBooking(t *testing.T) {
	f := newFixture(t, testShow(1, 10))
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, input(1, "a@example.com", 1, 2, 3))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	confirmed, err := f.svc.ConfirmBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, confirmed.Status)
	assert.Equal(t, baseTime.Add(time.Minute), confirmed.UpdatedAt)
	assert.Equal(t, 3, f.store.booked(1))

	_, err = f.svc.ConfirmBooking(ctx, b.ID)
	var terr *model.TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, model.BookingStatusConfirmed, terr.From)

	// Confirmed bookings are never reclaimed.
	f.clock.Advance(time.Hour)
	n, err := f.svc.Reclaimer().Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, f.store.booked(1))
	assert.Eventually(t, func() bool { return f.events.has(model.BookingEventConfirmed, b.ID) },
		time.Second, 5*time.Millisecond)
}

func TestConfirmBooking_AfterDeadlineExpiresInline(t *testing.T) {
	f := newFixture(t, testShow(1, 10))
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, input(1, "a@example.com", 4))
	require.NoError(t, err)

	f.clock.Advance(model.PendingWindow)
	_, err = f.svc.ConfirmBooking(ctx, b.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidStateTransition))

	got, err := f.svc.GetBookingByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusExpired, got.Status)
	assert.Zero(t, f.store.booked(1))
}

func TestConfirmBooking_LapsedReportsActualState(t *testing.T) {
	f := newFixture(t, testShow(1, 10))
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, input(1, "a@example.com", 4))
	require.NoError(t, err)

	// A cancel that wins against the lapsed confirm leaves nothing to expire.
	_, err = f.svc.CancelBooking(ctx, b.ID)
	require.NoError(t, err)
	f.clock.Advance(model.PendingWindow)

	err = f.svc.lapsed(ctx, b.ID)
	var terr *model.TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, model.BookingStatusCancelled, terr.From)
	assert.Equal(t, model.BookingStatusConfirmed, terr.To)
}

func TestConfirmBooking_AfterShowStarted(t *testing.T) {
	show := testShow(1, 10)
	show.StartTime = baseTime.Add(time.Minute)
	f := newFixture(t, show)
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, input(1, "a@example.com", 2, 3))
	require.NoError(t, err)

	f.clock.Advance(90 * time.Second)
	confirmed, err := f.svc.ConfirmBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, confirmed.Status)
	assert.Equal(t, 2, f.store.booked(1))
}

func TestConfirmBooking_MissingClaims(t *testing.T) {
	f := newFixture(t, testShow(1, 10))
	id := f.store.put(model.Booking{
		ShowID: 1, Status: model.BookingStatusPending, NumSeats: 2, SeatNumbers: []int{1, 2},
		CustomerEmail: "a@example.com", ExpiresAt: baseTime.Add(time.Minute),
	})
	f.store.claim(1, id, 1)

	_, err := f.svc.ConfirmBooking(context.Background(), id)
	assert.True(t, errors.Is(err, model.ErrNotEnoughSeats))
	got, _ := f.store.GetBooking(context.Background(), id)
	assert.Equal(t, model.BookingStatusPending, got.Status)
}

func TestConfirmBooking_NotFound(t *testing.T) {
	f := newFixture(t, testShow(1, 10))
	_, err := f.svc.ConfirmBooking(context.Background(), 42)
	assert.True(t, errors.Is(err, model.ErrBookingNotFound))
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t, testShow(1, 10))
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, input(1, "a@example.com", 1, 2))
	require.NoError(t, err)
	_, err = f.svc.ConfirmBooking(ctx, b.ID)
	require.NoError(t, err)

	cancelled, err := f.svc.CancelBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, cancelled.Status)
	assert.Zero(t, f.store.booked(1))

	_, err = f.svc.CancelBooking(ctx, b.ID)
	assert.True(t, errors.Is(err, model.ErrInvalidStateTransition))

	// Freed seats are claimable again.
	_, err = f.svc.CreateBooking(ctx, input(1, "b@example.com", 1, 2))
	assert.NoError(t, err)
}

func TestCancelBooking_AfterShowStarted(t *testing.T) {
	f := newFixture(t, testShow(1, 10))
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, input(1, "a@example.com", 1))
	require.NoError(t, err)
	_, err = f.svc.ConfirmBooking(ctx, b.ID)
	require.NoError(t, err)

	f.clock.Advance(48 * time.Hour)
	_, err = f.svc.CancelBooking(ctx, b.ID)
	assert.NoError(t, err)
}

func TestMarkFailed(t *testing.T) {
	f := newFixture(t, testShow(1, 10))
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, input(1, "a@example.com", 9))
	require.NoError(t, err)

	failed, err := f.svc.MarkFailed(ctx, b.ID, errors.New("payment declined"))
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusFailed, failed.Status)
	assert.Zero(t, f.store.booked(1))

	_, err = f.svc.MarkFailed(ctx, b.ID, errors.New("again"))
	assert.True(t, errors.Is(err, model.ErrInvalidStateTransition))
}

func TestCreateBooking_RetriesTransientContention(t *testing.T) {
	f := newFixture(t, testShow(1, 10))
	f.store.failNext(2, &model.ContentionError{Err: errors.New("Deadlock found")})

	b, err := f.svc.CreateBooking(context.Background(), input(1, "a@example.com", 1))
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, b.Status)
	assert.Equal(t, 3, f.store.transactions())
}

func TestCreateBooking_RetriesExhausted(t *testing.T) {
	f := newFixture(t, testShow(1, 10))
	f.store.failNext(3, &model.ContentionError{Err: errors.New("Lock wait timeout exceeded")})

	_, err := f.svc.CreateBooking(context.Background(), input(1, "a@example.com", 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrOperationFailed))
	assert.Equal(t, 3, f.store.transactions())
	assert.Zero(t, f.store.booked(1))
}

func TestReadOperations(t *testing.T) {
	f := newFixture(t, testShow(1, 5))
	ctx := context.Background()
	first, err := f.svc.CreateBooking(ctx, input(1, "a@example.com", 1))
	require.NoError(t, err)
	second, err := f.svc.CreateBooking(ctx, input(1, "b@example.com", 3))
	require.NoError(t, err)
	_, err = f.svc.ConfirmBooking(ctx, first.ID)
	require.NoError(t, err)

	confirmed, err := f.svc.ListConfirmedByShow(ctx, 1)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, first.ID, confirmed[0].ID)

	pending, err := f.svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	mine, err := f.svc.ListByCustomer(ctx, " B@Example.com")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, second.ID, mine[0].ID)

	_, err = f.svc.ListByCustomer(ctx, "")
	assert.True(t, errors.Is(err, model.ErrValidation))

	seats, err := f.svc.SeatMap(ctx, 1)
	require.NoError(t, err)
	require.Len(t, seats.Seats, 5)
	for i, s := range seats.Seats {
		assert.Equal(t, i+1, s.Number)
		assert.Equal(t, s.Number == 1 || s.Number == 3, s.IsBooked)
	}

	_, err = f.svc.SeatMap(ctx, 77)
	assert.True(t, errors.Is(err, model.ErrShowNotFoundOrStarted))
}
