package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/gm0202/TicketSys/internal/model"
	"github.com/gm0202/TicketSys/internal/service/ports"
)

// memStore is a transactional in-memory ports.Store.  Transactions are
// fully serialized and work on a copy that replaces the committed state
// only when fn returns nil.
type memStore struct {
	mu   sync.Mutex
	data *memData

	// failLeft LockShow/LockBooking calls fail with failErr.
	failLeft int
	failErr  error
	txCount  int
}

type memData struct {
	shows       map[uint64]model.Show
	bookings    map[uint64]model.Booking
	seats       map[model.SeatKey]model.Seat
	nextBooking uint64
	nextSeat    uint64
}

func newMemStore(shows ...model.Show) *memStore {
	d := &memData{
		shows:    map[uint64]model.Show{},
		bookings: map[uint64]model.Booking{},
		seats:    map[model.SeatKey]model.Seat{},
	}
	for _, s := range shows {
		d.shows[s.ID] = s
	}
	return &memStore{data: d}
}

func (d *memData) clone() *memData {
	c := &memData{
		shows:       make(map[uint64]model.Show, len(d.shows)),
		bookings:    make(map[uint64]model.Booking, len(d.bookings)),
		seats:       make(map[model.SeatKey]model.Seat, len(d.seats)),
		nextBooking: d.nextBooking,
		nextSeat:    d.nextSeat,
	}
	for k, v := range d.shows {
		c.shows[k] = v
	}
	for k, v := range d.bookings {
		c.bookings[k] = copyBooking(v)
	}
	for k, v := range d.seats {
		c.seats[k] = copySeat(v)
	}
	return c
}

func copyBooking(b model.Booking) model.Booking {
	b.SeatNumbers = append([]int(nil), b.SeatNumbers...)
	return b
}

func copySeat(s model.Seat) model.Seat {
	if s.BookingID != nil {
		id := *s.BookingID
		s.BookingID = &id
	}
	return s
}

// failNext makes the next n lock calls fail with err.
func (m *memStore) failNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failLeft, m.failErr = n, err
}

func (m *memStore) transactions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txCount
}

// put stores b as committed state, assigning an id when it has none.
func (m *memStore) put(b model.Booking) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == 0 {
		m.data.nextBooking++
		b.ID = m.data.nextBooking
	}
	m.data.bookings[b.ID] = copyBooking(b)
	return b.ID
}

func (m *memStore) claim(showID uint64, bookingID uint64, numbers ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range numbers {
		m.data.nextSeat++
		id := bookingID
		m.data.seats[model.SeatKey{ShowID: showID, Number: n}] = model.Seat{
			ID: m.data.nextSeat, ShowID: showID, Number: n, IsBooked: true, BookingID: &id,
		}
	}
}

func (m *memStore) seat(showID uint64, n int) (model.Seat, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data.seats[model.SeatKey{ShowID: showID, Number: n}]
	return copySeat(s), ok
}

func (m *memStore) booked(showID uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.data.seats {
		if s.ShowID == showID && s.IsBooked {
			n++
		}
	}
	return n
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++
	work := m.data.clone()
	if err := fn(ctx, &memTx{store: m, d: work}); err != nil {
		return err
	}
	m.data = work
	return nil
}

func (m *memStore) GetBooking(_ context.Context, id uint64) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data.bookings[id]
	if !ok {
		return nil, model.ErrBookingNotFound
	}
	c := copyBooking(b)
	return &c, nil
}

func (m *memStore) listBookings(keep func(model.Booking) bool) []*model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Booking
	for _, b := range m.data.bookings {
		if keep(b) {
			c := copyBooking(b)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *memStore) ListBookingsByShow(_ context.Context, showID uint64, status model.BookingStatus) ([]*model.Booking, error) {
	return m.listBookings(func(b model.Booking) bool { return b.ShowID == showID && b.Status == status }), nil
}

func (m *memStore) ListBookingsByStatus(_ context.Context, status model.BookingStatus) ([]*model.Booking, error) {
	return m.listBookings(func(b model.Booking) bool { return b.Status == status }), nil
}

func (m *memStore) ListBookingsByEmail(_ context.Context, email string) ([]*model.Booking, error) {
	return m.listBookings(func(b model.Booking) bool { return b.CustomerEmail == email }), nil
}

func (m *memStore) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uint64
	for id, b := range m.data.bookings {
		if b.PastDeadline(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memStore) GetShow(_ context.Context, id uint64) (*model.Show, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data.shows[id]
	if !ok {
		return nil, model.ErrShowNotFoundOrStarted
	}
	return &s, nil
}

func (m *memStore) ListSeats(_ context.Context, showID uint64) ([]*model.Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Seat
	for _, s := range m.data.seats {
		if s.ShowID == showID {
			c := copySeat(s)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// memTx runs with memStore.mu held by WithinTx.
type memTx struct {
	store *memStore
	d     *memData
}

func (t *memTx) injected() error {
	if t.store.failLeft > 0 {
		t.store.failLeft--
		return t.store.failErr
	}
	return nil
}

func (t *memTx) LockShow(_ context.Context, showID uint64) (*model.Show, error) {
	if err := t.injected(); err != nil {
		return nil, err
	}
	s, ok := t.d.shows[showID]
	if !ok {
		return nil, model.ErrShowNotFoundOrStarted
	}
	return &s, nil
}

func (t *memTx) SeatsForUpdate(_ context.Context, showID uint64, numbers []int) ([]*model.Seat, error) {
	var out []*model.Seat
	for _, n := range numbers {
		if s, ok := t.d.seats[model.SeatKey{ShowID: showID, Number: n}]; ok {
			c := copySeat(s)
			out = append(out, &c)
		}
	}
	return out, nil
}

var errDuplicateSeat = errors.New("duplicate entry for uq_seats_show_number")

func (t *memTx) InsertSeat(_ context.Context, seat *model.Seat) error {
	key := seat.Key()
	if _, ok := t.d.seats[key]; ok {
		return &model.ContentionError{Err: errDuplicateSeat}
	}
	t.d.nextSeat++
	seat.ID = t.d.nextSeat
	t.d.seats[key] = copySeat(*seat)
	return nil
}

func (t *memTx) ClaimSeat(_ context.Context, seatID, bookingID uint64) error {
	for k, s := range t.d.seats {
		if s.ID == seatID {
			id := bookingID
			s.IsBooked = true
			s.BookingID = &id
			t.d.seats[k] = s
			return nil
		}
	}
	return errors.Errorf("seat %d not found", seatID)
}

func (t *memTx) ReleaseSeats(_ context.Context, bookingID uint64) (int64, error) {
	var n int64
	for k, s := range t.d.seats {
		if s.BookingID != nil && *s.BookingID == bookingID {
			s.IsBooked = false
			s.BookingID = nil
			t.d.seats[k] = s
			n++
		}
	}
	return n, nil
}

func (t *memTx) CountClaimedSeats(_ context.Context, bookingID uint64) (int, error) {
	n := 0
	for _, s := range t.d.seats {
		if s.IsBooked && s.BookingID != nil && *s.BookingID == bookingID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) ActiveSeatCount(_ context.Context, showID uint64, now time.Time, excludeID uint64) (int, error) {
	n := 0
	for id, b := range t.d.bookings {
		if id == excludeID || b.ShowID != showID {
			continue
		}
		if b.Active(now) {
			n += b.NumSeats
		}
	}
	return n, nil
}

func (t *memTx) HasActivePending(_ context.Context, showID uint64, email string, now time.Time) (bool, error) {
	for _, b := range t.d.bookings {
		if b.ShowID == showID && b.CustomerEmail == email &&
			b.Status == model.BookingStatusPending && b.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertBooking(_ context.Context, b *model.Booking) error {
	t.d.nextBooking++
	b.ID = t.d.nextBooking
	t.d.bookings[b.ID] = copyBooking(*b)
	return nil
}

func (t *memTx) LockBooking(_ context.Context, id uint64) (*model.Booking, error) {
	if err := t.injected(); err != nil {
		return nil, err
	}
	b, ok := t.d.bookings[id]
	if !ok {
		return nil, model.ErrBookingNotFound
	}
	c := copyBooking(b)
	return &c, nil
}

func (t *memTx) UpdateBookingStatus(_ context.Context, id uint64, status model.BookingStatus, at time.Time) error {
	b, ok := t.d.bookings[id]
	if !ok {
		return model.ErrBookingNotFound
	}
	b.Status = status
	b.UpdatedAt = at
	t.d.bookings[id] = b
	return nil
}
