// Package testutil holds test doubles shared by the service and transport
// tests.
package testutil

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/kirinyoku/tixbook/internal/domain"
	"github.com/kirinyoku/tixbook/internal/repository"
	"github.com/kirinyoku/tixbook/internal/uow"
)

type memTxKey struct{}

// MemStore keeps users, events and bookings in maps and mimics the
// transactional behaviour of the Postgres store: Do runs one transaction at
// a time and restores the previous state when fn fails.
type MemStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	nextID   int64
	users    map[int64]domain.User
	events   map[int64]domain.Event
	bookings map[int64]domain.Booking
	failNext map[string]error
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:    make(map[int64]domain.User),
		events:   make(map[int64]domain.Event),
		bookings: make(map[int64]domain.Booking),
		failNext: make(map[string]error),
	}
}

// Do runs fn as a transaction. A nested Do joins the outer one.
func (s *MemStore) Do(
	ctx context.Context,
	fn func(ctx context.Context, after func(uow.AfterCommit)) error,
) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx, func(h uow.AfterCommit) { h(ctx) })
	}

	s.txMu.Lock()

	s.mu.Lock()
	users := maps.Clone(s.users)
	events := maps.Clone(s.events)
	bookings := maps.Clone(s.bookings)
	next := s.nextID
	s.mu.Unlock()

	var hooks []uow.AfterCommit
	err := fn(context.WithValue(ctx, memTxKey{}, true), func(h uow.AfterCommit) {
		hooks = append(hooks, h)
	})
	if err != nil {
		s.mu.Lock()
		s.users, s.events, s.bookings, s.nextID = users, events, bookings, next
		s.mu.Unlock()
	}

	s.txMu.Unlock()

	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}

// FailNext makes the next repository call with this name fail with err,
// e.g. "Events.Delete".
func (s *MemStore) FailNext(call string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failNext[call] = err
}

// fail must be called with s.mu held.
func (s *MemStore) fail(call string) error {
	err, ok := s.failNext[call]
	if !ok {
		return nil
	}

	delete(s.failNext, call)

	return err
}

func (s *MemStore) id() int64 {
	s.nextID++
	return s.nextID
}

// AddUser stores u and returns it with its ID set.
func (s *MemStore) AddUser(u domain.User) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.ID = s.id()
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.users[u.ID] = u

	return u
}

// AddEvent stores e and returns it with its ID set.
func (s *MemStore) AddEvent(e domain.Event) domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = s.id()
	s.events[e.ID] = e

	return e
}

// Event returns the stored event, bypassing any transaction.
func (s *MemStore) Event(id int64) (domain.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	return e, ok
}

func (s *MemStore) Booking(id int64) (domain.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	return cloneBooking(b), ok
}

func (s *MemStore) Users() *MemUsers         { return &MemUsers{s: s} }
func (s *MemStore) Events() *MemEvents       { return &MemEvents{s: s} }
func (s *MemStore) Bookings() *MemBookings   { return &MemBookings{s: s} }
func (s *MemStore) Inventory() *MemInventory { return &MemInventory{s: s} }

type MemUsers struct{ s *MemStore }

func (r *MemUsers) Create(_ context.Context, u *domain.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("Users.Create"); err != nil {
		return err
	}

	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return fmt.Errorf("testutil.Users.Create: %w", repository.ErrConflict)
		}
	}

	u.ID = s.id()
	u.CreatedAt = time.Now()
	s.users[u.ID] = *u

	return nil
}

func (r *MemUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	return &u, nil
}

func (r *MemUsers) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			return &u, nil
		}
	}

	return nil, repository.ErrNotFound
}

func (r *MemUsers) SetRole(_ context.Context, id int64, role domain.Role) (*domain.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	u.Role = role
	s.users[id] = u

	return &u, nil
}

type MemEvents struct{ s *MemStore }

func (r *MemEvents) Create(_ context.Context, e *domain.Event) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("Events.Create"); err != nil {
		return err
	}

	e.ID = s.id()
	s.events[e.ID] = *e

	return nil
}

func (r *MemEvents) Get(_ context.Context, id int64) (*domain.Event, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	return &e, nil
}

func (r *MemEvents) GetForUpdate(ctx context.Context, id int64) (*domain.Event, error) {
	return r.Get(ctx, id)
}

func (r *MemEvents) List(_ context.Context, f domain.EventFilter) ([]domain.Event, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Event
	for _, e := range s.events {
		if f.Location != "" && e.Location != f.Location {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.Date != nil && !e.Date.Equal(*f.Date) {
			continue
		}
		out = append(out, e)
	}

	slices.SortFunc(out, func(a, b domain.Event) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if a.Time != b.Time {
			if a.Time < b.Time {
				return -1
			}
			return 1
		}
		return int(a.ID - b.ID)
	})

	return out, nil
}

func (r *MemEvents) Update(_ context.Context, e *domain.Event) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("Events.Update"); err != nil {
		return err
	}

	cur, ok := s.events[e.ID]
	if !ok {
		return repository.ErrNotFound
	}

	next := *e
	next.AvailableTickets = cur.AvailableTickets
	next.CreatedBy = cur.CreatedBy
	s.events[e.ID] = next

	return nil
}

// Delete removes the event and nulls the event reference of its bookings.
func (r *MemEvents) Delete(_ context.Context, id int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("Events.Delete"); err != nil {
		return err
	}

	if _, ok := s.events[id]; !ok {
		return repository.ErrNotFound
	}

	delete(s.events, id)

	for bid, b := range s.bookings {
		if b.EventID != nil && *b.EventID == id {
			b.EventID = nil
			s.bookings[bid] = b
		}
	}

	return nil
}

type MemInventory struct{ s *MemStore }

func (r *MemInventory) TakeTickets(_ context.Context, eventID int64, n int) (domain.InventorySnapshot, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := domain.InventorySnapshot{EventID: eventID}

	e, ok := s.events[eventID]
	if !ok {
		return snap, repository.ErrNotFound
	}

	snap.Price = e.Price
	snap.Available = e.AvailableTickets

	if e.AvailableTickets < n {
		return snap, repository.ErrInsufficientTickets
	}

	e.AvailableTickets -= n
	s.events[eventID] = e
	snap.Available = e.AvailableTickets

	return snap, nil
}

func (r *MemInventory) LockTickets(_ context.Context, eventID int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		return repository.ErrNotFound
	}

	return nil
}

func (r *MemInventory) ReturnTickets(_ context.Context, eventID int64, n int) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("Inventory.ReturnTickets"); err != nil {
		return 0, err
	}

	e, ok := s.events[eventID]
	if !ok {
		return 0, repository.ErrNotFound
	}

	e.AvailableTickets += n
	s.events[eventID] = e

	return e.AvailableTickets, nil
}

func (r *MemInventory) SetTickets(_ context.Context, eventID int64, n int) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return repository.ErrNotFound
	}

	e.AvailableTickets = n
	s.events[eventID] = e

	return nil
}

type MemBookings struct{ s *MemStore }

func (r *MemBookings) Create(_ context.Context, b *domain.Booking) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("Bookings.Create"); err != nil {
		return err
	}

	b.ID = s.id()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	s.bookings[b.ID] = cloneBooking(*b)

	return nil
}

func (r *MemBookings) Get(_ context.Context, id int64) (*domain.Booking, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	out := cloneBooking(b)

	return &out, nil
}

func (r *MemBookings) GetForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	return r.Get(ctx, id)
}

func (r *MemBookings) Save(_ context.Context, b *domain.Booking) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("Bookings.Save"); err != nil {
		return err
	}

	cur, ok := s.bookings[b.ID]
	if !ok {
		return repository.ErrNotFound
	}

	cur.IsPaid = b.IsPaid
	cur.IsConfirmed = b.IsConfirmed
	cur.IsCancelled = b.IsCancelled
	cur.PaymentMethod = cloneString(b.PaymentMethod)
	s.bookings[b.ID] = cur

	return nil
}

func (r *MemBookings) ListByUser(_ context.Context, userID int64) ([]domain.Booking, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Booking
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, cloneBooking(b))
		}
	}

	slices.SortFunc(out, func(a, b domain.Booking) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})

	return out, nil
}

func (r *MemBookings) CancelAllForEvent(_ context.Context, eventID int64) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("Bookings.CancelAllForEvent"); err != nil {
		return 0, err
	}

	var n int64
	for id, b := range s.bookings {
		if b.EventID == nil || *b.EventID != eventID {
			continue
		}
		if b.Void() {
			s.bookings[id] = b
			n++
		}
	}

	return n, nil
}

func cloneBooking(b domain.Booking) domain.Booking {
	if b.EventID != nil {
		id := *b.EventID
		b.EventID = &id
	}
	b.PaymentMethod = cloneString(b.PaymentMethod)

	return b
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}

	v := *s
	return &v
}
