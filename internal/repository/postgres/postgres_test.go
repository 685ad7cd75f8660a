package postgresrepo_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tixbook/internal/access"
	"github.com/kirinyoku/tixbook/internal/domain"
	"github.com/kirinyoku/tixbook/internal/repository"
	postgresrepo "github.com/kirinyoku/tixbook/internal/repository/postgres"
	"github.com/kirinyoku/tixbook/internal/service/booking"
	"github.com/kirinyoku/tixbook/internal/service/catalog"
	"github.com/kirinyoku/tixbook/internal/service/inventory"
	"github.com/kirinyoku/tixbook/internal/testutil"
	"github.com/kirinyoku/tixbook/internal/uow"
)

type env struct {
	store   *postgresrepo.Store
	manager *domain.User
	user    *domain.User
}

func setup(t *testing.T) *env {
	t.Helper()

	store := postgresrepo.NewStore(testutil.NewTestPool(t))
	ctx := context.Background()

	manager := &domain.User{Username: "mgr", Email: "mgr@example.com", PasswordHash: "x", Role: domain.RoleEventManager}
	require.NoError(t, store.Users().Create(ctx, manager))
	user := &domain.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", Role: domain.RoleUser}
	require.NoError(t, store.Users().Create(ctx, user))

	return &env{store: store, manager: manager, user: user}
}

func (e *env) event(t *testing.T, tickets int) *domain.Event {
	t.Helper()

	ev := &domain.Event{
		Title:            "Sunburn",
		Description:      "Open air festival",
		Date:             time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC),
		Time:             "18:30:00",
		Location:         domain.CityMumbai,
		Category:         domain.CategoryMusic,
		PaymentOptions:   "card",
		Price:            decimal.RequireFromString("250.00"),
		AvailableTickets: tickets,
		CreatedBy:        e.manager.ID,
	}
	require.NoError(t, e.store.Events().Create(context.Background(), ev))
	return ev
}

func TestUsers(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	dup := &domain.User{Username: "alice", Email: "other@example.com", PasswordHash: "x", Role: domain.RoleUser}
	assert.ErrorIs(t, e.store.Users().Create(ctx, dup), repository.ErrConflict)

	got, err := e.store.Users().GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, e.user.ID, got.ID)

	promoted, err := e.store.Users().SetRole(ctx, e.user.ID, domain.RoleEventManager)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEventManager, promoted.Role)

	_, err = e.store.Users().GetByID(ctx, 9999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEvents_ListFilters(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	ev := e.event(t, 10)
	other := e.event(t, 10)
	other.Location = domain.CityPune
	require.NoError(t, e.store.Events().Update(ctx, other))

	got, err := e.store.Events().Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "18:30:00", got.Time)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("250")))

	list, err := e.store.Events().List(ctx, domain.EventFilter{Location: domain.CityMumbai})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ev.ID, list[0].ID)

	date := ev.Date
	list, err = e.store.Events().List(ctx, domain.EventFilter{Date: &date, Category: domain.CategoryMusic})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestInventory(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	ev := e.event(t, 3)
	inv := e.store.Inventory()

	snap, err := inv.TakeTickets(ctx, ev.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Available)

	snap, err = inv.TakeTickets(ctx, ev.ID, 2)
	assert.ErrorIs(t, err, repository.ErrInsufficientTickets)
	assert.Equal(t, 1, snap.Available)

	left, err := inv.ReturnTickets(ctx, ev.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, left)

	_, err = inv.TakeTickets(ctx, 9999, 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRunTx_RollsBack(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	ev := e.event(t, 5)
	tx := uow.NewUoW(e.store)

	boom := errors.New("boom")
	hookRan := false
	err := tx.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		after(func(context.Context) { hookRan = true })
		if _, err := e.store.Inventory().TakeTickets(ctx, ev.ID, 5); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, hookRan)

	got, err := e.store.Events().Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.AvailableTickets)
}

func TestBook_ConcurrentNeverOversells(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	ev := e.event(t, 5)

	ledger := inventory.New(e.store.Inventory(), nil)
	svc := booking.New(uow.NewUoW(e.store), e.store.Bookings(), ledger, access.New())

	const requests = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Book(ctx, e.user, ev.ID, 1)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, success)

	got, err := e.store.Events().Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableTickets)

	list, err := e.store.Bookings().ListByUser(ctx, e.user.ID)
	require.NoError(t, err)
	assert.Len(t, list, 5)
}

func TestDeleteEvent_Cascade(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	ev := e.event(t, 10)

	tx := uow.NewUoW(e.store)
	ledger := inventory.New(e.store.Inventory(), nil)
	policy := access.New()
	bookings := booking.New(tx, e.store.Bookings(), ledger, policy)
	cat := catalog.New(catalog.Deps{
		Tx:       tx,
		Events:   e.store.Events(),
		Bookings: e.store.Bookings(),
		Ledger:   ledger,
		Policy:   policy,
	}, catalog.Config{})

	first, err := bookings.Book(ctx, e.user, ev.ID, 2)
	require.NoError(t, err)
	_, err = bookings.Pay(ctx, e.user, first.ID, "card")
	require.NoError(t, err)
	_, err = bookings.Book(ctx, e.user, ev.ID, 1)
	require.NoError(t, err)

	cancelled, err := cat.DeleteEvent(ctx, e.manager, ev.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, cancelled)

	_, err = e.store.Events().Get(ctx, ev.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	list, err := e.store.Bookings().ListByUser(ctx, e.user.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, b := range list {
		assert.True(t, b.IsCancelled)
		assert.False(t, b.IsPaid)
		assert.Nil(t, b.EventID)
	}

	// Cancelling a booking whose event is gone releases nothing.
	_, err = bookings.Cancel(ctx, e.user, list[0].ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
}

func TestCancelDuringDeleteEvent(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	tx := uow.NewUoW(e.store)
	ledger := inventory.New(e.store.Inventory(), nil)
	policy := access.New()
	bookings := booking.New(tx, e.store.Bookings(), ledger, policy)
	cat := catalog.New(catalog.Deps{
		Tx:       tx,
		Events:   e.store.Events(),
		Bookings: e.store.Bookings(),
		Ledger:   ledger,
		Policy:   policy,
	}, catalog.Config{})

	for range 10 {
		ev := e.event(t, 10)

		var ids []int64
		for range 3 {
			b, err := bookings.Book(ctx, e.user, ev.ID, 1)
			require.NoError(t, err)
			ids = append(ids, b.ID)
		}

		var (
			wg        sync.WaitGroup
			deleteErr error
			cancelErr = make([]error, len(ids))
		)

		wg.Add(1)
		go func() {
			defer wg.Done()
			_, deleteErr = cat.DeleteEvent(ctx, e.manager, ev.ID)
		}()
		for i, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, cancelErr[i] = bookings.Cancel(ctx, e.user, id)
			}()
		}
		wg.Wait()

		require.NoError(t, deleteErr)
		for _, err := range cancelErr {
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
			}
		}

		for _, id := range ids {
			b, err := e.store.Bookings().Get(ctx, id)
			require.NoError(t, err)
			assert.True(t, b.IsCancelled)
			assert.Nil(t, b.EventID)
		}
	}
}

func TestLockTickets(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	ev := e.event(t, 3)

	require.NoError(t, e.store.Inventory().LockTickets(ctx, ev.ID))
	assert.ErrorIs(t, e.store.Inventory().LockTickets(ctx, 9999), repository.ErrNotFound)
}

func TestBook_LargePaymentAmount(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	ev := e.event(t, 1000)
	ev.Price = decimal.RequireFromString("99999999.99")
	require.NoError(t, e.store.Events().Update(ctx, ev))

	svc := booking.New(uow.NewUoW(e.store), e.store.Bookings(), inventory.New(e.store.Inventory(), nil), access.New())

	b, err := svc.Book(ctx, e.user, ev.ID, 1000)
	require.NoError(t, err)

	got, err := e.store.Bookings().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "99999999990.00", got.PaymentAmount.StringFixed(2))
}
