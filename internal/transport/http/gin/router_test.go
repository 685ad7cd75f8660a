package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kirinyoku/tixbook/internal/auth"
	"github.com/kirinyoku/tixbook/internal/domain"
	redisrepo "github.com/kirinyoku/tixbook/internal/repository/redis"
	"github.com/kirinyoku/tixbook/internal/service"
	"github.com/kirinyoku/tixbook/internal/service/accounts"
	"github.com/kirinyoku/tixbook/internal/service/booking"
	"github.com/kirinyoku/tixbook/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memRevoker struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (r *memRevoker) Revoke(_ context.Context, jti string, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[jti] = true
	return nil
}

func (r *memRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ids[jti], nil
}

type harness struct {
	store   *testutil.MemStore
	tokens  *auth.Issuer
	router  *gin.Engine
	manager domain.User
	user    domain.User
	admin   domain.User
}

func newHarness(t *testing.T, idem *redisrepo.IdempotencyStore) *harness {
	t.Helper()

	store := testutil.NewMemStore()
	tokens := auth.NewIssuer("test-secret", time.Hour)

	svcs := service.NewServices(
		service.Repositories{
			Tx:        store,
			Users:     store.Users(),
			Events:    store.Events(),
			Bookings:  store.Bookings(),
			Inventory: store.Inventory(),
		},
		service.Deps{
			Revoker: &memRevoker{ids: map[string]bool{}},
			Tokens:  tokens,
			Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
		service.Config{Accounts: accounts.Config{BcryptCost: bcrypt.MinCost}},
	)

	h := &harness{
		store:  store,
		tokens: tokens,
		router: NewRouter(svcs, idem, nil, slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	h.manager = store.AddUser(domain.User{Username: "mgr", Email: "mgr@example.com", Role: domain.RoleEventManager})
	h.user = store.AddUser(domain.User{Username: "alice", Email: "alice@example.com"})
	h.admin = store.AddUser(domain.User{Username: "root", Email: "root@example.com", IsAdmin: true})

	return h
}

func (h *harness) token(t *testing.T, u domain.User) string {
	t.Helper()

	raw, _, err := h.tokens.Issue(&u)
	require.NoError(t, err)
	return raw
}

func (h *harness) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) addEvent(tickets int) domain.Event {
	return h.store.AddEvent(domain.Event{
		Title:            "Sunburn",
		Description:      "Open air festival",
		Date:             time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC),
		Time:             "18:30:00",
		Location:         domain.CityMumbai,
		Category:         domain.CategoryMusic,
		PaymentOptions:   "card",
		Price:            decimal.RequireFromString("500.00"),
		AvailableTickets: tickets,
		CreatedBy:        h.manager.ID,
	})
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func eventBody() gin.H {
	return gin.H{
		"title":             "Sunburn",
		"description":       "Open air festival",
		"date":              "2026-12-20",
		"time":              "18:30",
		"location":          "mumbai",
		"category":          "music",
		"payment_options":   "card, upi",
		"price":             "500.00",
		"available_tickets": 10,
	}
}

func TestAccountsFlow(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(t, http.MethodPost, "/register/", "", gin.H{
		"username": "bob",
		"email":    "bob@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "user", decode[UserResponse](t, w).Role)

	w = h.do(t, http.MethodPost, "/register/", "", gin.H{
		"username": "bob",
		"email":    "bob@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "user_exists", decode[ErrorResponse](t, w).Code)

	w = h.do(t, http.MethodPost, "/login/", "", gin.H{"username": "bob", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_credentials", decode[ErrorResponse](t, w).Code)

	w = h.do(t, http.MethodPost, "/login/", "", gin.H{"username": "bob", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tok := decode[LoginResponse](t, w).Access
	require.NotEmpty(t, tok)

	w = h.do(t, http.MethodGet, "/my-bookings/", tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodPost, "/logout/", tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/my-bookings/", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token_revoked", decode[ErrorResponse](t, w).Code)
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(t, http.MethodGet, "/my-bookings/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthenticated", decode[ErrorResponse](t, w).Code)

	w = h.do(t, http.MethodGet, "/events/", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestManageRole(t *testing.T) {
	h := newHarness(t, nil)
	path := fmt.Sprintf("/manage-role/%d/", h.user.ID)

	w := h.do(t, http.MethodPost, path, h.token(t, h.manager), gin.H{"action": "promote"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(t, http.MethodPost, path, h.token(t, h.admin), gin.H{"action": "crown"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_action", decode[ErrorResponse](t, w).Code)

	w = h.do(t, http.MethodPost, path, h.token(t, h.admin), gin.H{"action": "promote"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "event_manager", decode[UserResponse](t, w).Role)

	// h.user still holds the old role; the server reads the stored one.
	w = h.do(t, http.MethodPost, "/events/", h.token(t, h.user), eventBody())
	assert.Equal(t, http.StatusCreated, w.Code)

	w = h.do(t, http.MethodPost, "/manage-role/999/", h.token(t, h.admin), gin.H{"action": "promote"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventsCRUD(t *testing.T) {
	h := newHarness(t, nil)
	mgr := h.token(t, h.manager)

	w := h.do(t, http.MethodPost, "/events/", h.token(t, h.user), eventBody())
	assert.Equal(t, http.StatusForbidden, w.Code)

	bad := eventBody()
	bad["location"] = "atlantis"
	w = h.do(t, http.MethodPost, "/events/", mgr, bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, w).Code)

	w = h.do(t, http.MethodPost, "/events/", mgr, eventBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[CreateEventResponse](t, w).EventID
	path := fmt.Sprintf("/events/%d/", id)

	w = h.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ev := decode[EventResponse](t, w)
	assert.Equal(t, "500.00", ev.Price)
	assert.Equal(t, "18:30:00", ev.Time)
	assert.Equal(t, 10, ev.AvailableTickets)

	w = h.do(t, http.MethodPatch, path, mgr, gin.H{"available_tickets": 25, "price": "750.5"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ev = decode[EventResponse](t, w)
	assert.Equal(t, 25, ev.AvailableTickets)
	assert.Equal(t, "750.50", ev.Price)

	w = h.do(t, http.MethodGet, "/events/?location=mumbai&category=music", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]EventResponse](t, w), 1)

	w = h.do(t, http.MethodGet, "/events/?date=20-12-2026", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodGet, "/events/abc/", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodDelete, path, mgr, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetEvent_ETag(t *testing.T) {
	h := newHarness(t, nil)
	e := h.addEvent(5)
	path := fmt.Sprintf("/events/%d/", e.ID)

	w := h.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)
	assert.Equal(t, "public, max-age=60", w.Header().Get("Cache-Control"))

	w = h.do(t, http.MethodGet, path, "", nil, "If-None-Match", tag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())

	w = h.do(t, http.MethodGet, path, "", nil, "If-None-Match", `"stale"`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBookingLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	e := h.addEvent(5)
	tok := h.token(t, h.user)

	w := h.do(t, http.MethodPost, "/book-ticket/", tok, gin.H{"event_id": e.ID, "number_of_tickets": 6})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "insufficient_tickets", decode[ErrorResponse](t, w).Code)

	w = h.do(t, http.MethodPost, "/book-ticket/", tok, gin.H{"event_id": e.ID, "number_of_tickets": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPost, "/book-ticket/", tok, gin.H{"event_id": 999, "number_of_tickets": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodPost, "/book-ticket/", tok, gin.H{"event_id": e.ID, "number_of_tickets": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	booked := decode[BookTicketResponse](t, w)
	assert.Equal(t, "1000.00", booked.PaymentAmount)

	left, _ := h.store.Event(e.ID)
	assert.Equal(t, 3, left.AvailableTickets)

	w = h.do(t, http.MethodPost, "/make-payment/", h.token(t, h.manager),
		gin.H{"booking_id": booked.BookingID, "payment_method": "card"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(t, http.MethodPost, "/make-payment/", tok, gin.H{"booking_id": booked.BookingID, "payment_method": "card"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	paid := decode[PaymentResponse](t, w)
	assert.Equal(t, "1000.00", paid.AmountPaid)
	assert.True(t, paid.IsConfirmed)

	w = h.do(t, http.MethodPost, "/make-payment/", tok, gin.H{"booking_id": booked.BookingID, "payment_method": "card"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "already_paid", decode[ErrorResponse](t, w).Code)

	w = h.do(t, http.MethodPost, "/cancel-payment/", tok, gin.H{"booking_id": booked.BookingID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodPost, "/cancel-payment/", tok, gin.H{"booking_id": booked.BookingID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "payment_not_made", decode[ErrorResponse](t, w).Code)

	cancelPath := fmt.Sprintf("/cancel-booking/%d/", booked.BookingID)
	w = h.do(t, http.MethodPost, cancelPath, tok, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	left, _ = h.store.Event(e.ID)
	assert.Equal(t, 5, left.AvailableTickets)

	w = h.do(t, http.MethodPost, cancelPath, tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "already_cancelled", decode[ErrorResponse](t, w).Code)

	w = h.do(t, http.MethodGet, "/my-bookings/", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]BookingResponse](t, w)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsCancelled)
}

func TestDeleteEvent_CascadesToBookings(t *testing.T) {
	h := newHarness(t, nil)
	e := h.addEvent(5)
	tok := h.token(t, h.user)

	w := h.do(t, http.MethodPost, "/book-ticket/", tok, gin.H{"event_id": e.ID, "number_of_tickets": 2})
	require.Equal(t, http.StatusCreated, w.Code)

	w = h.do(t, http.MethodDelete, fmt.Sprintf("/events/%d/", e.ID), h.token(t, h.manager), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodGet, "/my-bookings/", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]BookingResponse](t, w)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsCancelled)
	assert.Nil(t, list[0].EventID)
}

func TestBookTicket_Idempotency(t *testing.T) {
	db, mock := redismock.NewClientMock()
	idem := redisrepo.NewIdempotencyStore(db, time.Hour)
	h := newHarness(t, idem)
	e := h.addEvent(5)
	tok := h.token(t, h.user)

	key := redisrepo.KeyIdemBooking(h.user.ID, "k1")
	fp := requestFingerprint(BookTicketRequest{EventID: e.ID, NumberOfTickets: 1})
	// The booking takes the next ID after the event.
	payload := fmt.Sprintf(`{"booking_id":%d,"payment_amount":"500.00"}`, e.ID+1)
	stored := "RES:" + fp + ":" + payload

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSetNX(key, "LOCK", idemLockTTL).SetVal(true)
	mock.ExpectSet(key, stored, time.Hour).SetVal("OK")

	w := h.do(t, http.MethodPost, "/book-ticket/", tok,
		gin.H{"event_id": e.ID, "number_of_tickets": 1}, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "k1", w.Header().Get("Idempotency-Key"))

	mock.ExpectGet(key).SetVal(stored)

	w = h.do(t, http.MethodPost, "/book-ticket/", tok,
		gin.H{"event_id": e.ID, "number_of_tickets": 1}, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, payload, w.Body.String())

	left, _ := h.store.Event(e.ID)
	assert.Equal(t, 4, left.AvailableTickets, "replay must not book again")

	// Same key, different body.
	mock.ExpectGet(key).SetVal(stored)

	w = h.do(t, http.MethodPost, "/book-ticket/", tok,
		gin.H{"event_id": e.ID, "number_of_tickets": 2}, "Idempotency-Key", "k1")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "idempotency_key_reused", decode[ErrorResponse](t, w).Code)

	left, _ = h.store.Event(e.ID)
	assert.Equal(t, 4, left.AvailableTickets)

	key2 := redisrepo.KeyIdemBooking(h.user.ID, "k2")
	mock.ExpectGet(key2).RedisNil()
	mock.ExpectSetNX(key2, "LOCK", idemLockTTL).SetVal(false)
	mock.ExpectGet(key2).SetVal("LOCK")

	w = h.do(t, http.MethodPost, "/book-ticket/", tok,
		gin.H{"event_id": e.ID, "number_of_tickets": 1}, "Idempotency-Key", "k2")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "idempotency_in_progress", decode[ErrorResponse](t, w).Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", domain.ValidationError{Field: "title", Reason: "required"}, http.StatusBadRequest, "validation_error"},
		{"inventory", domain.InsufficientInventoryError{Requested: 3, Available: 1}, http.StatusBadRequest, "insufficient_tickets"},
		{"already paid", fmt.Errorf("service.booking.Pay: %w", domain.ErrAlreadyPaid), http.StatusBadRequest, "already_paid"},
		{"unauthenticated", domain.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{"permission", domain.ErrPermission, http.StatusForbidden, "forbidden"},
		{"not found", booking.ErrBookingNotFound, http.StatusNotFound, "not_found"},
		{"rate limited", booking.RateLimitedError{RetryAfter: time.Second}, http.StatusTooManyRequests, "rate_limited"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _ := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestPublicMessage_StripsOps(t *testing.T) {
	err := fmt.Errorf("service.booking.Cancel: %w", booking.ErrBookingNotFound)
	assert.Equal(t, "booking not found", publicMessage(err))
}

func TestEtagMatches(t *testing.T) {
	assert.True(t, etagMatches(`W/"abc"`, `W/"abc"`))
	assert.True(t, etagMatches(`"abc"`, `W/"abc"`))
	assert.True(t, etagMatches(`"x", W/"abc"`, `W/"abc"`))
	assert.True(t, etagMatches(`*`, `"abc"`))
	assert.False(t, etagMatches(``, `"abc"`))
	assert.False(t, etagMatches(`"abd"`, `"abc"`))
}
