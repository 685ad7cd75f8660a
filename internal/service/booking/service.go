package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kirinyoku/tixbook/internal/access"
	"github.com/kirinyoku/tixbook/internal/domain"
	"github.com/kirinyoku/tixbook/internal/metrics"
	"github.com/kirinyoku/tixbook/internal/repository"
	"github.com/kirinyoku/tixbook/internal/service/inventory"
	"github.com/kirinyoku/tixbook/internal/uow"
)

type Bookings interface {
	Create(ctx context.Context, b *domain.Booking) error
	Get(ctx context.Context, id int64) (*domain.Booking, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.Booking, error)
	Save(ctx context.Context, b *domain.Booking) error
	ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error)
}

type Transactor interface {
	Do(ctx context.Context, fn func(ctx context.Context, after func(uow.AfterCommit)) error) error
}

type Cache interface {
	InvalidateEvent(ctx context.Context, eventID int64) error
}

// Publisher tells other instances that an event's counter moved.
type Publisher interface {
	PublishInventoryChanged(ctx context.Context, eventID int64, available int) error
}

type Limiter interface {
	Allow(ctx context.Context, suffix string) (bool, int64, time.Duration, error)
}

type Service struct {
	tx       Transactor
	bookings Bookings
	ledger   *inventory.Ledger
	policy   *access.Policy

	cache   Cache
	pub     Publisher
	limiter Limiter
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }
func WithPublisher(p Publisher) Option { return func(s *Service) { s.pub = p } }
func WithLimiter(l Limiter) Option { return func(s *Service) { s.limiter = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(
	tx Transactor,
	bookings Bookings,
	ledger *inventory.Ledger,
	policy *access.Policy,
	opts ...Option,
) *Service {
	s := &Service{
		tx:       tx,
		bookings: bookings,
		ledger:   ledger,
		policy:   policy,
		log:      slog.Default(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Book reserves count tickets of the event for user and records the booking.
// The inventory decrement and the booking insert commit together.
//
// Parameters:
//   - ctx: request-scoped context.
//   - user: the caller.
//   - eventID: event to book.
//   - count: number of tickets, must be positive.
//
// Returns:
//   - *domain.Booking: the new booking with price and amount fixed.
//   - error: domain.ErrUnauthenticated if user is nil.
//   - error: domain.ValidationError if count is not positive.
//   - error: booking.ErrRateLimited if the user books too often.
//   - error: inventory.ErrEventNotFound if the event does not exist.
//   - error: domain.InsufficientInventoryError if not enough tickets are left.
func (s *Service) Book(
	ctx context.Context,
	user *domain.User,
	eventID int64,
	count int,
) (*domain.Booking, error) {
	const op = "service.booking.Book"

	if err := s.policy.Authorize(user, access.BookTickets, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if count <= 0 {
		return nil, domain.ValidationError{Field: "number_of_tickets", Reason: "must be a positive integer"}
	}

	if s.limiter != nil {
		ok, _, retry, err := s.limiter.Allow(ctx, strconv.FormatInt(user.ID, 10))
		if err != nil {
			s.log.WarnContext(ctx, "booking rate limiter unavailable", slog.String("op", op), slog.Any("err", err))
		} else if !ok {
			s.metrics.BookingOutcome("rate_limited")
			return nil, fmt.Errorf("%s: %w", op, RateLimitedError{RetryAfter: retry})
		}
	}

	var booking *domain.Booking

	err := s.tx.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		snap, err := s.ledger.Reserve(ctx, eventID, count)
		if err != nil {
			return err
		}

		b, err := domain.NewBooking(user.ID, eventID, count, snap.Price, s.now())
		if err != nil {
			return err
		}

		if err := s.bookings.Create(ctx, b); err != nil {
			return err
		}

		booking = b

		after(func(ctx context.Context) {
			s.inventoryChanged(ctx, op, eventID, snap.Available)
		})

		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientInventory) {
			s.metrics.BookingOutcome("insufficient")
		} else {
			s.metrics.BookingOutcome("failed")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.BookingOutcome("created")

	return booking, nil
}

// Pay records a payment for the caller's booking.
//
// Returns:
//   - error: booking.ErrBookingNotFound if the booking does not exist.
//   - error: domain.ErrPermission if the caller does not own it.
//   - error: domain.ErrAlreadyPaid or domain.ErrBookingCancelled.
func (s *Service) Pay(
	ctx context.Context,
	user *domain.User,
	bookingID int64,
	method string,
) (*domain.Booking, error) {
	const op = "service.booking.Pay"

	method = strings.TrimSpace(method)
	if method == "" {
		return nil, domain.ValidationError{Field: "payment_method", Reason: "is required"}
	}

	b, err := s.transition(ctx, user, bookingID, access.PayBooking, false,
		func(ctx context.Context, b *domain.Booking, _ func(uow.AfterCommit)) error {
			return b.Pay(method)
		})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.PaymentOp("pay")

	return b, nil
}

// CancelPayment clears the payment of the caller's booking. The booking
// stays live and its tickets stay reserved.
func (s *Service) CancelPayment(
	ctx context.Context,
	user *domain.User,
	bookingID int64,
) (*domain.Booking, error) {
	const op = "service.booking.CancelPayment"

	b, err := s.transition(ctx, user, bookingID, access.CancelPayment, false,
		func(ctx context.Context, b *domain.Booking, _ func(uow.AfterCommit)) error {
			return b.CancelPayment()
		})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.PaymentOp("cancel_payment")

	return b, nil
}

// Cancel cancels the caller's booking and returns its tickets to the event,
// if the event still exists. A second cancel fails with
// domain.ErrAlreadyCancelled and releases nothing.
func (s *Service) Cancel(
	ctx context.Context,
	user *domain.User,
	bookingID int64,
) (*domain.Booking, error) {
	const op = "service.booking.Cancel"

	var refunded bool

	b, err := s.transition(ctx, user, bookingID, access.CancelBooking, true,
		func(ctx context.Context, b *domain.Booking, after func(uow.AfterCommit)) error {
			refund, err := b.Cancel()
			if err != nil {
				return err
			}
			refunded = refund

			if b.EventID == nil {
				return nil
			}

			eventID := *b.EventID
			available, err := s.ledger.Release(ctx, eventID, b.NumberOfTickets)
			if err != nil {
				// The event row is gone but the FK has not nulled the booking yet.
				if errors.Is(err, inventory.ErrEventNotFound) {
					return nil
				}
				return err
			}

			after(func(ctx context.Context) {
				s.inventoryChanged(ctx, op, eventID, available)
			})

			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if refunded {
		s.metrics.PaymentOp("refund")
	}

	return b, nil
}

// ListMine returns the caller's bookings, newest first.
func (s *Service) ListMine(ctx context.Context, user *domain.User) ([]domain.Booking, error) {
	const op = "service.booking.ListMine"

	if err := s.policy.Authorize(user, access.ViewOwnBookings, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out, err := s.bookings.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// transition locks the booking, checks the caller against the policy,
// applies apply and saves the result in one transaction. With eventFirst the
// booking's event is locked before the booking, which any transition that
// touches the event's counter needs.
func (s *Service) transition(
	ctx context.Context,
	user *domain.User,
	bookingID int64,
	action access.Action,
	eventFirst bool,
	apply func(ctx context.Context, b *domain.Booking, after func(uow.AfterCommit)) error,
) (*domain.Booking, error) {
	if user == nil {
		return nil, domain.ErrUnauthenticated
	}

	var out *domain.Booking

	err := s.tx.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		if eventFirst {
			if err := s.lockEventOf(ctx, bookingID); err != nil {
				return err
			}
		}

		b, err := s.bookings.GetForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrBookingNotFound
			}
			return err
		}

		if err := s.policy.Authorize(user, action, b); err != nil {
			return err
		}

		if err := apply(ctx, b, after); err != nil {
			return err
		}

		if err := s.bookings.Save(ctx, b); err != nil {
			return err
		}

		out = b

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// lockEventOf locks the event the booking points at. The event may be gone
// or the booking may move off it before the booking lock is taken; the
// caller re-reads the booking under its own lock either way.
func (s *Service) lockEventOf(ctx context.Context, bookingID int64) error {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBookingNotFound
		}
		return err
	}

	if b.EventID == nil {
		return nil
	}

	if err := s.ledger.Lock(ctx, *b.EventID); err != nil && !errors.Is(err, inventory.ErrEventNotFound) {
		return err
	}

	return nil
}

func (s *Service) inventoryChanged(ctx context.Context, op string, eventID int64, available int) {
	if s.cache != nil {
		if err := s.cache.InvalidateEvent(ctx, eventID); err != nil {
			s.log.WarnContext(ctx, "event cache invalidation failed",
				slog.String("op", op), slog.Int64("event_id", eventID), slog.Any("err", err))
		}
	}

	if s.pub != nil {
		if err := s.pub.PublishInventoryChanged(ctx, eventID, available); err != nil {
			s.log.WarnContext(ctx, "inventory change publish failed",
				slog.String("op", op), slog.Int64("event_id", eventID), slog.Any("err", err))
		}
	}
}
