package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/tixbook/internal/access"
	"github.com/kirinyoku/tixbook/internal/domain"
	"github.com/kirinyoku/tixbook/internal/metrics"
	"github.com/kirinyoku/tixbook/internal/repository"
	redisrepo "github.com/kirinyoku/tixbook/internal/repository/redis"
	"github.com/kirinyoku/tixbook/internal/service/inventory"
	"github.com/kirinyoku/tixbook/internal/uow"
)

type Events interface {
	Create(ctx context.Context, e *domain.Event) error
	Get(ctx context.Context, id int64) (*domain.Event, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.Event, error)
	List(ctx context.Context, f domain.EventFilter) ([]domain.Event, error)
	Update(ctx context.Context, e *domain.Event) error
	Delete(ctx context.Context, id int64) error
}

// BookingCanceller voids the live bookings of an event in bulk.
type BookingCanceller interface {
	CancelAllForEvent(ctx context.Context, eventID int64) (int64, error)
}

type Transactor interface {
	Do(ctx context.Context, fn func(ctx context.Context, after func(uow.AfterCommit)) error) error
}

type Publisher interface {
	PublishEventChanged(ctx context.Context, eventID int64) error
}

type Config struct {
	EventTTL time.Duration
}

type Service struct {
	tx       Transactor
	events   Events
	bookings BookingCanceller
	ledger   *inventory.Ledger
	policy   *access.Policy

	cache   *redisrepo.Cache
	pub     Publisher
	metrics *metrics.Metrics
	log     *slog.Logger
	cfg     Config
}

type Deps struct {
	Tx       Transactor
	Events   Events
	Bookings BookingCanceller
	Ledger   *inventory.Ledger
	Policy   *access.Policy

	// Optional.
	Cache     *redisrepo.Cache
	Publisher Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func New(d Deps, cfg Config) *Service {
	if cfg.EventTTL <= 0 {
		cfg.EventTTL = 60 * time.Second
	}

	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		tx:       d.Tx,
		events:   d.Events,
		bookings: d.Bookings,
		ledger:   d.Ledger,
		policy:   d.Policy,
		cache:    d.Cache,
		pub:      d.Publisher,
		metrics:  d.Metrics,
		log:      log,
		cfg:      cfg,
	}
}

// CreateEvent validates in and stores it as an event owned by user.
//
// Returns:
//   - *domain.Event: the stored event.
//   - error: domain.ErrPermission unless user is an event manager.
//   - error: domain.ValidationError for a malformed field.
func (s *Service) CreateEvent(ctx context.Context, user *domain.User, in EventInput) (*domain.Event, error) {
	const op = "service.catalog.CreateEvent"

	if err := s.policy.Authorize(user, access.CreateEvent, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	e, err := in.event(user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.events.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return e, nil
}

// GetEvent reads an event through the cache.
//
// Returns:
//   - error: catalog.ErrEventNotFound if the event does not exist.
func (s *Service) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "service.catalog.GetEvent"

	event, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyEvent(id),
		s.cfg.EventTTL,
		func(ctx context.Context) (domain.Event, error) {
			e, err := s.events.Get(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Event{}, ErrEventNotFound
				}

				return domain.Event{}, err
			}

			return *e, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &event, nil
}

// ListEvents returns the events matching every set filter field, soonest
// first.
func (s *Service) ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	const op = "service.catalog.ListEvents"

	if f.Location != "" && !f.Location.Valid() {
		return nil, domain.ValidationError{Field: "location", Reason: "unknown city"}
	}
	if f.Category != "" && !f.Category.Valid() {
		return nil, domain.ValidationError{Field: "category", Reason: "unknown category"}
	}

	events, err := s.events.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return events, nil
}

// UpdateEvent applies patch to an event owned by user. A change of
// available tickets is written through the inventory ledger.
//
// Returns:
//   - *domain.Event: the event after the update.
//   - error: catalog.ErrEventNotFound if the event does not exist.
//   - error: domain.ErrPermission unless user is the owning manager.
//   - error: domain.ValidationError for a malformed field.
func (s *Service) UpdateEvent(
	ctx context.Context,
	user *domain.User,
	id int64,
	patch EventPatch,
) (*domain.Event, error) {
	const op = "service.catalog.UpdateEvent"

	if user == nil {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrUnauthenticated)
	}

	var out *domain.Event

	err := s.tx.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		e, err := s.lockOwned(ctx, user, id, access.UpdateEvent)
		if err != nil {
			return err
		}

		before := e.AvailableTickets

		if err := patch.apply(e); err != nil {
			return err
		}

		if err := s.events.Update(ctx, e); err != nil {
			return err
		}

		if e.AvailableTickets != before {
			if err := s.ledger.Restock(ctx, id, e.AvailableTickets); err != nil {
				return err
			}
		}

		out = e

		after(func(ctx context.Context) {
			s.eventChanged(ctx, op, id)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// lockOwned loads the event with a row lock and checks that user may
// perform action on it.
func (s *Service) lockOwned(
	ctx context.Context,
	user *domain.User,
	id int64,
	action access.Action,
) (*domain.Event, error) {
	e, err := s.events.GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	if err := s.policy.Authorize(user, action, e); err != nil {
		return nil, err
	}

	return e, nil
}

// InvalidateEvent drops the cached copy of the event.
func (s *Service) InvalidateEvent(ctx context.Context, id int64) error {
	if s.cache == nil {
		return nil
	}

	return s.cache.InvalidateEvent(ctx, id)
}

func (s *Service) eventChanged(ctx context.Context, op string, id int64) {
	if err := s.InvalidateEvent(ctx, id); err != nil {
		s.log.WarnContext(ctx, "event cache invalidation failed",
			slog.String("op", op), slog.Int64("event_id", id), slog.Any("err", err))
	} else {
		s.metrics.CacheInvalidated("write")
	}

	if s.pub != nil {
		if err := s.pub.PublishEventChanged(ctx, id); err != nil {
			s.log.WarnContext(ctx, "event change publish failed",
				slog.String("op", op), slog.Int64("event_id", id), slog.Any("err", err))
		}
	}
}
