package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirinyoku/tixbook/internal/access"
	"github.com/kirinyoku/tixbook/internal/domain"
	"github.com/kirinyoku/tixbook/internal/uow"
)

// DeleteEvent removes an event owned by user together with its bookings'
// live state. In one transaction every booking of the event is cancelled
// with its payment cleared, then the event row is deleted and the bookings
// keep a nil event reference. No tickets are released. Any failure leaves
// the event and all its bookings untouched.
//
// Returns:
//   - int64: number of bookings cancelled.
//   - error: catalog.ErrEventNotFound if the event does not exist.
//   - error: domain.ErrPermission unless user is the owning manager.
func (s *Service) DeleteEvent(ctx context.Context, user *domain.User, id int64) (int64, error) {
	const op = "service.catalog.DeleteEvent"

	if user == nil {
		return 0, fmt.Errorf("%s: %w", op, domain.ErrUnauthenticated)
	}

	var cancelled int64

	err := s.tx.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		if _, err := s.lockOwned(ctx, user, id, access.DeleteEvent); err != nil {
			return err
		}

		n, err := s.bookings.CancelAllForEvent(ctx, id)
		if err != nil {
			return err
		}

		if err := s.events.Delete(ctx, id); err != nil {
			return err
		}

		cancelled = n

		after(func(ctx context.Context) {
			s.eventChanged(ctx, op, id)
		})

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.EventDeleted(cancelled)
	s.log.InfoContext(ctx, "event deleted",
		slog.Int64("event_id", id), slog.Int64("bookings_cancelled", cancelled))

	return cancelled, nil
}
