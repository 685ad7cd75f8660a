// Package inventory owns the per-event ticket counter. Every change to
// events.available_tickets goes through a Ledger.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirinyoku/tixbook/internal/domain"
	"github.com/kirinyoku/tixbook/internal/metrics"
	"github.com/kirinyoku/tixbook/internal/repository"
)

// Store is the storage side of the ledger. Implementations must run the
// check and the decrement of TakeTickets as one atomic step.
type Store interface {
	TakeTickets(ctx context.Context, eventID int64, n int) (domain.InventorySnapshot, error)
	LockTickets(ctx context.Context, eventID int64) error
	ReturnTickets(ctx context.Context, eventID int64, n int) (int, error)
	SetTickets(ctx context.Context, eventID int64, n int) error
}

type Ledger struct {
	store   Store
	metrics *metrics.Metrics
}

func New(store Store, m *metrics.Metrics) *Ledger {
	return &Ledger{store: store, metrics: m}
}

// Reserve takes count tickets from the event. It runs in the transaction
// carried by ctx, so the decrement commits or rolls back together with the
// booking that caused it.
//
// Parameters:
//   - ctx: context carrying the caller's transaction.
//   - eventID: event to take tickets from.
//   - count: positive number of tickets.
//
// Returns:
//   - domain.InventorySnapshot: price per ticket read together with the decrement.
//   - error: domain.ValidationError if count is not positive.
//   - error: inventory.ErrEventNotFound if the event does not exist.
//   - error: domain.InsufficientInventoryError if fewer than count tickets are left.
func (l *Ledger) Reserve(ctx context.Context, eventID int64, count int) (domain.InventorySnapshot, error) {
	const op = "service.inventory.Reserve"

	if count <= 0 {
		return domain.InventorySnapshot{}, domain.ValidationError{
			Field:  "number_of_tickets",
			Reason: "must be a positive integer",
		}
	}

	snap, err := l.store.TakeTickets(ctx, eventID, count)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return snap, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		case errors.Is(err, repository.ErrInsufficientTickets):
			return snap, domain.InsufficientInventoryError{
				EventID:   eventID,
				Requested: count,
				Available: snap.Available,
			}
		}
		return snap, fmt.Errorf("%s: %w", op, err)
	}

	l.metrics.TicketsReserved(count)

	return snap, nil
}

// Lock holds the event's counter for the rest of the transaction in ctx.
// Anything that locks both an event and one of its bookings takes the event
// first, the same order Reserve and the event delete cascade use.
func (l *Ledger) Lock(ctx context.Context, eventID int64) error {
	const op = "service.inventory.Lock"

	if err := l.store.LockTickets(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Release returns count tickets to the event and reports the new counter.
// It does not cap the counter; callers guard against releasing twice.
func (l *Ledger) Release(ctx context.Context, eventID int64, count int) (int, error) {
	const op = "service.inventory.Release"

	if count <= 0 {
		return 0, domain.ValidationError{
			Field:  "number_of_tickets",
			Reason: "must be a positive integer",
		}
	}

	available, err := l.store.ReturnTickets(ctx, eventID, count)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	l.metrics.TicketsReleased(count)

	return available, nil
}

// Restock overwrites the counter on a manager edit.
func (l *Ledger) Restock(ctx context.Context, eventID int64, count int) error {
	const op = "service.inventory.Restock"

	if count < 0 {
		return domain.ValidationError{
			Field:  "available_tickets",
			Reason: "must not be negative",
		}
	}

	if err := l.store.SetTickets(ctx, eventID, count); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
