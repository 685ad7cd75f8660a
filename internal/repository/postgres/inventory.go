package postgresrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tixbook/internal/domain"
	"github.com/kirinyoku/tixbook/internal/repository"
)

// InventoryRepo is the only writer of events.available_tickets.
type InventoryRepo struct {
	pool *pgxpool.Pool
}

// TakeTickets decrements the event's counter by n if at least n tickets are
// left. The check and the decrement are one statement, so concurrent callers
// queue on the row lock and each re-evaluates the predicate against the
// committed counter.
//
// Parameters:
//   - ctx: request-scoped context; joins the transaction it carries.
//   - eventID: event whose counter is decremented.
//   - n: number of tickets to take.
//
// Returns:
//   - domain.InventorySnapshot: the ticket price and the counter after the
//     decrement. On ErrInsufficientTickets, Available holds the unchanged counter.
//   - error: repository.ErrNotFound if the event does not exist.
//   - error: repository.ErrInsufficientTickets if fewer than n tickets are left.
func (r *InventoryRepo) TakeTickets(ctx context.Context, eventID int64, n int) (domain.InventorySnapshot, error) {
	const op = "postgresrepo.InventoryRepo.TakeTickets"

	db := handle(ctx, r.pool)

	snap := domain.InventorySnapshot{EventID: eventID}
	err := db.QueryRow(ctx,
		`UPDATE events
		 SET available_tickets = available_tickets - $2
		 WHERE id = $1 AND available_tickets >= $2
		 RETURNING price, available_tickets`,
		eventID, n,
	).Scan(&snap.Price, &snap.Available)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return snap, wrapDBErr(op, err)
	}

	if err := db.QueryRow(ctx,
		`SELECT price, available_tickets FROM events WHERE id = $1`,
		eventID,
	).Scan(&snap.Price, &snap.Available); err != nil {
		return snap, wrapDBErr(op, err)
	}

	return snap, fmt.Errorf("%s: %w", op, repository.ErrInsufficientTickets)
}

// LockTickets takes the row lock that TakeTickets and ReturnTickets would
// take, without changing the counter. Callers that later lock a booking of
// the event use it to hold the event lock first.
func (r *InventoryRepo) LockTickets(ctx context.Context, eventID int64) error {
	const op = "postgresrepo.InventoryRepo.LockTickets"

	var one int
	if err := handle(ctx, r.pool).QueryRow(ctx,
		`SELECT 1 FROM events WHERE id = $1 FOR NO KEY UPDATE`,
		eventID,
	).Scan(&one); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// ReturnTickets adds n tickets back to the event's counter and returns the
// new value.
func (r *InventoryRepo) ReturnTickets(ctx context.Context, eventID int64, n int) (int, error) {
	const op = "postgresrepo.InventoryRepo.ReturnTickets"

	var available int
	if err := handle(ctx, r.pool).QueryRow(ctx,
		`UPDATE events
		 SET available_tickets = available_tickets + $2
		 WHERE id = $1
		 RETURNING available_tickets`,
		eventID, n,
	).Scan(&available); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return available, nil
}

// SetTickets overwrites the counter.
func (r *InventoryRepo) SetTickets(ctx context.Context, eventID int64, n int) error {
	const op = "postgresrepo.InventoryRepo.SetTickets"

	tag, err := handle(ctx, r.pool).Exec(ctx,
		`UPDATE events SET available_tickets = $2 WHERE id = $1`,
		eventID, n,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, pgx.ErrNoRows)
	}

	return nil
}
