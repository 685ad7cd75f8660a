package postgresrepo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tixbook/internal/domain"
)

type EventRepo struct {
	pool *pgxpool.Pool
}

const eventColumns = `id, title, description, event_date, to_char(event_time, 'HH24:MI:SS'),
	location, category, payment_options, price, available_tickets, created_by`

func scanEvent(row pgx.Row, e *domain.Event) error {
	var location, category string

	if err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.Date, &e.Time,
		&location, &category, &e.PaymentOptions, &e.Price,
		&e.AvailableTickets, &e.CreatedBy,
	); err != nil {
		return err
	}

	e.Location = domain.City(location)
	e.Category = domain.Category(category)

	return nil
}

// Create inserts e and sets its ID.
func (r *EventRepo) Create(ctx context.Context, e *domain.Event) error {
	const op = "postgresrepo.EventRepo.Create"

	db := handle(ctx, r.pool)

	if err := db.QueryRow(ctx,
		`INSERT INTO events(title, description, event_date, event_time, location,
		                    category, payment_options, price, available_tickets, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		e.Title, e.Description, e.Date, e.Time, string(e.Location),
		string(e.Category), e.PaymentOptions, e.Price, e.AvailableTickets, e.CreatedBy,
	).Scan(&e.ID); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Get retrieves an event by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if the event does not exist.
func (r *EventRepo) Get(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgresrepo.EventRepo.Get"

	var e domain.Event
	row := handle(ctx, r.pool).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`,
		id,
	)
	if err := scanEvent(row, &e); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &e, nil
}

// GetForUpdate is Get with a row lock held until the surrounding transaction
// ends.
func (r *EventRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgresrepo.EventRepo.GetForUpdate"

	var e domain.Event
	row := handle(ctx, r.pool).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`,
		id,
	)
	if err := scanEvent(row, &e); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &e, nil
}

// List returns events matching every non-empty field of f, ordered by date.
func (r *EventRepo) List(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	const op = "postgresrepo.EventRepo.List"

	var (
		where []string
		args  []any
	)

	if f.Location != "" {
		args = append(args, string(f.Location))
		where = append(where, fmt.Sprintf("location = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, string(f.Category))
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Date != nil {
		args = append(args, *f.Date)
		where = append(where, fmt.Sprintf("event_date = $%d", len(args)))
	}

	sql := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY event_date, event_time, id`

	rows, err := handle(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// Update writes the descriptive fields of e. The ticket counter is owned by
// InventoryRepo and is not touched here.
func (r *EventRepo) Update(ctx context.Context, e *domain.Event) error {
	const op = "postgresrepo.EventRepo.Update"

	tag, err := handle(ctx, r.pool).Exec(ctx,
		`UPDATE events
		 SET title = $2, description = $3, event_date = $4, event_time = $5,
		     location = $6, category = $7, payment_options = $8, price = $9
		 WHERE id = $1`,
		e.ID, e.Title, e.Description, e.Date, e.Time,
		string(e.Location), string(e.Category), e.PaymentOptions, e.Price,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, pgx.ErrNoRows)
	}

	return nil
}

// Delete removes the event. Bookings keep their rows with a NULL event_id.
func (r *EventRepo) Delete(ctx context.Context, id int64) error {
	const op = "postgresrepo.EventRepo.Delete"

	tag, err := handle(ctx, r.pool).Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, pgx.ErrNoRows)
	}

	return nil
}
