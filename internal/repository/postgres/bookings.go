package postgresrepo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tixbook/internal/domain"
)

type BookingRepo struct {
	pool *pgxpool.Pool
}

const bookingColumns = `id, user_id, event_id, number_of_tickets, price_per_ticket,
	payment_amount, is_paid, is_confirmed, is_cancelled, payment_method, created_at`

func scanBooking(row pgx.Row, b *domain.Booking) error {
	return row.Scan(
		&b.ID, &b.UserID, &b.EventID, &b.NumberOfTickets, &b.PricePerTicket,
		&b.PaymentAmount, &b.IsPaid, &b.IsConfirmed, &b.IsCancelled,
		&b.PaymentMethod, &b.CreatedAt,
	)
}

// Create inserts b and sets its ID and CreatedAt.
func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "postgresrepo.BookingRepo.Create"

	if err := handle(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO bookings(user_id, event_id, number_of_tickets, price_per_ticket,
		                      payment_amount, is_paid, is_confirmed, is_cancelled, payment_method)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		b.UserID, b.EventID, b.NumberOfTickets, b.PricePerTicket,
		b.PaymentAmount, b.IsPaid, b.IsConfirmed, b.IsCancelled, b.PaymentMethod,
	).Scan(&b.ID, &b.CreatedAt); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *BookingRepo) Get(ctx context.Context, id int64) (*domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.Get"

	var b domain.Booking
	row := handle(ctx, r.pool).QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`,
		id,
	)
	if err := scanBooking(row, &b); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &b, nil
}

// GetForUpdate locks the booking row until the surrounding transaction ends.
func (r *BookingRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.GetForUpdate"

	var b domain.Booking
	row := handle(ctx, r.pool).QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`,
		id,
	)
	if err := scanBooking(row, &b); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &b, nil
}

// Save persists the state flags of b. Amounts and references are immutable.
func (r *BookingRepo) Save(ctx context.Context, b *domain.Booking) error {
	const op = "postgresrepo.BookingRepo.Save"

	tag, err := handle(ctx, r.pool).Exec(ctx,
		`UPDATE bookings
		 SET is_paid = $2, is_confirmed = $3, is_cancelled = $4, payment_method = $5
		 WHERE id = $1`,
		b.ID, b.IsPaid, b.IsConfirmed, b.IsCancelled, b.PaymentMethod,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, pgx.ErrNoRows)
	}

	return nil
}

func (r *BookingRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.ListByUser"

	rows, err := handle(ctx, r.pool).Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := scanBooking(rows, &b); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// CancelAllForEvent voids every live booking of the event in one statement
// and returns how many changed. Inventory is left alone.
func (r *BookingRepo) CancelAllForEvent(ctx context.Context, eventID int64) (int64, error) {
	const op = "postgresrepo.BookingRepo.CancelAllForEvent"

	tag, err := handle(ctx, r.pool).Exec(ctx,
		`UPDATE bookings
		 SET is_cancelled = TRUE, is_paid = FALSE, is_confirmed = FALSE, payment_method = NULL
		 WHERE event_id = $1 AND NOT is_cancelled`,
		eventID,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}
