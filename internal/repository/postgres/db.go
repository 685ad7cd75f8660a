package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn in a transaction carried by the context passed to fn.
// Repositories called with that context join the transaction. A nested
// RunTx reuses the outer transaction.
//
// The default isolation is read committed: inventory writes are conditional
// updates and booking transitions take row locks, so the row lock is what
// orders concurrent writers.
func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context) error,
) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *Store) Events() *EventRepo         { return &EventRepo{pool: s.pool} }
func (s *Store) Bookings() *BookingRepo     { return &BookingRepo{pool: s.pool} }
func (s *Store) Inventory() *InventoryRepo { return &InventoryRepo{pool: s.pool} }
func (s *Store) Users() *UserRepo           { return &UserRepo{pool: s.pool} }

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// handle returns the transaction bound to ctx, or the pool.
func handle(ctx context.Context, pool *pgxpool.Pool) DB {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}
