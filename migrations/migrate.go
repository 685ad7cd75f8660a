package migrations

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed *.sql
var migrationFiles embed.FS

const advisoryLockID int64 = 712093455

// Apply runs the embedded SQL files in name order, skipping those already
// recorded in schema_migrations. Concurrent callers are serialized by an
// advisory lock.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	const op = "migrations.Apply"

	entries, err := migrationFiles.ReadDir(".")
	if err != nil {
		return fmt.Errorf("%s: read migrations: %w", op, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%s: acquire conn: %w", op, err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockID); err != nil {
		return fmt.Errorf("%s: acquire lock: %w", op, err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, advisoryLockID)
	}()

	if _, err := conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("%s: ensure schema_migrations: %w", op, err)
	}

	for _, name := range names {
		var applied bool
		if err := conn.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`,
			name,
		).Scan(&applied); err != nil {
			return fmt.Errorf("%s: check %s: %w", op, name, err)
		}
		if applied {
			continue
		}

		b, err := migrationFiles.ReadFile(name)
		if err != nil {
			return fmt.Errorf("%s: read %s: %w", op, name, err)
		}

		sql := strings.TrimSpace(string(b))
		if sql == "" {
			continue
		}

		if _, err := conn.Exec(ctx, sql); err != nil {
			return fmt.Errorf("%s: exec %s: %w", op, name, err)
		}
		if _, err := conn.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			return fmt.Errorf("%s: record %s: %w", op, name, err)
		}
	}

	return nil
}
