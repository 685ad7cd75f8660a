package postgresrepo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tixbook/internal/domain"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

const userColumns = `id, username, email, name, password_hash, role, is_admin, created_at`

func scanUser(row pgx.Row, u *domain.User) error {
	var role string

	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.Name, &u.PasswordHash,
		&role, &u.IsAdmin, &u.CreatedAt,
	); err != nil {
		return err
	}

	u.Role = domain.Role(role)

	return nil
}

// Create inserts u and sets its ID and CreatedAt.
//
// Returns:
//   - error: repository.ErrConflict if the username or email is taken.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	const op = "postgresrepo.UserRepo.Create"

	if err := handle(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO users(username, email, name, password_hash, role, is_admin)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		u.Username, u.Email, u.Name, u.PasswordHash, string(u.Role), u.IsAdmin,
	).Scan(&u.ID, &u.CreatedAt); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	const op = "postgresrepo.UserRepo.GetByID"

	var u domain.User
	row := handle(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	)
	if err := scanUser(row, &u); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &u, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	const op = "postgresrepo.UserRepo.GetByUsername"

	var u domain.User
	row := handle(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`,
		username,
	)
	if err := scanUser(row, &u); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &u, nil
}

// SetRole changes the user's role and returns the updated row.
func (r *UserRepo) SetRole(ctx context.Context, id int64, role domain.Role) (*domain.User, error) {
	const op = "postgresrepo.UserRepo.SetRole"

	var u domain.User
	row := handle(ctx, r.pool).QueryRow(ctx,
		`UPDATE users SET role = $2 WHERE id = $1 RETURNING `+userColumns,
		id, string(role),
	)
	if err := scanUser(row, &u); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &u, nil
}
