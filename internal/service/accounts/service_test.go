package accounts_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kirinyoku/tixbook/internal/access"
	"github.com/kirinyoku/tixbook/internal/auth"
	"github.com/kirinyoku/tixbook/internal/domain"
	"github.com/kirinyoku/tixbook/internal/service/accounts"
	"github.com/kirinyoku/tixbook/internal/testutil"
)

type memRevoker struct {
	mu  sync.Mutex
	ids map[string]time.Duration
}

func (r *memRevoker) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[jti] = ttl
	return nil
}

func (r *memRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[jti]
	return ok, nil
}

func newService(t *testing.T) (*accounts.Service, *testutil.MemStore, *memRevoker) {
	t.Helper()

	store := testutil.NewMemStore()
	rev := &memRevoker{ids: make(map[string]time.Duration)}
	svc := accounts.New(
		store.Users(),
		auth.NewIssuer("test-secret", time.Hour),
		rev,
		access.New(),
		nil,
		accounts.Config{BcryptCost: bcrypt.MinCost},
	)

	return svc, store, rev
}

func register(t *testing.T, svc *accounts.Service, username string) *domain.User {
	t.Helper()

	u, err := svc.Register(context.Background(), accounts.Registration{
		Username: username,
		Email:    username + "@example.com",
		Name:     "Test " + username,
		Password: "password123",
	})
	require.NoError(t, err)

	return u
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	u := register(t, svc, "alice")
	assert.Equal(t, domain.RoleUser, u.Role)
	assert.False(t, u.IsAdmin)
	assert.NotEqual(t, "password123", u.PasswordHash)

	t.Run("duplicate", func(t *testing.T) {
		_, err := svc.Register(ctx, accounts.Registration{
			Username: "alice", Email: "other@example.com", Password: "password123",
		})
		assert.ErrorIs(t, err, accounts.ErrUserExists)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("invalid fields", func(t *testing.T) {
		cases := []accounts.Registration{
			{Username: "", Email: "a@example.com", Password: "password123"},
			{Username: "bob", Email: "not-an-email", Password: "password123"},
			{Username: "bob", Email: "bob@example.com", Password: "short"},
		}
		for _, r := range cases {
			_, err := svc.Register(ctx, r)
			assert.ErrorIs(t, err, domain.ErrValidation)
		}
	})
}

func TestLoginAuthenticateLogout(t *testing.T) {
	ctx := context.Background()
	svc, _, rev := newService(t)
	u := register(t, svc, "alice")

	_, err := svc.Login(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, accounts.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody", "password123")
	assert.ErrorIs(t, err, accounts.ErrInvalidCredentials)

	tok, err := svc.Login(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Access)
	assert.True(t, tok.ExpiresAt.After(time.Now()))

	got, claims, err := svc.Authenticate(ctx, tok.Access)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	require.NoError(t, svc.Logout(ctx, claims))
	assert.Contains(t, rev.ids, claims.ID)

	_, _, err = svc.Authenticate(ctx, tok.Access)
	assert.ErrorIs(t, err, accounts.ErrTokenRevoked)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, _, err = svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestManageRole(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)

	created, err := svc.EnsureAdmin(ctx, accounts.Registration{
		Username: "root", Email: "root@example.com", Password: "supersecret",
	})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureAdmin(ctx, accounts.Registration{
		Username: "root", Email: "root@example.com", Password: "supersecret",
	})
	require.NoError(t, err)
	assert.False(t, created)

	tok, err := svc.Login(ctx, "root", "supersecret")
	require.NoError(t, err)
	admin, _, err := svc.Authenticate(ctx, tok.Access)
	require.NoError(t, err)
	require.True(t, admin.IsAdmin)

	alice := register(t, svc, "alice")

	promoted, err := svc.ManageRole(ctx, admin, alice.ID, accounts.Promote)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEventManager, promoted.Role)

	// The next authenticated request sees the new role.
	aliceTok, err := svc.Login(ctx, "alice", "password123")
	require.NoError(t, err)
	seen, _, err := svc.Authenticate(ctx, aliceTok.Access)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEventManager, seen.Role)

	demoted, err := svc.ManageRole(ctx, admin, alice.ID, accounts.Demote)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, demoted.Role)

	stored, err := store.Users().GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, stored.Role)

	_, err = svc.ManageRole(ctx, admin, alice.ID, "crown")
	assert.ErrorIs(t, err, accounts.ErrInvalidAction)

	_, err = svc.ManageRole(ctx, admin, 999, accounts.Promote)
	assert.ErrorIs(t, err, accounts.ErrUserNotFound)

	_, err = svc.ManageRole(ctx, alice, admin.ID, accounts.Promote)
	assert.ErrorIs(t, err, domain.ErrPermission)
}
