package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/kirinyoku/tixbook/internal/access"
	"github.com/kirinyoku/tixbook/internal/auth"
	"github.com/kirinyoku/tixbook/internal/domain"
	"github.com/kirinyoku/tixbook/internal/repository"
)

type RoleAction string

const (
	Promote RoleAction = "promote"
	Demote  RoleAction = "demote"
)

const (
	minPasswordLen = 8
	maxUsernameLen = 150
)

type Users interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	SetRole(ctx context.Context, id int64, role domain.Role) (*domain.User, error)
}

type Revoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type Config struct {
	BcryptCost int
}

type Service struct {
	users   Users
	tokens  *auth.Issuer
	revoked Revoker
	policy  *access.Policy
	log     *slog.Logger
	cfg     Config
	now     func() time.Time
}

// New builds the service. revoked may be nil, in which case Logout fails
// and tokens stay valid until they expire.
func New(
	users Users,
	tokens *auth.Issuer,
	revoked Revoker,
	policy *access.Policy,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		users:   users,
		tokens:  tokens,
		revoked: revoked,
		policy:  policy,
		log:     logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

type Registration struct {
	Username string
	Email    string
	Name     string
	Password string
}

func (r Registration) validate() error {
	switch {
	case strings.TrimSpace(r.Username) == "":
		return domain.ValidationError{Field: "username", Reason: "is required"}
	case utf8.RuneCountInString(r.Username) > maxUsernameLen:
		return domain.ValidationError{Field: "username", Reason: "is too long"}
	case utf8.RuneCountInString(r.Password) < minPasswordLen:
		return domain.ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", minPasswordLen)}
	}

	if _, err := mail.ParseAddress(r.Email); err != nil {
		return domain.ValidationError{Field: "email", Reason: "is not a valid address"}
	}

	return nil
}

// Register creates a plain user account.
//
// Returns:
//   - *domain.User: the created user.
//   - error: domain.ValidationError for a malformed field.
//   - error: accounts.ErrUserExists if the username or email is taken.
func (s *Service) Register(ctx context.Context, r Registration) (*domain.User, error) {
	const op = "service.accounts.Register"

	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	r.Name = strings.TrimSpace(r.Name)

	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u, err := s.create(ctx, r, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (s *Service) create(ctx context.Context, r Registration, admin bool) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		Username:     r.Username,
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		IsAdmin:      admin,
	}

	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	return u, nil
}

type Token struct {
	Access    string
	ExpiresAt time.Time
}

// Login checks the credentials and issues an access token.
//
// Returns:
//   - error: accounts.ErrInvalidCredentials if the user is unknown or the
//     password does not match.
func (s *Service) Login(ctx context.Context, username, password string) (*Token, error) {
	const op = "service.accounts.Login"

	if strings.TrimSpace(username) == "" || password == "" {
		return nil, domain.ValidationError{Reason: "username and password are required"}
	}

	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	raw, exp, err := s.tokens.Issue(u)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Token{Access: raw, ExpiresAt: exp}, nil
}

// Logout revokes the token described by claims for the rest of its life.
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	const op = "service.accounts.Logout"

	if claims == nil {
		return fmt.Errorf("%s: %w", op, domain.ErrUnauthenticated)
	}

	if s.revoked == nil {
		return fmt.Errorf("%s: %w", op, ErrRevocationDisabled)
	}

	if err := s.revoked.Revoke(ctx, claims.ID, claims.TTL(s.now())); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Authenticate verifies raw and loads the user it was issued to. The user is
// read fresh so a role change applies to the next request.
//
// Returns:
//   - error: domain.ErrUnauthenticated for a bad, expired or revoked token,
//     or when the user no longer exists.
func (s *Service) Authenticate(ctx context.Context, raw string) (*domain.User, *auth.Claims, error) {
	const op = "service.accounts.Authenticate"

	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.revoked != nil {
		revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		if revoked {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
		}
	}

	id, err := claims.UserID()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, auth.ErrInvalidToken)
		}
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, claims, nil
}

// ManageRole promotes a user to event manager or demotes them back.
//
// Returns:
//   - *domain.User: the user with the new role.
//   - error: domain.ErrPermission unless caller is an admin.
//   - error: accounts.ErrInvalidAction for an unknown action.
//   - error: accounts.ErrUserNotFound if the user does not exist.
func (s *Service) ManageRole(
	ctx context.Context,
	caller *domain.User,
	userID int64,
	action RoleAction,
) (*domain.User, error) {
	const op = "service.accounts.ManageRole"

	if err := s.policy.Authorize(caller, access.ManageRoles, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var role domain.Role
	switch action {
	case Promote:
		role = domain.RoleEventManager
	case Demote:
		role = domain.RoleUser
	default:
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidAction)
	}

	u, err := s.users.SetRole(ctx, userID, role)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.InfoContext(ctx, "user role changed",
		slog.Int64("user_id", u.ID), slog.String("role", string(u.Role)), slog.Int64("by", caller.ID))

	return u, nil
}

// EnsureAdmin creates the admin account if no user has the username yet.
// It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, r Registration) (bool, error) {
	const op = "service.accounts.EnsureAdmin"

	_, err := s.users.GetByUsername(ctx, r.Username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if err := r.validate(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.create(ctx, r, true); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return true, nil
}
