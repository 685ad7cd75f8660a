package accounts

import (
	"errors"
	"fmt"

	"github.com/kirinyoku/tixbook/internal/domain"
)

var (
	ErrUserExists         = fmt.Errorf("%w: username or email already registered", domain.ErrValidation)
	ErrInvalidCredentials = fmt.Errorf("invalid username or password: %w", domain.ErrUnauthenticated)
	ErrTokenRevoked       = fmt.Errorf("token has been revoked: %w", domain.ErrUnauthenticated)
	ErrInvalidAction      = fmt.Errorf("%w: action must be promote or demote", domain.ErrValidation)
	ErrUserNotFound       = fmt.Errorf("user %w", domain.ErrNotFound)
	ErrRevocationDisabled = errors.New("token revocation is not configured")
)
