package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tixbook/internal/domain"
)

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	u := &domain.User{ID: 42, Role: domain.RoleEventManager}

	raw, exp, err := iss.Issue(u)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := iss.Parse(raw)
	require.NoError(t, err)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "event_manager", claims.Role)
	assert.NotEmpty(t, claims.ID)
	assert.InDelta(t, time.Hour.Seconds(), claims.TTL(time.Now()).Seconds(), 5)
}

func TestIssuer_UniqueIDs(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	u := &domain.User{ID: 1}

	a, _, err := iss.Issue(u)
	require.NoError(t, err)
	b, _, err := iss.Issue(u)
	require.NoError(t, err)

	ca, err := iss.Parse(a)
	require.NoError(t, err)
	cb, err := iss.Parse(b)
	require.NoError(t, err)
	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestIssuer_Rejects(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	iss := NewIssuer("secret", time.Minute).WithClock(func() time.Time { return base })
	u := &domain.User{ID: 1}

	raw, _, err := iss.Issue(u)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later := iss.WithClock(func() time.Time { return base.Add(2 * time.Minute) })
		_, err := later.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewIssuer("other", time.Minute).WithClock(func() time.Time { return base })
		_, err := other.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := iss.Parse("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other algorithm", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "1",
				ID:        "x",
				ExpiresAt: jwt.NewNumericDate(base.Add(time.Minute)),
			},
		})
		signed, err := tok.SignedString([]byte("secret"))
		require.NoError(t, err)

		_, err = iss.Parse(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
