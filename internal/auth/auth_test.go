package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dianbiao-backend/internal/model"
)

func TestIssuer_RoundTrip(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	token, expires, err := issuer.Issue(model.User{ID: 42, Username: "alice", Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID())
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.IsAdmin())
}

func TestIssuer_Rejects(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	token, _, err := issuer.Issue(model.User{ID: 1, Username: "bob", Role: model.RoleUser})
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewIssuer("other", time.Hour).Parse(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		late := NewIssuer("secret", time.Hour)
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := late.Parse(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("unexpected algorithm", func(t *testing.T) {
		claims := Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
			Role:             model.RoleAdmin,
		}
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = issuer.Parse(unsigned)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Parse("not-a-token")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))

	_, err = HashPassword("123")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

type memUsers struct {
	users []model.User
}

func (m *memUsers) HasAdmin(ctx context.Context) (bool, error) {
	for _, u := range m.users {
		if u.IsAdmin() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = int64(len(m.users) + 1)
	m.users = append(m.users, *user)
	return nil
}

func TestEnsureAdmin(t *testing.T) {
	users := &memUsers{}
	require.NoError(t, EnsureAdmin(context.Background(), users, "admin", "admin123"))
	require.NoError(t, EnsureAdmin(context.Background(), users, "admin", "admin123"))
	require.Len(t, users.users, 1)
	assert.Equal(t, model.RoleAdmin, users.users[0].Role)
	assert.True(t, CheckPassword(users.users[0].PasswordHash, "admin123"))

	empty := &memUsers{}
	require.NoError(t, EnsureAdmin(context.Background(), empty, "", ""))
	assert.Empty(t, empty.users)
}
