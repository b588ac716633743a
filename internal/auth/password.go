package auth

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"dianbiao-backend/internal/model"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

var ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

// HashPassword returns the bcrypt hash of a password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// UserStore is the subset of the store needed to seed the first administrator.
type UserStore interface {
	HasAdmin(ctx context.Context) (bool, error)
	CreateUser(ctx context.Context, user *model.User) error
}

// EnsureAdmin creates the configured administrator when no admin exists yet.
func EnsureAdmin(ctx context.Context, users UserStore, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	ok, err := users.HasAdmin(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	admin := model.User{Username: username, PasswordHash: hash, Role: model.RoleAdmin}
	if err := users.CreateUser(ctx, &admin); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	log.Info().Str("username", username).Msg("created bootstrap administrator")
	return nil
}
