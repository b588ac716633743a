package store

import (
	"context"
	"fmt"
	"strings"

	"dianbiao-backend/internal/model"
)

func (s *gormStore) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *gormStore) GetUser(ctx context.Context, id int64) (model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return model.User{}, notFound(err, "user", id)
	}
	return u, nil
}

func (s *gormStore) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return model.User{}, notFound(err, "user", username)
	}
	return u, nil
}

func (s *gormStore) CreateUser(ctx context.Context, user *model.User) error {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		return invalid("username", "is required")
	}
	if user.PasswordHash == "" {
		return invalid("password", "is required")
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	if user.Role != model.RoleAdmin && user.Role != model.RoleUser {
		return invalid("role", "must be %q or %q", model.RoleAdmin, model.RoleUser)
	}
	db := s.db.WithContext(ctx)
	if taken, err := exists(db.Model(&model.User{}).Where("username = ?", user.Username)); err != nil {
		return err
	} else if taken {
		return duplicate("username %q already exists", user.Username)
	}
	if err := db.Create(user).Error; err != nil {
		return uniqueViolation(err, fmt.Sprintf("username %q already exists", user.Username))
	}
	return nil
}

// UpdateUser saves password hash, role and avatar.
func (s *gormStore) UpdateUser(ctx context.Context, user *model.User) error {
	if user.Role != model.RoleAdmin && user.Role != model.RoleUser {
		return invalid("role", "must be %q or %q", model.RoleAdmin, model.RoleUser)
	}
	res := s.db.WithContext(ctx).Model(&model.User{ID: user.ID}).
		Select("password_hash", "role", "avatar").
		Updates(map[string]any{
			"password_hash": user.PasswordHash,
			"role":          user.Role,
			"avatar":        user.Avatar,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update user %d: %w", user.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %d: %w", user.ID, ErrNotFound)
	}
	return nil
}

func (s *gormStore) HasAdmin(ctx context.Context) (bool, error) {
	return exists(s.db.WithContext(ctx).Model(&model.User{}).Where("role = ?", model.RoleAdmin))
}
