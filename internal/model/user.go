package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is an operator of the dashboard.
type User struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:64;not null" json:"username"`
	PasswordHash string    `gorm:"size:128;not null" json:"-"`
	Role         string    `gorm:"size:16;not null;default:user" json:"role"`
	Avatar       string    `gorm:"size:512" json:"avatar"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// AuditLog records one user request or background job run.
type AuditLog struct {
	ID        int64             `gorm:"primaryKey" json:"id"`
	Action    string            `gorm:"size:256;not null;index" json:"action"`
	UserID    *int64            `gorm:"index" json:"user_id"`
	Username  string            `gorm:"size:64" json:"username"`
	IP        string            `gorm:"size:64" json:"ip"`
	DeviceID  *int64            `json:"device_id"`
	Details   datatypes.JSONMap `json:"details"`
	CreatedAt time.Time         `gorm:"not null;index" json:"timestamp"`
}
