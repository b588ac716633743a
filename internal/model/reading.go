package model

import "time"

// Reading is one cumulative meter value observed at ReadAt.
// Period is the calendar month ("YYYY-MM") of ReadAt in the configured time zone.
type Reading struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	DeviceID  int64     `gorm:"not null;index:idx_reading_device_read_at,priority:1;index:idx_reading_device_period,priority:1" json:"device_id"`
	Value     float64   `gorm:"not null" json:"value"`
	ReadAt    time.Time `gorm:"not null;index:idx_reading_device_read_at,priority:2" json:"timestamp"`
	Period    string    `gorm:"size:7;not null;index:idx_reading_device_period,priority:2" json:"month"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}
