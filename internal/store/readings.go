package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"dianbiao-backend/internal/model"
	"dianbiao-backend/internal/parse"
)

// ListReadings returns a device's readings ascending by time, optionally limited to one period.
func (s *gormStore) ListReadings(ctx context.Context, deviceID int64, period string) ([]model.Reading, error) {
	q := s.db.WithContext(ctx).Where("device_id = ?", deviceID)
	if period != "" {
		q = q.Where("period = ?", period)
	}
	var readings []model.Reading
	if err := q.Order("read_at ASC, id ASC").Find(&readings).Error; err != nil {
		return nil, fmt.Errorf("failed to list readings of device %d: %w", deviceID, err)
	}
	return readings, nil
}

// LatestReading returns the newest reading of a device strictly before the bound.
// A nil bound means no bound. The bound is compared in UTC, the zone readings are stored in.
func (s *gormStore) LatestReading(ctx context.Context, deviceID int64, before *time.Time) (model.Reading, bool, error) {
	q := s.db.WithContext(ctx).Where("device_id = ?", deviceID)
	if before != nil {
		q = q.Where("read_at < ?", before.UTC())
	}
	var readings []model.Reading
	if err := q.Order("read_at DESC, id DESC").Limit(1).Find(&readings).Error; err != nil {
		return model.Reading{}, false, fmt.Errorf("failed to load latest reading of device %d: %w", deviceID, err)
	}
	if len(readings) == 0 {
		return model.Reading{}, false, nil
	}
	return readings[0], true, nil
}

func (s *gormStore) GetReading(ctx context.Context, id int64) (model.Reading, error) {
	var r model.Reading
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return model.Reading{}, notFound(err, "reading", id)
	}
	return r, nil
}

// CreateReading stores a reading for an existing device. A zero ReadAt means now;
// the period key is always derived from ReadAt.
func (s *gormStore) CreateReading(ctx context.Context, reading *model.Reading) error {
	if reading.DeviceID <= 0 {
		return invalid("device_id", "is required")
	}
	if math.IsNaN(reading.Value) || math.IsInf(reading.Value, 0) {
		return invalid("value", "must be a finite number")
	}
	db := s.db.WithContext(ctx)
	if err := db.First(&model.Device{}, reading.DeviceID).Error; err != nil {
		return mapMissingParent(err, "device_id", reading.DeviceID)
	}
	if reading.ReadAt.IsZero() {
		reading.ReadAt = time.Now()
	}
	reading.ReadAt = reading.ReadAt.UTC()
	reading.Period = parse.PeriodKey(reading.ReadAt, s.loc)
	reading.ID = 0

	if err := db.Create(reading).Error; err != nil {
		return fmt.Errorf("failed to create reading for device %d: %w", reading.DeviceID, err)
	}
	s.readingsChanged()
	return nil
}

// UpdateReading edits value and/or timestamp, re-deriving the period key.
func (s *gormStore) UpdateReading(ctx context.Context, id int64, patch ReadingPatch) (model.Reading, error) {
	var r model.Reading
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&r, id).Error; err != nil {
			return notFound(err, "reading", id)
		}
		if patch.Value != nil {
			if math.IsNaN(*patch.Value) || math.IsInf(*patch.Value, 0) {
				return invalid("value", "must be a finite number")
			}
			r.Value = *patch.Value
		}
		if patch.ReadAt != nil {
			r.ReadAt = patch.ReadAt.UTC()
		}
		r.Period = parse.PeriodKey(r.ReadAt, s.loc)
		return tx.Model(&r).Select("value", "read_at", "period").Updates(&r).Error
	})
	if err != nil {
		return model.Reading{}, err
	}
	s.readingsChanged()
	return r, nil
}

func (s *gormStore) DeleteReading(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&model.Reading{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete reading %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("reading %d: %w", id, ErrNotFound)
	}
	s.readingsChanged()
	return nil
}
