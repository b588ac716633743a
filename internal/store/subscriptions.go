package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dianbiao-backend/internal/model"
)

// UpsertSubscription creates or replaces a push subscription and its device set.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub model.PushSubscription, deviceIDs []int64) error {
	if sub.Endpoint == "" {
		return invalid("endpoint", "is required")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Devices").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(&sub).Error; err != nil {
			return fmt.Errorf("failed to upsert subscription: %w", err)
		}

		devices := make([]*model.Device, 0, len(deviceIDs))
		if len(deviceIDs) > 0 {
			if err := tx.Find(&devices, deviceIDs).Error; err != nil {
				return fmt.Errorf("failed to load subscribed devices: %w", err)
			}
			if len(devices) != len(uniqueIDs(deviceIDs)) {
				return invalid("subscribed_devices", "contains unknown devices")
			}
		}

		if err := tx.Model(&sub).Association("Devices").Replace(devices); err != nil {
			return fmt.Errorf("failed to replace subscribed devices: %w", err)
		}
		return nil
	})
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Preload("Devices").First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return model.PushSubscription{}, notFound(err, "subscription", endpoint)
	}
	return sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := model.PushSubscription{Endpoint: endpoint}
		if err := tx.Model(&sub).Association("Devices").Clear(); err != nil {
			return fmt.Errorf("failed to unlink subscription devices: %w", err)
		}
		res := tx.Delete(&sub)
		if res.Error != nil {
			return fmt.Errorf("failed to delete subscription: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("subscription %q: %w", endpoint, ErrNotFound)
		}
		return nil
	})
}

// SubscriptionsForDevice lists the subscriptions that follow a device.
func (s *gormStore) SubscriptionsForDevice(ctx context.Context, deviceID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_device_mapping sdm ON sdm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sdm.device_id = ?", deviceID).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions for device %d: %w", deviceID, err)
	}
	return subs, nil
}

func uniqueIDs(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
