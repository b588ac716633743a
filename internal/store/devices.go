package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"dianbiao-backend/internal/model"
)

func preloadLocation(db *gorm.DB) *gorm.DB {
	return db.Preload("Area").Preload("Floor").Preload("Room")
}

func (s *gormStore) ListDevices(ctx context.Context, filter DeviceFilter) ([]model.Device, error) {
	q := preloadLocation(s.db.WithContext(ctx)).Order("code, id")
	if filter.AreaID != 0 {
		q = q.Where("area_id = ?", filter.AreaID)
	}
	if filter.FloorID != 0 {
		q = q.Where("floor_id = ?", filter.FloorID)
	}
	if filter.RoomID != 0 {
		q = q.Where("room_id = ?", filter.RoomID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(code) LIKE ? OR LOWER(remark) LIKE ?", like, like)
	}

	var devices []model.Device
	if err := q.Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

func (s *gormStore) GetDevice(ctx context.Context, id int64) (model.Device, error) {
	var device model.Device
	if err := preloadLocation(s.db.WithContext(ctx)).First(&device, id).Error; err != nil {
		return model.Device{}, notFound(err, "device", id)
	}
	return device, nil
}

func (s *gormStore) GetDeviceByCode(ctx context.Context, code string) (model.Device, error) {
	var device model.Device
	if err := preloadLocation(s.db.WithContext(ctx)).Where("code = ?", code).First(&device).Error; err != nil {
		return model.Device{}, notFound(err, "device", code)
	}
	return device, nil
}

func (s *gormStore) CreateDevice(ctx context.Context, device *model.Device) error {
	device.Code = strings.TrimSpace(device.Code)
	if device.Code == "" {
		return invalid("device_id", "is required")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkChain(tx, device.AreaID, device.FloorID, device.RoomID, true); err != nil {
			return err
		}
		if taken, err := exists(tx.Model(&model.Device{}).Where("code = ?", device.Code)); err != nil {
			return err
		} else if taken {
			return duplicate("device_id %q already exists", device.Code)
		}
		if err := tx.Omit("Area", "Floor", "Room").Create(device).Error; err != nil {
			return uniqueViolation(err, fmt.Sprintf("device_id %q already exists", device.Code))
		}
		return nil
	})
}

// UpdateDevice rewrites code, location and remark. Readings stay attached to
// the device, so relocation moves their attribution with it.
func (s *gormStore) UpdateDevice(ctx context.Context, device *model.Device) error {
	device.Code = strings.TrimSpace(device.Code)
	if device.Code == "" {
		return invalid("device_id", "is required")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model.Device{}, device.ID).Error; err != nil {
			return notFound(err, "device", device.ID)
		}
		if err := checkChain(tx, device.AreaID, device.FloorID, device.RoomID, true); err != nil {
			return err
		}
		if taken, err := exists(tx.Model(&model.Device{}).Where("code = ? AND id <> ?", device.Code, device.ID)); err != nil {
			return err
		} else if taken {
			return duplicate("device_id %q already exists", device.Code)
		}
		err := tx.Model(&model.Device{ID: device.ID}).
			Select("code", "area_id", "floor_id", "room_id", "remark").
			Updates(map[string]any{
				"code":     device.Code,
				"area_id":  device.AreaID,
				"floor_id": device.FloorID,
				"room_id":  device.RoomID,
				"remark":   device.Remark,
			}).Error
		return uniqueViolation(err, fmt.Sprintf("device_id %q already exists", device.Code))
	})
}

// DeleteDevice removes the device together with its readings and subscriptions.
func (s *gormStore) DeleteDevice(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model.Device{}, id).Error; err != nil {
			return notFound(err, "device", id)
		}
		if err := tx.Where("device_id = ?", id).Delete(&model.Reading{}).Error; err != nil {
			return fmt.Errorf("failed to delete readings of device %d: %w", id, err)
		}
		if err := tx.Exec("DELETE FROM subscription_device_mapping WHERE device_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to unlink subscriptions of device %d: %w", id, err)
		}
		return tx.Delete(&model.Device{}, id).Error
	})
}

// checkChain verifies that room belongs to floor and floor belongs to area.
// With full set, all three ids are required; otherwise floor and room may be 0.
func checkChain(tx *gorm.DB, areaID, floorID, roomID int64, full bool) error {
	if areaID <= 0 {
		return invalid("area_id", "is required")
	}
	if full && floorID <= 0 {
		return invalid("floor_id", "is required")
	}
	if full && roomID <= 0 {
		return invalid("room_id", "is required")
	}
	if roomID != 0 && floorID == 0 {
		return invalid("floor_id", "is required when room_id is set")
	}

	if err := tx.First(&model.Area{}, areaID).Error; err != nil {
		return mapMissingParent(err, "area_id", areaID)
	}
	if floorID != 0 {
		var floor model.Floor
		if err := tx.First(&floor, floorID).Error; err != nil {
			return mapMissingParent(err, "floor_id", floorID)
		}
		if floor.AreaID != areaID {
			return invalid("floor_id", "floor %d does not belong to area %d", floorID, areaID)
		}
	}
	if roomID != 0 {
		var room model.Room
		if err := tx.First(&room, roomID).Error; err != nil {
			return mapMissingParent(err, "room_id", roomID)
		}
		if room.FloorID != floorID {
			return invalid("room_id", "room %d does not belong to floor %d", roomID, floorID)
		}
	}
	return nil
}
