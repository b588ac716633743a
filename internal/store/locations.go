package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"dianbiao-backend/internal/model"
)

func (s *gormStore) ListAreas(ctx context.Context) ([]model.Area, error) {
	var areas []model.Area
	if err := s.db.WithContext(ctx).Order("name, id").Find(&areas).Error; err != nil {
		return nil, fmt.Errorf("failed to list areas: %w", err)
	}
	return areas, nil
}

func (s *gormStore) GetArea(ctx context.Context, id int64) (model.Area, error) {
	var area model.Area
	if err := s.db.WithContext(ctx).Preload("Floors", func(db *gorm.DB) *gorm.DB {
		return db.Order("name, id")
	}).First(&area, id).Error; err != nil {
		return model.Area{}, notFound(err, "area", id)
	}
	return area, nil
}

func (s *gormStore) CreateArea(ctx context.Context, area *model.Area) error {
	area.Name = strings.TrimSpace(area.Name)
	if area.Name == "" {
		return invalid("name", "is required")
	}
	db := s.db.WithContext(ctx)
	if taken, err := exists(db.Model(&model.Area{}).Where("name = ?", area.Name)); err != nil {
		return err
	} else if taken {
		return duplicate("area %q already exists", area.Name)
	}
	if err := db.Create(area).Error; err != nil {
		return uniqueViolation(err, fmt.Sprintf("area %q already exists", area.Name))
	}
	return nil
}

func (s *gormStore) UpdateArea(ctx context.Context, area *model.Area) error {
	area.Name = strings.TrimSpace(area.Name)
	if area.Name == "" {
		return invalid("name", "is required")
	}
	db := s.db.WithContext(ctx)
	if _, err := s.GetArea(ctx, area.ID); err != nil {
		return err
	}
	if taken, err := exists(db.Model(&model.Area{}).Where("name = ? AND id <> ?", area.Name, area.ID)); err != nil {
		return err
	} else if taken {
		return duplicate("area %q already exists", area.Name)
	}
	if err := db.Model(area).Select("name", "remark").Updates(area).Error; err != nil {
		return uniqueViolation(err, fmt.Sprintf("area %q already exists", area.Name))
	}
	return nil
}

// DeleteArea refuses to delete an area that still has floors.
func (s *gormStore) DeleteArea(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model.Area{}, id).Error; err != nil {
			return notFound(err, "area", id)
		}
		if busy, err := exists(tx.Model(&model.Floor{}).Where("area_id = ?", id)); err != nil {
			return err
		} else if busy {
			return inUse("area %d still has floors", id)
		}
		if err := tx.Where("area_id = ?", id).Delete(&model.Tariff{}).Error; err != nil {
			return fmt.Errorf("failed to delete tariffs of area %d: %w", id, err)
		}
		return tx.Delete(&model.Area{}, id).Error
	})
}

func (s *gormStore) ListFloors(ctx context.Context, areaID int64) ([]model.Floor, error) {
	var floors []model.Floor
	q := s.db.WithContext(ctx).Order("name, id")
	if areaID != 0 {
		q = q.Where("area_id = ?", areaID)
	}
	if err := q.Find(&floors).Error; err != nil {
		return nil, fmt.Errorf("failed to list floors: %w", err)
	}
	return floors, nil
}

func (s *gormStore) GetFloor(ctx context.Context, id int64) (model.Floor, error) {
	var floor model.Floor
	if err := s.db.WithContext(ctx).Preload("Area").Preload("Rooms", func(db *gorm.DB) *gorm.DB {
		return db.Order("name, id")
	}).First(&floor, id).Error; err != nil {
		return model.Floor{}, notFound(err, "floor", id)
	}
	return floor, nil
}

func (s *gormStore) CreateFloor(ctx context.Context, floor *model.Floor) error {
	floor.Name = strings.TrimSpace(floor.Name)
	if floor.Name == "" {
		return invalid("name", "is required")
	}
	if floor.AreaID <= 0 {
		return invalid("area_id", "is required")
	}
	db := s.db.WithContext(ctx)
	if err := db.First(&model.Area{}, floor.AreaID).Error; err != nil {
		return mapMissingParent(err, "area_id", floor.AreaID)
	}
	if taken, err := exists(db.Model(&model.Floor{}).Where("area_id = ? AND name = ?", floor.AreaID, floor.Name)); err != nil {
		return err
	} else if taken {
		return duplicate("floor %q already exists in this area", floor.Name)
	}
	if err := db.Create(floor).Error; err != nil {
		return uniqueViolation(err, fmt.Sprintf("floor %q already exists in this area", floor.Name))
	}
	return nil
}

// UpdateFloor renames a floor. Moving a floor to another area is not supported.
func (s *gormStore) UpdateFloor(ctx context.Context, floor *model.Floor) error {
	floor.Name = strings.TrimSpace(floor.Name)
	if floor.Name == "" {
		return invalid("name", "is required")
	}
	db := s.db.WithContext(ctx)
	var current model.Floor
	if err := db.First(&current, floor.ID).Error; err != nil {
		return notFound(err, "floor", floor.ID)
	}
	floor.AreaID = current.AreaID
	if taken, err := exists(db.Model(&model.Floor{}).Where("area_id = ? AND name = ? AND id <> ?", floor.AreaID, floor.Name, floor.ID)); err != nil {
		return err
	} else if taken {
		return duplicate("floor %q already exists in this area", floor.Name)
	}
	if err := db.Model(floor).Select("name", "remark").Updates(floor).Error; err != nil {
		return uniqueViolation(err, fmt.Sprintf("floor %q already exists in this area", floor.Name))
	}
	return nil
}

// DeleteFloor refuses to delete a floor that still has rooms.
func (s *gormStore) DeleteFloor(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model.Floor{}, id).Error; err != nil {
			return notFound(err, "floor", id)
		}
		if busy, err := exists(tx.Model(&model.Room{}).Where("floor_id = ?", id)); err != nil {
			return err
		} else if busy {
			return inUse("floor %d still has rooms", id)
		}
		if err := tx.Where("floor_id = ?", id).Delete(&model.Tariff{}).Error; err != nil {
			return fmt.Errorf("failed to delete tariffs of floor %d: %w", id, err)
		}
		return tx.Delete(&model.Floor{}, id).Error
	})
}

func (s *gormStore) ListRooms(ctx context.Context, floorID int64) ([]model.Room, error) {
	var rooms []model.Room
	q := s.db.WithContext(ctx).Order("name, id")
	if floorID != 0 {
		q = q.Where("floor_id = ?", floorID)
	}
	if err := q.Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

func (s *gormStore) GetRoom(ctx context.Context, id int64) (model.Room, error) {
	var room model.Room
	if err := s.db.WithContext(ctx).Preload("Floor.Area").First(&room, id).Error; err != nil {
		return model.Room{}, notFound(err, "room", id)
	}
	return room, nil
}

func (s *gormStore) CreateRoom(ctx context.Context, room *model.Room) error {
	room.Name = strings.TrimSpace(room.Name)
	if room.Name == "" {
		return invalid("name", "is required")
	}
	if room.FloorID <= 0 {
		return invalid("floor_id", "is required")
	}
	db := s.db.WithContext(ctx)
	if err := db.First(&model.Floor{}, room.FloorID).Error; err != nil {
		return mapMissingParent(err, "floor_id", room.FloorID)
	}
	if taken, err := exists(db.Model(&model.Room{}).Where("floor_id = ? AND name = ?", room.FloorID, room.Name)); err != nil {
		return err
	} else if taken {
		return duplicate("room %q already exists on this floor", room.Name)
	}
	if err := db.Create(room).Error; err != nil {
		return uniqueViolation(err, fmt.Sprintf("room %q already exists on this floor", room.Name))
	}
	return nil
}

func (s *gormStore) UpdateRoom(ctx context.Context, room *model.Room) error {
	room.Name = strings.TrimSpace(room.Name)
	if room.Name == "" {
		return invalid("name", "is required")
	}
	db := s.db.WithContext(ctx)
	var current model.Room
	if err := db.First(&current, room.ID).Error; err != nil {
		return notFound(err, "room", room.ID)
	}
	room.FloorID = current.FloorID
	if taken, err := exists(db.Model(&model.Room{}).Where("floor_id = ? AND name = ? AND id <> ?", room.FloorID, room.Name, room.ID)); err != nil {
		return err
	} else if taken {
		return duplicate("room %q already exists on this floor", room.Name)
	}
	if err := db.Model(room).Select("name", "remark").Updates(room).Error; err != nil {
		return uniqueViolation(err, fmt.Sprintf("room %q already exists on this floor", room.Name))
	}
	return nil
}

// DeleteRoom refuses to delete a room that still has devices.
func (s *gormStore) DeleteRoom(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model.Room{}, id).Error; err != nil {
			return notFound(err, "room", id)
		}
		if busy, err := exists(tx.Model(&model.Device{}).Where("room_id = ?", id)); err != nil {
			return err
		} else if busy {
			return inUse("room %d still has devices", id)
		}
		if err := tx.Where("room_id = ?", id).Delete(&model.Tariff{}).Error; err != nil {
			return fmt.Errorf("failed to delete tariffs of room %d: %w", id, err)
		}
		return tx.Delete(&model.Room{}, id).Error
	})
}

// exists reports whether the query matches at least one row.
func exists(q *gorm.DB) (bool, error) {
	var n int64
	if err := q.Limit(1).Count(&n).Error; err != nil {
		return false, fmt.Errorf("existence check failed: %w", err)
	}
	return n > 0, nil
}

// mapMissingParent turns a missing referenced record into a validation error.
func mapMissingParent(err error, field string, id int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return invalid(field, "%d does not exist", id)
	}
	return fmt.Errorf("failed to load %s %d: %w", strings.TrimSuffix(field, "_id"), id, err)
}
