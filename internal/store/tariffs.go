package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dianbiao-backend/internal/billing"
	"dianbiao-backend/internal/model"
)

// FindTariff returns the tariff stored for exactly this scope.
func (s *gormStore) FindTariff(ctx context.Context, scope billing.Scope) (model.Tariff, bool, error) {
	areaID, floorID, roomID := scope.Columns()
	var tariffs []model.Tariff
	err := s.db.WithContext(ctx).
		Where("area_id = ? AND floor_id = ? AND room_id = ?", areaID, floorID, roomID).
		Order("id").Limit(1).
		Find(&tariffs).Error
	if err != nil {
		return model.Tariff{}, false, fmt.Errorf("failed to find tariff for %s: %w", scope, err)
	}
	if len(tariffs) == 0 {
		return model.Tariff{}, false, nil
	}
	return tariffs[0], true, nil
}

// DefaultTariff returns the default tariff, creating it with the fallback price
// when absent. Concurrent first calls converge on the same row through the
// unique name column.
func (s *gormStore) DefaultTariff(ctx context.Context) (model.DefaultTariff, error) {
	db := s.db.WithContext(ctx)
	def, found, err := s.loadDefaultTariff(db)
	if err != nil || found {
		return def, err
	}

	seed := model.DefaultTariff{Name: model.DefaultTariffName, Price: s.fallback}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return model.DefaultTariff{}, fmt.Errorf("failed to create default tariff: %w", err)
	}

	def, found, err = s.loadDefaultTariff(db)
	if err != nil {
		return model.DefaultTariff{}, err
	}
	if !found {
		return model.DefaultTariff{}, errors.New("default tariff missing after create")
	}
	return def, nil
}

func (s *gormStore) loadDefaultTariff(db *gorm.DB) (model.DefaultTariff, bool, error) {
	var rows []model.DefaultTariff
	if err := db.Where("name = ?", model.DefaultTariffName).Order("id").Limit(1).Find(&rows).Error; err != nil {
		return model.DefaultTariff{}, false, fmt.Errorf("failed to load default tariff: %w", err)
	}
	if len(rows) == 0 {
		return model.DefaultTariff{}, false, nil
	}
	return rows[0], true, nil
}

// SetDefaultTariff upserts the default price.
func (s *gormStore) SetDefaultTariff(ctx context.Context, price float64) (model.DefaultTariff, error) {
	if price <= 0 {
		return model.DefaultTariff{}, invalid("price", "must be greater than 0")
	}
	db := s.db.WithContext(ctx)
	row := model.DefaultTariff{Name: model.DefaultTariffName, Price: price}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"price", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return model.DefaultTariff{}, fmt.Errorf("failed to set default tariff: %w", err)
	}
	def, _, err := s.loadDefaultTariff(db)
	return def, err
}

func (s *gormStore) ListTariffs(ctx context.Context, filter TariffFilter) ([]model.Tariff, error) {
	q := s.db.WithContext(ctx).Preload("Area").Order("area_id, floor_id, room_id")
	if filter.AreaID != 0 {
		q = q.Where("area_id = ?", filter.AreaID)
	}
	if filter.FloorID != 0 {
		q = q.Where("floor_id = ?", filter.FloorID)
	}
	if filter.RoomID != 0 {
		q = q.Where("room_id = ?", filter.RoomID)
	}
	var tariffs []model.Tariff
	if err := q.Find(&tariffs).Error; err != nil {
		return nil, fmt.Errorf("failed to list tariffs: %w", err)
	}
	if err := s.attachScopeNames(ctx, tariffs); err != nil {
		return nil, err
	}
	return tariffs, nil
}

func (s *gormStore) GetTariff(ctx context.Context, id int64) (model.Tariff, error) {
	var t model.Tariff
	if err := s.db.WithContext(ctx).Preload("Area").First(&t, id).Error; err != nil {
		return model.Tariff{}, notFound(err, "tariff", id)
	}
	one := []model.Tariff{t}
	if err := s.attachScopeNames(ctx, one); err != nil {
		return model.Tariff{}, err
	}
	return one[0], nil
}

// CreateTariff stores a tariff for a scope that has none yet.
func (s *gormStore) CreateTariff(ctx context.Context, tariff *model.Tariff) error {
	if tariff.Price <= 0 {
		return invalid("price", "must be greater than 0")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkChain(tx, tariff.AreaID, tariff.FloorID, tariff.RoomID, false); err != nil {
			return err
		}
		scope := billing.ScopeOf(*tariff)
		if taken, err := exists(tx.Model(&model.Tariff{}).
			Where("area_id = ? AND floor_id = ? AND room_id = ?", tariff.AreaID, tariff.FloorID, tariff.RoomID)); err != nil {
			return err
		} else if taken {
			return duplicate("%s price already exists", scope.Kind)
		}
		if err := tx.Omit("Area").Create(tariff).Error; err != nil {
			return uniqueViolation(err, fmt.Sprintf("%s price already exists", scope.Kind))
		}
		return nil
	})
}

// UpdateTariff changes price, effective date and scope of a tariff.
func (s *gormStore) UpdateTariff(ctx context.Context, tariff *model.Tariff) error {
	if tariff.Price <= 0 {
		return invalid("price", "must be greater than 0")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model.Tariff{}, tariff.ID).Error; err != nil {
			return notFound(err, "tariff", tariff.ID)
		}
		if err := checkChain(tx, tariff.AreaID, tariff.FloorID, tariff.RoomID, false); err != nil {
			return err
		}
		scope := billing.ScopeOf(*tariff)
		if taken, err := exists(tx.Model(&model.Tariff{}).
			Where("area_id = ? AND floor_id = ? AND room_id = ? AND id <> ?", tariff.AreaID, tariff.FloorID, tariff.RoomID, tariff.ID)); err != nil {
			return err
		} else if taken {
			return duplicate("%s price already exists", scope.Kind)
		}
		err := tx.Model(&model.Tariff{ID: tariff.ID}).
			Select("area_id", "floor_id", "room_id", "price", "effective_date").
			Updates(map[string]any{
				"area_id":        tariff.AreaID,
				"floor_id":       tariff.FloorID,
				"room_id":        tariff.RoomID,
				"price":          tariff.Price,
				"effective_date": tariff.EffectiveDate,
			}).Error
		return uniqueViolation(err, fmt.Sprintf("%s price already exists", scope.Kind))
	})
}

func (s *gormStore) DeleteTariff(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&model.Tariff{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete tariff %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("tariff %d: %w", id, ErrNotFound)
	}
	return nil
}

// attachScopeNames loads floor and room records for display. Their ids may be
// 0, so they are not regular belongs-to associations.
func (s *gormStore) attachScopeNames(ctx context.Context, tariffs []model.Tariff) error {
	var floorIDs, roomIDs []int64
	for _, t := range tariffs {
		if t.FloorID != 0 {
			floorIDs = append(floorIDs, t.FloorID)
		}
		if t.RoomID != 0 {
			roomIDs = append(roomIDs, t.RoomID)
		}
	}
	floors := make(map[int64]*model.Floor)
	if len(floorIDs) > 0 {
		var rows []model.Floor
		if err := s.db.WithContext(ctx).Where("id IN ?", floorIDs).Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to load tariff floors: %w", err)
		}
		for i := range rows {
			floors[rows[i].ID] = &rows[i]
		}
	}
	rooms := make(map[int64]*model.Room)
	if len(roomIDs) > 0 {
		var rows []model.Room
		if err := s.db.WithContext(ctx).Where("id IN ?", roomIDs).Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to load tariff rooms: %w", err)
		}
		for i := range rows {
			rooms[rows[i].ID] = &rows[i]
		}
	}
	for i := range tariffs {
		tariffs[i].Floor = floors[tariffs[i].FloorID]
		tariffs[i].Room = rooms[tariffs[i].RoomID]
	}
	return nil
}
