package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"dianbiao-backend/internal/billing"
	"dianbiao-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	// Location hierarchy
	ListAreas(ctx context.Context) ([]model.Area, error)
	GetArea(ctx context.Context, id int64) (model.Area, error)
	CreateArea(ctx context.Context, area *model.Area) error
	UpdateArea(ctx context.Context, area *model.Area) error
	DeleteArea(ctx context.Context, id int64) error
	ListFloors(ctx context.Context, areaID int64) ([]model.Floor, error)
	GetFloor(ctx context.Context, id int64) (model.Floor, error)
	CreateFloor(ctx context.Context, floor *model.Floor) error
	UpdateFloor(ctx context.Context, floor *model.Floor) error
	DeleteFloor(ctx context.Context, id int64) error
	ListRooms(ctx context.Context, floorID int64) ([]model.Room, error)
	GetRoom(ctx context.Context, id int64) (model.Room, error)
	CreateRoom(ctx context.Context, room *model.Room) error
	UpdateRoom(ctx context.Context, room *model.Room) error
	DeleteRoom(ctx context.Context, id int64) error

	// Device directory
	ListDevices(ctx context.Context, filter DeviceFilter) ([]model.Device, error)
	GetDevice(ctx context.Context, id int64) (model.Device, error)
	GetDeviceByCode(ctx context.Context, code string) (model.Device, error)
	CreateDevice(ctx context.Context, device *model.Device) error
	UpdateDevice(ctx context.Context, device *model.Device) error
	DeleteDevice(ctx context.Context, id int64) error

	// Reading store
	ListReadings(ctx context.Context, deviceID int64, period string) ([]model.Reading, error)
	LatestReading(ctx context.Context, deviceID int64, before *time.Time) (model.Reading, bool, error)
	GetReading(ctx context.Context, id int64) (model.Reading, error)
	CreateReading(ctx context.Context, reading *model.Reading) error
	UpdateReading(ctx context.Context, id int64, patch ReadingPatch) (model.Reading, error)
	DeleteReading(ctx context.Context, id int64) error

	// Tariff store
	FindTariff(ctx context.Context, scope billing.Scope) (model.Tariff, bool, error)
	DefaultTariff(ctx context.Context) (model.DefaultTariff, error)
	SetDefaultTariff(ctx context.Context, price float64) (model.DefaultTariff, error)
	ListTariffs(ctx context.Context, filter TariffFilter) ([]model.Tariff, error)
	GetTariff(ctx context.Context, id int64) (model.Tariff, error)
	CreateTariff(ctx context.Context, tariff *model.Tariff) error
	UpdateTariff(ctx context.Context, tariff *model.Tariff) error
	DeleteTariff(ctx context.Context, id int64) error

	// Users
	ListUsers(ctx context.Context) ([]model.User, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUser(ctx context.Context, user *model.User) error
	HasAdmin(ctx context.Context) (bool, error)

	// Audit log
	CreateAuditLog(ctx context.Context, entry *model.AuditLog) error
	ListAuditLogs(ctx context.Context, filter AuditFilter) (AuditPage, error)
	GetAuditLog(ctx context.Context, id int64) (model.AuditLog, error)

	// Push subscriptions
	UpsertSubscription(ctx context.Context, sub model.PushSubscription, deviceIDs []int64) error
	GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForDevice(ctx context.Context, deviceID int64) ([]model.PushSubscription, error)

	// Dump exports hierarchy, devices, tariffs and readings.
	Dump(ctx context.Context) (*Dump, error)
}

// Options tune store behaviour that depends on configuration.
type Options struct {
	// FallbackPrice seeds the default tariff when it does not exist yet.
	FallbackPrice float64
	// Location is used to derive the period key of readings.
	Location *time.Location
	// OnReadingWrite, if set, runs after a reading is created, updated or deleted.
	OnReadingWrite func()
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db       *gorm.DB
	fallback float64
	loc      *time.Location
	onWrite  func()
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, opts Options) Store {
	if opts.FallbackPrice <= 0 {
		opts.FallbackPrice = 1.0
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &gormStore{db: db, fallback: opts.FallbackPrice, loc: opts.Location, onWrite: opts.OnReadingWrite}
}

// Dump reads every metering table in one read-only transaction.
func (s *gormStore) Dump(ctx context.Context) (*Dump, error) {
	d := &Dump{TakenAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		steps := []struct {
			name string
			dest any
		}{
			{"areas", &d.Areas},
			{"floors", &d.Floors},
			{"rooms", &d.Rooms},
			{"devices", &d.Devices},
			{"tariffs", &d.Tariffs},
			{"readings", &d.Readings},
		}
		for _, step := range steps {
			if err := tx.Order("id").Find(step.dest).Error; err != nil {
				return fmt.Errorf("failed to export %s: %w", step.name, err)
			}
		}
		var def model.DefaultTariff
		res := tx.Where("name = ?", model.DefaultTariffName).Limit(1).Find(&def)
		if res.Error != nil {
			return fmt.Errorf("failed to export default tariff: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			d.DefaultTariff = &def
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *gormStore) readingsChanged() {
	if s.onWrite != nil {
		s.onWrite()
	}
}
