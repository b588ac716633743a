package model

import "time"

// Tariff is a price per kWh for one scope of the location hierarchy.
// FloorID and RoomID are 0 when the scope does not include them, so the
// composite unique index allows one tariff per scope.
type Tariff struct {
	ID            int64      `gorm:"primaryKey" json:"id"`
	AreaID        int64      `gorm:"not null;uniqueIndex:idx_tariff_scope,priority:1" json:"area_id"`
	FloorID       int64      `gorm:"not null;default:0;uniqueIndex:idx_tariff_scope,priority:2" json:"floor_id"`
	RoomID        int64      `gorm:"not null;default:0;uniqueIndex:idx_tariff_scope,priority:3" json:"room_id"`
	Price         float64    `gorm:"not null" json:"price"`
	EffectiveDate *time.Time `json:"effective_date"`
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null" json:"updated_at"`

	// Associations, loaded for display only.
	Area  *Area  `gorm:"foreignKey:AreaID;constraint:OnDelete:CASCADE" json:"area,omitempty"`
	Floor *Floor `gorm:"-" json:"floor,omitempty"`
	Room  *Room  `gorm:"-" json:"room,omitempty"`
}

// DefaultTariffName is the unique key of the single default tariff row.
const DefaultTariffName = "default"

// DefaultTariff is the fallback price used when no scoped tariff matches.
type DefaultTariff struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:32;not null" json:"-"`
	Price     float64   `gorm:"not null" json:"price"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
