package model

import "time"

// Area is the top level of the location hierarchy, usually a building or a campus zone.
type Area struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Remark    string    `gorm:"size:512" json:"remark"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	// Associations
	Floors []Floor `gorm:"foreignKey:AreaID" json:"floors,omitempty"`
}

// Floor belongs to exactly one area. Names are unique within an area.
type Floor struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	AreaID    int64     `gorm:"not null;uniqueIndex:idx_floor_area_name,priority:1" json:"area_id"`
	Name      string    `gorm:"size:128;not null;uniqueIndex:idx_floor_area_name,priority:2" json:"name"`
	Remark    string    `gorm:"size:512" json:"remark"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	// Associations
	Area  *Area  `gorm:"constraint:OnDelete:RESTRICT" json:"area,omitempty"`
	Rooms []Room `gorm:"foreignKey:FloorID" json:"rooms,omitempty"`
}

// Room belongs to exactly one floor. Names are unique within a floor.
type Room struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	FloorID   int64     `gorm:"not null;uniqueIndex:idx_room_floor_name,priority:1" json:"floor_id"`
	Name      string    `gorm:"size:128;not null;uniqueIndex:idx_room_floor_name,priority:2" json:"name"`
	Remark    string    `gorm:"size:512" json:"remark"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	// Associations
	Floor *Floor `gorm:"constraint:OnDelete:RESTRICT" json:"floor,omitempty"`
}
