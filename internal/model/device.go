package model

import "time"

// Device is an electricity meter installed in one room.
// Code is the external meter number printed on the device.
type Device struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"uniqueIndex;size:64;not null" json:"device_id"`
	AreaID    int64     `gorm:"index;not null" json:"area_id"`
	FloorID   int64     `gorm:"index;not null" json:"floor_id"`
	RoomID    int64     `gorm:"index;not null" json:"room_id"`
	Remark    string    `gorm:"size:512" json:"remark"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	// Associations
	Area  *Area  `gorm:"constraint:OnDelete:RESTRICT" json:"area,omitempty"`
	Floor *Floor `gorm:"constraint:OnDelete:RESTRICT" json:"floor,omitempty"`
	Room  *Room  `gorm:"constraint:OnDelete:RESTRICT" json:"room,omitempty"`
}

// AreaName returns the preloaded area name, or "" when the association is not loaded.
func (d Device) AreaName() string {
	if d.Area == nil {
		return ""
	}
	return d.Area.Name
}

func (d Device) FloorName() string {
	if d.Floor == nil {
		return ""
	}
	return d.Floor.Name
}

func (d Device) RoomName() string {
	if d.Room == nil {
		return ""
	}
	return d.Room.Name
}
