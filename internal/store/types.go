package store

import (
	"time"

	"dianbiao-backend/internal/model"
)

// DeviceFilter narrows ListDevices. Zero values are ignored.
type DeviceFilter struct {
	AreaID  int64
	FloorID int64
	RoomID  int64
	// Search matches the device code or remark, case-insensitively.
	Search string
}

// TariffFilter narrows ListTariffs. Zero values are ignored.
type TariffFilter struct {
	AreaID  int64
	FloorID int64
	RoomID  int64
}

// ReadingPatch holds the editable fields of a reading.
type ReadingPatch struct {
	Value  *float64
	ReadAt *time.Time
}

// AuditFilter selects audit log entries.
type AuditFilter struct {
	// Search matches action, username or ip.
	Search string
	Start  *time.Time
	End    *time.Time
	Page   int
	Limit  int
}

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// Normalize clamps paging to sane bounds.
func (f *AuditFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultAuditLimit
	}
	if f.Limit > maxAuditLimit {
		f.Limit = maxAuditLimit
	}
}

// AuditPage is one page of audit log entries.
type AuditPage struct {
	Logs  []model.AuditLog `json:"logs"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
	Pages int              `json:"pages"`
}

// Dump is a full export of the metering data used for backups.
type Dump struct {
	TakenAt       time.Time            `json:"taken_at"`
	Areas         []model.Area         `json:"areas"`
	Floors        []model.Floor        `json:"floors"`
	Rooms         []model.Room         `json:"rooms"`
	Devices       []model.Device       `json:"devices"`
	Tariffs       []model.Tariff       `json:"tariffs"`
	DefaultTariff *model.DefaultTariff `json:"default_tariff"`
	Readings      []model.Reading      `json:"readings"`
}
