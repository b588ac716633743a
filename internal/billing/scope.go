package billing

import (
	"fmt"

	"dianbiao-backend/internal/model"
)

// ScopeKind is the granularity at which a tariff applies.
type ScopeKind int

const (
	ScopeArea ScopeKind = iota + 1
	ScopeAreaFloor
	ScopeAreaFloorRoom
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeArea:
		return "area"
	case ScopeAreaFloor:
		return "floor"
	case ScopeAreaFloorRoom:
		return "room"
	}
	return "unknown"
}

// Scope identifies one node of the location hierarchy a tariff can be attached to.
// Ids below the kind's depth are always zero.
type Scope struct {
	Kind    ScopeKind
	AreaID  int64
	FloorID int64
	RoomID  int64
}

func AreaScope(areaID int64) Scope {
	return Scope{Kind: ScopeArea, AreaID: areaID}
}

func AreaFloorScope(areaID, floorID int64) Scope {
	return Scope{Kind: ScopeAreaFloor, AreaID: areaID, FloorID: floorID}
}

func AreaFloorRoomScope(areaID, floorID, roomID int64) Scope {
	return Scope{Kind: ScopeAreaFloorRoom, AreaID: areaID, FloorID: floorID, RoomID: roomID}
}

// ScopeOf derives the scope of a stored tariff from which id columns are set.
func ScopeOf(t model.Tariff) Scope {
	switch {
	case t.RoomID != 0:
		return AreaFloorRoomScope(t.AreaID, t.FloorID, t.RoomID)
	case t.FloorID != 0:
		return AreaFloorScope(t.AreaID, t.FloorID)
	default:
		return AreaScope(t.AreaID)
	}
}

// Columns returns the (area_id, floor_id, room_id) key stored for this scope.
func (s Scope) Columns() (int64, int64, int64) {
	switch s.Kind {
	case ScopeArea:
		return s.AreaID, 0, 0
	case ScopeAreaFloor:
		return s.AreaID, s.FloorID, 0
	default:
		return s.AreaID, s.FloorID, s.RoomID
	}
}

// Validate reports a scope whose required ids are missing.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeAreaFloorRoom:
		if s.RoomID <= 0 {
			return fmt.Errorf("room scope requires a room id")
		}
		fallthrough
	case ScopeAreaFloor:
		if s.FloorID <= 0 {
			return fmt.Errorf("%s scope requires a floor id", s.Kind)
		}
		fallthrough
	case ScopeArea:
		if s.AreaID <= 0 {
			return fmt.Errorf("%s scope requires an area id", s.Kind)
		}
		return nil
	}
	return fmt.Errorf("unknown scope kind %d", s.Kind)
}

func (s Scope) String() string {
	a, f, r := s.Columns()
	return fmt.Sprintf("%s(%d/%d/%d)", s.Kind, a, f, r)
}

// Location is the structured position of a device in the hierarchy.
type Location struct {
	AreaID  int64
	FloorID int64
	RoomID  int64

	Area  string
	Floor string
	Room  string
}

// LocationOf reads the location of a device. Names are filled when the
// associations are preloaded.
func LocationOf(d model.Device) Location {
	return Location{
		AreaID:  d.AreaID,
		FloorID: d.FloorID,
		RoomID:  d.RoomID,
		Area:    d.AreaName(),
		Floor:   d.FloorName(),
		Room:    d.RoomName(),
	}
}

// Candidates lists the scopes that can apply to the location, most specific first.
func (l Location) Candidates() []Scope {
	if l.AreaID == 0 {
		return nil
	}
	scopes := make([]Scope, 0, 3)
	if l.FloorID != 0 {
		if l.RoomID != 0 {
			scopes = append(scopes, AreaFloorRoomScope(l.AreaID, l.FloorID, l.RoomID))
		}
		scopes = append(scopes, AreaFloorScope(l.AreaID, l.FloorID))
	}
	return append(scopes, AreaScope(l.AreaID))
}
