package billing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"dianbiao-backend/internal/model"
)

// Source names where a resolved price came from.
type Source string

const (
	SourceRoom    Source = "room"
	SourceFloor   Source = "floor"
	SourceArea    Source = "area"
	SourceDefault Source = "default"
)

func sourceOf(k ScopeKind) Source {
	switch k {
	case ScopeAreaFloorRoom:
		return SourceRoom
	case ScopeAreaFloor:
		return SourceFloor
	default:
		return SourceArea
	}
}

// TariffSource is the read side of the tariff store used for resolution.
type TariffSource interface {
	// FindTariff returns the tariff stored for exactly this scope.
	FindTariff(ctx context.Context, scope Scope) (model.Tariff, bool, error)
	// DefaultTariff returns the default tariff, creating it with the fallback price if absent.
	DefaultTariff(ctx context.Context) (model.DefaultTariff, error)
}

// Resolution is the outcome of resolving a price for a location.
type Resolution struct {
	Price    float64 `json:"price"`
	Source   Source  `json:"source"`
	TariffID int64   `json:"tariff_id,omitempty"`
}

// Resolver picks the most specific tariff for a location.
type Resolver struct {
	tariffs TariffSource
}

// NewResolver creates a resolver backed by the given tariff source.
func NewResolver(tariffs TariffSource) *Resolver {
	return &Resolver{tariffs: tariffs}
}

// Resolve walks room, floor and area scopes and falls back to the default tariff.
// A missing tariff is never an error; only storage failures are returned.
func (r *Resolver) Resolve(ctx context.Context, loc Location) (Resolution, error) {
	for _, scope := range loc.Candidates() {
		t, found, err := r.tariffs.FindTariff(ctx, scope)
		if err != nil {
			return Resolution{}, fmt.Errorf("failed to look up %s tariff: %w", scope, err)
		}
		if found {
			return Resolution{Price: t.Price, Source: sourceOf(scope.Kind), TariffID: t.ID}, nil
		}
	}

	def, err := r.tariffs.DefaultTariff(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to load default tariff: %w", err)
	}
	log.Debug().Int64("area", loc.AreaID).Int64("floor", loc.FloorID).Int64("room", loc.RoomID).
		Float64("price", def.Price).Msg("no scoped tariff, using default")
	return Resolution{Price: def.Price, Source: SourceDefault}, nil
}
