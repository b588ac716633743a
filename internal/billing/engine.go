package billing

import (
	"context"
	"fmt"
	"time"

	"dianbiao-backend/internal/model"
	"dianbiao-backend/internal/parse"
)

// ReadingSource is the read side of the reading store.
type ReadingSource interface {
	// ListReadings returns readings of a device, ascending by time. An empty period means all.
	ListReadings(ctx context.Context, deviceID int64, period string) ([]model.Reading, error)
	// LatestReading returns the newest reading strictly before the bound, if any.
	LatestReading(ctx context.Context, deviceID int64, before *time.Time) (model.Reading, bool, error)
}

// Bill is the monthly charge of one device.
type Bill struct {
	DeviceID int64           `json:"device_id"`
	Code     string          `json:"device_code"`
	Period   string          `json:"month"`
	Usage    float64         `json:"usage"`
	Price    float64         `json:"price"`
	Source   Source          `json:"source"`
	Cost     float64         `json:"cost"`
	Readings []model.Reading `json:"data"`
}

// Engine combines period usage with the resolved tariff.
type Engine struct {
	readings ReadingSource
	resolver *Resolver
}

// NewEngine creates a billing engine.
func NewEngine(readings ReadingSource, resolver *Resolver) *Engine {
	return &Engine{readings: readings, resolver: resolver}
}

// Bill computes usage, price and cost of a device for a "YYYY-MM" period.
func (e *Engine) Bill(ctx context.Context, device model.Device, period string) (Bill, error) {
	p, err := parse.ParsePeriod(period)
	if err != nil {
		return Bill{}, err
	}
	key := p.String()

	readings, err := e.readings.ListReadings(ctx, device.ID, key)
	if err != nil {
		return Bill{}, fmt.Errorf("failed to list readings of device %d for %s: %w", device.ID, key, err)
	}

	res, err := e.resolver.Resolve(ctx, LocationOf(device))
	if err != nil {
		return Bill{}, err
	}

	usage := PeriodUsage(readings)
	if readings == nil {
		readings = []model.Reading{}
	}
	return Bill{
		DeviceID: device.ID,
		Code:     device.Code,
		Period:   key,
		Usage:    usage,
		Price:    res.Price,
		Source:   res.Source,
		Cost:     Cost(usage, res.Price),
		Readings: readings,
	}, nil
}
