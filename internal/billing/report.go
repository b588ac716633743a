package billing

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"dianbiao-backend/internal/model"
	"dianbiao-backend/internal/parse"
)

// Window restricts which readings count as "latest" in a report.
type Window = parse.Window

// Report is the usage and cost roll-up across the location hierarchy.
type Report struct {
	TotalUsage float64    `json:"totalUsage"`
	TotalCost  float64    `json:"totalCost"`
	Stats      []AreaStat `json:"stats"`
}

type AreaStat struct {
	AreaID     int64       `json:"area_id"`
	Area       string      `json:"area"`
	Usage      float64     `json:"usage"`
	Cost       float64     `json:"cost"`
	Percentage float64     `json:"percentage"`
	Floors     []FloorStat `json:"floors"`
}

type FloorStat struct {
	FloorID    int64      `json:"floor_id"`
	Floor      string     `json:"floor"`
	Usage      float64    `json:"usage"`
	Cost       float64    `json:"cost"`
	Percentage float64    `json:"percentage"`
	Rooms      []RoomStat `json:"rooms"`
}

type RoomStat struct {
	RoomID     int64        `json:"room_id"`
	Room       string       `json:"room"`
	Usage      float64      `json:"usage"`
	Cost       float64      `json:"cost"`
	Percentage float64      `json:"percentage"`
	Devices    []DeviceStat `json:"devices"`
}

// DeviceStat is the live usage of one device priced with its resolved tariff.
type DeviceStat struct {
	ID       int64   `json:"id"`
	DeviceID string  `json:"device_id"`
	Usage    float64 `json:"usage"`
	Price    float64 `json:"price"`
	Source   Source  `json:"source"`
	Cost     float64 `json:"cost"`
}

// Reporter builds hierarchy reports from live device usage.
type Reporter struct {
	readings    ReadingSource
	resolver    *Resolver
	concurrency int
}

// NewReporter creates a reporter. concurrency bounds the number of devices
// looked up in parallel; values below 1 mean one at a time.
func NewReporter(readings ReadingSource, resolver *Resolver, concurrency int) *Reporter {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reporter{readings: readings, resolver: resolver, concurrency: concurrency}
}

// Aggregate prices the latest reading before the window end of every device and
// rolls the figures up into area, floor and room totals with their share of the
// grand total. Output order depends only on the data.
func (r *Reporter) Aggregate(ctx context.Context, devices []model.Device, w Window) (Report, error) {
	sorted := make([]model.Device, len(devices))
	copy(sorted, devices)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Code != sorted[j].Code {
			return sorted[i].Code < sorted[j].Code
		}
		return sorted[i].ID < sorted[j].ID
	})

	stats, err := r.deviceStats(ctx, sorted, w)
	if err != nil {
		return Report{}, err
	}

	report := rollUp(sorted, stats)
	log.Debug().Int("devices", len(sorted)).Float64("total_usage", report.TotalUsage).Msg("aggregated usage report")
	return report, nil
}

// deviceStats looks devices up concurrently; stats[i] belongs to devices[i].
func (r *Reporter) deviceStats(ctx context.Context, devices []model.Device, w Window) ([]DeviceStat, error) {
	stats := make([]DeviceStat, len(devices))
	before := w.End()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range devices {
		d := devices[i]
		g.Go(func() error {
			var latest *model.Reading
			reading, found, err := r.readings.LatestReading(gctx, d.ID, before)
			if err != nil {
				return fmt.Errorf("failed to load latest reading of device %s: %w", d.Code, err)
			}
			if found {
				latest = &reading
			}

			res, err := r.resolver.Resolve(gctx, LocationOf(d))
			if err != nil {
				return fmt.Errorf("failed to resolve tariff of device %s: %w", d.Code, err)
			}

			usage := LiveUsage(latest)
			stats[i] = DeviceStat{
				ID:       d.ID,
				DeviceID: d.Code,
				Usage:    usage,
				Price:    res.Price,
				Source:   res.Source,
				Cost:     Cost(usage, res.Price),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

type hierarchyKey struct {
	id   int64
	name string
}

func lessKey(a, b hierarchyKey) bool {
	if a.name != b.name {
		return a.name < b.name
	}
	return a.id < b.id
}

// rollUp groups device stats by area, floor and room. devices and stats are parallel.
func rollUp(devices []model.Device, stats []DeviceStat) Report {
	type roomAcc struct {
		key     hierarchyKey
		devices []DeviceStat
	}
	type floorAcc struct {
		key   hierarchyKey
		rooms map[int64]*roomAcc
	}
	type areaAcc struct {
		key    hierarchyKey
		floors map[int64]*floorAcc
	}

	areas := make(map[int64]*areaAcc)
	for i, d := range devices {
		a, ok := areas[d.AreaID]
		if !ok {
			a = &areaAcc{key: hierarchyKey{d.AreaID, d.AreaName()}, floors: make(map[int64]*floorAcc)}
			areas[d.AreaID] = a
		}
		f, ok := a.floors[d.FloorID]
		if !ok {
			f = &floorAcc{key: hierarchyKey{d.FloorID, d.FloorName()}, rooms: make(map[int64]*roomAcc)}
			a.floors[d.FloorID] = f
		}
		rm, ok := f.rooms[d.RoomID]
		if !ok {
			rm = &roomAcc{key: hierarchyKey{d.RoomID, d.RoomName()}}
			f.rooms[d.RoomID] = rm
		}
		rm.devices = append(rm.devices, stats[i])
	}

	report := Report{Stats: make([]AreaStat, 0, len(areas))}
	for _, a := range areas {
		as := AreaStat{AreaID: a.key.id, Area: a.key.name, Floors: make([]FloorStat, 0, len(a.floors))}
		for _, f := range a.floors {
			fs := FloorStat{FloorID: f.key.id, Floor: f.key.name, Rooms: make([]RoomStat, 0, len(f.rooms))}
			for _, rm := range f.rooms {
				rs := RoomStat{RoomID: rm.key.id, Room: rm.key.name, Devices: rm.devices}
				for _, ds := range rm.devices {
					rs.Usage += ds.Usage
					rs.Cost += ds.Cost
				}
				fs.Rooms = append(fs.Rooms, rs)
			}
			sort.Slice(fs.Rooms, func(i, j int) bool {
				return lessKey(hierarchyKey{fs.Rooms[i].RoomID, fs.Rooms[i].Room}, hierarchyKey{fs.Rooms[j].RoomID, fs.Rooms[j].Room})
			})
			for _, rs := range fs.Rooms {
				fs.Usage += rs.Usage
				fs.Cost += rs.Cost
			}
			as.Floors = append(as.Floors, fs)
		}
		sort.Slice(as.Floors, func(i, j int) bool {
			return lessKey(hierarchyKey{as.Floors[i].FloorID, as.Floors[i].Floor}, hierarchyKey{as.Floors[j].FloorID, as.Floors[j].Floor})
		})
		for _, fs := range as.Floors {
			as.Usage += fs.Usage
			as.Cost += fs.Cost
		}
		report.Stats = append(report.Stats, as)
	}
	sort.Slice(report.Stats, func(i, j int) bool {
		return lessKey(hierarchyKey{report.Stats[i].AreaID, report.Stats[i].Area}, hierarchyKey{report.Stats[j].AreaID, report.Stats[j].Area})
	})
	for _, as := range report.Stats {
		report.TotalUsage += as.Usage
		report.TotalCost += as.Cost
	}

	applyPercentages(&report)
	return report
}

// applyPercentages sets every level's share of the grand total usage.
// All shares stay 0 when the total is 0.
func applyPercentages(report *Report) {
	total := report.TotalUsage
	share := func(usage float64) float64 {
		if total == 0 {
			return 0
		}
		return usage / total * 100
	}
	for i := range report.Stats {
		as := &report.Stats[i]
		as.Percentage = share(as.Usage)
		for j := range as.Floors {
			fs := &as.Floors[j]
			fs.Percentage = share(fs.Usage)
			for k := range fs.Rooms {
				fs.Rooms[k].Percentage = share(fs.Rooms[k].Usage)
			}
		}
	}
}
