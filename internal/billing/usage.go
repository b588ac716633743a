package billing

import "dianbiao-backend/internal/model"

// PeriodUsage is the consumption over a set of readings of one device and period:
// the value of the latest reading minus the value of the earliest one.
// Fewer than two readings yield 0. A decreasing counter yields a negative result,
// which is returned as is.
func PeriodUsage(readings []model.Reading) float64 {
	if len(readings) < 2 {
		return 0
	}
	first, last := readings[0], readings[0]
	for _, r := range readings[1:] {
		if r.ReadAt.Before(first.ReadAt) {
			first = r
		}
		// ties resolve to the later element of the slice
		if !r.ReadAt.Before(last.ReadAt) {
			last = r
		}
	}
	return last.Value - first.Value
}

// LiveUsage is the dashboard figure for a device: the raw value of its most
// recent reading, or 0 when it has none.
func LiveUsage(latest *model.Reading) float64 {
	if latest == nil {
		return 0
	}
	return latest.Value
}

// Cost prices a usage figure. No rounding is applied.
func Cost(usage, price float64) float64 {
	return usage * price
}
