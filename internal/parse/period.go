package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is wrapped by every parse failure in this package.
var ErrInvalid = errors.New("invalid value")

var periodRe = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)

// Period is a calendar-month billing bucket.
type Period struct {
	Year  int
	Month time.Month
}

// String renders the period key, e.g. "2024-03".
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Bounds returns the half-open interval [start, end) of the period in loc.
func (p Period) Bounds(loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

// ParsePeriod parses a "YYYY-MM" key. A single-digit month ("2024-3") is accepted.
func ParsePeriod(raw string) (Period, error) {
	m := periodRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return Period{}, fmt.Errorf("%w: period %q, expected YYYY-MM", ErrInvalid, raw)
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: month %d out of range in period %q", ErrInvalid, month, raw)
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// PeriodOf returns the period containing t when viewed in loc.
func PeriodOf(t time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return Period{Year: local.Year(), Month: local.Month()}
}

// PeriodKey is shorthand for PeriodOf(t, loc).String().
func PeriodKey(t time.Time, loc *time.Location) string {
	return PeriodOf(t, loc).String()
}
