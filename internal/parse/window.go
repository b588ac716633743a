package parse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is an optional calendar filter: a year, a month of a year, or a single day.
// The zero Window applies no filter.
type Window struct {
	Year     int
	Month    time.Month
	Day      int
	Location *time.Location
}

// IsZero reports whether the window applies no filter.
func (w Window) IsZero() bool { return w.Year == 0 }

// End returns the exclusive upper bound of the window, or nil when the window is empty.
func (w Window) End() *time.Time {
	if w.IsZero() {
		return nil
	}
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}

	var end time.Time
	switch {
	case w.Day > 0:
		end = time.Date(w.Year, w.Month, w.Day, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	case w.Month > 0:
		end = time.Date(w.Year, w.Month, 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
	default:
		end = time.Date(w.Year+1, time.January, 1, 0, 0, 0, 0, loc)
	}
	return &end
}

// ParseWindow validates the year, month and day query values.
// A month requires a year and a day requires a month. Empty strings mean "not set".
func ParseWindow(year, month, day string, loc *time.Location) (Window, error) {
	year, month, day = strings.TrimSpace(year), strings.TrimSpace(month), strings.TrimSpace(day)
	w := Window{Location: loc}

	if year == "" {
		if month != "" || day != "" {
			return Window{}, fmt.Errorf("%w: month and day require a year", ErrInvalid)
		}
		return w, nil
	}
	y, err := strconv.Atoi(year)
	if err != nil || y < 1970 || y > 9999 {
		return Window{}, fmt.Errorf("%w: year %q", ErrInvalid, year)
	}
	w.Year = y

	if month == "" {
		if day != "" {
			return Window{}, fmt.Errorf("%w: day requires a month", ErrInvalid)
		}
		return w, nil
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return Window{}, fmt.Errorf("%w: month %q", ErrInvalid, month)
	}
	w.Month = time.Month(m)

	if day == "" {
		return w, nil
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > daysIn(y, w.Month) {
		return Window{}, fmt.Errorf("%w: day %q", ErrInvalid, day)
	}
	w.Day = d
	return w, nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
