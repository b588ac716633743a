package parse

import (
	"fmt"
	"strings"
	"time"
)

// gatewayLayout is the local wall-clock format used by meter gateways.
const gatewayLayout = "2006-01-02 15:04:05"

// ParseTimestamp accepts RFC 3339 timestamps and zone-less "2006-01-02 15:04:05"
// or "2006-01-02" values, which are interpreted in loc.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", ErrInvalid)
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(gatewayLayout, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrInvalid, raw)
}
