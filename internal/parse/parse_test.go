package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  Period
		expectErr bool
	}{
		{name: "Standard key", raw: "2024-03", expected: Period{Year: 2024, Month: time.March}},
		{name: "Single digit month", raw: "2024-3", expected: Period{Year: 2024, Month: time.March}},
		{name: "Surrounding spaces", raw: " 2023-12 ", expected: Period{Year: 2023, Month: time.December}},
		{name: "Month zero", raw: "2024-00", expectErr: true},
		{name: "Month thirteen", raw: "2024-13", expectErr: true},
		{name: "Wrong separator", raw: "2024/03", expectErr: true},
		{name: "Empty", raw: "", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := ParsePeriod(tc.raw)
			if tc.expectErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, p)
		})
	}
}

func TestPeriodKeyUsesLocation(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	// 2024-01-31 20:00 UTC is already February 1st in Shanghai.
	ts := time.Date(2024, time.January, 31, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-01", PeriodKey(ts, time.UTC))
	assert.Equal(t, "2024-02", PeriodKey(ts, shanghai))

	start, end := Period{Year: 2024, Month: time.December}.Bounds(time.UTC)
	assert.Equal(t, time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestParseWindow(t *testing.T) {
	testCases := []struct {
		name        string
		year        string
		month       string
		day         string
		expectedEnd *time.Time
		expectErr   bool
	}{
		{name: "No filter", expectedEnd: nil},
		{name: "Year only", year: "2024", expectedEnd: ptr(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))},
		{name: "Year and month", year: "2024", month: "12", expectedEnd: ptr(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))},
		{name: "Full date", year: "2024", month: "2", day: "29", expectedEnd: ptr(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))},
		{name: "Month without year", month: "3", expectErr: true},
		{name: "Day without month", year: "2024", day: "3", expectErr: true},
		{name: "Day past month end", year: "2023", month: "2", day: "29", expectErr: true},
		{name: "Non numeric year", year: "abc", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := ParseWindow(tc.year, tc.month, tc.day, time.UTC)
			if tc.expectErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			if tc.expectedEnd == nil {
				assert.Nil(t, w.End())
				return
			}
			require.NotNil(t, w.End())
			assert.True(t, tc.expectedEnd.Equal(*w.End()), "got %v", w.End())
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	ts, err := ParseTimestamp("2024-03-01 08:00:00", shanghai)
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	ts, err = ParseTimestamp("2024-03-01T08:00:00Z", shanghai)
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)))

	_, err = ParseTimestamp("yesterday", shanghai)
	assert.ErrorIs(t, err, ErrInvalid)
}

func ptr(t time.Time) *time.Time { return &t }
