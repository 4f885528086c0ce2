package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustWindow(t *testing.T, start, end string) TimeWindow {
	t.Helper()
	w, err := ParseTimeWindow(start, end)
	require.NoError(t, err)
	return w
}

func TestTimeWindow_Overlaps(t *testing.T) {
	base := mustWindow(t, "2025-03-03T09:00:00", "2025-03-03T10:00:00")

	tests := []struct {
		name  string
		other TimeWindow
		want  bool
	}{
		{"identical", base, true},
		{"touching after", mustWindow(t, "2025-03-03T10:00:00", "2025-03-03T11:00:00"), false},
		{"touching before", mustWindow(t, "2025-03-03T08:00:00", "2025-03-03T09:00:00"), false},
		{"inside", mustWindow(t, "2025-03-03T09:15:00", "2025-03-03T09:45:00"), true},
		{"straddles start", mustWindow(t, "2025-03-03T08:30:00", "2025-03-03T09:30:00"), true},
		{"other day", mustWindow(t, "2025-03-04T09:00:00", "2025-03-04T10:00:00"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(base))
		})
	}
}

func TestTimeWindow_ChargeAndValid(t *testing.T) {
	w := mustWindow(t, "2025-03-03T09:00", "2025-03-03T10:30")
	assert.True(t, w.Valid())
	assert.True(t, w.Charge(decimal.NewFromInt(20)).Equal(decimal.NewFromInt(30)))

	third := mustWindow(t, "2025-03-03T09:00", "2025-03-03T09:20")
	assert.True(t, third.Charge(decimal.NewFromInt(30)).Equal(decimal.NewFromInt(10)))

	inverted := mustWindow(t, "2025-03-03T10:00:00", "2025-03-03T09:00:00")
	assert.False(t, inverted.Valid())

	empty := mustWindow(t, "2025-03-03T10:00:00", "2025-03-03T10:00:00")
	assert.False(t, empty.Valid())
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2025-03-03T09:05:07")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, ts.Weekday())
	assert.Equal(t, "2025-03-03T09:05:07", FormatTimestamp(ts))

	_, err = ParseTimestamp("03/03/2025 09:00")
	assert.Error(t, err)

	_, err = ParseTimestamp("")
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	secs, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9*3600+30*60, secs)

	secs, err = ParseClock("17:00:15")
	require.NoError(t, err)
	assert.Equal(t, 17*3600+15, secs)

	_, err = ParseClock("25:00")
	assert.Error(t, err)
}

func TestPricingRule_Weekdays(t *testing.T) {
	open := PricingRule{}
	assert.True(t, open.AppliesOnWeekday(time.Sunday))
	assert.False(t, open.HasWeekday(time.Sunday))

	weekend := PricingRule{DaysOfWeek: []int{0, 6}}
	assert.True(t, weekend.AppliesOnWeekday(time.Saturday))
	assert.False(t, weekend.AppliesOnWeekday(time.Monday))
}

func TestBucketKey(t *testing.T) {
	w := mustWindow(t, "2025-03-03T09:00:00", "2025-03-03T10:00:00")
	b := Bucket{CourtID: "c1", Window: w}
	assert.Equal(t, "c1|2025-03-03T09:00:00|2025-03-03T10:00:00", b.Key())

	coach := "coach-1"
	entry := WaitlistEntry{CourtID: "c1", Window: w, CoachID: &coach, RacketCount: 2}
	assert.Equal(t, b, entry.Bucket())
	assert.False(t, entry.Active())
	assert.True(t, entry.Request().HasCoach())
}

func TestWallClock(t *testing.T) {
	zone := time.FixedZone("UTC+3", 3*3600)
	local := time.Date(2025, 3, 3, 9, 30, 15, 500, zone)

	got := WallClock(local)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, "2025-03-03T09:30:15", FormatTimestamp(got))
}
