package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
}

func NewTimeWindow(start, end time.Time) TimeWindow {
	return TimeWindow{Start: start, End: end}
}

// ParseTimeWindow parses two local-naive timestamps.
func ParseTimeWindow(start, end string) (TimeWindow, error) {
	s, err := ParseTimestamp(start)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("start_time: %w", err)
	}
	e, err := ParseTimestamp(end)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("end_time: %w", err)
	}
	return TimeWindow{Start: s, End: e}, nil
}

func (w TimeWindow) Valid() bool {
	return w.Start.Before(w.End)
}

// Overlaps reports whether two windows intersect; touching ends do not overlap.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

var secondsPerHour = decimal.NewFromInt(3600)

// Charge prices the window at an hourly rate over fractional hours. The
// division comes last so thirds of an hour stay exact for whole rates.
func (w TimeWindow) Charge(hourlyRate decimal.Decimal) decimal.Decimal {
	seconds := decimal.NewFromInt(int64(w.Duration() / time.Second))
	return hourlyRate.Mul(seconds).Div(secondsPerHour)
}

func (w TimeWindow) String() string {
	return FormatTimestamp(w.Start) + "/" + FormatTimestamp(w.End)
}

// ParseTimestamp accepts YYYY-MM-DDTHH:mm:ss or YYYY-MM-DDTHH:mm and returns a
// wall-clock time in UTC. Offsets are not part of the format.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	for _, layout := range []string{TimestampLayout, TimestampLayoutShort} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q; expected YYYY-MM-DDTHH:mm:ss", raw)
}

func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ClockSeconds returns seconds since midnight of t's wall clock.
func ClockSeconds(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// ParseClock parses HH:MM or HH:MM:SS into seconds since midnight.
func ParseClock(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{ClockLayout, ClockLayoutShort} {
		if t, err := time.Parse(layout, raw); err == nil {
			return ClockSeconds(t), nil
		}
	}
	return 0, fmt.Errorf("invalid clock time %q", raw)
}

// WallClock drops t's location, keeping its wall-clock reading, so it compares
// with stored timestamps.
func WallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}
