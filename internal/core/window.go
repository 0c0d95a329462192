package core

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without date or zone, stored as seconds since midnight.
type TimeOfDay int

const secondsPerDay = 24 * 60 * 60

var timeOfDayLayouts = []string{"15:04:05", "15:04"}

// NewTimeOfDay builds a TimeOfDay from its clock components.
func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay(hour*3600 + minute*60 + second)
}

// TimeOfDayOf returns the clock reading of t in t's location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return NewTimeOfDay(h, m, s)
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timeOfDayLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return TimeOfDayOf(t), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", value)
}

func (t TimeOfDay) String() string {
	s := int(t) % secondsPerDay
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// IsWithinWindow reports whether start <= now <= end. Windows never wrap past midnight:
// when start > end the result is always false.
func IsWithinWindow(now, start, end TimeOfDay) bool {
	return start <= now && now <= end
}

// Window is an inclusive daily time-of-day range.
type Window struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// Contains evaluates the window against the clock reading of t.
func (w Window) Contains(t time.Time) bool {
	return IsWithinWindow(TimeOfDayOf(t), w.Start, w.End)
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}
