// Package clock provides the time-of-day type used by timetables and the
// simulation clock. Times wrap at midnight; there is no date component.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cxd309/transit-engine/internal/simerr"
)

// Day is the length of one simulated day.
const Day = 24 * time.Hour

// Midnight is 00:00:00.
const Midnight TimeOfDay = 0

// EndOfDay is the last representable nanosecond before midnight.
const EndOfDay = TimeOfDay(Day - 1)

// TimeOfDay is the offset from midnight, in [0, 24h).
type TimeOfDay time.Duration

// New returns the time of day for h:m:s, failing if any field is out of range.
func New(hours, minutes, seconds int) (TimeOfDay, error) {
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 || seconds < 0 || seconds > 59 {
		return 0, fmt.Errorf("%02d:%02d:%02d: %w", hours, minutes, seconds, simerr.ErrInvalidSchedule)
	}
	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
	return TimeOfDay(d), nil
}

// MustNew is New for constants in tests and fixtures.
func MustNew(hours, minutes, seconds int) TimeOfDay {
	t, err := New(hours, minutes, seconds)
	if err != nil {
		panic(err)
	}
	return t
}

// Parse reads "HH:MM" or "HH:MM:SS".
func Parse(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("time %q: expected HH:MM or HH:MM:SS: %w", s, simerr.ErrInvalidSchedule)
	}
	fields := [3]int{}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("time %q: %w", s, simerr.ErrInvalidSchedule)
		}
		fields[i] = n
	}
	return New(fields[0], fields[1], fields[2])
}

// Valid reports whether t lies in [0, 24h).
func (t TimeOfDay) Valid() bool {
	return t >= 0 && time.Duration(t) < Day
}

// Add advances t by d and wraps past midnight. wrapped is true when the
// result crossed 24:00:00.
func (t TimeOfDay) Add(d time.Duration) (next TimeOfDay, wrapped bool) {
	sum := time.Duration(t) + d
	if sum >= Day {
		return TimeOfDay(sum % Day), true
	}
	return TimeOfDay(sum), false
}

// Duration returns t as an offset from midnight.
func (t TimeOfDay) Duration() time.Duration { return time.Duration(t) }

// Clock returns the hour, minute and second components.
func (t TimeOfDay) Clock() (hours, minutes, seconds int) {
	s := int(time.Duration(t) / time.Second)
	return s / 3600, (s / 60) % 60, s % 60
}

func (t TimeOfDay) String() string {
	h, m, s := t.Clock()
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
