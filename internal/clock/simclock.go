package clock

import (
	"fmt"
	"time"

	"github.com/cxd309/transit-engine/internal/simerr"
)

// Clock is the simulation clock: the current time of day and the step length
// used by a default tick.
type Clock struct {
	now  TimeOfDay
	step time.Duration
}

// NewClock returns a clock at midnight with the given step.
func NewClock(step time.Duration) (*Clock, error) {
	c := &Clock{}
	if err := c.SetStep(step); err != nil {
		return nil, err
	}
	return c, nil
}

// Now returns the current time of day.
func (c *Clock) Now() TimeOfDay { return c.now }

// Step returns the default tick length.
func (c *Clock) Step() time.Duration { return c.step }

// SetStep changes the default tick length.
func (c *Clock) SetStep(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("step %s: %w", d, simerr.ErrInvalidDuration)
	}
	c.step = d
	return nil
}

// Next computes the time after advancing by d without committing it.
func (c *Clock) Next(d time.Duration) (TimeOfDay, bool) {
	return c.now.Add(d)
}

// Set moves the clock to t. Only the engine's commit, reset and SetTime call it.
func (c *Clock) Set(t TimeOfDay) { c.now = t }
