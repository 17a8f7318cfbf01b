// Package kinematics defines the MotionModel interface that turns elapsed
// simulated time into distance travelled, along with built-in implementations.
//
// Adding a new model only requires implementing MotionModel and registering
// its name in New; the engine never needs to change.
package kinematics

import (
	"fmt"
	"time"

	"github.com/cxd309/transit-engine/internal/simerr"
)

// MotionModel is the speed contract every kinematics implementation must satisfy.
// Distances are in network units and speeds in units per second.
type MotionModel interface {
	// BaseSpeed returns the unobstructed vehicle speed.
	BaseSpeed() float64

	// StepDistance returns how far a vehicle travels in dt on a street whose
	// traffic-flow factor is flow. It must be non-negative and strictly
	// increasing in flow for dt > 0.
	StepDistance(dt time.Duration, flow float64) float64
}

// New returns the named model. An empty name selects the constant model.
//
// Supported models:
//   - "constant": uniform base speed scaled by the street's traffic factor.
func New(name string, speed float64) (MotionModel, error) {
	switch name {
	case "", ConstantModelName:
		if speed <= 0 {
			return nil, fmt.Errorf("constant model speed %v: %w", speed, simerr.ErrInvalidInput)
		}
		return ConstantSpeed{Speed: speed}, nil
	default:
		return nil, fmt.Errorf("unknown kinematics model %q: %w", name, simerr.ErrInvalidInput)
	}
}
