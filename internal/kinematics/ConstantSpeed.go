package kinematics

import "time"

// ConstantModelName is the config discriminator string for the Constant model.
const ConstantModelName = "constant"

// ConstantSpeed implements MotionModel with one speed shared by every vehicle,
// modulated only by the traffic-flow factor of the street being driven.
type ConstantSpeed struct {
	Speed float64 `json:"speed"` // units per second
}

func (c ConstantSpeed) BaseSpeed() float64 { return c.Speed }

func (c ConstantSpeed) StepDistance(dt time.Duration, flow float64) float64 {
	if dt <= 0 || flow <= 0 {
		return 0
	}
	return dt.Seconds() * c.Speed * flow
}
