// Package fleet defines the simulated vehicles and the registry that owns the
// live ones.
package fleet

import (
	"github.com/paulmach/orb"

	"github.com/cxd309/transit-engine/internal/clock"
	"github.com/cxd309/transit-engine/internal/lines"
	"github.com/cxd309/transit-engine/internal/network"
)

// VehicleID is the unique, monotonically assigned vehicle identifier.
type VehicleID = int

// Vehicle is one bus or tram in service. The route is captured when the
// vehicle is spawned; later route alternation on its line does not affect it.
type Vehicle struct {
	ID        VehicleID
	Line      *lines.Line
	Route     *network.Route
	SpawnedAt clock.TimeOfDay
	Distance  float64   // distance travelled along Route
	Position  orb.Point // derived from Distance
}

// NewVehicle creates a vehicle at the start of its line's active route.
func NewVehicle(id VehicleID, line *lines.Line, at clock.TimeOfDay) *Vehicle {
	route := line.ActiveRoute()
	return &Vehicle{
		ID:        id,
		Line:      line,
		Route:     route,
		SpawnedAt: at,
		Position:  route.PositionAt(0),
	}
}

// CurrentStreet returns the street the vehicle occupies.
func (v *Vehicle) CurrentStreet() *network.Street {
	_, s, _ := v.Route.Locate(v.Distance)
	return s
}

// Advance moves the vehicle d units further along its route and refreshes its
// position. Negative distances are ignored so Distance never decreases.
func (v *Vehicle) Advance(d float64) {
	if d > 0 {
		v.Distance += d
	}
	v.Position = v.Route.PositionAt(v.Distance)
}

// Finished reports whether the vehicle has reached the end of its route.
func (v *Vehicle) Finished() bool {
	return v.Distance >= v.Route.Length()
}

// VehicleLog is a point-in-time snapshot of a Vehicle's state.
type VehicleLog struct {
	ID          VehicleID       `json:"id"`
	Line        lines.LineID    `json:"line"`
	Label       string          `json:"label"`
	Destination string          `json:"destination"`
	Route       network.RouteID `json:"route"`
	Street      string          `json:"street"`
	SpawnedAt   clock.TimeOfDay `json:"spawned_at"`
	Distance    float64         `json:"distance"`
	Progress    float64         `json:"progress"` // 0..1 along the route
	Position    orb.Point       `json:"position"`
	NextStop    string          `json:"next_stop,omitempty"`
}

// Log returns a point-in-time snapshot of the vehicle state.
func (v *Vehicle) Log() VehicleLog {
	progress := 1.0
	if l := v.Route.Length(); l > 0 && v.Distance < l {
		progress = v.Distance / l
	}
	vl := VehicleLog{
		ID:          v.ID,
		Line:        v.Line.ID(),
		Label:       v.Line.Label(),
		Destination: v.Line.Destination(),
		Route:       v.Route.ID(),
		Street:      v.CurrentStreet().ID(),
		SpawnedAt:   v.SpawnedAt,
		Distance:    v.Distance,
		Progress:    progress,
		Position:    v.Position,
	}
	if st, ok := v.Route.NextStop(v.Distance); ok {
		vl.NextStop = st.Street.ID()
	}
	return vl
}
