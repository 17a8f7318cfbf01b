package engine

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"github.com/cxd309/transit-engine/internal/clock"
	"github.com/cxd309/transit-engine/internal/fleet"
	"github.com/cxd309/transit-engine/internal/kinematics"
	"github.com/cxd309/transit-engine/internal/lines"
	"github.com/cxd309/transit-engine/internal/network"
	"github.com/cxd309/transit-engine/internal/schedule"
)

// Config holds the timing and speed parameters of a simulation.
type Config struct {
	StepTime time.Duration          // default tick length used by Step
	Motion   kinematics.MotionModel // converts elapsed time to distance
}

// VehiclePosition is one entry of a tick's move log.
type VehiclePosition struct {
	ID       fleet.VehicleID `json:"id"`
	Line     lines.LineID    `json:"line"`
	Position orb.Point       `json:"position"`
}

// TickLog is the state of all live vehicles after a single tick.
type TickLog struct {
	Tick     int               `json:"tick"`
	Time     clock.TimeOfDay   `json:"time"`
	Vehicles []VehiclePosition `json:"vehicles"` // ordered by id
}

// SimulationLog is the complete output of a headless run.
type SimulationLog struct {
	RunID    string    `json:"run_id"`
	Start    string    `json:"start"`
	StepTime float64   `json:"step_time"` // seconds
	Output   []TickLog `json:"output"`
}

// Stats are running counters since the last initialization.
type Stats struct {
	Ticks   int `json:"ticks"`
	Spawned int `json:"spawned"`
	Retired int `json:"retired"`
	Live    int `json:"live"`
	Pending int `json:"pending"`
	// Days counts midnight crossings.
	Days int `json:"days"`
}

// Observer is notified after each committed tick. Callbacks run on the
// caller's goroutine, inside Simulate, and must not call back into the
// Simulation.
type Observer interface {
	VehicleAdded(v fleet.VehicleLog)
	VehicleMoved(v fleet.VehicleLog)
	VehicleRemoved(id fleet.VehicleID)
	TickCompleted(t TickLog)
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithLogger sets the logger; the default is the logrus standard logger.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Simulation) { s.log = log }
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(s *Simulation) { s.observers = append(s.observers, o) }
}

// Simulation is the transit simulation engine. It exclusively owns the clock,
// the event table and the vehicle registry, and holds shared references to
// the street network and the lines.
//
// A Simulation is not safe for concurrent use.
type Simulation struct {
	clock    *clock.Clock
	motion   kinematics.MotionModel
	events   *schedule.EventTable
	registry *fleet.Registry

	network *network.Network
	lines   *lines.Set

	moveLog   map[fleet.VehicleID]orb.Point
	last      TickLog
	nextID    fleet.VehicleID
	stats     Stats
	runID     string
	halted    error
	observers []Observer
	log       *logrus.Entry
}
