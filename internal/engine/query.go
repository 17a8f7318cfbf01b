package engine

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/cxd309/transit-engine/internal/clock"
	"github.com/cxd309/transit-engine/internal/fleet"
	"github.com/cxd309/transit-engine/internal/lines"
	"github.com/cxd309/transit-engine/internal/network"
	"github.com/cxd309/transit-engine/internal/schedule"
)

// Now returns the simulation time of day.
func (s *Simulation) Now() clock.TimeOfDay { return s.clock.Now() }

// StepTime returns the default tick length.
func (s *Simulation) StepTime() time.Duration { return s.clock.Step() }

// SetStepTime changes the default tick length.
func (s *Simulation) SetStepTime(d time.Duration) error {
	if err := s.clock.SetStep(d); err != nil {
		return err
	}
	s.log.WithField("step", d.String()).Info("step time changed")
	return nil
}

// MoveLog returns a copy of the last tick's vehicle positions.
func (s *Simulation) MoveLog() map[fleet.VehicleID]orb.Point {
	out := make(map[fleet.VehicleID]orb.Point, len(s.moveLog))
	for id, p := range s.moveLog {
		out[id] = p
	}
	return out
}

// LastTick returns the log of the most recent tick.
func (s *Simulation) LastTick() TickLog {
	out := s.last
	out.Vehicles = append([]VehiclePosition(nil), s.last.Vehicles...)
	return out
}

// Vehicle returns a snapshot of the live vehicle with id.
func (s *Simulation) Vehicle(id fleet.VehicleID) (fleet.VehicleLog, error) {
	v, err := s.registry.Get(id)
	if err != nil {
		return fleet.VehicleLog{}, err
	}
	return v.Log(), nil
}

// HasVehicle reports whether a vehicle with id is live.
func (s *Simulation) HasVehicle(id fleet.VehicleID) bool {
	_, ok := s.registry.TryGet(id)
	return ok
}

// VehicleCount returns the number of live vehicles.
func (s *Simulation) VehicleCount() int { return s.registry.Count() }

// Vehicles returns snapshots of all live vehicles ordered by id.
func (s *Simulation) Vehicles() []fleet.VehicleLog {
	all := s.registry.All()
	out := make([]fleet.VehicleLog, len(all))
	for i, v := range all {
		out[i] = v.Log()
	}
	return out
}

// PendingEvents returns the departures not yet fired, in firing order.
func (s *Simulation) PendingEvents() []schedule.PendingEvent { return s.events.Pending() }

// Stats returns the counters since the last initialization.
func (s *Simulation) Stats() Stats { return s.stats }

// Lines returns the loaded lines, or nil before initialization.
func (s *Simulation) Lines() *lines.Set { return s.lines }

// Network returns the loaded street network, or nil before initialization.
func (s *Simulation) Network() *network.Network { return s.network }

// RunID identifies the current initialization.
func (s *Simulation) RunID() string { return s.runID }

// Halted returns the invariant violation that stopped the engine, if any.
func (s *Simulation) Halted() error { return s.halted }
