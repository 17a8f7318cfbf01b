// Package engine implements the transit simulation loop.
//
// The simulation advances by caller-supplied durations. Each tick runs in
// this order:
//
//  1. Clock - compute the new time of day, wrapping past midnight.
//  2. Events - drain every departure due by the new time and spawn one
//     vehicle per event at the start of its line's active route.
//  3. Motion - advance every vehicle that existed before the tick by
//     elapsed time x base speed x the traffic factor of its current street.
//     Vehicles that reach the end of their route are retired.
//  4. Commit - store the new time and rebuild the move log from scratch.
//
// Vehicles never interact, so the result does not depend on iteration order.
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"github.com/cxd309/transit-engine/internal/clock"
	"github.com/cxd309/transit-engine/internal/fleet"
	"github.com/cxd309/transit-engine/internal/lines"
	"github.com/cxd309/transit-engine/internal/network"
	"github.com/cxd309/transit-engine/internal/schedule"
	"github.com/cxd309/transit-engine/internal/simerr"
)

// New constructs an uninitialized Simulation. Call InitializeSimulation
// before the first tick.
func New(cfg Config, opts ...Option) (*Simulation, error) {
	if cfg.Motion == nil {
		return nil, fmt.Errorf("no motion model: %w", simerr.ErrInvalidInput)
	}
	clk, err := clock.NewClock(cfg.StepTime)
	if err != nil {
		return nil, fmt.Errorf("configuring clock: %w", err)
	}
	s := &Simulation{
		clock:    clk,
		motion:   cfg.Motion,
		events:   schedule.NewEventTable(),
		registry: fleet.NewRegistry(),
		moveLog:  make(map[fleet.VehicleID]orb.Point),
		log:      logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "engine")
	return s, nil
}

// InitializeSimulation resets the clock to midnight, discards all vehicles and
// pending events, and schedules one departure per timetable entry per line.
// Every route of every line must be built from streets of net.
func (s *Simulation) InitializeSimulation(net *network.Network, ls *lines.Set) error {
	if net == nil || ls == nil {
		return fmt.Errorf("initializing without network or lines: %w", simerr.ErrInvalidInput)
	}
	if err := checkRoutes(net, ls); err != nil {
		return err
	}

	s.clock.Set(clock.Midnight)
	s.registry.Clear()
	cancelled := s.events.Cancel()
	s.moveLog = make(map[fleet.VehicleID]orb.Point)
	s.last = TickLog{Time: clock.Midnight, Vehicles: []VehiclePosition{}}
	s.nextID = 0
	s.stats = Stats{}
	s.halted = nil
	s.runID = uuid.NewString()
	s.network, s.lines = net, ls

	for _, l := range ls.All() {
		for _, t := range l.Timetable() {
			if err := s.events.Schedule(t, l); err != nil {
				return fmt.Errorf("line %q: %w", l.ID(), err)
			}
		}
	}
	s.stats.Pending = s.events.Len()

	s.log.WithFields(logrus.Fields{
		"run_id":    s.runID,
		"streets":   net.Len(),
		"lines":     ls.Len(),
		"events":    s.events.Len(),
		"cancelled": cancelled,
	}).Info("simulation initialized")
	return nil
}

// checkRoutes rejects lines whose routes reference streets outside net, since
// traffic changes on net would not reach them.
func checkRoutes(net *network.Network, ls *lines.Set) error {
	for _, l := range ls.All() {
		for _, r := range l.Variants() {
			for _, st := range r.Streets() {
				got, err := net.Street(st.ID())
				if err != nil || got != st {
					return fmt.Errorf("line %q route %q: street %q is not part of the network: %w",
						l.ID(), r.ID(), st.ID(), simerr.ErrInvalidInput)
				}
			}
		}
	}
	return nil
}

// Simulate advances the world by delta.
func (s *Simulation) Simulate(delta time.Duration) error {
	if s.halted != nil {
		return fmt.Errorf("%w: %v", simerr.ErrHalted, s.halted)
	}
	if s.lines == nil {
		return fmt.Errorf("simulate before initialization: %w", simerr.ErrInvalidInput)
	}
	if delta <= 0 {
		return fmt.Errorf("tick of %s: %w", delta, simerr.ErrInvalidDuration)
	}

	newTime, wrapped := s.clock.Next(delta)

	// Snapshot before spawning: vehicles spawned this tick start moving next tick.
	movers := s.registry.All()

	// Events at or before the pre-tick clock are only ever SetTime backlog,
	// which fires on the next tick. So after a wrap the due set is the rest
	// of the old day plus that backlog, and the new day's [00:00, newTime]
	// is contained in the backlog.
	upto := newTime
	if wrapped {
		upto = clock.EndOfDay
	}
	spawned, err := s.spawn(s.events.DrainDue(upto))
	if err != nil {
		s.halted = err
		s.log.WithError(err).Error("simulation halted")
		return fmt.Errorf("at %s: %w", newTime, err)
	}

	moved := make([]*fleet.Vehicle, 0, len(movers))
	var removed []fleet.VehicleID
	for _, v := range movers {
		flow := v.CurrentStreet().TrafficFlow()
		v.Advance(s.motion.StepDistance(delta, flow))
		if v.Finished() {
			s.registry.Remove(v.ID)
			removed = append(removed, v.ID)
			s.log.WithFields(logrus.Fields{"vehicle": v.ID, "line": v.Line.ID()}).Debug("vehicle reached terminus")
			continue
		}
		moved = append(moved, v)
	}

	s.clock.Set(newTime)
	s.stats.Ticks++
	if wrapped {
		s.stats.Days++
	}
	s.stats.Retired += len(removed)
	s.stats.Live = s.registry.Count()
	s.stats.Pending = s.events.Len()

	tick := s.rebuildMoveLog()
	s.notify(spawned, moved, removed, tick)
	return nil
}

// Step advances the world by the configured step time.
func (s *Simulation) Step() error {
	return s.Simulate(s.clock.Step())
}

func (s *Simulation) spawn(due []schedule.PendingEvent) ([]*fleet.Vehicle, error) {
	spawned := make([]*fleet.Vehicle, 0, len(due))
	for _, ev := range due {
		s.nextID++
		v := fleet.NewVehicle(s.nextID, ev.Line, ev.Time)
		if err := s.registry.Add(v); err != nil {
			return spawned, fmt.Errorf("spawning vehicle for line %q: %w", ev.Line.ID(), err)
		}
		s.stats.Spawned++
		spawned = append(spawned, v)
		s.log.WithFields(logrus.Fields{
			"vehicle": v.ID,
			"line":    ev.Line.ID(),
			"route":   v.Route.ID(),
			"due":     ev.Time.String(),
		}).Debug("vehicle departed")
	}
	return spawned, nil
}

func (s *Simulation) rebuildMoveLog() TickLog {
	live := s.registry.All()
	s.moveLog = make(map[fleet.VehicleID]orb.Point, len(live))
	tick := TickLog{
		Tick:     s.stats.Ticks,
		Time:     s.clock.Now(),
		Vehicles: make([]VehiclePosition, 0, len(live)),
	}
	for _, v := range live {
		s.moveLog[v.ID] = v.Position
		tick.Vehicles = append(tick.Vehicles, VehiclePosition{ID: v.ID, Line: v.Line.ID(), Position: v.Position})
	}
	s.last = tick
	return tick
}

func (s *Simulation) notify(spawned, moved []*fleet.Vehicle, removed []fleet.VehicleID, tick TickLog) {
	if len(s.observers) == 0 {
		return
	}
	for _, o := range s.observers {
		for _, v := range spawned {
			o.VehicleAdded(v.Log())
		}
		for _, v := range moved {
			o.VehicleMoved(v.Log())
		}
		for _, id := range removed {
			o.VehicleRemoved(id)
		}
		o.TickCompleted(tick)
	}
}

// SetTime moves the clock to hours:minutes. Fired events are not re-armed;
// pending events before the new time fire on the next tick.
func (s *Simulation) SetTime(hours, minutes int) error {
	t, err := clock.New(hours, minutes, 0)
	if err != nil {
		return err
	}
	return s.SetTimeOfDay(t)
}

// SetTimeOfDay is SetTime with second resolution.
func (s *Simulation) SetTimeOfDay(t clock.TimeOfDay) error {
	if !t.Valid() {
		return fmt.Errorf("time %s: %w", t, simerr.ErrInvalidSchedule)
	}
	s.clock.Set(t)
	s.log.WithField("time", t.String()).Info("simulation time set")
	return nil
}

// AlternateLineRoute switches the line at lineIndex to its next route
// variant. Vehicles already on the road keep the route they started on.
func (s *Simulation) AlternateLineRoute(lineIndex int) error {
	if s.lines == nil {
		return fmt.Errorf("line %d: %w", lineIndex, simerr.ErrNotFound)
	}
	l, err := s.lines.At(lineIndex)
	if err != nil {
		return err
	}
	if err := l.Alternate(); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"line": l.ID(), "route": l.ActiveRoute().ID()}).Info("line route alternated")
	return nil
}

// Restart re-initializes with the last loaded network and lines, restoring
// every line's primary route.
func (s *Simulation) Restart() error {
	if s.network == nil || s.lines == nil {
		return fmt.Errorf("restart before initialization: %w", simerr.ErrInvalidInput)
	}
	s.lines.ResetVariants()
	return s.InitializeSimulation(s.network, s.lines)
}

// Run executes ticks default-length steps and returns their logs.
func (s *Simulation) Run(ticks int) ([]TickLog, error) {
	out := make([]TickLog, 0, ticks)
	for i := 0; i < ticks; i++ {
		if err := s.Step(); err != nil {
			return nil, fmt.Errorf("tick %d: %w", i+1, err)
		}
		out = append(out, s.last)
	}
	return out, nil
}
