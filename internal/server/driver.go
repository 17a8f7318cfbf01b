package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cxd309/transit-engine/internal/engine"
	"github.com/cxd309/transit-engine/internal/publish"
	"github.com/cxd309/transit-engine/internal/simerr"
)

// Driver owns a Simulation and serializes every access to it. It advances
// the simulation on a wall-clock ticker and fans each tick out to the
// publisher and the websocket hub.
type Driver struct {
	mu       sync.Mutex
	sim      *engine.Simulation
	interval time.Duration

	// outMu orders publishing. Step takes it before releasing mu, so ticks
	// leave in the order they were committed.
	outMu sync.Mutex

	pub     publish.Publisher
	hub     *Hub
	changed chan struct{}
	log     *log.Entry
}

// NewDriver wraps sim. interval is the wall-clock time between automatic
// steps; zero leaves the simulation paused until stepped by hand. pub and hub
// may be nil.
func NewDriver(sim *engine.Simulation, interval time.Duration, pub publish.Publisher, hub *Hub) *Driver {
	if pub == nil {
		pub = publish.Discard{}
	}
	return &Driver{
		sim:      sim,
		interval: interval,
		pub:      pub,
		hub:      hub,
		changed:  make(chan struct{}, 1),
		log:      log.WithField("component", "driver"),
	}
}

// Do runs fn with exclusive access to the simulation.
func (d *Driver) Do(fn func(*engine.Simulation) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d.sim)
}

// Step advances the simulation by delta, or by its step time when delta is
// zero, then publishes the resulting tick.
func (d *Driver) Step(delta time.Duration) (engine.TickLog, error) {
	if delta < 0 {
		return engine.TickLog{}, fmt.Errorf("step of %s: %w", delta, simerr.ErrInvalidDuration)
	}
	d.mu.Lock()
	var err error
	if delta == 0 {
		err = d.sim.Step()
	} else {
		err = d.sim.Simulate(delta)
	}
	if err != nil {
		d.mu.Unlock()
		return engine.TickLog{}, err
	}
	tick := d.sim.LastTick()
	d.outMu.Lock()
	d.mu.Unlock()
	defer d.outMu.Unlock()

	if err := d.pub.Publish(tick); err != nil {
		d.log.WithError(err).WithField("tick", tick.Tick).Warn("publishing tick failed")
	}
	if d.hub != nil {
		d.hub.Broadcast(movesMessage(tick))
	}
	return tick, nil
}

// Interval returns the automatic step interval.
func (d *Driver) Interval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interval
}

// SetInterval changes the automatic step interval of a running driver.
func (d *Driver) SetInterval(iv time.Duration) {
	if iv < 0 {
		iv = 0
	}
	d.mu.Lock()
	d.interval = iv
	d.mu.Unlock()
	select {
	case d.changed <- struct{}{}:
	default:
	}
	d.log.WithField("interval", iv.String()).Info("tick interval changed")
}

// Run steps the simulation every interval until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) {
	var (
		ticker *time.Ticker
		tc     <-chan time.Time
	)
	restart := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tc = nil, nil
		}
		if iv := d.Interval(); iv > 0 {
			ticker = time.NewTicker(iv)
			tc = ticker.C
		}
	}
	restart()
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	d.log.WithField("interval", d.Interval().String()).Info("driver started")
	for {
		select {
		case <-ctx.Done():
			d.log.Info("driver stopped")
			return
		case <-d.changed:
			restart()
		case <-tc:
			if _, err := d.Step(0); err != nil {
				d.log.WithError(err).Error("automatic step failed")
			}
		}
	}
}
