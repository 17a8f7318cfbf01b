package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cxd309/transit-engine/internal/config"
	"github.com/cxd309/transit-engine/internal/engine"
	"github.com/cxd309/transit-engine/internal/feed"
	"github.com/cxd309/transit-engine/internal/kinematics"
	"github.com/cxd309/transit-engine/internal/loader"
	"github.com/cxd309/transit-engine/internal/logging"
	"github.com/cxd309/transit-engine/internal/publish"
	"github.com/cxd309/transit-engine/internal/server"
)

// app carries the root flags into the subcommands.
type app struct {
	configPath *string
	logLevel   *string
}

// setup loads the configuration and configures logging.
func (a *app) setup() (*config.Loader, error) {
	cl, err := config.Load(*a.configPath)
	if err != nil {
		return nil, err
	}
	cfg := cl.Current()
	level := cfg.Log.Level
	if *a.logLevel != "" {
		level = *a.logLevel
	}
	if err := logging.Setup(level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cl, nil
}

// loadScenario reads path, "-" for YAML on stdin, or the configured scenario
// when path is empty.
func loadScenario(stdin io.Reader, path string, cfg config.Config) (*loader.Scenario, error) {
	if path == "" {
		path = cfg.Simulation.Scenario
	}
	switch path {
	case "":
		return nil, fmt.Errorf("no scenario given and simulation.scenario is not configured")
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return loader.ParseScenario(data)
	default:
		return loader.Load(path)
	}
}

func (a *app) runHeadless(stdin io.Reader, stdout io.Writer, path string, ticks int, stepSeconds float64, outPath string) error {
	cl, err := a.setup()
	if err != nil {
		return err
	}
	cfg := cl.Current()
	sc, err := loadScenario(stdin, path, cfg)
	if err != nil {
		return err
	}

	params := engine.RunParams{
		Step:      cfg.Simulation.StepTime,
		Ticks:     cfg.Simulation.Ticks,
		BaseSpeed: cfg.Simulation.BaseSpeed,
	}
	if stepSeconds > 0 {
		sc.Step = time.Duration(stepSeconds * float64(time.Second))
	}
	if ticks > 0 {
		sc.Ticks = ticks
	}

	simLog, err := engine.RunScenario(sc, params)
	if err != nil {
		return fmt.Errorf("simulation error: %w", err)
	}

	out := stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	if err := enc.Encode(simLog); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	log.WithFields(log.Fields{"run_id": simLog.RunID, "ticks": len(simLog.Output)}).Info("run complete")
	return nil
}

func (a *app) validate(stdin io.Reader, stdout io.Writer, path string) error {
	cl, err := a.setup()
	if err != nil {
		return err
	}
	sc, err := loadScenario(stdin, path, cl.Current())
	if err != nil {
		return err
	}

	departures := 0
	for _, l := range sc.Lines.All() {
		departures += len(l.Timetable())
	}
	fmt.Fprintf(stdout, "OK: %d streets, %d lines, %d departures\n", sc.Network.Len(), sc.Lines.Len(), departures)
	for i, l := range sc.Lines.All() {
		fmt.Fprintf(stdout, "  [%d] %-8s %-20s %d route(s), %.1f units\n",
			i, l.ID(), l.Destination(), len(l.Variants()), l.ActiveRoute().Length())
	}
	return nil
}

func (a *app) serve(parent context.Context, path, addr string) error {
	cl, err := a.setup()
	if err != nil {
		return err
	}
	cfg := cl.Current()
	sc, err := loadScenario(os.Stdin, path, cfg)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Server.Addr
	}

	step := cfg.Simulation.StepTime
	if sc.Step > 0 {
		step = sc.Step
	}
	speed := cfg.Simulation.BaseSpeed
	if sc.BaseSpeed > 0 {
		speed = sc.BaseSpeed
	}
	motion, err := kinematics.New(kinematics.ConstantModelName, speed)
	if err != nil {
		return err
	}
	sim, err := engine.New(engine.Config{StepTime: step, Motion: motion})
	if err != nil {
		return err
	}
	if err := sim.InitializeSimulation(sc.Network, sc.Lines); err != nil {
		return err
	}
	if err := sim.SetTimeOfDay(sc.Start); err != nil {
		return err
	}

	pub, err := publish.New(cfg.MQTT)
	if err != nil {
		return err
	}
	defer pub.Close()

	ref, err := feed.NewGeoReference(cfg.Feed.OriginLat, cfg.Feed.OriginLon, cfg.Feed.MetersPerUnit)
	if err != nil {
		return err
	}

	hub := server.NewHub(cfg.Server.AllowedOrigins)
	driver := server.NewDriver(sim, cfg.Server.TickInterval, pub, hub)
	srv := server.New(driver, hub, feed.Builder{Ref: ref, Network: sc.Network, ServiceDay: time.Now()}, cfg.Server.AllowedOrigins)

	cl.Watch(func(next config.Config) { applyReload(driver, sc.Step, next) })

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go driver.Run(ctx)
	return srv.ListenAndServe(ctx, addr)
}

// applyReload pushes a reloaded configuration into a live driver. A step time
// set by the scenario outranks the configured one.
func applyReload(d *server.Driver, scenarioStep time.Duration, next config.Config) {
	d.SetInterval(next.Server.TickInterval)
	if scenarioStep > 0 {
		return
	}
	if err := d.Do(func(s *engine.Simulation) error {
		return s.SetStepTime(next.Simulation.StepTime)
	}); err != nil {
		log.WithError(err).Warn("applying step time")
	}
}
