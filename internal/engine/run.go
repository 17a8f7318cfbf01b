package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cxd309/transit-engine/internal/clock"
	"github.com/cxd309/transit-engine/internal/kinematics"
	"github.com/cxd309/transit-engine/internal/loader"
)

// Defaults used by headless runs when a scenario leaves a parameter unset.
const (
	DefaultStepTime  = 60 * time.Second
	DefaultBaseSpeed = 1.0
)

// RunParams fill in what a scenario does not specify. Zero fields fall back
// to the package defaults; zero Ticks runs one full day.
type RunParams struct {
	Step      time.Duration
	Ticks     int
	BaseSpeed float64
}

// RunScenario initializes a simulation from sc, runs it headless and returns
// the log of every tick. Departures before the scenario start fire on the
// first tick.
func RunScenario(sc *loader.Scenario, p RunParams, opts ...Option) (SimulationLog, error) {
	step := firstPositive(sc.Step, p.Step, DefaultStepTime)
	speed := sc.BaseSpeed
	if speed <= 0 {
		speed = p.BaseSpeed
	}
	if speed <= 0 {
		speed = DefaultBaseSpeed
	}
	ticks := sc.Ticks
	if ticks <= 0 {
		ticks = p.Ticks
	}
	if ticks <= 0 {
		ticks = int(clock.Day / step)
	}

	motion, err := kinematics.New(kinematics.ConstantModelName, speed)
	if err != nil {
		return SimulationLog{}, err
	}
	sim, err := New(Config{StepTime: step, Motion: motion}, opts...)
	if err != nil {
		return SimulationLog{}, err
	}
	if err := sim.InitializeSimulation(sc.Network, sc.Lines); err != nil {
		return SimulationLog{}, fmt.Errorf("initializing: %w", err)
	}
	if err := sim.SetTimeOfDay(sc.Start); err != nil {
		return SimulationLog{}, err
	}

	out, err := sim.Run(ticks)
	if err != nil {
		return SimulationLog{}, err
	}
	return SimulationLog{
		RunID:    sim.RunID(),
		Start:    sc.Start.String(),
		StepTime: step.Seconds(),
		Output:   out,
	}, nil
}

// RunYAML is the entry point shared by the CLI and WASM targets. It accepts a
// YAML scenario, runs it with default parameters and returns the
// JSON-encoded SimulationLog.
func RunYAML(input string) (string, error) {
	sc, err := loader.ParseScenario([]byte(input))
	if err != nil {
		return "", fmt.Errorf("invalid scenario: %w", err)
	}

	simLog, err := RunScenario(sc, RunParams{})
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(simLog)
	if err != nil {
		return "", fmt.Errorf("marshaling output: %w", err)
	}
	return string(out), nil
}

func firstPositive(ds ...time.Duration) time.Duration {
	for _, d := range ds {
		if d > 0 {
			return d
		}
	}
	return 0
}
