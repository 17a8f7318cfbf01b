package loader

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"github.com/cxd309/transit-engine/internal/clock"
	"github.com/cxd309/transit-engine/internal/network"
	"github.com/cxd309/transit-engine/internal/simerr"
)

// ScenarioFile is the YAML scenario document.
type ScenarioFile struct {
	Streets    []StreetDoc   `yaml:"streets" validate:"required,min=1,dive"`
	Routes     []RouteDoc    `yaml:"routes" validate:"required,min=1,dive"`
	Lines      []LineDoc     `yaml:"lines" validate:"required,min=1,dive"`
	Simulation SimulationDoc `yaml:"simulation"`
}

type StreetDoc struct {
	ID      string    `yaml:"id" validate:"required"`
	Begin   []float64 `yaml:"begin" validate:"len=2"`
	End     []float64 `yaml:"end" validate:"len=2"`
	Stop    *float64  `yaml:"stop" validate:"omitempty,gte=0,lte=1"`
	Traffic float64   `yaml:"traffic" validate:"omitempty,gt=0,lte=1"`
}

type RouteDoc struct {
	ID      string   `yaml:"id" validate:"required"`
	Streets []string `yaml:"streets" validate:"required,min=1,dive,required"`
}

type LineDoc struct {
	ID          string   `yaml:"id" validate:"required"`
	Label       string   `yaml:"label"`
	Destination string   `yaml:"destination"`
	Routes      []string `yaml:"routes" validate:"required,min=1,dive,required"`
	Timetable   []string `yaml:"timetable" validate:"dive,required"`
}

// SimulationDoc holds optional run parameters.
type SimulationDoc struct {
	Start       string  `yaml:"start"`
	StepSeconds float64 `yaml:"step_seconds" validate:"gte=0"`
	Ticks       int     `yaml:"ticks" validate:"gte=0"`
	BaseSpeed   float64 `yaml:"base_speed" validate:"gte=0"`
}

// LoadScenarioFile reads and parses a YAML scenario.
func LoadScenarioFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes, validates and links a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var doc ScenarioFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding scenario: %v: %w", err, simerr.ErrInvalidInput)
	}
	v := validator.New()
	if err := v.Struct(doc); err != nil {
		return nil, fmt.Errorf("validating scenario: %v: %w", err, simerr.ErrInvalidInput)
	}

	specs := make([]network.StreetSpec, len(doc.Streets))
	for i, s := range doc.Streets {
		specs[i] = network.StreetSpec{
			ID:      s.ID,
			Begin:   orb.Point{s.Begin[0], s.Begin[1]},
			End:     orb.Point{s.End[0], s.End[1]},
			Stop:    s.Stop,
			Traffic: s.Traffic,
		}
	}

	routes := make([]routeDef, len(doc.Routes))
	for i, r := range doc.Routes {
		routes[i] = routeDef{id: r.ID, streets: r.Streets}
	}

	defs := make([]lineDef, len(doc.Lines))
	for i, l := range doc.Lines {
		tt := make([]clock.TimeOfDay, len(l.Timetable))
		for j, raw := range l.Timetable {
			t, err := clock.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("line %q: %w", l.ID, err)
			}
			tt[j] = t
		}
		defs[i] = lineDef{
			id:          l.ID,
			label:       l.Label,
			destination: l.Destination,
			routes:      l.Routes,
			timetable:   tt,
		}
	}

	net, set, err := build(specs, routes, defs)
	if err != nil {
		return nil, err
	}

	sc := &Scenario{
		Network:   net,
		Lines:     set,
		Step:      time.Duration(doc.Simulation.StepSeconds * float64(time.Second)),
		Ticks:     doc.Simulation.Ticks,
		BaseSpeed: doc.Simulation.BaseSpeed,
	}
	if doc.Simulation.Start != "" {
		start, err := clock.Parse(doc.Simulation.Start)
		if err != nil {
			return nil, fmt.Errorf("simulation start: %w", err)
		}
		sc.Start = start
	}
	return sc, nil
}
