// Package loader reads street networks, routes, lines and timetables from
// disk. Two formats are supported: a directory of CSV files and a single YAML
// scenario document.
package loader

import (
	"fmt"
	"os"
	"time"

	"github.com/cxd309/transit-engine/internal/clock"
	"github.com/cxd309/transit-engine/internal/lines"
	"github.com/cxd309/transit-engine/internal/network"
	"github.com/cxd309/transit-engine/internal/simerr"
)

// Scenario is everything needed to initialize a simulation.
// Zero Step, Ticks and BaseSpeed mean the caller's defaults apply.
type Scenario struct {
	Network   *network.Network
	Lines     *lines.Set
	Start     clock.TimeOfDay
	Step      time.Duration
	Ticks     int
	BaseSpeed float64
}

type routeDef struct {
	id      network.RouteID
	streets []network.StreetID
}

type lineDef struct {
	id          lines.LineID
	label       string
	destination string
	routes      []network.RouteID
	timetable   []clock.TimeOfDay
}

// Load reads a scenario from path: a directory is read as CSV files, anything
// else as a YAML scenario.
func Load(path string) (*Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening scenario: %w", err)
	}
	if info.IsDir() {
		return LoadCSVDir(path)
	}
	return LoadScenarioFile(path)
}

// build links street specs, route and line definitions into a network and a
// line set. Lines keep definition order, which fixes their index.
func build(streets []network.StreetSpec, routes []routeDef, defs []lineDef) (*network.Network, *lines.Set, error) {
	net, err := network.New(streets)
	if err != nil {
		return nil, nil, fmt.Errorf("building network: %w", err)
	}

	byID := make(map[network.RouteID]*network.Route, len(routes))
	for _, rd := range routes {
		if _, dup := byID[rd.id]; dup {
			return nil, nil, fmt.Errorf("route %q defined twice: %w", rd.id, simerr.ErrDuplicateID)
		}
		r, err := network.NewRoute(rd.id, net, rd.streets)
		if err != nil {
			return nil, nil, fmt.Errorf("building route %q: %w", rd.id, err)
		}
		byID[rd.id] = r
	}

	ls := make([]*lines.Line, 0, len(defs))
	for _, ld := range defs {
		variants := make([]*network.Route, 0, len(ld.routes))
		for _, rid := range ld.routes {
			r, ok := byID[rid]
			if !ok {
				return nil, nil, fmt.Errorf("line %q: unknown route %q: %w", ld.id, rid, simerr.ErrNotFound)
			}
			variants = append(variants, r)
		}
		l, err := lines.New(ld.id, ld.label, ld.destination, variants, ld.timetable)
		if err != nil {
			return nil, nil, fmt.Errorf("building line %q: %w", ld.id, err)
		}
		ls = append(ls, l)
	}
	set, err := lines.NewSet(ls...)
	if err != nil {
		return nil, nil, err
	}
	return net, set, nil
}
