package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/cxd309/transit-engine/internal/clock"
	"github.com/cxd309/transit-engine/internal/network"
	"github.com/cxd309/transit-engine/internal/simerr"
)

// File names of the CSV directory format.
const (
	StreetsFile   = "streets.csv"
	RoutesFile    = "routes.csv"
	TimetableFile = "timetable.csv"
	LinesFile     = "lines.csv"
)

// LoadCSVDir reads streets.csv, routes.csv, lines.csv and timetable.csv from
// dir. A line without timetable rows never departs.
func LoadCSVDir(dir string) (*Scenario, error) {
	streetRows, err := readCSV(filepath.Join(dir, StreetsFile))
	if err != nil {
		return nil, err
	}
	routeRows, err := readCSV(filepath.Join(dir, RoutesFile))
	if err != nil {
		return nil, err
	}
	lineRows, err := readCSV(filepath.Join(dir, LinesFile))
	if err != nil {
		return nil, err
	}
	ttRows, err := readCSV(filepath.Join(dir, TimetableFile))
	if err != nil {
		return nil, err
	}

	specs := make([]network.StreetSpec, 0, len(streetRows))
	for _, row := range streetRows {
		spec, err := parseStreet(row)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", StreetsFile, err)
		}
		specs = append(specs, spec)
	}

	routes := make([]routeDef, 0, len(routeRows))
	for _, row := range routeRows {
		if len(row) < 2 {
			return nil, fmt.Errorf("%s: route %q has no streets: %w", RoutesFile, row[0], simerr.ErrInvalidInput)
		}
		routes = append(routes, routeDef{id: row[0], streets: row[1:]})
	}

	timetables := make(map[string][]clock.TimeOfDay)
	for _, row := range ttRows {
		for _, raw := range row[1:] {
			if raw == "" {
				continue
			}
			t, err := clock.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: line %q: %w", TimetableFile, row[0], err)
			}
			timetables[row[0]] = append(timetables[row[0]], t)
		}
	}

	defs := make([]lineDef, 0, len(lineRows))
	seen := make(map[string]bool, len(lineRows))
	for _, row := range lineRows {
		if len(row) < 4 {
			return nil, fmt.Errorf("%s: line %q: want id,label,destination,route: %w", LinesFile, row[0], simerr.ErrInvalidInput)
		}
		seen[row[0]] = true
		defs = append(defs, lineDef{
			id:          row[0],
			label:       row[1],
			destination: row[2],
			routes:      row[3:],
			timetable:   timetables[row[0]],
		})
	}
	for id := range timetables {
		if !seen[id] {
			return nil, fmt.Errorf("%s: unknown line %q: %w", TimetableFile, id, simerr.ErrNotFound)
		}
	}

	net, set, err := build(specs, routes, defs)
	if err != nil {
		return nil, err
	}
	return &Scenario{Network: net, Lines: set}, nil
}

func parseStreet(row []string) (network.StreetSpec, error) {
	if len(row) < 5 {
		return network.StreetSpec{}, fmt.Errorf("street %q: want id,x1,y1,x2,y2[,stop]: %w", row[0], simerr.ErrInvalidInput)
	}
	var coords [4]float64
	for i := range coords {
		f, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return network.StreetSpec{}, fmt.Errorf("street %q coordinate %q: %w", row[0], row[i+1], simerr.ErrInvalidInput)
		}
		coords[i] = f
	}
	spec := network.StreetSpec{
		ID:    row[0],
		Begin: orb.Point{coords[0], coords[1]},
		End:   orb.Point{coords[2], coords[3]},
	}
	if len(row) > 5 && row[5] != "" {
		stop, err := strconv.ParseFloat(row[5], 64)
		if err != nil {
			return network.StreetSpec{}, fmt.Errorf("street %q stop %q: %w", row[0], row[5], simerr.ErrInvalidInput)
		}
		if stop >= 0 {
			spec.Stop = &stop
		}
	}
	return spec, nil
}

// readCSV returns the non-comment records of a file with fields trimmed.
// Records may have any number of fields.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.Comment = '#'
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %v: %w", filepath.Base(path), err, simerr.ErrInvalidInput)
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		if len(rec) == 0 || rec[0] == "" {
			continue
		}
		rows = append(rows, rec)
	}
	return rows, nil
}
