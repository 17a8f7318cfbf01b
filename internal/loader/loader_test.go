package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cxd309/transit-engine/internal/clock"
	"github.com/cxd309/transit-engine/internal/simerr"
)

const scenarioYAML = `
streets:
  - {id: main, begin: [0, 0], end: [600, 0]}
  - {id: north, begin: [600, 0], end: [600, 400], stop: 0.5, traffic: 0.5}
  - {id: east, begin: [600, 0], end: [900, 0]}
routes:
  - {id: r1, streets: [main, north]}
  - {id: r2, streets: [main, east]}
lines:
  - id: L1
    label: "1"
    destination: Harbour
    routes: [r1, r2]
    timetable: ["08:30", "08:00", "09:00:30"]
  - id: L2
    label: "2"
    destination: Depot
    routes: [r2]
    timetable: []
simulation:
  start: "07:55"
  step_seconds: 30
  ticks: 12
  base_speed: 2.5
`

func TestParseScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(scenarioYAML))
	if err != nil {
		t.Fatal(err)
	}
	if sc.Network.Len() != 3 || sc.Lines.Len() != 2 {
		t.Fatalf("loaded %d streets, %d lines", sc.Network.Len(), sc.Lines.Len())
	}
	if sc.Start != clock.MustNew(7, 55, 0) || sc.Step != 30*time.Second || sc.Ticks != 12 || sc.BaseSpeed != 2.5 {
		t.Errorf("simulation params = %+v", sc)
	}

	l1, err := sc.Lines.At(0)
	if err != nil {
		t.Fatal(err)
	}
	if l1.ID() != "L1" || l1.Destination() != "Harbour" || len(l1.Variants()) != 2 {
		t.Errorf("line 0 = %s/%s with %d variants", l1.ID(), l1.Destination(), len(l1.Variants()))
	}
	tt := l1.Timetable()
	if len(tt) != 3 || tt[0] != clock.MustNew(8, 0, 0) || tt[2] != clock.MustNew(9, 0, 30) {
		t.Errorf("timetable = %v", tt)
	}
	if l1.ActiveRoute().Length() != 1000 {
		t.Errorf("r1 length = %v", l1.ActiveRoute().Length())
	}

	north, err := sc.Network.Street("north")
	if err != nil {
		t.Fatal(err)
	}
	if north.TrafficFlow() != 0.5 {
		t.Errorf("north traffic = %v", north.TrafficFlow())
	}
	if stop, ok := north.Stop(); !ok || stop != 0.5 {
		t.Errorf("north stop = %v, %v", stop, ok)
	}
}

func TestParseScenarioRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "malformed yaml",
			doc:  "streets: [",
			want: simerr.ErrInvalidInput,
		},
		{
			name: "missing lines",
			doc:  "streets: [{id: a, begin: [0,0], end: [1,0]}]\nroutes: [{id: r, streets: [a]}]\n",
			want: simerr.ErrInvalidInput,
		},
		{
			name: "three coordinates",
			doc:  "streets: [{id: a, begin: [0,0,0], end: [1,0]}]\nroutes: [{id: r, streets: [a]}]\nlines: [{id: L, routes: [r]}]\n",
			want: simerr.ErrInvalidInput,
		},
		{
			name: "route gap",
			doc: `streets: [{id: a, begin: [0,0], end: [1,0]}, {id: b, begin: [5,5], end: [6,5]}]
routes: [{id: r, streets: [a, b]}]
lines: [{id: L, routes: [r]}]
`,
			want: simerr.ErrInvalidInput,
		},
		{
			name: "unknown route",
			doc:  "streets: [{id: a, begin: [0,0], end: [1,0]}]\nroutes: [{id: r, streets: [a]}]\nlines: [{id: L, routes: [x]}]\n",
			want: simerr.ErrNotFound,
		},
		{
			name: "bad departure",
			doc:  "streets: [{id: a, begin: [0,0], end: [1,0]}]\nroutes: [{id: r, streets: [a]}]\nlines: [{id: L, routes: [r], timetable: [\"25:00\"]}]\n",
			want: simerr.ErrInvalidSchedule,
		},
		{
			name: "duplicate route",
			doc:  "streets: [{id: a, begin: [0,0], end: [1,0]}]\nroutes: [{id: r, streets: [a]}, {id: r, streets: [a]}]\nlines: [{id: L, routes: [r]}]\n",
			want: simerr.ErrDuplicateID,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tc.doc))
			if !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func csvFixture() map[string]string {
	return map[string]string{
		StreetsFile: "# id,x1,y1,x2,y2,stop\nmain,0,0,600,0,-1\nnorth,600,0,600,400,0.25\neast,600,0,900,0\n",
		RoutesFile:  "r1,main,north\nr2,main,east\n",
		LinesFile:   "L1,1,Harbour,r1,r2\nL2,2,Depot,r2\n",
		TimetableFile: "L1,08:00,08:30\n" +
			"L2, 12:15:30\n",
	}
}

func TestLoadCSVDir(t *testing.T) {
	dir := writeFiles(t, csvFixture())
	sc, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Network.Len() != 3 || sc.Lines.Len() != 2 {
		t.Fatalf("loaded %d streets, %d lines", sc.Network.Len(), sc.Lines.Len())
	}
	main, _ := sc.Network.Street("main")
	if _, ok := main.Stop(); ok {
		t.Error("stop -1 should mean no stop")
	}
	north, _ := sc.Network.Street("north")
	if stop, ok := north.Stop(); !ok || stop != 0.25 {
		t.Errorf("north stop = %v, %v", stop, ok)
	}
	l2, err := sc.Lines.ByID("L2")
	if err != nil {
		t.Fatal(err)
	}
	if tt := l2.Timetable(); len(tt) != 1 || tt[0] != clock.MustNew(12, 15, 30) {
		t.Errorf("L2 timetable = %v", tt)
	}
	if sc.Step != 0 || sc.Ticks != 0 {
		t.Error("CSV scenarios carry no run parameters")
	}
}

func TestLoadCSVDirRejects(t *testing.T) {
	tests := []struct {
		name  string
		patch map[string]string
		want  error
	}{
		{"bad coordinate", map[string]string{StreetsFile: "main,0,zero,600,0\n"}, simerr.ErrInvalidInput},
		{"short street row", map[string]string{StreetsFile: "main,0,0,600\n"}, simerr.ErrInvalidInput},
		{"route gap", map[string]string{RoutesFile: "r1,north,main\nr2,main,east\n"}, simerr.ErrInvalidInput},
		{"route without streets", map[string]string{RoutesFile: "r1\nr2,main,east\n"}, simerr.ErrInvalidInput},
		{"short line row", map[string]string{LinesFile: "L1,1,Harbour\n"}, simerr.ErrInvalidInput},
		{"timetable for unknown line", map[string]string{TimetableFile: "L9,08:00\n"}, simerr.ErrNotFound},
		{"bad time", map[string]string{TimetableFile: "L1,8h00\n"}, simerr.ErrInvalidSchedule},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			files := csvFixture()
			for k, v := range tc.patch {
				files[k] = v
			}
			_, err := LoadCSVDir(writeFiles(t, files))
			if !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	files := csvFixture()
	delete(files, TimetableFile)
	if _, err := LoadCSVDir(writeFiles(t, files)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing timetable error = %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of a missing path should fail")
	}
}

func TestLoadScenarioFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{"scenario.yaml": scenarioYAML})
	sc, err := Load(filepath.Join(dir, "scenario.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if sc.Lines.Len() != 2 {
		t.Errorf("lines = %d", sc.Lines.Len())
	}
}
