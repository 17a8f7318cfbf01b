// Package lines defines transit lines: a named service with a display label,
// a destination, a timetable, and one or more route variants of which exactly
// one is active.
package lines

import (
	"fmt"
	"sort"

	"github.com/cxd309/transit-engine/internal/clock"
	"github.com/cxd309/transit-engine/internal/network"
	"github.com/cxd309/transit-engine/internal/simerr"
)

// LineID identifies a line.
type LineID = string

// Line is a transit service bound to route variants and a timetable.
type Line struct {
	id          LineID
	label       string
	destination string
	variants    []*network.Route
	active      int
	timetable   []clock.TimeOfDay
}

// New builds a line. variants[0] is the primary route and starts active. The
// timetable is sorted; every entry must be a valid time of day.
func New(id LineID, label, destination string, variants []*network.Route, timetable []clock.TimeOfDay) (*Line, error) {
	if id == "" {
		return nil, fmt.Errorf("line with empty id: %w", simerr.ErrInvalidInput)
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("line %q has no route: %w", id, simerr.ErrInvalidInput)
	}
	for i, r := range variants {
		if r == nil {
			return nil, fmt.Errorf("line %q route variant %d is nil: %w", id, i, simerr.ErrInvalidInput)
		}
	}
	tt := make([]clock.TimeOfDay, len(timetable))
	copy(tt, timetable)
	for _, t := range tt {
		if !t.Valid() {
			return nil, fmt.Errorf("line %q departure %s: %w", id, t, simerr.ErrInvalidSchedule)
		}
	}
	sort.Slice(tt, func(i, j int) bool { return tt[i] < tt[j] })

	vs := make([]*network.Route, len(variants))
	copy(vs, variants)
	return &Line{
		id:          id,
		label:       label,
		destination: destination,
		variants:    vs,
		timetable:   tt,
	}, nil
}

func (l *Line) ID() LineID          { return l.id }
func (l *Line) Label() string       { return l.label }
func (l *Line) Destination() string { return l.destination }

// ActiveRoute returns the route new vehicles of this line are spawned on.
func (l *Line) ActiveRoute() *network.Route { return l.variants[l.active] }

// ActiveVariant returns the index of the active route variant.
func (l *Line) ActiveVariant() int { return l.active }

// Variants returns all registered route variants.
func (l *Line) Variants() []*network.Route {
	out := make([]*network.Route, len(l.variants))
	copy(out, l.variants)
	return out
}

// Timetable returns the departures in ascending order.
func (l *Line) Timetable() []clock.TimeOfDay {
	out := make([]clock.TimeOfDay, len(l.timetable))
	copy(out, l.timetable)
	return out
}

// SelectVariant makes variant i the active route.
func (l *Line) SelectVariant(i int) error {
	if i < 0 || i >= len(l.variants) {
		return fmt.Errorf("line %q route variant %d of %d: %w", l.id, i, len(l.variants), simerr.ErrNotFound)
	}
	l.active = i
	return nil
}

// Alternate switches to the next route variant, wrapping back to the primary
// route. A line with a single route has nothing to alternate to.
func (l *Line) Alternate() error {
	if len(l.variants) < 2 {
		return fmt.Errorf("line %q has no alternate route: %w", l.id, simerr.ErrNotFound)
	}
	return l.SelectVariant((l.active + 1) % len(l.variants))
}

// Set is the ordered collection of lines, addressable by load index and ID.
type Set struct {
	lines []*Line
	byID  map[LineID]*Line
}

// NewSet builds a Set, rejecting duplicate IDs.
func NewSet(ls ...*Line) (*Set, error) {
	s := &Set{byID: make(map[LineID]*Line, len(ls))}
	for _, l := range ls {
		if l == nil {
			return nil, fmt.Errorf("nil line: %w", simerr.ErrInvalidInput)
		}
		if _, dup := s.byID[l.id]; dup {
			return nil, fmt.Errorf("line %q already exists: %w", l.id, simerr.ErrInvalidInput)
		}
		s.lines = append(s.lines, l)
		s.byID[l.id] = l
	}
	return s, nil
}

// At returns the line at load index i.
func (s *Set) At(i int) (*Line, error) {
	if i < 0 || i >= len(s.lines) {
		return nil, fmt.Errorf("line index %d of %d: %w", i, len(s.lines), simerr.ErrNotFound)
	}
	return s.lines[i], nil
}

// ByID looks up a line by ID.
func (s *Set) ByID(id LineID) (*Line, error) {
	l, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("line %q: %w", id, simerr.ErrNotFound)
	}
	return l, nil
}

// All returns the lines in load order.
func (s *Set) All() []*Line {
	out := make([]*Line, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Set) Len() int { return len(s.lines) }

// ResetVariants makes every line's primary route active again.
func (s *Set) ResetVariants() {
	for _, l := range s.lines {
		l.active = 0
	}
}
