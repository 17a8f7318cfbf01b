package network

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/cxd309/transit-engine/internal/simerr"
)

// RouteID identifies a route.
type RouteID = string

// contiguityTolerance is how far the end of one street may lie from the begin
// of the next and still count as connected.
const contiguityTolerance = 1e-6

// RouteStop is a stop on a route, located by its distance from the route start.
type RouteStop struct {
	Street   *Street
	Distance float64
}

// Route is an ordered, connected path through the network. Immutable after
// construction.
type Route struct {
	id      RouteID
	streets []*Street
	starts  []float64 // cumulative distance at the start of each street
	length  float64
	stops   []RouteStop
}

// NewRoute resolves streetIDs against n and checks that consecutive streets
// touch end to begin.
func NewRoute(id RouteID, n *Network, streetIDs []StreetID) (*Route, error) {
	if id == "" {
		return nil, fmt.Errorf("route with empty id: %w", simerr.ErrInvalidInput)
	}
	if len(streetIDs) == 0 {
		return nil, fmt.Errorf("route %q has no streets: %w", id, simerr.ErrInvalidInput)
	}

	r := &Route{
		id:      id,
		streets: make([]*Street, 0, len(streetIDs)),
		starts:  make([]float64, 0, len(streetIDs)),
	}
	for i, sid := range streetIDs {
		s, err := n.Street(sid)
		if err != nil {
			return nil, fmt.Errorf("route %q street %d: %w", id, i, simerr.ErrInvalidInput)
		}
		if i > 0 {
			prev := r.streets[i-1]
			if gap := planar.Distance(prev.end, s.begin); gap > contiguityTolerance {
				return nil, fmt.Errorf("route %q: street %q does not start where %q ends (gap %.3f): %w",
					id, s.id, prev.id, gap, simerr.ErrInvalidInput)
			}
		}
		if f, ok := s.Stop(); ok {
			r.stops = append(r.stops, RouteStop{Street: s, Distance: r.length + f*s.length})
		}
		r.streets = append(r.streets, s)
		r.starts = append(r.starts, r.length)
		r.length += s.length
	}
	return r, nil
}

// ID returns the route identifier.
func (r *Route) ID() RouteID { return r.id }

// Length returns the total route length.
func (r *Route) Length() float64 { return r.length }

// Streets returns the route's streets in travel order.
func (r *Route) Streets() []*Street {
	out := make([]*Street, len(r.streets))
	copy(out, r.streets)
	return out
}

// StreetStart returns the cumulative distance at the start of street i.
func (r *Route) StreetStart(i int) float64 { return r.starts[i] }

// Stops returns the stops along the route in travel order.
func (r *Route) Stops() []RouteStop {
	out := make([]RouteStop, len(r.stops))
	copy(out, r.stops)
	return out
}

// NextStop returns the first stop at or beyond distance d.
func (r *Route) NextStop(d float64) (RouteStop, bool) {
	for _, st := range r.stops {
		if st.Distance >= d {
			return st, true
		}
	}
	return RouteStop{}, false
}

// Locate resolves a distance along the route to the street it falls on and
// the offset within that street. A distance exactly on a boundary belongs to
// the following street. Distances beyond the route clamp to the end of the
// last street; negative distances clamp to the start.
func (r *Route) Locate(d float64) (index int, street *Street, offset float64) {
	last := len(r.streets) - 1
	if d >= r.length {
		return last, r.streets[last], r.streets[last].length
	}
	if d < 0 {
		d = 0
	}
	// Largest i with starts[i] <= d; zero-length streets sharing a start are skipped.
	i := sort.Search(len(r.starts), func(i int) bool { return r.starts[i] > d }) - 1
	if i < 0 {
		i = 0
	}
	return i, r.streets[i], d - r.starts[i]
}

// PositionAt returns the point at distance d along the route.
func (r *Route) PositionAt(d float64) orb.Point {
	_, s, off := r.Locate(d)
	return s.PointAt(off)
}

// Geometry returns the route as a line string through every street endpoint.
func (r *Route) Geometry() orb.LineString {
	ls := make(orb.LineString, 0, len(r.streets)+1)
	ls = append(ls, r.streets[0].begin)
	for _, s := range r.streets {
		ls = append(ls, s.end)
	}
	return ls
}
