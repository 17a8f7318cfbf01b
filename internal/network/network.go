// Package network provides the street network the simulated vehicles drive
// on: directed straight streets, the network that indexes them, and routes
// built as contiguous street sequences.
//
// Streets are read-only reference data except for their traffic-flow factor,
// which traffic control may change between ticks. The engine reads the factor
// every tick and never caches it.
package network

import (
	"fmt"
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/cxd309/transit-engine/internal/simerr"
)

// StreetID identifies a street; the CSV format uses the street name.
type StreetID = string

// MinTrafficFlow is the smallest factor SetTrafficPercent will apply. A street
// is never fully blocked.
const MinTrafficFlow = 0.01

// StreetSpec is the input description of a street.
// Stop is the stop offset as a fraction of the street length; nil means no stop.
// Traffic defaults to 1 when zero.
type StreetSpec struct {
	ID      StreetID  `json:"id"`
	Begin   orb.Point `json:"begin"`
	End     orb.Point `json:"end"`
	Stop    *float64  `json:"stop,omitempty"`
	Traffic float64   `json:"traffic,omitempty"`
}

// Street is a directed straight segment between two points.
type Street struct {
	id      StreetID
	index   int
	begin   orb.Point
	end     orb.Point
	length  float64
	stop    float64 // fraction along the street; negative when there is no stop
	traffic float64
}

// ID returns the street identifier.
func (s *Street) ID() StreetID { return s.id }

// Begin returns the start point.
func (s *Street) Begin() orb.Point { return s.begin }

// End returns the end point.
func (s *Street) End() orb.Point { return s.end }

// Length returns the street length in planar units.
func (s *Street) Length() float64 { return s.length }

// TrafficFlow returns the live traffic-flow factor in (0, 1].
func (s *Street) TrafficFlow() float64 { return s.traffic }

// SetTrafficFlow sets the traffic-flow factor. f must lie in (0, 1].
func (s *Street) SetTrafficFlow(f float64) error {
	if math.IsNaN(f) || f <= 0 || f > 1 {
		return fmt.Errorf("street %q: flow %v: %w", s.id, f, simerr.ErrInvalidTraffic)
	}
	s.traffic = f
	return nil
}

// SetTrafficPercent applies a 0..100 traffic setting as used by the control
// slider. 0 is clamped to MinTrafficFlow.
func (s *Street) SetTrafficPercent(p int) error {
	if p < 0 || p > 100 {
		return fmt.Errorf("street %q: percent %d: %w", s.id, p, simerr.ErrInvalidTraffic)
	}
	return s.SetTrafficFlow(math.Max(float64(p)/100, MinTrafficFlow))
}

// Stop returns the stop offset as a fraction of the street, if the street
// hosts a stop.
func (s *Street) Stop() (float64, bool) {
	if s.stop < 0 {
		return 0, false
	}
	return s.stop, true
}

// StopPoint returns the stop location, if the street hosts a stop.
func (s *Street) StopPoint() (orb.Point, bool) {
	f, ok := s.Stop()
	if !ok {
		return orb.Point{}, false
	}
	return s.PointAt(f * s.length), true
}

// PointAt interpolates the point at offset along the street, clamped to the
// street's extent.
func (s *Street) PointAt(offset float64) orb.Point {
	if s.length == 0 || offset <= 0 {
		return s.begin
	}
	if offset >= s.length {
		return s.end
	}
	t := offset / s.length
	return orb.Point{
		s.begin[0] + t*(s.end[0]-s.begin[0]),
		s.begin[1] + t*(s.end[1]-s.begin[1]),
	}
}

// Network is the full collection of streets, addressable by ID and searchable
// by position.
type Network struct {
	streets []*Street
	byID    map[StreetID]*Street
	tree    *rtreego.Rtree
}

// New builds a Network from street specs, rejecting duplicate or malformed
// streets.
func New(specs []StreetSpec) (*Network, error) {
	n := &Network{
		byID: make(map[StreetID]*Street, len(specs)),
		tree: rtreego.NewTree(2, 25, 50),
	}
	for _, spec := range specs {
		if err := n.AddStreet(spec); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// AddStreet adds one street to the network.
func (n *Network) AddStreet(spec StreetSpec) error {
	if spec.ID == "" {
		return fmt.Errorf("street with empty id: %w", simerr.ErrInvalidInput)
	}
	if _, exists := n.byID[spec.ID]; exists {
		return fmt.Errorf("street %q already exists: %w", spec.ID, simerr.ErrInvalidInput)
	}
	for _, v := range []float64{spec.Begin[0], spec.Begin[1], spec.End[0], spec.End[1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("street %q: non-finite coordinate: %w", spec.ID, simerr.ErrInvalidInput)
		}
	}
	stop := -1.0
	if spec.Stop != nil && *spec.Stop >= 0 {
		if *spec.Stop > 1 {
			return fmt.Errorf("street %q: stop offset %v outside [0,1]: %w", spec.ID, *spec.Stop, simerr.ErrInvalidInput)
		}
		stop = *spec.Stop
	}

	s := &Street{
		id:      spec.ID,
		index:   len(n.streets),
		begin:   spec.Begin,
		end:     spec.End,
		length:  planar.Distance(spec.Begin, spec.End),
		stop:    stop,
		traffic: 1,
	}
	if spec.Traffic != 0 {
		if err := s.SetTrafficFlow(spec.Traffic); err != nil {
			return err
		}
	}

	n.streets = append(n.streets, s)
	n.byID[s.id] = s
	n.index(s)
	return nil
}

// Street looks up a street by ID.
func (n *Network) Street(id StreetID) (*Street, error) {
	s, ok := n.byID[id]
	if !ok {
		return nil, fmt.Errorf("street %q: %w", id, simerr.ErrNotFound)
	}
	return s, nil
}

// Streets returns all streets in insertion order.
func (n *Network) Streets() []*Street {
	out := make([]*Street, len(n.streets))
	copy(out, n.streets)
	return out
}

// Len returns the number of streets.
func (n *Network) Len() int { return len(n.streets) }
