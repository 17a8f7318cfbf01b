package network

import (
	"fmt"
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/cxd309/transit-engine/internal/simerr"
)

// minExtent pads degenerate (axis-aligned or zero-length) bounding boxes,
// since rtreego rejects rectangles with a zero side.
const minExtent = 1e-9

type indexedStreet struct {
	street   *Street
	envelope rtreego.Rect
}

func (is *indexedStreet) Bounds() rtreego.Rect {
	return is.envelope
}

func (n *Network) index(s *Street) {
	minX, maxX := math.Min(s.begin[0], s.end[0]), math.Max(s.begin[0], s.end[0])
	minY, maxY := math.Min(s.begin[1], s.end[1]), math.Max(s.begin[1], s.end[1])
	rect, err := rtreego.NewRect(
		rtreego.Point{minX, minY},
		[]float64{math.Max(maxX-minX, minExtent), math.Max(maxY-minY, minExtent)},
	)
	if err != nil {
		// Unreachable with padded extents and finite coordinates.
		panic(fmt.Sprintf("street %q envelope: %v", s.id, err))
	}
	n.tree.Insert(&indexedStreet{street: s, envelope: rect})
}

// Nearest returns the street closest to p whose geometry lies within
// maxDistance, together with that distance. Ties go to the earlier street.
func (n *Network) Nearest(p orb.Point, maxDistance float64) (*Street, float64, error) {
	if math.IsNaN(maxDistance) || maxDistance <= 0 {
		return nil, 0, fmt.Errorf("search radius %v: %w", maxDistance, simerr.ErrInvalidInput)
	}
	search, err := rtreego.NewRect(
		rtreego.Point{p[0] - maxDistance, p[1] - maxDistance},
		[]float64{2 * maxDistance, 2 * maxDistance},
	)
	if err != nil {
		return nil, 0, fmt.Errorf("search area around %v: %w", p, simerr.ErrInvalidInput)
	}

	var (
		best     *Street
		bestDist = math.Inf(1)
	)
	for _, item := range n.tree.SearchIntersect(search) {
		is, ok := item.(*indexedStreet)
		if !ok || is == nil {
			continue
		}
		s := is.street
		d := planar.DistanceFrom(orb.LineString{s.begin, s.end}, p)
		if d > maxDistance {
			continue
		}
		if d < bestDist || (d == bestDist && s.index < best.index) {
			best, bestDist = s, d
		}
	}
	if best == nil {
		return nil, 0, fmt.Errorf("no street within %v of %v: %w", maxDistance, p, simerr.ErrNotFound)
	}
	return best, bestDist, nil
}
