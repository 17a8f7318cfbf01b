// Package feed exports live vehicles as a GTFS-Realtime VehiclePositions feed.
package feed

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"google.golang.org/protobuf/proto"

	"github.com/cxd309/transit-engine/internal/clock"
	"github.com/cxd309/transit-engine/internal/fleet"
	"github.com/cxd309/transit-engine/internal/network"
	"github.com/cxd309/transit-engine/internal/simerr"
)

// ContentType is the media type served for encoded feeds.
const ContentType = "application/x-protobuf"

const gtfsRealtimeVersion = "2.0"

// GeoReference places the planar network on the globe. Origin is the
// (lon, lat) of the network point (0, 0); x grows east and y north.
type GeoReference struct {
	Origin        orb.Point
	MetersPerUnit float64
}

// NewGeoReference validates and returns a reference.
func NewGeoReference(lat, lon, metersPerUnit float64) (GeoReference, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return GeoReference{}, fmt.Errorf("origin %v,%v: %w", lat, lon, simerr.ErrInvalidInput)
	}
	if metersPerUnit <= 0 {
		return GeoReference{}, fmt.Errorf("meters per unit %v: %w", metersPerUnit, simerr.ErrInvalidInput)
	}
	return GeoReference{Origin: orb.Point{lon, lat}, MetersPerUnit: metersPerUnit}, nil
}

// ToWGS84 projects a planar point onto a local tangent plane at Origin.
func (g GeoReference) ToWGS84(p orb.Point) orb.Point {
	east := p[0] * g.MetersPerUnit
	north := p[1] * g.MetersPerUnit
	lat := g.Origin.Lat() + rad2deg(north/orb.EarthRadius)
	lon := g.Origin.Lon() + rad2deg(east/(orb.EarthRadius*math.Cos(deg2rad(g.Origin.Lat()))))
	return orb.Point{lon, lat}
}

// Builder turns vehicle snapshots into feed messages.
type Builder struct {
	Ref     GeoReference
	Network *network.Network

	// ServiceDay is the date simulated times of day are anchored to.
	ServiceDay time.Time
}

// OnDay returns a copy of b anchored n service days after ServiceDay, for a
// simulation whose clock has crossed midnight n times.
func (b Builder) OnDay(n int) Builder {
	if !b.ServiceDay.IsZero() {
		b.ServiceDay = b.ServiceDay.AddDate(0, 0, n)
	}
	return b
}

// Build returns a FULL_DATASET message with one VehiclePosition entity per
// vehicle. now is the simulated time of day; generatedAt stamps the header.
func (b Builder) Build(vehicles []fleet.VehicleLog, now clock.TimeOfDay, generatedAt time.Time) *gtfsrtpb.FeedMessage {
	fm := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(generatedAt.Unix())),
		},
		Entity: make([]*gtfsrtpb.FeedEntity, 0, len(vehicles)),
	}
	observed := b.at(now)
	for _, v := range vehicles {
		fm.Entity = append(fm.Entity, &gtfsrtpb.FeedEntity{
			Id:      proto.String("vehicle-" + strconv.Itoa(v.ID)),
			Vehicle: b.vehiclePosition(v, observed),
		})
	}
	return fm
}

func (b Builder) vehiclePosition(v fleet.VehicleLog, observed uint64) *gtfsrtpb.VehiclePosition {
	ll := b.Ref.ToWGS84(v.Position)
	pos := &gtfsrtpb.Position{
		Latitude:  proto.Float32(float32(ll.Lat())),
		Longitude: proto.Float32(float32(ll.Lon())),
		Odometer:  proto.Float64(v.Distance * b.Ref.MetersPerUnit),
	}
	if bearing, ok := b.bearing(v.Street); ok {
		pos.Bearing = proto.Float32(float32(bearing))
	}

	vp := &gtfsrtpb.VehiclePosition{
		Trip: &gtfsrtpb.TripDescriptor{
			TripId:    proto.String(tripID(v)),
			RouteId:   proto.String(v.Line),
			StartTime: proto.String(v.SpawnedAt.String()),
		},
		Vehicle: &gtfsrtpb.VehicleDescriptor{
			Id:    proto.String(strconv.Itoa(v.ID)),
			Label: proto.String(v.Label),
		},
		Position:  pos,
		Timestamp: proto.Uint64(observed),
	}
	if v.NextStop != "" {
		vp.StopId = proto.String(v.NextStop)
		vp.CurrentStatus = gtfsrtpb.VehiclePosition_IN_TRANSIT_TO.Enum()
	}
	return vp
}

// bearing is the compass heading of street id, in degrees clockwise from north.
func (b Builder) bearing(id network.StreetID) (float64, bool) {
	if b.Network == nil {
		return 0, false
	}
	st, err := b.Network.Street(id)
	if err != nil || st.Length() == 0 {
		return 0, false
	}
	deg := geo.Bearing(b.Ref.ToWGS84(st.Begin()), b.Ref.ToWGS84(st.End()))
	return math.Mod(deg+360, 360), true
}

func (b Builder) at(now clock.TimeOfDay) uint64 {
	if b.ServiceDay.IsZero() {
		return 0
	}
	y, m, d := b.ServiceDay.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, b.ServiceDay.Location())
	return uint64(midnight.Add(now.Duration()).Unix())
}

// tripID names a run by line, departure and vehicle, e.g. "L1_083000_7".
// Repeated timetable entries still get distinct trips.
func tripID(v fleet.VehicleLog) string {
	return v.Line + "_" + strings.ReplaceAll(v.SpawnedAt.String(), ":", "") + "_" + strconv.Itoa(v.ID)
}

// Marshal encodes a feed message in protobuf wire format.
func Marshal(fm *gtfsrtpb.FeedMessage) ([]byte, error) {
	out, err := proto.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("marshaling feed: %w", err)
	}
	return out, nil
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }
