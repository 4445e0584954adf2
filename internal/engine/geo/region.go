package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"

	"github.com/rendis/mapcrawl/internal/model"
)

// DefaultPointRadiusKm is the buffer applied to a Point region without an explicit radius.
const DefaultPointRadiusKm = 5.0

// circleSteps matches the vertex count used for point and line buffers.
const circleSteps = 64

// ErrMalformedGeometry is returned for regions that cannot be turned into areas.
var ErrMalformedGeometry = eris.New("malformed region geometry")

// Kind identifies the geometry a Region was built from.
type Kind int

const (
	KindPolygon Kind = iota + 1
	KindMultiPolygon
	KindPoint
	KindLineString
)

func (k Kind) String() string {
	switch k {
	case KindPolygon:
		return "Polygon"
	case KindMultiPolygon:
		return "MultiPolygon"
	case KindPoint:
		return "Point"
	case KindLineString:
		return "LineString"
	default:
		return "Unknown"
	}
}

// Region is the user-supplied search area. Coordinates are stored in
// [lon, lat] order as orb does.
type Region struct {
	kind     Kind
	polygons []orb.Polygon
	point    orb.Point
	line     orb.LineString
	radiusKm float64
}

// NewPolygon builds a Polygon region. Every ring must be closed and carry at
// least four positions.
func NewPolygon(p orb.Polygon) (*Region, error) {
	if err := validatePolygon(p); err != nil {
		return nil, err
	}
	return &Region{kind: KindPolygon, polygons: []orb.Polygon{p}}, nil
}

// NewMultiPolygon builds a MultiPolygon region.
func NewMultiPolygon(mp orb.MultiPolygon) (*Region, error) {
	if len(mp) == 0 {
		return nil, eris.Wrap(ErrMalformedGeometry, "empty multipolygon")
	}
	for i, p := range mp {
		if err := validatePolygon(p); err != nil {
			return nil, eris.Wrapf(err, "polygon %d", i)
		}
	}
	return &Region{kind: KindMultiPolygon, polygons: []orb.Polygon(mp)}, nil
}

// NewPoint builds a circular region around p. A non-positive radius falls
// back to DefaultPointRadiusKm.
func NewPoint(p orb.Point, radiusKm float64) *Region {
	if radiusKm <= 0 {
		radiusKm = DefaultPointRadiusKm
	}
	return &Region{
		kind:     KindPoint,
		point:    p,
		radiusKm: radiusKm,
		polygons: []orb.Polygon{circle(p, radiusKm)},
	}
}

// NewLineString builds a circular region centred on the midpoint of the
// line's endpoints with a radius equal to the line length.
func NewLineString(ls orb.LineString) (*Region, error) {
	if len(ls) < 2 {
		return nil, eris.Wrap(ErrMalformedGeometry, "linestring needs at least two positions")
	}
	first, last := ls[0], ls[len(ls)-1]
	center := geo.PointAtBearingAndDistance(first, geo.Bearing(first, last), geo.Distance(first, last)/2)
	radiusKm := geo.Length(ls) / 1000
	return &Region{
		kind:     KindLineString,
		line:     ls,
		radiusKm: radiusKm,
		polygons: []orb.Polygon{circle(center, radiusKm)},
	}, nil
}

// RegionFromBoundingBox builds a rectangular polygon region from a
// [minLat, maxLat, minLon, maxLon] box.
func RegionFromBoundingBox(box [4]float64) *Region {
	minLat, maxLat, minLon, maxLon := box[0], box[1], box[2], box[3]
	ring := orb.Ring{
		{minLon, minLat},
		{maxLon, minLat},
		{maxLon, maxLat},
		{minLon, maxLat},
		{minLon, minLat},
	}
	return &Region{kind: KindPolygon, polygons: []orb.Polygon{{ring}}}
}

// Kind reports the geometry the region was built from.
func (r *Region) Kind() Kind { return r.kind }

// RadiusKm is the buffer radius of a Point or LineString region, zero for
// polygon regions.
func (r *Region) RadiusKm() float64 { return r.radiusKm }

// Areas returns the polygons the region covers. Point and LineString regions
// are returned as their circular buffer.
func (r *Region) Areas() []orb.Polygon { return r.polygons }

// Bound is the bounding box of all areas.
func (r *Region) Bound() orb.Bound {
	b := r.polygons[0].Bound()
	for _, p := range r.polygons[1:] {
		b = b.Union(p.Bound())
	}
	return b
}

// Anchors are the extra seed points a region contributes besides its grid:
// the centre of a Point region or the endpoints of a LineString region.
func (r *Region) Anchors() []orb.Point {
	switch r.kind {
	case KindPoint:
		return []orb.Point{r.point}
	case KindLineString:
		return []orb.Point{r.line[0], r.line[len(r.line)-1]}
	default:
		return nil
	}
}

// Contains reports whether c lies inside any area of r. A nil region or nil
// coordinates count as inside so that missing data never drops a place.
func Contains(r *Region, c *model.Coordinates) bool {
	if r == nil || c == nil {
		return true
	}
	pt := orb.Point{c.Lng, c.Lat}
	for _, p := range r.polygons {
		if planar.PolygonContains(p, pt) {
			return true
		}
	}
	return false
}

func validatePolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return eris.Wrap(ErrMalformedGeometry, "polygon has no rings")
	}
	for i, ring := range p {
		if len(ring) < 4 {
			return eris.Wrapf(ErrMalformedGeometry, "ring %d has %d positions", i, len(ring))
		}
		if !ring.Closed() {
			return eris.Wrapf(ErrMalformedGeometry, "ring %d is not closed", i)
		}
	}
	return nil
}

func circle(center orb.Point, radiusKm float64) orb.Polygon {
	ring := make(orb.Ring, 0, circleSteps+1)
	for i := 0; i < circleSteps; i++ {
		bearing := -360.0 * float64(i) / circleSteps
		ring = append(ring, geo.PointAtBearingAndDistance(center, bearing, radiusKm*1000))
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// distanceByZoom is the ground resolution in metres per pixel at lat.
func distanceByZoom(lat float64, zoom int) float64 {
	return 156543.03392 * math.Cos(lat*math.Pi/180) / math.Pow(2, float64(zoom))
}
