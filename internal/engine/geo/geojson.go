package geo

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
)

// ParseRegion reads a GeoJSON geometry, feature or feature collection and
// returns the region it describes. A collection contributes its first
// feature. pointRadiusKm applies to Point geometries.
func ParseRegion(data []byte, pointRadiusKm float64) (*Region, error) {
	var head struct {
		Type   string  `json:"type"`
		Radius float64 `json:"radiusKm"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrap(ErrMalformedGeometry, err.Error())
	}

	var g orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, eris.Wrap(ErrMalformedGeometry, err.Error())
		}
		if len(fc.Features) == 0 {
			return nil, eris.Wrap(ErrMalformedGeometry, "feature collection is empty")
		}
		g = fc.Features[0].Geometry
		if r, ok := fc.Features[0].Properties["radiusKm"].(float64); ok {
			pointRadiusKm = r
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, eris.Wrap(ErrMalformedGeometry, err.Error())
		}
		g = f.Geometry
		if r, ok := f.Properties["radiusKm"].(float64); ok {
			pointRadiusKm = r
		}
	default:
		gg, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, eris.Wrap(ErrMalformedGeometry, err.Error())
		}
		g = gg.Geometry()
		if head.Radius > 0 {
			pointRadiusKm = head.Radius
		}
	}
	return RegionFromGeometry(g, pointRadiusKm)
}

// RegionFromGeometry maps an orb geometry onto a Region.
func RegionFromGeometry(g orb.Geometry, pointRadiusKm float64) (*Region, error) {
	switch v := g.(type) {
	case orb.Polygon:
		return NewPolygon(v)
	case orb.MultiPolygon:
		return NewMultiPolygon(v)
	case orb.Point:
		return NewPoint(v, pointRadiusKm), nil
	case orb.LineString:
		return NewLineString(v)
	case nil:
		return nil, eris.Wrap(ErrMalformedGeometry, "missing geometry")
	default:
		return nil, eris.Wrapf(ErrMalformedGeometry, "unsupported geometry type %s", g.GeoJSONType())
	}
}
