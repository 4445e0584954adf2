package geo

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

const nominatimURL = "https://nominatim.openstreetmap.org/search"

// Getter fetches a URL body.
type Getter interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// Location names the administrative area to geocode.
type Location struct {
	Country    string `yaml:"country" mapstructure:"country"`
	State      string `yaml:"state" mapstructure:"state"`
	County     string `yaml:"county" mapstructure:"county"`
	City       string `yaml:"city" mapstructure:"city"`
	PostalCode string `yaml:"postal_code" mapstructure:"postal_code"`
}

// IsZero reports whether no part of the location is set.
func (l Location) IsZero() bool {
	return l.Country == "" && l.State == "" && l.County == "" && l.City == "" && l.PostalCode == ""
}

// DefaultZoom is the zoom used for a location when the user sets none. The
// most specific part wins.
func (l Location) DefaultZoom() int {
	switch {
	case l.PostalCode != "":
		return 18
	case l.City != "":
		return 17
	case l.County != "":
		return 14
	case l.State != "":
		return 12
	case l.Country != "":
		return 12
	default:
		return 12
	}
}

// Geolocation is the resolved outline of a location. It is persisted so a
// resumed run does not geocode again.
type Geolocation struct {
	DisplayName string          `json:"display_name,omitempty"`
	BoundingBox []string        `json:"boundingbox,omitempty"` // [minLat, maxLat, minLng, maxLng]
	GeoJSON     json.RawMessage `json:"geojson,omitempty"`
}

// Region resolves the geolocation into a search region, preferring the
// outline and falling back to the bounding box.
func (g *Geolocation) Region(pointRadiusKm float64) (*Region, error) {
	if len(g.GeoJSON) > 0 {
		return ParseRegion(g.GeoJSON, pointRadiusKm)
	}
	if len(g.BoundingBox) < 4 {
		return nil, eris.Wrap(ErrMalformedGeometry, "geolocation has neither outline nor bounding box")
	}
	var box [4]float64
	for i := range box {
		v, err := strconv.ParseFloat(g.BoundingBox[i], 64)
		if err != nil {
			return nil, eris.Wrapf(ErrMalformedGeometry, "bounding box value %q", g.BoundingBox[i])
		}
		box[i] = v
	}
	return RegionFromBoundingBox(box), nil
}

// Geocoder resolves locations through the OSM Nominatim API.
type Geocoder struct {
	client  Getter
	baseURL string
}

// NewGeocoder returns a Nominatim geocoder using client for transport.
func NewGeocoder(client Getter) *Geocoder {
	return &Geocoder{client: client, baseURL: nominatimURL}
}

// Lookup returns the first Nominatim match for loc with its polygon outline.
func (g *Geocoder) Lookup(ctx context.Context, loc Location) (*Geolocation, error) {
	params := url.Values{
		"format":          {"json"},
		"polygon_geojson": {"1"},
		"limit":           {"1"},
	}
	set := func(key, val string) {
		if val = strings.TrimSpace(val); val != "" {
			params.Set(key, val)
		}
	}
	set("country", loc.Country)
	set("state", loc.State)
	set("county", loc.County)
	set("city", loc.City)
	set("postalcode", loc.PostalCode)

	body, err := g.client.Get(ctx, g.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, eris.Wrap(err, "geocoding request failed")
	}

	var results []Geolocation
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, eris.Wrap(err, "decoding geocoding response")
	}
	if len(results) == 0 {
		return nil, eris.Errorf("location %+v not found", loc)
	}
	return &results[0], nil
}
