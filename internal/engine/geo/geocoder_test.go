package geo

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mapcrawl/internal/model"
)

type fakeGetter struct {
	body []byte
	urls []string
}

func (f *fakeGetter) Get(_ context.Context, rawURL string) ([]byte, error) {
	f.urls = append(f.urls, rawURL)
	return f.body, nil
}

func TestGeocoderLookup(t *testing.T) {
	getter := &fakeGetter{body: []byte(`[{
		"display_name": "Praha, Czechia",
		"boundingbox": ["49.94", "50.17", "14.22", "14.70"],
		"geojson": {"type":"Polygon","coordinates":[[[14.22,49.94],[14.70,49.94],[14.70,50.17],[14.22,50.17],[14.22,49.94]]]}
	}]`)}

	g := NewGeocoder(getter)
	loc, err := g.Lookup(context.Background(), Location{City: "Praha", Country: "Czechia"})
	require.NoError(t, err)
	assert.Equal(t, "Praha, Czechia", loc.DisplayName)

	require.Len(t, getter.urls, 1)
	u, err := url.Parse(getter.urls[0])
	require.NoError(t, err)
	assert.Equal(t, "1", u.Query().Get("polygon_geojson"))
	assert.Equal(t, "Praha", u.Query().Get("city"))
	assert.Empty(t, u.Query().Get("state"))

	r, err := loc.Region(0)
	require.NoError(t, err)
	assert.True(t, Contains(r, &model.Coordinates{Lat: 50.08, Lng: 14.42}))
}

func TestGeocoderLookup_NotFound(t *testing.T) {
	g := NewGeocoder(&fakeGetter{body: []byte(`[]`)})
	_, err := g.Lookup(context.Background(), Location{City: "Nowhere"})
	assert.Error(t, err)
}

func TestGeolocationRegion_BoundingBoxFallback(t *testing.T) {
	loc := &Geolocation{BoundingBox: []string{"50.0", "50.2", "14.2", "14.6"}}
	r, err := loc.Region(0)
	require.NoError(t, err)
	assert.True(t, Contains(r, &model.Coordinates{Lat: 50.1, Lng: 14.4}))

	_, err = (&Geolocation{}).Region(0)
	assert.Error(t, err)
}

func TestLocationDefaultZoom(t *testing.T) {
	assert.Equal(t, 18, Location{City: "x", PostalCode: "1"}.DefaultZoom())
	assert.Equal(t, 17, Location{City: "x", Country: "y"}.DefaultZoom())
	assert.Equal(t, 14, Location{County: "x"}.DefaultZoom())
	assert.Equal(t, 12, Location{State: "x"}.DefaultZoom())
	assert.Equal(t, 12, Location{}.DefaultZoom())
	assert.True(t, Location{}.IsZero())
}
