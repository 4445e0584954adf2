package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseZoomFromURL(t *testing.T) {
	z, ok := ParseZoomFromURL("https://www.google.com/maps/search/pizza/@50.0875,14.4213,14.5z/data=!3m1")
	require.True(t, ok)
	assert.Equal(t, 14.5, z)

	_, ok = ParseZoomFromURL("https://www.google.com/maps/search/pizza")
	assert.False(t, ok)
}

func TestCoordinatesFromURL(t *testing.T) {
	c := CoordinatesFromURL("https://www.google.com/maps/place/X/data=!4m5!3m4!1s0x0:0x1!8m2!3d50.0875!4d-14.4213")
	require.NotNil(t, c)
	assert.Equal(t, 50.0875, c.Lat)
	assert.Equal(t, -14.4213, c.Lng)

	assert.Nil(t, CoordinatesFromURL("https://www.google.com/maps/place/X"))
}

func TestNormalizePlaceURL(t *testing.T) {
	in := "https://www.google.com/maps/place/Pizza/@50.1,14.4,17z/data=!3m1!4b1!4m5!3m4!1s0x470b94e6:0x4fa0bac2e4eea2de!8m2!3d50.1!4d14.4"
	want := "https://www.google.com/maps/place/Pizza/@50.1,14.4,17z/data=!4m5!3m4!1s0x470b94e6:0x4fa0bac2e4eea2de!8m2!3d50.1!4d14.4"
	assert.Equal(t, want, NormalizePlaceURL(in))

	plain := "https://www.google.com/maps/place/Pizza"
	assert.Equal(t, plain, NormalizePlaceURL(plain))
}

func TestPlaceSearchURL(t *testing.T) {
	assert.Equal(t,
		"https://www.google.com/maps/search/?api=1&query=pizza+prague&query_place_id=ChIJ-1",
		PlaceSearchURL("pizza prague", "ChIJ-1"))
}

func TestURLKinds(t *testing.T) {
	assert.True(t, IsPlaceURL("https://www.google.com/maps/place/Pizza"))
	assert.True(t, IsPlaceURL("https://www.google.com/maps?cid=12345"))
	assert.False(t, IsPlaceURL("https://www.google.com/maps/search/pizza"))

	assert.True(t, IsSearchURL("https://www.google.cz/maps/search/pizza"))
	assert.True(t, IsSearchDataURL("https://www.google.com/search?tbm=map&q=pizza"))
	assert.False(t, IsSearchDataURL("https://www.google.com/maps/preview/place"))
}

func TestPageNumber(t *testing.T) {
	assert.Equal(t, 3, pageNumber("https://www.google.com/search?tbm=map&ech=3"))
	assert.Equal(t, 1, pageNumber("https://www.google.com/search?tbm=map"))
	assert.Equal(t, 1, pageNumber("https://www.google.com/search?ech=zero"))
}

func TestWithLanguage(t *testing.T) {
	assert.Equal(t, "https://www.google.com/maps/search/?hl=de", withLanguage("https://www.google.com/maps/search/", "de"))
	assert.Equal(t, "https://www.google.com/maps/search/?hl=en", withLanguage("https://www.google.com/maps/search/?hl=fr", "en"))
	assert.Equal(t, "https://x.test/a", withLanguage("https://x.test/a", ""))
}

func TestMapAtURL(t *testing.T) {
	assert.Equal(t, "https://www.google.com/maps/@50.5,-14.25,12z/search", mapAtURL(50.5, -14.25, 12))
}
