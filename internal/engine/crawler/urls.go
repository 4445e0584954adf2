package crawler

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rendis/mapcrawl/internal/model"
)

const (
	mapsSearchURL    = "https://www.google.com/maps/search/"
	normalizedPrefix = "!4m5!3m4!"
	resultsPerPage   = 20
)

var (
	zoomRe        = regexp.MustCompile(`@[0-9.-]+,[0-9.-]+,([0-9.]+)z`)
	placeCoordsRe = regexp.MustCompile(`!3d([0-9\-.]+)!4d([0-9\-.]+)`)
	dataParamRe   = regexp.MustCompile(`(.+/data=)(.+)`)
	hashPairRe    = regexp.MustCompile(`\ds0x[0-9a-z]+:0x[0-9a-z]+`)
	searchDataRe  = regexp.MustCompile(`google\.[a-z.]+/search`)
	placeURLRe    = regexp.MustCompile(`google\.[a-z.]+/maps/place`)
	placeCIDRe    = regexp.MustCompile(`google\.[a-z.]+.+cid=\d+(&|\b)`)
	searchURLRe   = regexp.MustCompile(`google\.[a-z.]+/maps/search`)
	webSearchRe   = regexp.MustCompile(`https://www\.google\.[a-z.]+/search`)
)

// ParseZoomFromURL reads the map zoom from the "@lat,lng,zoomz" URL segment.
func ParseZoomFromURL(u string) (float64, bool) {
	m := zoomRe.FindStringSubmatch(u)
	if m == nil {
		return 0, false
	}
	z, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return z, true
}

// CoordinatesFromURL reads the place pin from the "!3d{lat}!4d{lng}" data segment.
func CoordinatesFromURL(u string) *model.Coordinates {
	m := placeCoordsRe.FindStringSubmatch(u)
	if m == nil {
		return nil
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	lng, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return nil
	}
	return &model.Coordinates{Lat: lat, Lng: lng}
}

// NormalizePlaceURL keeps only the last place hash pair of the data
// parameter. Only that form of a place URL embeds the place state.
func NormalizePlaceURL(u string) string {
	m := dataParamRe.FindStringSubmatch(u)
	if m == nil {
		return u
	}
	base, data := m[1], m[2]
	pairs := hashPairRe.FindAllString(data, -1)
	if len(pairs) == 0 {
		return u
	}
	last := pairs[len(pairs)-1]
	idx := strings.Index(data, last)
	if idx < 0 || idx+len(last) >= len(data) {
		return u
	}
	return base + normalizedPrefix + data[idx:]
}

// PlaceSearchURL is the detail URL of a place found by a search.
func PlaceSearchURL(searchString, placeID string) string {
	q := url.Values{}
	q.Set("api", "1")
	q.Set("query", searchString)
	q.Set("query_place_id", placeID)
	return mapsSearchURL + "?" + q.Encode()
}

// IsPlaceURL reports whether u opens a single place.
func IsPlaceURL(u string) bool {
	return placeURLRe.MatchString(u) || placeCIDRe.MatchString(u)
}

// IsSearchURL reports whether u opens a maps search.
func IsSearchURL(u string) bool {
	return searchURLRe.MatchString(u)
}

// IsSearchDataURL reports whether u is a search results data request.
func IsSearchDataURL(u string) bool {
	return searchDataRe.MatchString(u)
}

// withLanguage sets the hl query parameter.
func withLanguage(raw, lang string) string {
	if lang == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("hl", lang)
	u.RawQuery = q.Encode()
	return u.String()
}

// pageNumber is the 1-based results page of a search data request, taken
// from its ech parameter.
func pageNumber(raw string) int {
	u, err := url.Parse(raw)
	if err != nil {
		return 1
	}
	n, err := strconv.Atoi(u.Query().Get("ech"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func mapAtURL(lat, lng float64, zoom int) string {
	return "https://www.google.com/maps/@" + formatCoord(lat) + "," + formatCoord(lng) + "," + strconv.Itoa(zoom) + "z/search"
}
