package decoder

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/rendis/mapcrawl/internal/model"
)

var searchEnvelopeSuffix = []byte(`/*""*/`)

// ParseSearchResponse decodes a search data page into candidates.
// Advertisements come first, followed by organic results in page order.
// The page is either wrapped in a {"d": "..."} envelope or served bare.
func ParseSearchResponse(body []byte) ([]model.Candidate, error) {
	payload := bytes.ReplaceAll(body, searchEnvelopeSuffix, nil)

	var envelope struct {
		D string `json:"d"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.D != "" {
		payload = []byte(envelope.D)
	}

	var data []any
	if err := json.Unmarshal(stripXSSI(payload), &data); err != nil {
		return nil, eris.Wrap(err, "parsing search data page")
	}

	var candidates []model.Candidate
	for _, ad := range safeSlice(safeGet(data, searchFields.Ads...)) {
		if place := safeSlice(safeGet(ad, searchFields.AdPlace...)); place != nil {
			candidates = append(candidates, DecodeCandidate(place, true))
		}
	}

	organic := safeSlice(safeGet(data, searchFields.Organic...))
	// The first entry is search metadata unless the search landed on a single place.
	if len(organic) > 1 {
		organic = organic[1:]
	}
	for _, result := range organic {
		if place := safeSlice(safeGet(result, searchFields.OrganicPlace...)); place != nil {
			candidates = append(candidates, DecodeCandidate(place, false))
		}
	}
	return candidates, nil
}

// DecodeCandidate reads the identity fields of a place array.
func DecodeCandidate(place []any, isAd bool) model.Candidate {
	return model.Candidate{
		PlaceID:         safeString(safeGet(place, placeFields.PlaceID...)),
		Coords:          decodeCoords(place),
		Address:         decodeAddress(place),
		Categories:      stringsAt(place, placeFields.Categories...),
		Website:         optString(place, placeFields.Website...),
		IsAdvertisement: isAd,
	}
}

func decodeCoords(place []any) *model.Coordinates {
	coords := safeSlice(safeGet(place, placeFields.Coords...))
	lat, latOK := safeGet(coords, coordLat).(float64)
	lng, lngOK := safeGet(coords, coordLng).(float64)
	if !latOK || !lngOK {
		return nil
	}
	return &model.Coordinates{Lat: fixFloat(lat), Lng: fixFloat(lng)}
}

func decodeAddress(place []any) model.AddressParsed {
	parts := safeGet(place, placeFields.AddressParts...)
	return model.AddressParsed{
		Neighborhood: optString(parts, addrNeighborhood),
		Street:       optString(parts, addrStreet),
		City:         optString(parts, addrCity),
		PostalCode:   optString(parts, addrPostalCode),
		State:        optString(parts, addrState),
		CountryCode:  optString(parts, addrCountryCode),
	}
}
