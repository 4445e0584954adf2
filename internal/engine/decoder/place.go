package decoder

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/rendis/mapcrawl/internal/model"
)

const permanentlyClosed = "Permanently closed"

var histogramDays = [...]string{"Su", "Mo", "Tu", "We", "Th", "Fr", "Sa"}

// ParseAppState extracts the place array from the detail page state string
// (window.APP_INITIALIZATION_STATE[3][6]).
func ParseAppState(raw string) ([]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, eris.New("empty detail page state")
	}
	var state []any
	if err := json.Unmarshal(stripXSSI([]byte(raw)), &state); err != nil {
		return nil, eris.Wrap(err, "parsing detail page state")
	}
	place := safeSlice(safeGet(state, appStatePlace...))
	if place == nil {
		return nil, eris.New("detail page state carries no place")
	}
	return place, nil
}

// DecodePlace reads every field the place array carries. Absent fields stay
// nil; decoding never fails.
func DecodePlace(place []any) *model.Place {
	c := DecodeCandidate(place, false)
	p := &model.Place{
		PlaceID:             c.PlaceID,
		Title:               optString(place, placeFields.Title...),
		Description:         optString(place, placeFields.Description...),
		Price:               optString(place, placeFields.Price...),
		Categories:          c.Categories,
		Address:             optString(place, placeFields.Address...),
		AddressParsed:       c.Address,
		PlusCode:            optString(place, placeFields.PlusCode...),
		Website:             c.Website,
		Phone:               optString(place, placeFields.Phone...),
		Location:            c.Coords,
		TotalScore:          optFloat(place, placeFields.TotalScore...),
		ReviewsCount:        optInt(place, placeFields.ReviewsCount...),
		PermanentlyClosed:   safeString(safeGet(place, placeFields.ClosedStatus...)) == permanentlyClosed,
		Thumbnail:           optString(place, placeFields.Thumbnail...),
		ReviewsDistribution: decodeDistribution(place),
		OrderBy:             decodeOrderBy(place),
	}
	if len(p.Categories) > 0 {
		p.CategoryName = &p.Categories[0]
	}
	if hex := safeString(safeGet(place, placeFields.CID...)); hex != "" {
		if cid, ok := ConvertCID(hex); ok {
			p.CID = &cid
		}
	}
	return p
}

// ConvertCID turns the "0x..:0x.." feature id into the decimal content id.
// The second half exceeds float precision, so it goes through big.Int.
func ConvertCID(hexPair string) (string, bool) {
	parts := strings.Split(hexPair, ":")
	if len(parts) != 2 {
		return "", false
	}
	hex := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(parts[1])), "0x")
	if hex == "" {
		return "", false
	}
	n, ok := new(big.Int).SetString(hex, 16)
	if !ok {
		return "", false
	}
	return n.String(), true
}

// DefaultReviews are the review arrays embedded in the detail page.
func DefaultReviews(place []any) []any {
	return safeSlice(safeGet(place, placeFields.DefaultReviews...))
}

// DecodePopularTimes reads the busy-hours block, nil when the place has none.
func DecodePopularTimes(place []any) *model.PopularTimes {
	block := safeSlice(safeGet(place, placeFields.PopularTimes...))
	if block == nil {
		return nil
	}
	out := &model.PopularTimes{
		LiveText:    optString(block, popularLiveText),
		LivePercent: optInt(block, popularLivePercent, 1),
		Histogram:   make(map[string][]model.HourOccupancy),
	}
	for i, day := range safeSlice(safeGet(block, popularDays)) {
		if i >= len(histogramDays) {
			break
		}
		hours := []model.HourOccupancy{}
		for _, h := range safeSlice(safeGet(day, 1)) {
			hours = append(hours, model.HourOccupancy{
				Hour:             int(safeFloat(safeGet(h, 0))),
				OccupancyPercent: int(safeFloat(safeGet(h, 1))),
			})
		}
		out.Histogram[histogramDays[i]] = hours
	}
	return out
}

// DecodeOpeningHours reads the weekly schedule from the place array.
func DecodeOpeningHours(place []any) []model.OpeningHours {
	var out []model.OpeningHours
	for _, entry := range safeSlice(safeGet(place, placeFields.OpeningHours...)) {
		day := safeString(safeGet(entry, 0))
		if day == "" {
			continue
		}
		out = append(out, model.OpeningHours{
			Day:   day,
			Hours: strings.Join(stringsAt(entry, 1), ", "),
		})
	}
	return out
}

func decodeDistribution(place []any) *model.ReviewsDistribution {
	counts := safeSlice(safeGet(place, placeFields.ReviewsDistribution...))
	if len(counts) < 5 {
		return nil
	}
	at := func(i int) int { return int(safeFloat(counts[i])) }
	return &model.ReviewsDistribution{
		OneStar:   at(0),
		TwoStar:   at(1),
		ThreeStar: at(2),
		FourStar:  at(3),
		FiveStar:  at(4),
	}
}

func decodeOrderBy(place []any) []model.OrderLink {
	var out []model.OrderLink
	for _, entry := range safeSlice(safeGet(place, placeFields.OrderBy...)) {
		name := safeString(safeGet(entry, 0, 0))
		link := safeString(safeGet(entry, 1, 2, 0))
		if name == "" && link == "" {
			continue
		}
		out = append(out, model.OrderLink{Name: name, URL: link})
	}
	return out
}
