package decoder

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mapcrawl/internal/model"
)

// placeArray builds a positional place array with the given indices set.
func placeArray(fields map[int]any) []any {
	place := make([]any, 204)
	for i, v := range fields {
		place[i] = v
	}
	return place
}

func fullPlace() []any {
	return placeArray(map[int]any{
		4:   []any{nil, nil, "$$", nil, nil, nil, nil, 4.6, 1234.0},
		7:   []any{"https://pizza.example.com"},
		9:   []any{nil, nil, 50.0875123456, 14.4213987654},
		10:  "0x0:0x4fa0bac2e4eea2de",
		11:  "Pizza Roma",
		13:  []any{"Pizza restaurant", "Italian restaurant"},
		18:  "Pizza Roma, Main St 1, Praha",
		52:  []any{[]any{}, nil, nil, []any{1.0, 2.0, 3.0, 4.0, 5.0}},
		78:  "ChIJ-place",
		84:  []any{[]any{[]any{7.0, []any{[]any{10.0, 35.0}, []any{11.0, 60.0}}}}, nil, nil, nil, nil, nil, "Busier than usual", []any{nil, 80.0}},
		157: "https://lh5.example.com/p/photo=w80-h106",
		178: []any{[]any{"+420 123 456 789"}},
		183: []any{nil, []any{nil, "Old Town", "Main St 1", "Praha", "110 00", "Prague", "CZ"}},
		203: []any{nil, []any{nil, nil, nil, nil, []any{"Permanently closed"}}},
	})
}

func TestDecodePlace(t *testing.T) {
	p := DecodePlace(fullPlace())

	assert.Equal(t, "ChIJ-place", p.PlaceID)
	assert.Equal(t, "Pizza Roma", *p.Title)
	assert.Equal(t, "Pizza restaurant", *p.CategoryName)
	assert.Equal(t, []string{"Pizza restaurant", "Italian restaurant"}, p.Categories)
	assert.Equal(t, "$$", *p.Price)
	assert.Equal(t, 4.6, *p.TotalScore)
	assert.Equal(t, 1234, *p.ReviewsCount)
	assert.Equal(t, "https://pizza.example.com", *p.Website)
	assert.Equal(t, "+420 123 456 789", *p.Phone)
	assert.Equal(t, &model.Coordinates{Lat: 50.0875123, Lng: 14.4213988}, p.Location)
	assert.Equal(t, "Praha", *p.AddressParsed.City)
	assert.Equal(t, "CZ", *p.AddressParsed.CountryCode)
	assert.Equal(t, "5737791271497278174", *p.CID)
	assert.True(t, p.PermanentlyClosed)
	assert.Equal(t, &model.ReviewsDistribution{OneStar: 1, TwoStar: 2, ThreeStar: 3, FourStar: 4, FiveStar: 5}, p.ReviewsDistribution)
}

func TestDecodePlace_MissingFieldsKeepIdentity(t *testing.T) {
	p := DecodePlace(placeArray(map[int]any{78: "ChIJ-only"}))

	assert.Equal(t, "ChIJ-only", p.PlaceID)
	assert.Nil(t, p.Title)
	assert.Nil(t, p.Location)
	assert.Nil(t, p.TotalScore)
	assert.Nil(t, p.ReviewsCount)
	assert.Nil(t, p.CID)
	assert.Nil(t, p.Website)
	assert.Nil(t, p.AddressParsed.City)
	assert.Nil(t, p.ReviewsDistribution)
	assert.Empty(t, p.Categories)
	assert.Empty(t, p.OrderBy)
	assert.False(t, p.PermanentlyClosed)

	assert.NotPanics(t, func() { DecodePlace(nil) })
	assert.NotPanics(t, func() { DecodePlace([]any{"short"}) })
}

func TestDecodePlace_WrongShapesDoNotPanic(t *testing.T) {
	place := placeArray(map[int]any{
		4:   "not an array",
		9:   []any{nil, nil, "x", "y"},
		78:  "ChIJ-odd",
		183: []any{nil, "flat"},
	})
	p := DecodePlace(place)
	assert.Equal(t, "ChIJ-odd", p.PlaceID)
	assert.Nil(t, p.Location)
	assert.Nil(t, p.TotalScore)
	assert.Nil(t, p.AddressParsed.Street)
}

func TestConvertCID(t *testing.T) {
	cid, ok := ConvertCID("0x0:0x4fa0bac2e4eea2de")
	require.True(t, ok)
	assert.Equal(t, "5737791271497278174", cid)

	cid, ok = ConvertCID("0x0:0x5002e9fe97283ade")
	require.True(t, ok)
	assert.Equal(t, "5765427752654617310", cid)

	cid, ok = ConvertCID("0x47b94e9c1d6b4a9f:0xffffffffffffffffff")
	require.True(t, ok)
	assert.Equal(t, "4722366482869645213695", cid)

	for _, bad := range []string{"", "0x0", "0x0:", "0x0:0xzz"} {
		_, ok := ConvertCID(bad)
		assert.False(t, ok, bad)
	}
}

func TestDecodePopularTimes(t *testing.T) {
	pt := DecodePopularTimes(fullPlace())
	require.NotNil(t, pt)

	assert.Equal(t, "Busier than usual", *pt.LiveText)
	assert.Equal(t, 80, *pt.LivePercent)
	assert.Equal(t, []model.HourOccupancy{{Hour: 10, OccupancyPercent: 35}, {Hour: 11, OccupancyPercent: 60}}, pt.Histogram["Su"])

	assert.Nil(t, DecodePopularTimes(placeArray(nil)))
}

func TestDecodeOpeningHoursAndOrderBy(t *testing.T) {
	place := placeArray(map[int]any{
		34: []any{nil, []any{
			[]any{"Monday", []any{"9AM–12PM", "1–5PM"}},
			[]any{"Sunday", []any{"Closed"}},
			[]any{nil},
		}},
		75: []any{[]any{[]any{nil, nil, []any{
			[]any{[]any{"Wolt"}, []any{nil, nil, []any{"https://wolt.example.com/roma"}}},
		}}}},
	})

	assert.Equal(t, []model.OpeningHours{
		{Day: "Monday", Hours: "9AM–12PM, 1–5PM"},
		{Day: "Sunday", Hours: "Closed"},
	}, DecodeOpeningHours(place))

	p := DecodePlace(place)
	assert.Equal(t, []model.OrderLink{{Name: "Wolt", URL: "https://wolt.example.com/roma"}}, p.OrderBy)
}

func TestParseAppState(t *testing.T) {
	state := []any{nil, nil, nil, nil, nil, nil, placeArray(map[int]any{78: "ChIJ-state"})}
	raw, err := json.Marshal(state)
	require.NoError(t, err)

	place, err := ParseAppState(")]}'\n" + string(raw))
	require.NoError(t, err)
	assert.Equal(t, "ChIJ-state", DecodePlace(place).PlaceID)

	_, err = ParseAppState("")
	assert.Error(t, err)
	_, err = ParseAppState(")]}'\n[1,2]")
	assert.Error(t, err)
	_, err = ParseAppState("{broken")
	assert.Error(t, err)
}
