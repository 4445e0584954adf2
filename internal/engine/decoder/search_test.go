package decoder

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// searchBody wraps organic place arrays the way the maps frontend serves a
// search data page.
func searchBody(t *testing.T, ads, organic [][]any) []byte {
	t.Helper()
	results := []any{[]any{"metadata"}}
	for _, p := range organic {
		entry := make([]any, 15)
		entry[14] = p
		results = append(results, entry)
	}
	var adEntries []any
	for _, p := range ads {
		entry := make([]any, 16)
		entry[15] = p
		adEntries = append(adEntries, entry)
	}
	data := []any{[]any{"query", results}, nil, []any{nil, []any{adEntries}}}
	inner, err := json.Marshal(data)
	require.NoError(t, err)

	envelope, err := json.Marshal(map[string]any{"c": 0, "d": ")]}'\n" + string(inner)})
	require.NoError(t, err)
	return append(envelope, []byte(`/*""*/`)...)
}

func TestParseSearchResponse(t *testing.T) {
	body := searchBody(t,
		[][]any{placeArray(map[int]any{78: "ad-1"})},
		[][]any{
			placeArray(map[int]any{78: "p-1", 9: []any{nil, nil, 50.1, 14.4}}),
			placeArray(map[int]any{78: "p-2"}),
		},
	)

	candidates, err := ParseSearchResponse(body)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	assert.Equal(t, "ad-1", candidates[0].PlaceID)
	assert.True(t, candidates[0].IsAdvertisement)
	assert.Equal(t, "p-1", candidates[1].PlaceID)
	assert.False(t, candidates[1].IsAdvertisement)
	require.NotNil(t, candidates[1].Coords)
	assert.Equal(t, 50.1, candidates[1].Coords.Lat)
	assert.Nil(t, candidates[2].Coords)
}

func TestParseSearchResponse_SingleResultIsKept(t *testing.T) {
	data := []any{[]any{"query", []any{[]any{nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, placeArray(map[int]any{78: "only"})}}}}
	inner, err := json.Marshal(data)
	require.NoError(t, err)

	candidates, err := ParseSearchResponse(append([]byte(")]}'\n"), inner...))
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "only", candidates[0].PlaceID)
}

func TestParseSearchResponse_Malformed(t *testing.T) {
	_, err := ParseSearchResponse([]byte(`{"d":")]}'\n[broken"}`))
	assert.Error(t, err)

	candidates, err := ParseSearchResponse([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
