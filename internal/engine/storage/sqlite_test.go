package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mapcrawl/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func ptr[T any](v T) *T { return &v }

func TestSQLite_State_SaveAndLoad(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var missing map[string]int
	ok, err := st.LoadState(ctx, "nope", &missing)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.SaveState(ctx, "counts", map[string]int{"a": 1}))
	require.NoError(t, st.SaveState(ctx, "counts", map[string]int{"a": 2}))

	var got map[string]int
	ok, err = st.LoadState(ctx, "counts", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]int{"a": 2}, got)
}

func TestSQLite_State_CorruptValue(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.db.Exec(`INSERT INTO state (key, value, updated_at) VALUES ('bad', '{not json', ?)`, time.Now())
	require.NoError(t, err)

	var v map[string]int
	_, err = st.LoadState(ctx, "bad", &v)
	assert.True(t, errors.Is(err, ErrCorruptState))
}

func TestSQLite_PushPlace(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := &model.Place{
		PlaceID:      "ChIJ1",
		Title:        ptr("Pizza Roma"),
		SearchString: ptr("pizza"),
		Location:     &model.Coordinates{Lat: 50.08, Lng: 14.42},
		URL:          "https://www.google.com/maps/search/?api=1&query=pizza&query_place_id=ChIJ1",
		Rank:         ptr(1),
		ScrapedAt:    time.Now(),
	}
	inserted, err := st.PushPlace(ctx, "run-1", p)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = st.PushPlace(ctx, "run-1", p)
	require.NoError(t, err)
	assert.False(t, inserted, "same place for the same search is stored once")

	p2 := *p
	p2.SearchString = nil
	inserted, err = st.PushPlace(ctx, "run-1", &p2)
	require.NoError(t, err)
	assert.True(t, inserted)

	count, err := st.CountPlaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var titles []string
	require.NoError(t, st.EachPlace(ctx, func(p *model.Place) error {
		titles = append(titles, *p.Title)
		return nil
	}))
	assert.Equal(t, []string{"Pizza Roma", "Pizza Roma"}, titles)
}

func TestSQLite_PlaceURLsAndFailures(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.PushPlaceURL(ctx, "run-1", model.PlaceURL{PlaceID: "a", URL: "u-a", SearchString: ptr("pizza"), Rank: 1}))
	require.NoError(t, st.PushPlaceURL(ctx, "run-1", model.PlaceURL{PlaceID: "a", URL: "u-a", Rank: 1}))
	require.NoError(t, st.PushPlaceURL(ctx, "run-1", model.PlaceURL{PlaceID: "b", URL: "u-b", Rank: 2}))

	var urls []model.PlaceURL
	require.NoError(t, st.EachPlaceURL(ctx, func(u model.PlaceURL) error {
		urls = append(urls, u)
		return nil
	}))
	require.Len(t, urls, 2)
	assert.Equal(t, "pizza", *urls[0].SearchString)
	assert.Nil(t, urls[1].SearchString)

	require.NoError(t, st.PushFailed(ctx, "run-1", model.FailedRequest{URL: "u-x", Errors: []string{"timeout"}}))
	n, err := st.CountFailed(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
