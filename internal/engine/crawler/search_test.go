package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mapcrawl/internal/engine/browser"
	"github.com/rendis/mapcrawl/internal/engine/geo"
)

const searchDataURL = "https://www.google.com/search?tbm=map&q=pizza&ech=%d"

// searchPage returns a page that serves body as the first data page when
// the search button is clicked.
func searchPage(body []byte) *fakePage {
	p := newFakePage("https://www.google.com/maps/@50.08,14.42,15z/search")
	p.set(searchBoxSel, true)
	p.onClick[searchButtonSel] = func(p *fakePage) {
		p.emit(browser.Response{URL: fmt.Sprintf(searchDataURL, 1), Body: body})
	}
	return p
}

func searchItem() *WorkItem {
	u := "https://www.google.com/maps/@50.08,14.42,15z/search"
	return &WorkItem{URL: u, UniqueKey: u + "+pizza", Label: LabelSearch, SearchString: "pizza"}
}

func manyPlaces(n int) [][]any {
	places := make([][]any, n)
	for i := range places {
		places[i] = candidatePlace(fmt.Sprintf("p-%d", i), 50.08, 14.42)
	}
	return places
}

func TestSearch_GlobalCapEnqueuesOnlyAllowedPlaces(t *testing.T) {
	opts := testOptions()
	opts.MaxCrawledPlaces = 1
	c := New(opts, nil, newMemStore(), newMemSink())

	page := searchPage(searchBody(t, manyPlaces(20)...))
	page.set(nextDisabledSel, true)

	require.NoError(t, c.search(context.Background(), page, searchItem()))

	pending := c.Queue().Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "p-0", pending[0].UniqueKey)
	assert.Equal(t, LabelDetail, pending[0].Label)
	assert.Equal(t, 1, c.Quota().EnqueuedTotal)
	assert.Equal(t, []string{"pizza"}, page.typed)
}

func TestSearch_DetailItemsCarryProvenance(t *testing.T) {
	c := New(testOptions(), nil, newMemStore(), newMemSink())

	page := newFakePage("https://www.google.com/maps/@50.08,14.42,15z/search")
	page.set(searchBoxSel, true)
	page.set(nextDisabledSel, true)
	page.onClick[searchButtonSel] = func(p *fakePage) {
		p.emit(browser.Response{URL: fmt.Sprintf(searchDataURL, 2), Body: searchBody(t, manyPlaces(2)...)})
	}

	require.NoError(t, c.search(context.Background(), page, searchItem()))

	pending := c.Queue().Pending()
	require.Len(t, pending, 2)
	// Detail items go to the front, so the later candidate comes first.
	second, first := pending[0], pending[1]
	assert.Equal(t, "p-0", first.UniqueKey)
	require.NotNil(t, first.Rank)
	assert.Equal(t, 21, *first.Rank)
	assert.Equal(t, 22, *second.Rank)
	assert.Equal(t, "pizza", first.SearchString)
	assert.Equal(t, PlaceSearchURL("pizza", "p-0"), first.URL)
	assert.Equal(t, page.url, first.SearchPageURL)
	require.NotNil(t, first.Candidate)
	assert.Equal(t, []string{"Pizza restaurant"}, first.Candidate.Categories)
}

func TestSearch_DuplicatePlacesAreQueuedOnce(t *testing.T) {
	c := New(testOptions(), nil, newMemStore(), newMemSink())

	body := searchBody(t, candidatePlace("dup", 50.08, 14.42), candidatePlace("dup", 50.08, 14.42))
	page := searchPage(body)
	page.set(nextDisabledSel, true)

	require.NoError(t, c.search(context.Background(), page, searchItem()))
	assert.Equal(t, 1, c.Queue().Len())
	assert.Equal(t, 1, c.Quota().EnqueuedTotal)
}

func TestSearch_RegionFilter(t *testing.T) {
	c := New(testOptions(), nil, newMemStore(), newMemSink())
	c.region = geo.NewPoint(orb.Point{14.42, 50.08}, 2)

	body := searchBody(t, candidatePlace("inside", 50.08, 14.42), candidatePlace("outside", 10, 10))
	page := searchPage(body)
	page.set(nextDisabledSel, true)

	require.NoError(t, c.search(context.Background(), page, searchItem()))

	pending := c.Queue().Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "inside", pending[0].UniqueKey)

	assert.EqualValues(t, 1, c.Stats().OutOfPolygon.Load())
	out := c.Stats().OutOfPolygonPlaces()
	require.Len(t, out, 1)
	assert.Equal(t, "pizza", out[0].SearchString)
	require.NotNil(t, out[0].Location)
	assert.Equal(t, 10.0, out[0].Location.Lat)
}

func TestSearch_ExportModeAbortsAtCap(t *testing.T) {
	opts := testOptions()
	opts.ExportPlaceURLs = true
	opts.MaxCrawledPlaces = 3
	sink := newMemSink()
	c := New(opts, nil, newMemStore(), sink)

	page := searchPage(searchBody(t, manyPlaces(5)...))
	page.set(nextButtonSel, true)

	require.NoError(t, c.search(context.Background(), page, searchItem()))

	require.Len(t, sink.urls, 3)
	for i, u := range sink.urls {
		assert.Equal(t, fmt.Sprintf("p-%d", i), u.PlaceID)
		assert.Equal(t, i+1, u.Rank)
		require.NotNil(t, u.SearchString)
		assert.Equal(t, "pizza", *u.SearchString)
	}
	assert.True(t, c.Queue().Aborted())
	assert.Zero(t, c.Queue().Len())
}

func TestSearch_ExportModeSkipsExportedPlaces(t *testing.T) {
	opts := testOptions()
	opts.ExportPlaceURLs = true
	sink := newMemSink()
	c := New(opts, nil, newMemStore(), sink)
	c.dedup.TestAndAdd("p-0")

	page := searchPage(searchBody(t, manyPlaces(2)...))
	page.set(nextDisabledSel, true)

	require.NoError(t, c.search(context.Background(), page, searchItem()))
	require.Len(t, sink.urls, 1)
	assert.Equal(t, "p-1", sink.urls[0].PlaceID)
}

func TestSearch_StopsAfterEmptyPages(t *testing.T) {
	opts := testOptions()
	opts.MaxEmptyPages = 2
	c := New(opts, nil, newMemStore(), newMemSink())

	empty := searchBody(t)
	page := searchPage(empty)
	page.set(nextButtonSel, true)
	nextClicks := 0
	page.evaluate = func(p *fakePage, expr string) (any, bool) {
		if expr == clickScript(nextButtonSel) {
			nextClicks++
			p.emit(browser.Response{URL: fmt.Sprintf(searchDataURL, nextClicks+1), Body: empty})
			return true, true
		}
		return nil, false
	}

	require.NoError(t, c.search(context.Background(), page, searchItem()))
	assert.Equal(t, 1, nextClicks)
	assert.Zero(t, c.Queue().Len())
}

func TestSearch_UnrecognizedPageIsRetryable(t *testing.T) {
	c := New(testOptions(), nil, newMemStore(), newMemSink())

	err := c.search(context.Background(), searchPage(searchBody(t)), searchItem())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoOutcome))
	assert.True(t, IsRetryable(err))
}

func TestZoomedOutTooFar(t *testing.T) {
	opts := testOptions()
	limit := 2.0
	opts.MaxAutomaticZoomOut = &limit
	c := New(opts, nil, newMemStore(), newMemSink())
	ctx := context.Background()

	page := newFakePage("https://www.google.com/maps/@50.08,14.42,12z/search")
	assert.True(t, c.zoomedOutTooFar(ctx, page, 15, true))
	assert.False(t, c.zoomedOutTooFar(ctx, page, 14, true))
	assert.False(t, c.zoomedOutTooFar(ctx, page, 15, false))

	c.opts.MaxAutomaticZoomOut = nil
	assert.False(t, c.zoomedOutTooFar(ctx, page, 20, true))
}

func TestClassify_DisabledNextWinsOverNext(t *testing.T) {
	page := newFakePage("")
	page.set(nextButtonSel, true)
	page.set(nextDisabledSel, true)

	o, err := classify(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, NextDisabled, o)
	assert.True(t, o.Terminal())

	page.set(nextDisabledSel, false)
	o, err = classify(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, HasNextPage, o)
	assert.False(t, o.Terminal())

	page.set(badQuerySel, true)
	o, err = classify(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, BadQuery, o)
}
