package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rendis/mapcrawl/internal/model"
)

func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Crawl.Concurrency)
	assert.Equal(t, 6, cfg.Crawl.MaxPageRetries)
	assert.Equal(t, 60*time.Second, cfg.Crawl.PageLoadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Crawl.OutcomeTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Crawl.OutcomePollInterval)
	assert.Equal(t, 15*time.Second, cfg.Crawl.ReviewButtonTimeout)
	assert.Equal(t, 5, cfg.Crawl.MaxEmptyPages)
	assert.Equal(t, "en", cfg.Search.Language)
	assert.InDelta(t, 5.0, cfg.Search.PointRadiusKm, 0.001)
	assert.Nil(t, cfg.Search.MaxAutomaticZoomOut)
	assert.Nil(t, cfg.Search.Walker)
	assert.Equal(t, 1, cfg.Place.MaxImages)
	assert.Equal(t, "newest", cfg.Place.ReviewsSort)
	assert.Equal(t, model.AllPersonalData(), cfg.Place.PersonalData)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "mapcrawl.db", cfg.Store.Path)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "page", cfg.Fetch.ReviewsMode)
}

func TestLoadFromYAML(t *testing.T) {
	dir := inTempDir(t)

	yaml := `
log:
  level: debug
  format: console
search:
  search_strings: ["pizza", "pasta"]
  max_crawled_places: 100
  max_automatic_zoom_out: 3
  location:
    city: Prague
    country: Czechia
  walker:
    zoom: 16
    step: 0.01
    northeast: {lat: 50.1, lng: 14.5}
    southwest: {lat: 50.0, lng: 14.4}
place:
  max_reviews: 20
  reviews_sort: lowestRanking
  personal_data:
    scrape_reviewer_name: false
store:
  driver: redis
  redis:
    addr: redis:6379
    db: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"pizza", "pasta"}, cfg.Search.SearchStrings)
	assert.Equal(t, 100, cfg.Search.MaxCrawledPlaces)
	require.NotNil(t, cfg.Search.MaxAutomaticZoomOut)
	assert.InDelta(t, 3.0, *cfg.Search.MaxAutomaticZoomOut, 0.001)
	assert.Equal(t, "Prague", cfg.Search.Location.City)
	require.NotNil(t, cfg.Search.Walker)
	assert.Equal(t, 16, cfg.Search.Walker.Zoom)
	assert.InDelta(t, 50.1, cfg.Search.Walker.NorthEast.Lat, 0.0001)
	assert.Equal(t, 20, cfg.Place.MaxReviews)
	assert.False(t, cfg.Place.PersonalData.ScrapeReviewerName)
	assert.True(t, cfg.Place.PersonalData.ScrapeReviewerID)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 2, cfg.Store.Redis.DB)
	// Defaults still apply for unset values
	assert.Equal(t, "mapcrawl:", cfg.Store.Redis.Prefix)
	assert.Equal(t, 4, cfg.Crawl.Concurrency)

	opts := cfg.CrawlerOptions()
	assert.Equal(t, 100, opts.MaxCrawledPlaces)
	assert.Equal(t, model.SortLowestRanking, opts.Scraping.ReviewsSort)
	assert.Equal(t, "en", opts.Scraping.Language)
}

func TestLoadExplicitPath(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "crawl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawl:\n  concurrency: 9\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Crawl.Concurrency)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\n"), 0644))
	t.Setenv("MAPCRAWL_LOG_LEVEL", "warn")
	t.Setenv("MAPCRAWL_CRAWL_CONCURRENCY", "12")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 12, cfg.Crawl.Concurrency)
}

func TestValidate(t *testing.T) {
	inTempDir(t)

	t.Setenv("MAPCRAWL_STORE_DRIVER", "postgres")
	_, err := Load("")
	assert.ErrorContains(t, err, "store driver")

	t.Setenv("MAPCRAWL_STORE_DRIVER", "sqlite")
	t.Setenv("MAPCRAWL_PLACE_REVIEWS_SORT", "random")
	_, err = Load("")
	assert.ErrorContains(t, err, "reviews sort")

	t.Setenv("MAPCRAWL_PLACE_REVIEWS_SORT", "newest")
	t.Setenv("MAPCRAWL_FETCH_REVIEWS_MODE", "carrier-pigeon")
	_, err = Load("")
	assert.ErrorContains(t, err, "reviews mode")

	t.Setenv("MAPCRAWL_FETCH_REVIEWS_MODE", "page")
	t.Setenv("MAPCRAWL_PLACE_REVIEWS_TRANSLATION", "pigLatin")
	_, err = Load("")
	assert.ErrorContains(t, err, "reviews translation")
}

func TestPlanInputReadsCustomGeolocation(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "area.geojson")
	geojson := `{"type":"Point","coordinates":[14.42,50.08]}`
	require.NoError(t, os.WriteFile(path, []byte(geojson), 0644))

	cfg := &Config{Search: SearchConfig{SearchStrings: []string{"pizza"}, CustomGeolocation: path}}
	in, err := cfg.PlanInput()
	require.NoError(t, err)
	assert.JSONEq(t, geojson, string(in.CustomGeoJSON))
	assert.Equal(t, []string{"pizza"}, in.SearchStrings)

	cfg.Search.CustomGeolocation = filepath.Join(dir, "missing.geojson")
	_, err = cfg.PlanInput()
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "error", Format: "json", File: filepath.Join(t.TempDir(), "crawl.log")}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	assert.Error(t, InitLogger(LogConfig{Level: "loud"}))
}
