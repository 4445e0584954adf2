package config

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rendis/mapcrawl/internal/engine/browser"
	"github.com/rendis/mapcrawl/internal/engine/crawler"
	"github.com/rendis/mapcrawl/internal/engine/geo"
	"github.com/rendis/mapcrawl/internal/engine/storage"
	"github.com/rendis/mapcrawl/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Log     LogConfig       `yaml:"log" mapstructure:"log"`
	Crawl   CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	Search  SearchConfig    `yaml:"search" mapstructure:"search"`
	Place   PlaceConfig     `yaml:"place" mapstructure:"place"`
	Cache   CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Store   StoreConfig     `yaml:"store" mapstructure:"store"`
	Browser browser.Options `yaml:"browser" mapstructure:"browser"`
	Fetch   FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file" mapstructure:"file"`
}

// CrawlConfig configures the worker pool and its timeouts.
type CrawlConfig struct {
	Concurrency         int           `yaml:"concurrency" mapstructure:"concurrency"`
	MaxPageRetries      int           `yaml:"max_page_retries" mapstructure:"max_page_retries"`
	PageLoadTimeout     time.Duration `yaml:"page_load_timeout" mapstructure:"page_load_timeout"`
	PersistInterval     time.Duration `yaml:"persist_interval" mapstructure:"persist_interval"`
	ProgressInterval    time.Duration `yaml:"progress_interval" mapstructure:"progress_interval"`
	RatePerSec          float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxEmptyPages       int           `yaml:"max_empty_pages" mapstructure:"max_empty_pages"`
	OutcomeTimeout      time.Duration `yaml:"outcome_timeout" mapstructure:"outcome_timeout"`
	OutcomePollInterval time.Duration `yaml:"outcome_poll_interval" mapstructure:"outcome_poll_interval"`
	ReviewButtonTimeout time.Duration `yaml:"review_button_timeout" mapstructure:"review_button_timeout"`
}

// SearchConfig selects what is searched and where.
type SearchConfig struct {
	SearchStrings             []string        `yaml:"search_strings" mapstructure:"search_strings"`
	StartURLs                 []string        `yaml:"start_urls" mapstructure:"start_urls"`
	MaxCrawledPlaces          int             `yaml:"max_crawled_places" mapstructure:"max_crawled_places"`
	MaxCrawledPlacesPerSearch int             `yaml:"max_crawled_places_per_search" mapstructure:"max_crawled_places_per_search"`
	MaxAutomaticZoomOut       *float64        `yaml:"max_automatic_zoom_out" mapstructure:"max_automatic_zoom_out"`
	ExportPlaceURLs           bool            `yaml:"export_place_urls" mapstructure:"export_place_urls"`
	Language                  string          `yaml:"language" mapstructure:"language"`
	Zoom                      int             `yaml:"zoom" mapstructure:"zoom"`
	Lat                       *float64        `yaml:"lat" mapstructure:"lat"`
	Lng                       *float64        `yaml:"lng" mapstructure:"lng"`
	Location                  geo.Location    `yaml:"location" mapstructure:"location"`
	CustomGeolocation         string          `yaml:"custom_geolocation" mapstructure:"custom_geolocation"`
	PointRadiusKm             float64         `yaml:"point_radius_km" mapstructure:"point_radius_km"`
	Walker                    *crawler.Walker `yaml:"walker" mapstructure:"walker"`
}

// PlaceConfig selects what is extracted from every place.
type PlaceConfig struct {
	IncludeHistogram        bool                      `yaml:"include_histogram" mapstructure:"include_histogram"`
	IncludeOpeningHours     bool                      `yaml:"include_opening_hours" mapstructure:"include_opening_hours"`
	IncludePeopleAlsoSearch bool                      `yaml:"include_people_also_search" mapstructure:"include_people_also_search"`
	AdditionalInfo          bool                      `yaml:"additional_info" mapstructure:"additional_info"`
	MaxReviews              int                       `yaml:"max_reviews" mapstructure:"max_reviews"`
	MaxImages               int                       `yaml:"max_images" mapstructure:"max_images"`
	ReviewsSort             string                    `yaml:"reviews_sort" mapstructure:"reviews_sort"`
	ReviewsTranslation      string                    `yaml:"reviews_translation" mapstructure:"reviews_translation"`
	PersonalData            model.PersonalDataOptions `yaml:"personal_data" mapstructure:"personal_data"`
}

// CacheConfig configures the places cache.
type CacheConfig struct {
	CachePlaces     bool   `yaml:"cache_places" mapstructure:"cache_places"`
	UseCachedPlaces bool   `yaml:"use_cached_places" mapstructure:"use_cached_places"`
	Key             string `yaml:"key" mapstructure:"key"`
}

// StoreConfig configures the output database and the state backend.
type StoreConfig struct {
	Driver string               `yaml:"driver" mapstructure:"driver"`
	Path   string               `yaml:"path" mapstructure:"path"`
	Redis  storage.RedisOptions `yaml:"redis" mapstructure:"redis"`
}

// FetchConfig configures the HTTP client used outside the browser.
type FetchConfig struct {
	ReviewsMode string        `yaml:"reviews_mode" mapstructure:"reviews_mode"`
	Proxy       string        `yaml:"proxy" mapstructure:"proxy"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Load reads configuration from file and environment. An empty path looks
// for config.yaml in the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("MAPCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("crawl.concurrency", 4)
	v.SetDefault("crawl.max_page_retries", 6)
	v.SetDefault("crawl.page_load_timeout", "60s")
	v.SetDefault("crawl.persist_interval", "60s")
	v.SetDefault("crawl.progress_interval", "10s")
	v.SetDefault("crawl.rate_per_sec", 0)
	v.SetDefault("crawl.max_empty_pages", 5)
	v.SetDefault("crawl.outcome_timeout", "30s")
	v.SetDefault("crawl.outcome_poll_interval", "500ms")
	v.SetDefault("crawl.review_button_timeout", "15s")
	v.SetDefault("search.language", "en")
	v.SetDefault("search.point_radius_km", geo.DefaultPointRadiusKm)
	v.SetDefault("place.max_images", 1)
	v.SetDefault("place.reviews_sort", string(model.SortNewest))
	v.SetDefault("place.reviews_translation", string(model.TranslationOriginalAndTranslated))
	v.SetDefault("place.personal_data.scrape_reviewer_name", true)
	v.SetDefault("place.personal_data.scrape_reviewer_id", true)
	v.SetDefault("place.personal_data.scrape_reviewer_url", true)
	v.SetDefault("place.personal_data.scrape_review_id", true)
	v.SetDefault("place.personal_data.scrape_review_url", true)
	v.SetDefault("place.personal_data.scrape_response_from_owner_text", true)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "mapcrawl.db")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.prefix", "mapcrawl:")
	v.SetDefault("browser.headless", true)
	v.SetDefault("fetch.reviews_mode", "page")
	v.SetDefault("fetch.timeout", "15s")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects enum values no component understands.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "redis":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	switch c.Fetch.ReviewsMode {
	case "page", "http":
	default:
		return eris.Errorf("config: unknown reviews mode %q", c.Fetch.ReviewsMode)
	}
	switch model.ReviewsSort(c.Place.ReviewsSort) {
	case model.SortMostRelevant, model.SortNewest, model.SortHighestRanking, model.SortLowestRanking:
	default:
		return eris.Errorf("config: unknown reviews sort %q", c.Place.ReviewsSort)
	}
	switch model.ReviewsTranslation(c.Place.ReviewsTranslation) {
	case model.TranslationOriginalAndTranslated, model.TranslationOnlyOriginal, model.TranslationOnlyTranslated:
	default:
		return eris.Errorf("config: unknown reviews translation %q", c.Place.ReviewsTranslation)
	}
	if (c.Search.Lat == nil) != (c.Search.Lng == nil) {
		return eris.New("config: search.lat and search.lng must be set together")
	}
	return nil
}

// ScrapingOptions is the detail extraction part of the configuration.
func (c *Config) ScrapingOptions() model.ScrapingOptions {
	return model.ScrapingOptions{
		IncludeHistogram:        c.Place.IncludeHistogram,
		IncludeOpeningHours:     c.Place.IncludeOpeningHours,
		IncludePeopleAlsoSearch: c.Place.IncludePeopleAlsoSearch,
		AdditionalInfo:          c.Place.AdditionalInfo,
		MaxReviews:              c.Place.MaxReviews,
		MaxImages:               c.Place.MaxImages,
		ReviewsSort:             model.ReviewsSort(c.Place.ReviewsSort),
		ReviewsTranslation:      model.ReviewsTranslation(c.Place.ReviewsTranslation),
		Language:                c.Search.Language,
		PersonalData:            c.Place.PersonalData,
	}
}

// CrawlerOptions maps the configuration onto the crawler.
func (c *Config) CrawlerOptions() crawler.Options {
	return crawler.Options{
		Concurrency:               c.Crawl.Concurrency,
		MaxPageRetries:            c.Crawl.MaxPageRetries,
		PageLoadTimeout:           c.Crawl.PageLoadTimeout,
		PersistInterval:           c.Crawl.PersistInterval,
		ProgressInterval:          c.Crawl.ProgressInterval,
		RatePerSec:                c.Crawl.RatePerSec,
		MaxEmptyPages:             c.Crawl.MaxEmptyPages,
		OutcomeTimeout:            c.Crawl.OutcomeTimeout,
		OutcomePollInterval:       c.Crawl.OutcomePollInterval,
		ReviewButtonTimeout:       c.Crawl.ReviewButtonTimeout,
		MaxCrawledPlaces:          c.Search.MaxCrawledPlaces,
		MaxCrawledPlacesPerSearch: c.Search.MaxCrawledPlacesPerSearch,
		MaxAutomaticZoomOut:       c.Search.MaxAutomaticZoomOut,
		ExportPlaceURLs:           c.Search.ExportPlaceURLs,
		Language:                  c.Search.Language,
		Scraping:                  c.ScrapingOptions(),
		CachePlaces:               c.Cache.CachePlaces,
		UseCachedPlaces:           c.Cache.UseCachedPlaces,
		CacheKey:                  c.Cache.Key,
	}
}

// PlanInput reads the custom geolocation file, if any, and returns what
// the crawl starts from.
func (c *Config) PlanInput() (crawler.PlanInput, error) {
	in := crawler.PlanInput{
		SearchStrings: c.Search.SearchStrings,
		StartURLs:     c.Search.StartURLs,
		Location:      c.Search.Location,
		Lat:           c.Search.Lat,
		Lng:           c.Search.Lng,
		Zoom:          c.Search.Zoom,
		PointRadiusKm: c.Search.PointRadiusKm,
		Walker:        c.Search.Walker,
	}
	if c.Search.CustomGeolocation != "" {
		data, err := os.ReadFile(c.Search.CustomGeolocation)
		if err != nil {
			return in, eris.Wrap(err, "config: read custom geolocation")
		}
		in.CustomGeoJSON = data
	}
	return in, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	if cfg.File != "" {
		zapCfg.OutputPaths = []string{cfg.File}
		zapCfg.ErrorOutputPaths = []string{cfg.File}
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
