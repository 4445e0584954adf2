package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rendis/mapcrawl/internal/config"
	"github.com/rendis/mapcrawl/internal/engine/browser"
	"github.com/rendis/mapcrawl/internal/engine/crawler"
	"github.com/rendis/mapcrawl/internal/engine/fetch"
	"github.com/rendis/mapcrawl/internal/engine/geo"
	"github.com/rendis/mapcrawl/internal/engine/storage"
	"github.com/rendis/mapcrawl/internal/tui"
	"github.com/rendis/mapcrawl/internal/tui/views"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl places for the configured searches",
	Long:  "Plans the searches for the configured region, runs them in a headless browser and stores every place found. An interrupted crawl resumes from the saved state.",
	Example: `  mapcrawl crawl --search "pizza" --city Prague --country Czechia --max-places 200
  mapcrawl crawl --start-url "https://www.google.com/maps/search/cafe/@50.08,14.42,15z" --tui`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applySearchFlags(cmd, cfg); err != nil {
			return err
		}
		if n, _ := cmd.Flags().GetInt("concurrency"); cmd.Flags().Changed("concurrency") {
			cfg.Crawl.Concurrency = n
		}
		if db, _ := cmd.Flags().GetString("db"); db != "" {
			cfg.Store.Path = db
		}
		useTUI, _ := cmd.Flags().GetBool("tui")

		log := zap.L().With(zap.String("command", "crawl"))

		in, err := cfg.PlanInput()
		if err != nil {
			return err
		}
		if len(in.SearchStrings) == 0 && len(in.StartURLs) == 0 {
			return eris.New("crawl: set search strings (--search) or start URLs (--start-url)")
		}

		out, err := storage.NewSQLite(cfg.Store.Path)
		if err != nil {
			return eris.Wrap(err, "crawl: open output store")
		}
		defer out.Close()

		state, err := openState(ctx, cfg, out)
		if err != nil {
			return err
		}
		if state != out {
			defer state.Close()
		}

		client := fetch.NewClient(fetchOptions(cfg))
		opts := cfg.CrawlerOptions()
		if cfg.Fetch.ReviewsMode == "http" {
			opts.ReviewFetcher = crawler.HTTPReviewFetcher{Client: client}
		}

		chrome, err := browser.NewChrome(ctx, browserOptions(cfg))
		if err != nil {
			return eris.Wrap(err, "crawl: start browser")
		}
		defer chrome.Close()

		if useTUI {
			// Log lines would tear the dashboard
			if cfg.Log.File == "" {
				zap.ReplaceGlobals(zap.NewNop())
			}
			feed := views.NewFeed(cfg.Search.MaxCrawledPlaces)
			opts.OnPlace = feed.OnPlace
			opts.OnCandidates = feed.OnCandidates
			c := crawler.New(opts, chrome, state, out)

			return tui.Run(ctx, views.Session{
				Title:  sessionTitle(in),
				DBPath: cfg.Store.Path,
				Feed:   feed,
				Crawl: func(ctx context.Context) error {
					plan, err := c.Plan(ctx, in, geo.NewGeocoder(client))
					if err != nil {
						return err
					}
					feed.Attach(c, plan)
					_, err = c.Run(ctx, plan)
					return err
				},
			})
		}

		c := crawler.New(opts, chrome, state, out)
		start := time.Now()
		plan, err := c.Plan(ctx, in, geo.NewGeocoder(client))
		if err != nil {
			return eris.Wrap(err, "crawl: plan")
		}
		log.Info("crawl planned",
			zap.String("run_id", c.RunID()),
			zap.Int("start_items", len(plan.Items)),
			zap.Int("zoom", plan.Zoom),
			zap.Int("seeds", len(plan.SeedURLs)))

		stats, err := c.Run(ctx, plan)
		if err != nil && !errors.Is(err, context.Canceled) {
			return eris.Wrap(err, "crawl: run")
		}

		total, _ := out.CountPlaces(context.WithoutCancel(ctx))
		snap := stats.Snapshot()

		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "══════════════════════════════\n")
		fmt.Fprintf(os.Stderr, "  MapCrawl Complete\n")
		fmt.Fprintf(os.Stderr, "══════════════════════════════\n")
		fmt.Fprintf(os.Stderr, "  Search:     %s\n", sessionTitle(in))
		fmt.Fprintf(os.Stderr, "  Run:        %s\n", c.RunID())
		fmt.Fprintf(os.Stderr, "  Searches:   %d\n", snap.Maps)
		fmt.Fprintf(os.Stderr, "  Places:     %d\n", snap.Places)
		fmt.Fprintf(os.Stderr, "  Outside:    %d\n", snap.OutOfPolygon)
		fmt.Fprintf(os.Stderr, "  Failed:     %d\n", snap.Failed)
		fmt.Fprintf(os.Stderr, "  Duration:   %s\n", time.Since(start).Truncate(time.Second))
		fmt.Fprintf(os.Stderr, "  Database:   %s (%d places)\n", cfg.Store.Path, total)
		fmt.Fprintf(os.Stderr, "══════════════════════════════\n")

		return nil
	},
}

func init() {
	addSearchFlags(crawlCmd)
	crawlCmd.Flags().Int("concurrency", 0, "parallel browser tabs (default from config)")
	crawlCmd.Flags().String("db", "", "output SQLite database (default from config)")
	crawlCmd.Flags().Bool("tui", false, "show the live crawl dashboard")
	rootCmd.AddCommand(crawlCmd)
}

// addSearchFlags registers the flags that override the search section.
func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("search", nil, "search strings (repeatable or comma-separated)")
	cmd.Flags().StringSlice("start-url", nil, "place or search URLs to start from")
	cmd.Flags().Int("max-places", 0, "stop after this many places in total")
	cmd.Flags().Int("max-places-per-search", 0, "stop each search after this many places")
	cmd.Flags().String("country", "", "country to search in")
	cmd.Flags().String("state", "", "state to search in")
	cmd.Flags().String("county", "", "county to search in")
	cmd.Flags().String("city", "", "city to search in")
	cmd.Flags().String("postal-code", "", "postal code to search in")
	cmd.Flags().Float64("lat", 0, "center latitude (with --lng)")
	cmd.Flags().Float64("lng", 0, "center longitude (with --lat)")
	cmd.Flags().Int("zoom", 0, "map zoom 1-21 (default by location kind)")
	cmd.Flags().String("geojson", "", "GeoJSON file with the region to search")
	cmd.Flags().String("language", "", "results language (default from config)")
}

// applySearchFlags copies the changed search flags onto c and validates it
// again.
func applySearchFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	if v, _ := f.GetStringSlice("search"); f.Changed("search") {
		c.Search.SearchStrings = trimAll(v)
	}
	if v, _ := f.GetStringSlice("start-url"); f.Changed("start-url") {
		c.Search.StartURLs = trimAll(v)
	}
	if v, _ := f.GetInt("max-places"); f.Changed("max-places") {
		c.Search.MaxCrawledPlaces = v
	}
	if v, _ := f.GetInt("max-places-per-search"); f.Changed("max-places-per-search") {
		c.Search.MaxCrawledPlacesPerSearch = v
	}
	for flag, dst := range map[string]*string{
		"country":     &c.Search.Location.Country,
		"state":       &c.Search.Location.State,
		"county":      &c.Search.Location.County,
		"city":        &c.Search.Location.City,
		"postal-code": &c.Search.Location.PostalCode,
		"geojson":     &c.Search.CustomGeolocation,
		"language":    &c.Search.Language,
	} {
		if v, _ := f.GetString(flag); f.Changed(flag) {
			*dst = v
		}
	}
	if v, _ := f.GetFloat64("lat"); f.Changed("lat") {
		c.Search.Lat = &v
	}
	if v, _ := f.GetFloat64("lng"); f.Changed("lng") {
		c.Search.Lng = &v
	}
	if v, _ := f.GetInt("zoom"); f.Changed("zoom") {
		c.Search.Zoom = v
	}
	return c.Validate()
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// openState returns the crawl state backend: the output database itself or
// a redis instance.
func openState(ctx context.Context, c *config.Config, out *storage.SQLiteStore) (storage.StateStore, error) {
	if c.Store.Driver != "redis" {
		return out, nil
	}
	r := storage.NewRedis(c.Store.Redis)
	if err := r.Ping(ctx); err != nil {
		r.Close()
		return nil, eris.Wrapf(err, "crawl: connect redis %s", c.Store.Redis.Addr)
	}
	return r, nil
}

func fetchOptions(c *config.Config) fetch.Options {
	return fetch.Options{
		Language:  c.Search.Language,
		ProxyURL:  c.Fetch.Proxy,
		UserAgent: c.Browser.UserAgent,
		Timeout:   c.Fetch.Timeout,
	}
}

func browserOptions(c *config.Config) browser.Options {
	opts := c.Browser
	opts.Language = c.Search.Language
	opts.BlockImages = c.Place.MaxImages == 0
	if opts.ProxyServer == "" {
		opts.ProxyServer = c.Fetch.Proxy
	}
	return opts
}

func sessionTitle(in crawler.PlanInput) string {
	if len(in.SearchStrings) > 0 {
		return strings.Join(in.SearchStrings, ", ")
	}
	return fmt.Sprintf("%d start URLs", len(in.StartURLs))
}
