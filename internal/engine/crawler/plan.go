package crawler

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rendis/mapcrawl/internal/engine/geo"
	"github.com/rendis/mapcrawl/internal/model"
)

const (
	geoStateKey      = "GEO"
	startRequestsKey = "START-REQUESTS"
)

var (
	placeIDSearchRe = regexp.MustCompile(`place_id:(.*)`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// Geocoder resolves a named location to its outline.
type Geocoder interface {
	Lookup(ctx context.Context, loc geo.Location) (*geo.Geolocation, error)
}

// Walker walks a rectangle from its north-east to its south-west corner in
// fixed degree steps, one search per step.
type Walker struct {
	Zoom      int               `yaml:"zoom" mapstructure:"zoom"`
	Step      float64           `yaml:"step" mapstructure:"step"`
	NorthEast model.Coordinates `yaml:"northeast" mapstructure:"northeast"`
	SouthWest model.Coordinates `yaml:"southwest" mapstructure:"southwest"`
}

// PlanInput describes what to crawl.
type PlanInput struct {
	SearchStrings []string
	StartURLs     []string
	Location      geo.Location
	// CustomGeoJSON is a GeoJSON geometry, feature or feature collection
	// used instead of geocoding Location.
	CustomGeoJSON []byte
	Lat, Lng      *float64
	Zoom          int
	PointRadiusKm float64
	Walker        *Walker
}

// Plan is the resolved start of a crawl.
type Plan struct {
	Items  []*WorkItem
	Region *geo.Region
	Zoom   int
	// SeedURLs are the map URLs each search string is run from.
	SeedURLs []string
}

// Plan turns the input into start work items. Start URLs take precedence
// over search strings. The resolved geolocation and the start items are
// persisted, and a resumed run reuses them.
func (c *Crawler) Plan(ctx context.Context, in PlanInput, gc Geocoder) (*Plan, error) {
	if err := c.Restore(ctx); err != nil {
		return nil, err
	}

	if len(in.StartURLs) > 0 {
		if len(in.SearchStrings) > 0 {
			c.log.Warn("start urls are set, search strings are ignored")
		}
		return &Plan{Items: c.startURLItems(in.StartURLs)}, nil
	}

	zoom := in.Zoom
	if zoom <= 0 {
		zoom = in.Location.DefaultZoom()
	}
	plan := &Plan{Zoom: zoom}

	switch {
	case len(in.CustomGeoJSON) > 0 || !in.Location.IsZero():
		region, err := c.resolveRegion(ctx, in, gc)
		if err != nil {
			return nil, err
		}
		plan.Region = region
		seeds, err := geo.SeedGrid(region, zoom)
		if err != nil {
			return nil, eris.Wrap(err, "creating seed grid")
		}
		for _, p := range seeds {
			plan.SeedURLs = append(plan.SeedURLs, mapAtURL(p.Lat, p.Lon, zoom))
		}
		c.log.Info("created seed search urls", zap.Int("count", len(plan.SeedURLs)), zap.Int("zoom", zoom))
	case in.Lat != nil || in.Lng != nil:
		if in.Lat == nil || in.Lng == nil {
			return nil, eris.New("both lat and lng must be set")
		}
		plan.SeedURLs = []string{mapAtURL(*in.Lat, *in.Lng, zoom)}
	default:
		plan.SeedURLs = []string{mapsSearchURL}
	}

	var saved []*WorkItem
	found, err := c.state.LoadState(ctx, startRequestsKey, &saved)
	if err != nil {
		return nil, eris.Wrap(err, "loading start requests")
	}
	if found {
		c.log.Warn("resuming, reusing the start items of the previous run", zap.Int("items", len(saved)))
		plan.Items = saved
		return plan, nil
	}

	plan.Items = c.searchItems(in, plan)
	if err := c.state.SaveState(ctx, startRequestsKey, plan.Items); err != nil {
		return nil, eris.Wrap(err, "persisting start requests")
	}
	return plan, nil
}

func (c *Crawler) resolveRegion(ctx context.Context, in PlanInput, gc Geocoder) (*geo.Region, error) {
	var g *geo.Geolocation
	if len(in.CustomGeoJSON) > 0 {
		c.log.Info("using custom geolocation")
		g = &geo.Geolocation{GeoJSON: in.CustomGeoJSON}
	} else {
		var saved geo.Geolocation
		found, err := c.state.LoadState(ctx, geoStateKey, &saved)
		if err != nil {
			return nil, eris.Wrap(err, "loading geolocation")
		}
		if found {
			g = &saved
		} else {
			if gc == nil {
				return nil, eris.New("a location is set but no geocoder is available")
			}
			if g, err = gc.Lookup(ctx, in.Location); err != nil {
				return nil, err
			}
		}
	}
	if err := c.state.SaveState(ctx, geoStateKey, g); err != nil {
		return nil, eris.Wrap(err, "persisting geolocation")
	}
	return g.Region(in.PointRadiusKm)
}

// startURLItems routes place URLs to the detail path and search URLs to the
// search path. Anything else is skipped.
func (c *Crawler) startURLItems(urls []string) []*WorkItem {
	var items []*WorkItem
	for _, u := range urls {
		u = strings.TrimSpace(u)
		switch {
		case u == "":
			continue
		case webSearchRe.MatchString(u):
			c.log.Warn("web search urls are not supported, use a maps url", zap.String("url", u))
		case IsPlaceURL(u):
			if placeURLRe.MatchString(u) {
				u = NormalizePlaceURL(u)
			}
			items = append(items, &WorkItem{URL: u, UniqueKey: u, Label: LabelDetail})
		case IsSearchURL(u):
			items = append(items, &WorkItem{URL: u, UniqueKey: u, Label: LabelSearch})
		default:
			c.log.Warn("not a maps place or search url, skipping", zap.String("url", u))
		}
	}
	return items
}

// searchItems crosses every search string with the seed URLs. Place id
// searches go straight to the detail path, and cached places inside the
// region are added as detail items.
func (c *Crawler) searchItems(in PlanInput, plan *Plan) []*WorkItem {
	var items []*WorkItem
	for _, search := range in.SearchStrings {
		if strings.TrimSpace(search) == "" {
			c.log.Warn("skipping empty search string")
			continue
		}
		switch {
		case in.Walker != nil:
			for _, u := range in.Walker.URLs() {
				items = append(items, &WorkItem{URL: u, UniqueKey: u + "+" + search, Label: LabelSearch, SearchString: search})
			}
		case strings.Contains(search, "place_id:"):
			clean := whitespaceRe.ReplaceAllString(search, "")
			placeID := placeIDSearchRe.FindStringSubmatch(clean)[1]
			items = append(items, &WorkItem{URL: PlaceSearchURL(clean, placeID), UniqueKey: placeID, Label: LabelDetail, SearchString: search})
		default:
			for _, u := range plan.SeedURLs {
				items = append(items, &WorkItem{URL: u, UniqueKey: u + "+" + search, Label: LabelSearch, SearchString: search})
			}
		}
	}

	for _, placeID := range c.places.PlacesInRegion(plan.Region, c.opts.MaxCrawledPlaces, in.SearchStrings) {
		keywords := c.places.Keywords(placeID)
		var search string
		for _, s := range in.SearchStrings {
			if slices.Contains(keywords, s) {
				search = s
				break
			}
		}
		items = append(items, &WorkItem{URL: PlaceSearchURL(search, placeID), UniqueKey: placeID, Label: LabelDetail, SearchString: search})
	}
	return items
}

// URLs lists the search URLs of the walk.
func (w *Walker) URLs() []string {
	if w.Step <= 0 {
		return nil
	}
	var urls []string
	for lng := w.NorthEast.Lng; lng >= w.SouthWest.Lng; lng -= w.Step {
		for lat := w.NorthEast.Lat; lat >= w.SouthWest.Lat; lat -= w.Step {
			urls = append(urls, mapAtURL(lat, lng, w.Zoom))
		}
	}
	return urls
}
