package views

import (
	"sync"

	"github.com/rendis/mapcrawl/internal/engine/crawler"
	"github.com/rendis/mapcrawl/internal/engine/geo"
	"github.com/rendis/mapcrawl/internal/engine/quota"
	"github.com/rendis/mapcrawl/internal/model"
	"github.com/rendis/mapcrawl/internal/tui/components"
)

const maxCandidatePoints = 20000

// Feed collects crawl events for the dashboard. Its On* methods are
// crawler hooks and are called from the worker goroutines.
type Feed struct {
	mu         sync.Mutex
	crawler    *crawler.Crawler
	region     *geo.Region
	maxPlaces  int
	places     []components.Point
	candidates []components.Point
	lastPlace  string
}

// NewFeed returns a feed. maxPlaces is the global place cap, 0 for none.
func NewFeed(maxPlaces int) *Feed {
	return &Feed{maxPlaces: maxPlaces}
}

// Attach binds the planned crawl whose counters the dashboard shows.
func (f *Feed) Attach(c *crawler.Crawler, plan *crawler.Plan) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crawler = c
	if plan != nil {
		f.region = plan.Region
	}
}

func (f *Feed) OnPlace(p *model.Place) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Location != nil {
		f.places = append(f.places, components.Point{Lat: p.Location.Lat, Lng: p.Location.Lng})
	}
	if p.Title != nil {
		f.lastPlace = *p.Title
	}
}

func (f *Feed) OnCandidates(cs []model.Candidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range cs {
		if c.Coords == nil || len(f.candidates) >= maxCandidatePoints {
			continue
		}
		f.candidates = append(f.candidates, components.Point{Lat: c.Coords.Lat, Lng: c.Coords.Lng})
	}
}

// feedSnapshot is a consistent read of the feed for one frame.
type feedSnapshot struct {
	attached   bool
	stats      crawler.StatsSnapshot
	quota      quota.State
	queued     int
	handled    int
	maxPlaces  int
	region     *geo.Region
	places     []components.Point
	candidates []components.Point
	lastPlace  string
}

func (f *Feed) snapshot() feedSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := feedSnapshot{
		maxPlaces:  f.maxPlaces,
		region:     f.region,
		places:     append([]components.Point(nil), f.places...),
		candidates: append([]components.Point(nil), f.candidates...),
		lastPlace:  f.lastPlace,
	}
	if f.crawler != nil {
		s.attached = true
		s.stats = f.crawler.Stats().Snapshot()
		s.quota = f.crawler.Quota()
		s.queued = f.crawler.Queue().Len()
		s.handled = f.crawler.Queue().Handled()
	}
	return s
}

// fraction is the crawl progress in [0, 1]: places against the cap when
// there is one, handled against known work items otherwise.
func (s feedSnapshot) fraction() float64 {
	if s.maxPlaces > 0 {
		return min(float64(s.stats.Places)/float64(s.maxPlaces), 1)
	}
	total := s.handled + s.queued
	if total == 0 {
		return 0
	}
	return float64(s.handled) / float64(total)
}
