// Package crawler runs search and place detail sessions against the map
// site. A search pages through results and enqueues detail visits; a detail
// visit decodes the place and emits it.
package crawler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rendis/mapcrawl/internal/engine/browser"
	"github.com/rendis/mapcrawl/internal/engine/cache"
	"github.com/rendis/mapcrawl/internal/engine/dedup"
	"github.com/rendis/mapcrawl/internal/engine/geo"
	"github.com/rendis/mapcrawl/internal/engine/quota"
	"github.com/rendis/mapcrawl/internal/model"
)

// StateStore persists crawl state between runs.
type StateStore interface {
	LoadState(ctx context.Context, key string, dst any) (bool, error)
	SaveState(ctx context.Context, key string, v any) error
}

// Sink receives the crawl output.
type Sink interface {
	PushPlace(ctx context.Context, runID string, p *model.Place) (bool, error)
	PushPlaceURL(ctx context.Context, runID string, u model.PlaceURL) error
	PushFailed(ctx context.Context, runID string, f model.FailedRequest) error
}

// Options configures a crawl.
type Options struct {
	Concurrency         int
	MaxPageRetries      int
	PageLoadTimeout     time.Duration
	PersistInterval     time.Duration
	ProgressInterval    time.Duration
	RatePerSec          float64
	MaxEmptyPages       int
	OutcomeTimeout      time.Duration
	OutcomePollInterval time.Duration
	ReviewButtonTimeout time.Duration

	MaxCrawledPlaces          int
	MaxCrawledPlacesPerSearch int
	// MaxAutomaticZoomOut stops a search once the map zoomed out this many
	// levels from where it started. Nil disables the check.
	MaxAutomaticZoomOut *float64
	ExportPlaceURLs     bool
	Language            string
	Scraping            model.ScrapingOptions

	CachePlaces     bool
	UseCachedPlaces bool
	CacheKey        string

	RunID string
	// ReviewFetcher loads reviews feed pages. Defaults to fetching from the page.
	ReviewFetcher ReviewFetcher
	// OnPlace is called for every emitted place.
	OnPlace func(*model.Place)
	// OnCandidates is called with the candidates of every search data page,
	// before region filtering.
	OnCandidates func([]model.Candidate)
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.MaxPageRetries < 0 {
		o.MaxPageRetries = 0
	}
	if o.PageLoadTimeout <= 0 {
		o.PageLoadTimeout = 60 * time.Second
	}
	if o.PersistInterval <= 0 {
		o.PersistInterval = time.Minute
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = 10 * time.Second
	}
	if o.MaxEmptyPages <= 0 {
		o.MaxEmptyPages = 5
	}
	if o.OutcomeTimeout <= 0 {
		o.OutcomeTimeout = 30 * time.Second
	}
	if o.OutcomePollInterval <= 0 {
		o.OutcomePollInterval = 500 * time.Millisecond
	}
	if o.ReviewButtonTimeout <= 0 {
		o.ReviewButtonTimeout = 15 * time.Second
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	return o
}

// Crawler is the host: it owns the queue and the shared crawl state and
// dispatches work items to a pool of workers.
type Crawler struct {
	opts    Options
	browser browser.Browser
	state   StateStore
	sink    Sink
	queue   *Queue
	quota   *quota.Tracker
	dedup   *dedup.Set
	places  *cache.Places
	stats   *Stats
	reviews ReviewFetcher
	limiter *rate.Limiter
	log     *zap.Logger

	region      *geo.Region
	restoreOnce sync.Once
	restoreErr  error
}

// New returns a crawler. b may be nil when the crawler is only used to plan.
func New(opts Options, b browser.Browser, state StateStore, sink Sink) *Crawler {
	opts = opts.withDefaults()

	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	reviews := opts.ReviewFetcher
	if reviews == nil {
		reviews = PageReviewFetcher{}
	}

	return &Crawler{
		opts:    opts,
		browser: b,
		state:   state,
		sink:    sink,
		queue:   NewQueue(),
		quota:   quota.NewTracker(opts.MaxCrawledPlaces, opts.MaxCrawledPlacesPerSearch),
		dedup:   dedup.NewSet(),
		places:  cache.NewPlaces(opts.CachePlaces, opts.UseCachedPlaces, opts.CacheKey),
		stats:   &Stats{},
		reviews: reviews,
		limiter: rate.NewLimiter(limit, opts.Concurrency),
		log:     zap.L().With(zap.String("component", "crawler"), zap.String("run_id", opts.RunID)),
	}
}

// Stats are the live run counters.
func (c *Crawler) Stats() *Stats { return c.stats }

// Quota returns a snapshot of the quota counters.
func (c *Crawler) Quota() quota.State { return c.quota.Snapshot() }

// Queue is the work queue.
func (c *Crawler) Queue() *Queue { return c.queue }

// RunID identifies the rows this crawl writes.
func (c *Crawler) RunID() string { return c.opts.RunID }

// Restore loads the state of a previous run. It runs once; later calls
// return the first result.
func (c *Crawler) Restore(ctx context.Context) error {
	c.restoreOnce.Do(func() {
		c.restoreErr = c.restore(ctx)
	})
	return c.restoreErr
}

func (c *Crawler) restore(ctx context.Context) error {
	if err := c.quota.Load(ctx, c.state); err != nil {
		return err
	}
	if err := c.stats.Load(ctx, c.state); err != nil {
		return err
	}
	if err := c.places.Load(ctx, c.state); err != nil {
		return err
	}
	if c.opts.ExportPlaceURLs {
		if err := c.dedup.Load(ctx, c.state); err != nil {
			return err
		}
	}
	return nil
}

// Persist saves quota, stats, places cache and the export dedup set.
func (c *Crawler) Persist(ctx context.Context) error {
	errs := []error{
		c.quota.Persist(ctx, c.state),
		c.stats.Persist(ctx, c.state),
		c.places.Persist(ctx, c.state),
	}
	if c.opts.ExportPlaceURLs {
		errs = append(errs, c.dedup.Persist(ctx, c.state))
	}
	return errors.Join(errs...)
}

// Abort stops dispatching work. Items in flight finish on their own.
func (c *Crawler) Abort(reason string) {
	if !c.queue.Aborted() {
		c.log.Warn("aborting crawl", zap.String("reason", reason))
	}
	c.queue.Abort()
}

// Run crawls the planned items until the queue drains, the crawl is
// aborted or ctx is done. State is persisted periodically and on return.
func (c *Crawler) Run(ctx context.Context, plan *Plan) (*Stats, error) {
	if c.browser == nil {
		return c.stats, eris.New("crawler has no browser")
	}
	if err := c.Restore(ctx); err != nil {
		return c.stats, err
	}
	c.region = plan.Region
	c.seed(plan.Items)
	c.log.Info("crawl started",
		zap.Int("start_items", len(plan.Items)),
		zap.Int("queued", c.queue.Len()),
		zap.Int("concurrency", c.opts.Concurrency))

	start := time.Now()
	done := make(chan struct{})
	var bg sync.WaitGroup
	bg.Add(1)
	go func() {
		defer bg.Done()
		c.background(ctx, start, done)
	}()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.opts.Concurrency; i++ {
		g.Go(func() error { return c.work(gctx) })
	}
	err := g.Wait()
	close(done)
	bg.Wait()

	if perr := c.Persist(context.WithoutCancel(ctx)); perr != nil {
		c.log.Error("persisting state", zap.Error(perr))
		if err == nil {
			err = perr
		}
	}
	c.logProgress(start)
	if err == nil {
		err = ctx.Err()
	}
	return c.stats, err
}

// seed queues the start items. Detail items count against the global quota
// when queued; the first one over it stops seeding.
func (c *Crawler) seed(items []*WorkItem) {
	for _, item := range items {
		if item.Label != LabelDetail {
			c.queue.Add(item, false)
			continue
		}
		if c.queue.AddIf(item, false, func() bool { return c.quota.SetEnqueued("") }) == Rejected {
			c.log.Warn("reached max crawled places, not enqueueing more start items")
			return
		}
	}
}

func (c *Crawler) work(ctx context.Context) error {
	for {
		item, ok := c.queue.Next(ctx)
		if !ok {
			return nil
		}
		err := c.handle(ctx, item)
		switch {
		case err == nil:
			c.stats.OK.Add(1)
			c.queue.Done(item)
		case ctx.Err() != nil:
			c.queue.Done(item)
			return nil
		case IsFatal(err):
			c.queue.Done(item)
			return eris.Wrapf(err, "handling %s", item.URL)
		default:
			c.fail(ctx, item, err)
		}
	}
}

// fail retries item until it has used up its retries, then records it as failed.
func (c *Crawler) fail(ctx context.Context, item *WorkItem, err error) {
	item.Errors = append(item.Errors, err.Error())
	if item.RetryCount < c.opts.MaxPageRetries {
		item.RetryCount++
		c.log.Warn("work item failed, retrying",
			zap.String("label", string(item.Label)),
			zap.String("url", item.URL),
			zap.Int("attempt", item.RetryCount),
			zap.Bool("retryable", IsRetryable(err)),
			zap.Error(err))
		c.queue.Retry(item)
		return
	}

	c.stats.Failed.Add(1)
	c.log.Error("work item failed too many times",
		zap.String("label", string(item.Label)),
		zap.String("url", item.URL),
		zap.Int("attempts", item.RetryCount+1),
		zap.Error(err))
	if perr := c.sink.PushFailed(ctx, c.opts.RunID, model.FailedRequest{URL: item.URL, Errors: item.Errors}); perr != nil {
		c.log.Error("storing failed request", zap.Error(perr))
	}
	c.queue.Done(item)
}

// handle opens a tab for item, gets past consent and captcha checks and
// dispatches to the search or detail session.
func (c *Crawler) handle(ctx context.Context, item *WorkItem) error {
	if item.Label == LabelSearch && !c.quota.CanEnqueueMore(item.SearchKey()) {
		return nil
	}

	page, err := c.browser.NewPage(ctx)
	if err != nil {
		return Retryable(err, "opening page")
	}
	defer page.Close()

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	navCtx, cancel := context.WithTimeout(ctx, c.opts.PageLoadTimeout)
	err = page.Navigate(navCtx, withLanguage(item.URL, c.opts.Language))
	cancel()
	if err != nil {
		return Retryable(err, "navigating to "+item.URL)
	}

	if err := c.acceptConsent(ctx, page); err != nil {
		return err
	}
	if err := checkCaptcha(ctx, page); err != nil {
		return err
	}

	switch item.Label {
	case LabelSearch:
		if err := c.search(ctx, page, item); err != nil {
			return err
		}
		c.stats.Maps.Add(1)
		c.log.Info("search finished", zap.String("search", item.SearchString), zap.String("url", item.URL))
		return nil
	case LabelDetail:
		return c.visitDetail(ctx, page, item)
	default:
		return eris.Errorf("unknown work item label %q", item.Label)
	}
}

func (c *Crawler) background(ctx context.Context, start time.Time, done <-chan struct{}) {
	persist := time.NewTicker(c.opts.PersistInterval)
	progress := time.NewTicker(c.opts.ProgressInterval)
	defer persist.Stop()
	defer progress.Stop()
	for {
		select {
		case <-persist.C:
			if err := c.Persist(ctx); err != nil {
				c.log.Error("persisting state", zap.Error(err))
			}
		case <-progress.C:
			c.logProgress(start)
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Crawler) logProgress(start time.Time) {
	s := c.stats.Snapshot()
	q := c.quota.Snapshot()
	c.log.Info("progress",
		zap.Int64("places", s.Places),
		zap.Int64("maps", s.Maps),
		zap.Int64("ok", s.OK),
		zap.Int64("failed", s.Failed),
		zap.Int64("out_of_polygon", s.OutOfPolygon),
		zap.Int("enqueued", q.EnqueuedTotal),
		zap.Int("scraped", q.ScrapedTotal),
		zap.Int("pending", c.queue.Len()),
		zap.Duration("elapsed", time.Since(start).Truncate(time.Second)))
}
