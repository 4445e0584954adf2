package crawler

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rendis/mapcrawl/internal/engine/browser"
	"github.com/rendis/mapcrawl/internal/engine/decoder"
	"github.com/rendis/mapcrawl/internal/model"
)

// visitDetail waits for the place pane, decodes the embedded place state,
// enriches it from the pane and emits the place. Only the reviews step can
// fail the visit; the other extras degrade to empty fields.
func (c *Crawler) visitDetail(ctx context.Context, page browser.Page, item *WorkItem) error {
	if err := c.waitForLoader(ctx, page); err != nil {
		return err
	}

	// Links to the reviews sub-view land one level below the place.
	onSubView, err := page.Exists(ctx, backButtonSel)
	if err != nil {
		return err
	}
	if onSubView {
		if err := page.Click(ctx, backButtonSel); err != nil {
			return Retryable(err, "leaving reviews view")
		}
	}
	if err := page.WaitFor(ctx, placeTitleSel, c.opts.PageLoadTimeout); err != nil {
		return Retryable(ErrPageTimeout, "waiting for place title")
	}

	// The URL is rewritten to the /place/ form after the pane loads.
	var placeURL string
	err = c.poll(ctx, c.opts.OutcomeTimeout, func() (bool, error) {
		u, err := page.URL(ctx)
		placeURL = u
		return onSubView || strings.Contains(u, "/place/"), err
	})
	if err != nil {
		return Retryable(err, "waiting for place url")
	}

	var state string
	if err := page.Evaluate(ctx, appStateScript, &state); err != nil {
		c.log.Warn("reading place state", zap.String("url", placeURL), zap.Error(err))
	}
	data, err := decoder.ParseAppState(state)
	if err != nil {
		c.log.Warn("place state unavailable, using pane only", zap.String("url", placeURL), zap.Error(err))
	}

	place := decoder.DecodePlace(data)
	mergePageData(place, c.readPageData(ctx, page))
	c.applyProvenance(place, item, placeURL)

	opts := c.opts.Scraping
	if opts.IncludeHistogram {
		place.PopularTimes = decoder.DecodePopularTimes(data)
	}
	if opts.IncludeOpeningHours {
		place.OpeningHours = c.openingHours(ctx, page, data)
	}
	if opts.IncludePeopleAlsoSearch {
		place.PeopleAlsoSearch = c.peopleAlsoSearch(ctx, page)
	}
	if opts.AdditionalInfo {
		place.AdditionalInfo = c.additionalInfo(ctx, page, placeURL)
	}

	reviewsCount := 0
	if place.ReviewsCount != nil {
		reviewsCount = *place.ReviewsCount
	}
	target := min(reviewsCount, opts.MaxReviews)

	// Images before reviews: the reviews view is the last one opened.
	place.ImageURLs = c.extractImages(ctx, page, placeURL, target)
	reviews, err := c.extractReviews(ctx, page, item, data, target)
	if err != nil {
		return err
	}
	for i := range reviews {
		opts.PersonalData.Redact(&reviews[i])
	}
	place.Reviews = reviews

	return c.emitPlace(ctx, place, item)
}

// applyProvenance sets the fields that come from the work item rather than
// from the page.
func (c *Crawler) applyProvenance(p *model.Place, item *WorkItem, placeURL string) {
	if p.PlaceID == "" {
		p.PlaceID = item.UniqueKey
	}
	if cand := item.Candidate; cand != nil {
		if len(cand.Categories) > 0 {
			p.Categories = cand.Categories
		}
		p.IsAdvertisement = cand.IsAdvertisement
		if p.Location == nil {
			p.Location = cand.Coords
		}
	}
	if coords := CoordinatesFromURL(placeURL); coords != nil {
		p.Location = coords
	}
	if p.CategoryName == nil && len(p.Categories) > 0 {
		p.CategoryName = &p.Categories[0]
	}
	p.URL = placeURL
	p.SearchString = nonEmpty(item.SearchString)
	p.SearchPageURL = nonEmpty(item.SearchPageURL)
	p.Rank = item.Rank
	p.ScrapedAt = time.Now().UTC()
}

// emitPlace stores the place and counts it. Reaching the global scrape cap
// aborts the crawl; a search-level cap only ends that search's share.
func (c *Crawler) emitPlace(ctx context.Context, place *model.Place, item *WorkItem) error {
	stored, err := c.sink.PushPlace(ctx, c.opts.RunID, place)
	if err != nil {
		return Retryable(err, "storing place")
	}
	if !stored {
		c.log.Info("place already stored for this search", zap.String("place_id", place.PlaceID))
		return nil
	}

	c.stats.Places.Add(1)
	if c.opts.OnPlace != nil {
		c.opts.OnPlace(place)
	}
	c.log.Info("place scraped",
		zap.String("place_id", place.PlaceID),
		zap.String("title", deref(place.Title)),
		zap.Int("reviews", len(place.Reviews)))

	if !c.quota.SetScraped(item.SearchKey()) && !c.quota.CanScrapeMore("") {
		c.Abort("reached max crawled places")
	}
	return nil
}
