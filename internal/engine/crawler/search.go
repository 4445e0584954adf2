package crawler

import (
	"context"

	"go.uber.org/zap"

	"github.com/rendis/mapcrawl/internal/engine/browser"
	"github.com/rendis/mapcrawl/internal/engine/decoder"
	"github.com/rendis/mapcrawl/internal/engine/geo"
	"github.com/rendis/mapcrawl/internal/model"
)

// searchSession is the state of one paginated search.
type searchSession struct {
	item       *WorkItem
	key        string
	emptyPages int
	// stop is set when a data page hit a quota and the search must end.
	stop bool
}

// search types the search string, then pages through the results until an
// outcome ends the search. Candidates come from the intercepted data
// responses, not from the DOM.
func (c *Crawler) search(ctx context.Context, page browser.Page, item *WorkItem) error {
	responses, stopResponses := page.Responses(IsSearchDataURL)
	defer stopResponses()

	s := &searchSession{item: item, key: item.SearchKey()}
	log := c.log.With(zap.String("search", item.SearchString), zap.String("url", item.URL))

	drain := func() {
		for {
			select {
			case resp := <-responses:
				c.handleSearchResponse(ctx, page, s, resp)
			default:
				return
			}
		}
	}

	if item.SearchString != "" {
		if err := page.WaitFor(ctx, searchBoxSel, searchBoxWait); err != nil {
			return Retryable(err, "waiting for search box")
		}
		if err := page.Type(ctx, searchBoxSel, item.SearchString); err != nil {
			return Retryable(err, "typing search")
		}
	}
	if err := page.Click(ctx, searchButtonSel); err != nil {
		return Retryable(err, "clicking search")
	}
	if err := c.waitForLoader(ctx, page); err != nil {
		return err
	}

	startURL, err := page.URL(ctx)
	if err != nil {
		return Retryable(err, "reading search url")
	}
	startZoom, hasZoom := ParseZoomFromURL(startURL)

	for {
		drain()
		if s.stop || c.queue.Aborted() {
			return nil
		}
		if s.emptyPages >= c.opts.MaxEmptyPages {
			log.Info("finishing search, too many data pages without new places", zap.Int("empty_pages", s.emptyPages))
			return nil
		}

		outcome, err := c.waitForOutcome(ctx, page, drain)
		if err != nil {
			return err
		}
		if outcome == NoOutcome {
			return Retryable(ErrNoOutcome, item.SearchString)
		}
		if outcome.Terminal() {
			drain()
			log.Info("finishing search", zap.Stringer("outcome", outcome))
			return nil
		}

		if !c.quota.CanEnqueueMore(s.key) {
			return nil
		}
		if c.zoomedOutTooFar(ctx, page, startZoom, hasZoom) {
			log.Info("finishing search, map zoomed out past the limit")
			return nil
		}

		var clicked bool
		if err := page.Evaluate(ctx, clickScript(nextButtonSel), &clicked); err != nil {
			return Retryable(err, "clicking next page")
		}
		if err := c.waitForLoader(ctx, page); err != nil {
			return err
		}
	}
}

func (c *Crawler) zoomedOutTooFar(ctx context.Context, page browser.Page, startZoom float64, hasZoom bool) bool {
	if c.opts.MaxAutomaticZoomOut == nil || !hasZoom {
		return false
	}
	u, err := page.URL(ctx)
	if err != nil {
		return false
	}
	zoom, ok := ParseZoomFromURL(u)
	if !ok {
		return false
	}
	return startZoom-zoom > *c.opts.MaxAutomaticZoomOut
}

// handleSearchResponse decodes one data page and routes every candidate
// through the region filter and the quotas. A page that yields nothing new
// counts towards the empty page limit.
func (c *Crawler) handleSearchResponse(ctx context.Context, page browser.Page, s *searchSession, resp browser.Response) {
	candidates, err := decoder.ParseSearchResponse(resp.Body)
	if err != nil {
		c.log.Debug("skipping undecodable search response", zap.String("url", resp.URL), zap.Error(err))
		return
	}
	if c.opts.OnCandidates != nil {
		c.opts.OnCandidates(candidates)
	}

	pageNum := pageNumber(resp.URL)
	searchPageURL, _ := page.URL(ctx)
	added := c.routeCandidates(ctx, s, candidates, pageNum, searchPageURL)

	if added == 0 {
		s.emptyPages++
	} else {
		s.emptyPages = 0
	}
	c.log.Debug("search data page handled",
		zap.String("search", s.item.SearchString),
		zap.Int("page", pageNum),
		zap.Int("candidates", len(candidates)),
		zap.Int("added", added))
}

func (c *Crawler) routeCandidates(ctx context.Context, s *searchSession, candidates []model.Candidate, pageNum int, searchPageURL string) int {
	item := s.item
	added := 0
	for i := range candidates {
		cand := candidates[i]
		rank := (pageNum-1)*resultsPerPage + i + 1
		placeURL := PlaceSearchURL(item.SearchString, cand.PlaceID)

		coords := cand.Coords
		if coords == nil {
			coords = c.places.Location(cand.PlaceID)
		}
		if coords != nil {
			c.places.AddLocation(cand.PlaceID, *coords, item.SearchString)
		}

		if !geo.Contains(c.region, coords) {
			c.stats.OutOfPolygonCached.Add(1)
			c.stats.OutOfPolygon.Add(1)
			c.stats.AddOutOfPolygon(model.PlaceOutOfRegion{
				URL:          placeURL,
				SearchPage:   searchPageURL,
				SearchString: item.SearchString,
				Location:     coords,
			})
			continue
		}

		if c.opts.ExportPlaceURLs {
			if !c.quota.CanScrapeMore("") {
				s.stop = true
				return added
			}
			more := c.quota.SetScraped("")
			if !c.dedup.TestAndAdd(cand.PlaceID) {
				out := model.PlaceURL{PlaceID: cand.PlaceID, URL: placeURL, Rank: rank}
				if item.SearchString != "" {
					out.SearchString = &item.SearchString
				}
				if err := c.sink.PushPlaceURL(ctx, c.opts.RunID, out); err != nil {
					c.log.Error("storing place url", zap.String("url", placeURL), zap.Error(err))
				} else {
					added++
				}
			}
			if !more {
				c.Abort("reached max crawled places")
				s.stop = true
				return added
			}
			continue
		}

		detail := &WorkItem{
			URL:           placeURL,
			UniqueKey:     cand.PlaceID,
			Label:         LabelDetail,
			SearchString:  item.SearchString,
			Rank:          &rank,
			SearchPageURL: searchPageURL,
			Candidate:     &cand,
		}
		res := c.queue.AddIf(detail, true, func() bool { return c.quota.SetEnqueued(s.key) })
		if res == Rejected {
			c.log.Info("search reached max crawled places", zap.String("search", item.SearchString))
			break
		}
		if res == Added {
			added++
		}
	}
	return added
}
