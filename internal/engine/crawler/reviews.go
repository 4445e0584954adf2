package crawler

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/rendis/mapcrawl/internal/engine/browser"
	"github.com/rendis/mapcrawl/internal/engine/decoder"
	"github.com/rendis/mapcrawl/internal/model"
)

// insufficientReviewsRetries is how many attempts may fail on a short
// reviews feed before the place is emitted with what it has. The host's
// MaxPageRetries lowers it further.
const insufficientReviewsRetries = 2

// ReviewFetcher loads one page of the reviews feed.
type ReviewFetcher interface {
	FetchReviews(ctx context.Context, page browser.Page, url string) ([]byte, error)
}

// PageReviewFetcher requests the feed from inside the page, so it goes out
// with the browser's cookies and proxy.
type PageReviewFetcher struct{}

func (PageReviewFetcher) FetchReviews(ctx context.Context, page browser.Page, url string) ([]byte, error) {
	var body string
	script := fmt.Sprintf(`fetch(%q).then((r) => r.text())`, url)
	if err := page.Evaluate(ctx, script, &body); err != nil {
		return nil, err
	}
	return []byte(body), nil
}

// Getter is an HTTP client.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// HTTPReviewFetcher requests the feed outside the browser.
type HTTPReviewFetcher struct {
	Client Getter
}

func (f HTTPReviewFetcher) FetchReviews(ctx context.Context, _ browser.Page, url string) ([]byte, error) {
	return f.Client.Get(ctx, url)
}

// extractReviews collects up to target reviews. The reviews embedded in
// the page are used when they are enough; otherwise the feed is paged
// through with the requested sort order.
func (c *Crawler) extractReviews(ctx context.Context, page browser.Page, item *WorkItem, place []any, target int) ([]model.Review, error) {
	if target <= 0 {
		return nil, nil
	}
	opts := c.opts.Scraping

	if embedded := decoder.DefaultReviews(place); len(embedded) >= target {
		reviews := decoder.DecodeReviews(embedded, opts.ReviewsTranslation)
		sortReviews(reviews, opts.ReviewsSort)
		return reviews[:target], nil
	}

	feed, stop := page.Responses(decoder.IsReviewsFeedURL)
	defer stop()

	if err := page.WaitFor(ctx, reviewsButtonSel, c.opts.ReviewButtonTimeout); err != nil {
		return nil, Retryable(err, "reviews button did not load in time")
	}
	if err := page.Click(ctx, reviewsButtonSel); err != nil {
		return nil, Retryable(err, "clicking reviews button")
	}

	var feedURL string
	timer := time.NewTimer(c.opts.ReviewButtonTimeout)
	defer timer.Stop()
	select {
	case resp := <-feed:
		feedURL = resp.URL
	case <-timer.C:
		return nil, Retryable(browser.ErrTimeout, "no reviews response after clicking reviews button")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	reviews := c.pageReviews(ctx, page, decoder.ReviewsFeedURL(feedURL, opts.ReviewsSort), target)
	if len(reviews) < target {
		if item.RetryCount < min(insufficientReviewsRetries, c.opts.MaxPageRetries) {
			return nil, Retryable(ErrInsufficientReviews, fmt.Sprintf("%d/%d reviews", len(reviews), target))
		}
		c.log.Warn("emitting place with fewer reviews than expected",
			zap.String("url", item.URL),
			zap.Int("reviews", len(reviews)),
			zap.Int("expected", target))
	}
	return reviews, nil
}

// pageReviews walks the feed from feedURL until target reviews are
// collected, a page comes back empty or a page cannot be read.
func (c *Crawler) pageReviews(ctx context.Context, page browser.Page, feedURL string, target int) []model.Review {
	var reviews []model.Review
	for len(reviews) < target {
		body, err := c.reviews.FetchReviews(ctx, page, feedURL)
		if err != nil {
			c.log.Warn("fetching reviews page", zap.String("url", feedURL), zap.Error(err))
			break
		}
		batch, err := decoder.ParseReviewsResponse(body, c.opts.Scraping.ReviewsTranslation)
		if err != nil {
			c.log.Warn("invalid reviews page, the review count may have changed", zap.String("url", feedURL), zap.Error(err))
			break
		}
		if len(batch) == 0 {
			break
		}
		reviews = append(reviews, batch...)
		if len(reviews) > target {
			reviews = reviews[:target]
		}
		feedURL = decoder.NextReviewsFeedURL(feedURL)
	}
	return reviews
}

// sortReviews orders embedded reviews the way the feed would. Most relevant
// is the embedded order.
func sortReviews(reviews []model.Review, sort model.ReviewsSort) {
	switch sort {
	case model.SortNewest:
		slices.SortStableFunc(reviews, func(a, b model.Review) int {
			return compareTime(b.PublishedAtDate, a.PublishedAtDate)
		})
	case model.SortHighestRanking:
		slices.SortStableFunc(reviews, func(a, b model.Review) int {
			return stars(b) - stars(a)
		})
	case model.SortLowestRanking:
		slices.SortStableFunc(reviews, func(a, b model.Review) int {
			return stars(a) - stars(b)
		})
	}
}

func compareTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}

func stars(r model.Review) int {
	if r.Stars == nil {
		return 0
	}
	return *r.Stars
}
