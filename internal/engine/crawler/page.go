package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rendis/mapcrawl/internal/engine/browser"
)

const (
	placeTitleSel       = `h1[class*="header-title-title"]`
	backButtonSel       = `button[aria-label="Back"]`
	anyBackButtonSel    = `button[jsaction*=back], button[aria-label="Back"]`
	nextButtonSel       = `[jsaction="pane.paginationSection.nextPage"]`
	nextDisabledSel     = nextButtonSel + `:disabled`
	badQuerySel         = `[class*="section-bad-query"]`
	noResultsXPath      = `//div[contains(text(), "No results found")]`
	searchBoxSel        = `#searchboxinput`
	searchButtonSel     = `#searchbox-searchbutton`
	searchBoxLoadingSel = `#searchbox.loading`
	paneLoadingSel      = `.loading-pane-section-loading`
	consentButtonSel    = `[action^="https://consent.google"] button`
	captchaSel          = `form#captcha-form`
	reviewsButtonSel    = `button[jsaction="pane.reviewChart.moreReviews"]`
	mainImageSel        = `[jsaction="pane.heroHeaderImage.click"]`
	attributesSel       = `button[jsaction*="pane.attributes.expand"]`

	searchBoxWait  = 15 * time.Second
	backButtonWait = 2 * time.Second
	backNavWait    = 10 * time.Second
)

// appStateScript returns the serialized detail page state, or "" when the
// page does not carry one.
const appStateScript = `(() => {
	try { return APP_INITIALIZATION_STATE[3][6] || ""; } catch (e) { return ""; }
})()`

// clickScript clicks the first element matching sel from page JS. Some
// controls ignore synthetic mouse events but react to element.click().
func clickScript(sel string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%q); if (el) el.click(); return !!el; })()`, sel)
}

// poll calls fn every interval until it reports done, the timeout elapses
// (browser.ErrTimeout) or ctx is cancelled.
func poll(ctx context.Context, interval, timeout time.Duration, fn func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		done, err := fn()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return browser.ErrTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Crawler) poll(ctx context.Context, timeout time.Duration, fn func() (bool, error)) error {
	return poll(ctx, c.opts.OutcomePollInterval, timeout, fn)
}

// waitGone waits until nothing matches sel.
func (c *Crawler) waitGone(ctx context.Context, page browser.Page, sel string, timeout time.Duration) error {
	return c.poll(ctx, timeout, func() (bool, error) {
		ok, err := page.Exists(ctx, sel)
		return !ok, err
	})
}

// waitForLoader waits until the map stops showing its loading indicators.
func (c *Crawler) waitForLoader(ctx context.Context, page browser.Page) error {
	for _, sel := range []string{searchBoxLoadingSel, paneLoadingSel} {
		if err := c.waitGone(ctx, page, sel, c.opts.PageLoadTimeout); err != nil {
			return Retryable(err, "waiting for map loader")
		}
	}
	return nil
}

// acceptConsent clicks through the cookie consent form when it is shown.
func (c *Crawler) acceptConsent(ctx context.Context, page browser.Page) error {
	shown, err := page.Exists(ctx, consentButtonSel)
	if err != nil || !shown {
		return err
	}
	c.log.Info("approving consent screen")
	if err := page.Click(ctx, consentButtonSel); err != nil {
		return Retryable(err, "clicking consent")
	}
	if err := c.waitGone(ctx, page, consentButtonSel, c.opts.PageLoadTimeout); err != nil {
		return Retryable(err, "waiting for consent screen to close")
	}
	return nil
}

func checkCaptcha(ctx context.Context, page browser.Page) error {
	found, err := page.Exists(ctx, captchaSel)
	if err != nil {
		return err
	}
	if found {
		return &RetryableError{Err: ErrCaptcha}
	}
	return nil
}

// navigateBack returns to the place detail pane after a sub-view (photos,
// amenities) was opened. As a last resort the place is reloaded.
func (c *Crawler) navigateBack(ctx context.Context, page browser.Page, placeURL string) error {
	onDetail, err := page.Exists(ctx, placeTitleSel)
	if err != nil {
		return err
	}
	if onDetail {
		return nil
	}

	err = c.poll(ctx, backButtonWait, func() (bool, error) {
		return page.Exists(ctx, anyBackButtonSel)
	})
	if err == nil {
		err = c.poll(ctx, backNavWait, func() (bool, error) {
			if ok, err := page.Exists(ctx, anyBackButtonSel); err == nil && ok {
				var clicked bool
				_ = page.Evaluate(ctx, clickScript(anyBackButtonSel), &clicked)
			}
			return page.Exists(ctx, placeTitleSel)
		})
	}
	if err == nil || ctx.Err() != nil {
		return err
	}

	c.log.Warn("back navigation failed, reloading place", zap.String("url", placeURL), zap.Error(err))
	if err := page.Navigate(ctx, placeURL); err != nil {
		return Retryable(err, "reloading place to navigate back")
	}
	if err := page.WaitFor(ctx, placeTitleSel, c.opts.PageLoadTimeout); err != nil {
		return Retryable(err, "reloading place to navigate back")
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
