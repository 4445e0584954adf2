package crawler

import (
	"context"
	"time"

	"github.com/rendis/mapcrawl/internal/engine/browser"
)

// Outcome is what a loaded search page turned out to be.
type Outcome int

const (
	NoOutcome Outcome = iota
	BadQuery
	NoResults
	DirectDetailPage
	NextDisabled
	HasNextPage
)

func (o Outcome) String() string {
	switch o {
	case BadQuery:
		return "bad query"
	case NoResults:
		return "no results"
	case DirectDetailPage:
		return "direct detail page"
	case NextDisabled:
		return "next page disabled"
	case HasNextPage:
		return "has next page"
	default:
		return "no outcome"
	}
}

// Terminal reports whether the outcome ends the search.
func (o Outcome) Terminal() bool {
	return o != HasNextPage
}

// outcomeChecks are tried in order; the first match wins. The next button is
// still present when disabled, so the disabled check must come first.
var outcomeChecks = []struct {
	sel     string
	outcome Outcome
}{
	{badQuerySel, BadQuery},
	{noResultsXPath, NoResults},
	{placeTitleSel, DirectDetailPage},
	{nextDisabledSel, NextDisabled},
	{nextButtonSel, HasNextPage},
}

func classify(ctx context.Context, page browser.Page) (Outcome, error) {
	for _, check := range outcomeChecks {
		found, err := page.Exists(ctx, check.sel)
		if err != nil {
			return NoOutcome, err
		}
		if found {
			return check.outcome, nil
		}
	}
	return NoOutcome, nil
}

// waitForOutcome polls the page until it classifies or the outcome budget
// runs out, in which case NoOutcome is returned without error. tick runs
// before every classification attempt.
func (c *Crawler) waitForOutcome(ctx context.Context, page browser.Page, tick func()) (Outcome, error) {
	deadline := time.Now().Add(c.opts.OutcomeTimeout)
	t := time.NewTicker(c.opts.OutcomePollInterval)
	defer t.Stop()
	for {
		tick()
		o, err := classify(ctx, page)
		if err != nil || o != NoOutcome {
			return o, err
		}
		if time.Now().After(deadline) {
			return NoOutcome, nil
		}
		select {
		case <-ctx.Done():
			return NoOutcome, ctx.Err()
		case <-t.C:
		}
	}
}
