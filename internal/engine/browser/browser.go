// Package browser is the page automation layer the crawler drives.
package browser

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// ErrTimeout is returned when a wait exceeds its budget.
var ErrTimeout = eris.New("browser: wait timed out")

// Response is an intercepted network response.
type Response struct {
	URL  string
	Body []byte
}

// Page is one browser tab. Selectors may be CSS or XPath (starting with "//").
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Exists(ctx context.Context, selector string) (bool, error)
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	// Evaluate runs a JS expression, awaiting it when it yields a promise,
	// and decodes the result into out.
	Evaluate(ctx context.Context, expression string, out any) error
	// Responses streams responses whose URL satisfies match until stop is called.
	Responses(match func(url string) bool) (ch <-chan Response, stop func())
	Close() error
}

// Browser opens pages.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}
