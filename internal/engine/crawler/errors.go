package crawler

import (
	"errors"

	"github.com/rotisserie/eris"

	"github.com/rendis/mapcrawl/internal/engine/browser"
	"github.com/rendis/mapcrawl/internal/engine/geo"
	"github.com/rendis/mapcrawl/internal/engine/storage"
)

var (
	ErrNoOutcome           = eris.New("search page content not recognized")
	ErrPageTimeout         = eris.New("page did not load in time")
	ErrCaptcha             = eris.New("got captcha on page")
	ErrInsufficientReviews = eris.New("served fewer reviews than expected")
)

// RetryableError marks a failure the host retries the whole work item for.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable wraps err with msg and marks it retryable. A nil err stays nil.
func Retryable(err error, msg string) error {
	if err == nil {
		return nil
	}
	if msg != "" {
		err = eris.Wrap(err, msg)
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is a RetryableError or a browser wait timeout.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}
	return errors.Is(err, browser.ErrTimeout)
}

// IsFatal reports whether err must stop the run instead of being retried.
func IsFatal(err error) bool {
	return errors.Is(err, storage.ErrCorruptState) ||
		errors.Is(err, geo.ErrMalformedGeometry) ||
		errors.Is(err, geo.ErrGridTooLarge)
}
