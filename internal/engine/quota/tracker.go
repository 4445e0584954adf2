// Package quota caps how many places are enqueued and scraped, both in total
// and per search key.
package quota

import (
	"context"
	"math"
	"sync"

	"github.com/rotisserie/eris"
)

// StateKey is the key the tracker state is persisted under.
const StateKey = "MAX_CRAWLED_PLACES_STATE"

// StateStore persists tracker state between runs.
type StateStore interface {
	LoadState(ctx context.Context, key string, dst any) (bool, error)
	SaveState(ctx context.Context, key string, v any) error
}

// State is the persisted form of a Tracker.
type State struct {
	EnqueuedTotal     int            `json:"enqueuedTotal"`
	EnqueuedPerSearch map[string]int `json:"enqueuedPerSearch"`
	ScrapedTotal      int            `json:"scrapedTotal"`
	ScrapedPerSearch  map[string]int `json:"scrapedPerSearch"`
}

// Tracker counts enqueued and scraped places. An empty key means "no
// search key" and only the global cap applies.
type Tracker struct {
	mu        sync.Mutex
	maxTotal  int
	maxPerKey int
	st        State
}

// NewTracker returns a tracker with the given caps. A non-positive maxTotal
// means unlimited; a non-positive maxPerKey falls back to maxTotal.
func NewTracker(maxTotal, maxPerKey int) *Tracker {
	if maxTotal <= 0 {
		maxTotal = math.MaxInt
	}
	if maxPerKey <= 0 {
		maxPerKey = maxTotal
	}
	return &Tracker{
		maxTotal:  maxTotal,
		maxPerKey: maxPerKey,
		st: State{
			EnqueuedPerSearch: make(map[string]int),
			ScrapedPerSearch:  make(map[string]int),
		},
	}
}

// CanEnqueueMore reports whether another place may be enqueued for key.
func (t *Tracker) CanEnqueueMore(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canEnqueueLocked(key)
}

// SetEnqueued records one enqueued place for key. It checks before
// incrementing: when a cap is already reached nothing changes and false is
// returned.
func (t *Tracker) SetEnqueued(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.canEnqueueLocked(key) {
		return false
	}
	t.st.EnqueuedTotal++
	if key != "" {
		t.st.EnqueuedPerSearch[key]++
	}
	return true
}

// CanScrapeMore reports whether another place may be scraped for key.
func (t *Tracker) CanScrapeMore(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canScrapeLocked(key)
}

// SetScraped records one scraped place for key. Unlike SetEnqueued it
// increments first and then checks, so the place that reaches a cap is
// counted and false signals that no further place may follow.
func (t *Tracker) SetScraped(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.ScrapedTotal++
	if key != "" {
		t.st.ScrapedPerSearch[key]++
	}
	return t.canScrapeLocked(key)
}

// Snapshot returns a copy of the current counters.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{
		EnqueuedTotal:     t.st.EnqueuedTotal,
		EnqueuedPerSearch: copyCounts(t.st.EnqueuedPerSearch),
		ScrapedTotal:      t.st.ScrapedTotal,
		ScrapedPerSearch:  copyCounts(t.st.ScrapedPerSearch),
	}
}

// Restore replaces the counters with s.
func (t *Tracker) Restore(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st = State{
		EnqueuedTotal:     s.EnqueuedTotal,
		EnqueuedPerSearch: copyCounts(s.EnqueuedPerSearch),
		ScrapedTotal:      s.ScrapedTotal,
		ScrapedPerSearch:  copyCounts(s.ScrapedPerSearch),
	}
}

// Load restores the counters from store. Missing state leaves the tracker untouched.
func (t *Tracker) Load(ctx context.Context, store StateStore) error {
	var s State
	ok, err := store.LoadState(ctx, StateKey, &s)
	if err != nil {
		return eris.Wrap(err, "loading quota state")
	}
	if ok {
		t.Restore(s)
	}
	return nil
}

// Persist saves the counters to store.
func (t *Tracker) Persist(ctx context.Context, store StateStore) error {
	if err := store.SaveState(ctx, StateKey, t.Snapshot()); err != nil {
		return eris.Wrap(err, "persisting quota state")
	}
	return nil
}

func (t *Tracker) canEnqueueLocked(key string) bool {
	if t.st.EnqueuedTotal >= t.maxTotal {
		return false
	}
	if key != "" && t.st.EnqueuedPerSearch[key] >= t.maxPerKey {
		return false
	}
	return true
}

func (t *Tracker) canScrapeLocked(key string) bool {
	if t.st.ScrapedTotal >= t.maxTotal {
		return false
	}
	if key != "" && t.st.ScrapedPerSearch[key] >= t.maxPerKey {
		return false
	}
	return true
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
