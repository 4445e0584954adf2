// Package cache keeps the last known location of places across runs.
package cache

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/rendis/mapcrawl/internal/engine/geo"
	"github.com/rendis/mapcrawl/internal/model"
)

// StateStore persists the cache between runs.
type StateStore interface {
	LoadState(ctx context.Context, key string, dst any) (bool, error)
	SaveState(ctx context.Context, key string, v any) error
}

// Entry is one cached place.
type Entry struct {
	Location model.Coordinates `json:"location"`
	Keywords []string          `json:"keywords"`
}

// UnmarshalJSON also accepts the older flat {"lat","lng"} form.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var probe struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Lat != nil && probe.Lng != nil {
		*e = Entry{Location: model.Coordinates{Lat: *probe.Lat, Lng: *probe.Lng}}
		return nil
	}
	type plain Entry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = Entry(p)
	return nil
}

// Places maps place ids to their location and the search strings that found them.
// A disabled cache ignores writes and answers every lookup with nothing.
type Places struct {
	enabled   bool
	useCached bool
	key       string

	mu     sync.RWMutex
	places map[string]Entry
}

// NewPlaces returns a cache. cacheKey namespaces the persisted entries.
func NewPlaces(enabled, useCached bool, cacheKey string) *Places {
	key := "places"
	if cacheKey != "" {
		key = "places-" + cacheKey
	}
	return &Places{
		enabled:   enabled,
		useCached: useCached,
		key:       key,
		places:    make(map[string]Entry),
	}
}

// Key is the state key the cache persists under.
func (p *Places) Key() string { return p.key }

// AddLocation records a place location found by keyword.
func (p *Places) AddLocation(placeID string, loc model.Coordinates, keyword string) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.places[placeID]
	if !ok {
		e = Entry{Location: loc}
	}
	e.Keywords = append(e.Keywords, keyword)
	p.places[placeID] = e
}

// Location returns the cached location of placeID, or nil.
func (p *Places) Location(placeID string) *model.Coordinates {
	if !p.enabled {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.places[placeID]
	if !ok {
		return nil
	}
	loc := e.Location
	return &loc
}

// Keywords returns the search strings that found placeID.
func (p *Places) Keywords(placeID string) []string {
	if !p.enabled {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.places[placeID].Keywords)
}

// PlacesInRegion lists cached places inside region that were found by any of
// keywords (or by none at all). A positive limit caps the result.
func (p *Places) PlacesInRegion(region *geo.Region, limit int, keywords []string) []string {
	if !p.enabled || !p.useCached {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	var ids []string
	for id, e := range p.places {
		loc := e.Location
		if !geo.Contains(region, &loc) {
			continue
		}
		if len(e.Keywords) > 0 && !slices.ContainsFunc(e.Keywords, func(k string) bool {
			return slices.Contains(keywords, k)
		}) {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

// Len is the number of cached places.
func (p *Places) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.places)
}

// Load reads the persisted entries. It is a no-op for a disabled cache.
func (p *Places) Load(ctx context.Context, store StateStore) error {
	if !p.enabled {
		return nil
	}
	loaded, err := p.read(ctx, store)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.places = loaded
	p.mu.Unlock()
	return nil
}

// Persist merges the in-memory entries over what is stored and saves the
// result, so concurrent runs sharing a key do not drop each other's places.
func (p *Places) Persist(ctx context.Context, store StateStore) error {
	if !p.enabled {
		return nil
	}
	merged, err := p.read(ctx, store)
	if err != nil {
		return err
	}
	p.mu.RLock()
	for id, e := range p.places {
		merged[id] = e
	}
	p.mu.RUnlock()

	if err := store.SaveState(ctx, p.key, merged); err != nil {
		return eris.Wrap(err, "persisting places cache")
	}
	return nil
}

func (p *Places) read(ctx context.Context, store StateStore) (map[string]Entry, error) {
	places := make(map[string]Entry)
	if _, err := store.LoadState(ctx, p.key, &places); err != nil {
		return nil, eris.Wrap(err, "loading places cache")
	}
	if places == nil {
		places = make(map[string]Entry)
	}
	return places, nil
}
