package crawler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"

	"github.com/rendis/mapcrawl/internal/model"
)

const (
	statsKey             = "STATS"
	outOfPolygonKey      = "PLACES-OUT-OF-POLYGON"
	outOfPolygonBatchLen = 10000
)

// Stats are the run counters. They survive restarts through the state store.
type Stats struct {
	Failed             atomic.Int64
	OK                 atomic.Int64
	OutOfPolygon       atomic.Int64
	OutOfPolygonCached atomic.Int64
	Places             atomic.Int64
	Maps               atomic.Int64

	mu           sync.Mutex
	outOfPolygon []model.PlaceOutOfRegion
}

// StatsSnapshot is the persisted form of Stats.
type StatsSnapshot struct {
	Failed             int64 `json:"failed"`
	OK                 int64 `json:"ok"`
	OutOfPolygon       int64 `json:"outOfPolygon"`
	OutOfPolygonCached int64 `json:"outOfPolygonCached"`
	Places             int64 `json:"places"`
	Maps               int64 `json:"maps"`
}

// AddOutOfPolygon records a candidate dropped by the region filter.
func (s *Stats) AddOutOfPolygon(p model.PlaceOutOfRegion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outOfPolygon = append(s.outOfPolygon, p)
}

// OutOfPolygonPlaces returns the recorded out-of-region candidates.
func (s *Stats) OutOfPolygonPlaces() []model.PlaceOutOfRegion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PlaceOutOfRegion, len(s.outOfPolygon))
	copy(out, s.outOfPolygon)
	return out
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Failed:             s.Failed.Load(),
		OK:                 s.OK.Load(),
		OutOfPolygon:       s.OutOfPolygon.Load(),
		OutOfPolygonCached: s.OutOfPolygonCached.Load(),
		Places:             s.Places.Load(),
		Maps:               s.Maps.Load(),
	}
}

// Load restores counters and out-of-region places saved by Persist.
func (s *Stats) Load(ctx context.Context, store StateStore) error {
	var snap StatsSnapshot
	ok, err := store.LoadState(ctx, statsKey, &snap)
	if err != nil {
		return eris.Wrap(err, "loading stats")
	}
	if ok {
		s.Failed.Store(snap.Failed)
		s.OK.Store(snap.OK)
		s.OutOfPolygon.Store(snap.OutOfPolygon)
		s.OutOfPolygonCached.Store(snap.OutOfPolygonCached)
		s.Places.Store(snap.Places)
		s.Maps.Store(snap.Maps)
	}

	var loaded []model.PlaceOutOfRegion
	for n := 0; ; n++ {
		var batch []model.PlaceOutOfRegion
		ok, err := store.LoadState(ctx, batchKey(n), &batch)
		if err != nil {
			return eris.Wrapf(err, "loading out-of-polygon batch %d", n)
		}
		if !ok {
			break
		}
		loaded = append(loaded, batch...)
	}
	s.mu.Lock()
	s.outOfPolygon = append(loaded, s.outOfPolygon...)
	s.mu.Unlock()
	return nil
}

// Persist saves the counters and the out-of-region places in batches.
func (s *Stats) Persist(ctx context.Context, store StateStore) error {
	if err := store.SaveState(ctx, statsKey, s.Snapshot()); err != nil {
		return eris.Wrap(err, "persisting stats")
	}
	places := s.OutOfPolygonPlaces()
	for i := 0; i < len(places); i += outOfPolygonBatchLen {
		end := min(i+outOfPolygonBatchLen, len(places))
		if err := store.SaveState(ctx, batchKey(i/outOfPolygonBatchLen), places[i:end]); err != nil {
			return eris.Wrap(err, "persisting out-of-polygon places")
		}
	}
	return nil
}

func batchKey(n int) string {
	return fmt.Sprintf("%s-%d", outOfPolygonKey, n)
}
