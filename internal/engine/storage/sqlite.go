package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/rendis/mapcrawl/internal/model"
)

// SQLiteStore keeps crawl state and output in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens (or creates) the database at dbPath and applies the schema.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}

	// Optimize for write throughput
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", p)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS state (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS places (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id        TEXT NOT NULL,
		place_id      TEXT NOT NULL,
		search_string TEXT NOT NULL DEFAULT '',
		rank          INTEGER,
		title         TEXT,
		total_score   REAL,
		reviews_count INTEGER,
		lat           REAL,
		lng           REAL,
		cid           TEXT,
		url           TEXT NOT NULL,
		data          TEXT NOT NULL,
		scraped_at    DATETIME NOT NULL,
		UNIQUE(place_id, search_string)
	);
	CREATE TABLE IF NOT EXISTS place_urls (
		place_id      TEXT PRIMARY KEY,
		run_id        TEXT NOT NULL,
		url           TEXT NOT NULL,
		search_string TEXT NOT NULL DEFAULT '',
		rank          INTEGER,
		created_at    DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS failed_requests (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id     TEXT NOT NULL,
		url        TEXT NOT NULL,
		errors     TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_places_search ON places(search_string);
	CREATE INDEX IF NOT EXISTS idx_places_coords ON places(lat, lng);
	CREATE INDEX IF NOT EXISTS idx_failed_run ON failed_requests(run_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return eris.Wrap(err, "sqlite: create schema")
	}
	return nil
}

// LoadState decodes the value stored under key into dst. It reports false
// when the key is absent.
func (s *SQLiteStore) LoadState(ctx context.Context, key string, dst any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: load state %s", key)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, eris.Wrapf(ErrCorruptState, "key %s: %v", key, err)
	}
	return true, nil
}

// SaveState stores v as JSON under key, replacing any previous value.
func (s *SQLiteStore) SaveState(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal state %s", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save state %s", key)
}

// PushPlace stores a scraped place. A place already stored for the same
// search string is ignored.
func (s *SQLiteStore) PushPlace(ctx context.Context, runID string, p *model.Place) (bool, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal place")
	}
	var lat, lng *float64
	if p.Location != nil {
		lat, lng = &p.Location.Lat, &p.Location.Lng
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO places
		(run_id, place_id, search_string, rank, title, total_score, reviews_count,
		 lat, lng, cid, url, data, scraped_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		runID, p.PlaceID, deref(p.SearchString), p.Rank, p.Title, p.TotalScore, p.ReviewsCount,
		lat, lng, p.CID, p.URL, string(data), p.ScrapedAt.UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert place %s", p.PlaceID)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// PushPlaceURL stores a place URL found in export mode.
func (s *SQLiteStore) PushPlaceURL(ctx context.Context, runID string, u model.PlaceURL) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO place_urls (place_id, run_id, url, search_string, rank, created_at)
		VALUES (?,?,?,?,?,?)`,
		u.PlaceID, runID, u.URL, deref(u.SearchString), u.Rank, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert place url %s", u.PlaceID)
}

// PushFailed stores a work item that exhausted its retries.
func (s *SQLiteStore) PushFailed(ctx context.Context, runID string, f model.FailedRequest) error {
	errs, err := json.Marshal(f.Errors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal errors")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO failed_requests (run_id, url, errors, created_at) VALUES (?,?,?,?)`,
		runID, f.URL, string(errs), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert failed request %s", f.URL)
}

// CountPlaces returns the number of stored places.
func (s *SQLiteStore) CountPlaces(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM places").Scan(&count)
	return count, eris.Wrap(err, "sqlite: count places")
}

// EachPlace calls fn for every stored place in insertion order.
func (s *SQLiteStore) EachPlace(ctx context.Context, fn func(*model.Place) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM places ORDER BY id`)
	if err != nil {
		return eris.Wrap(err, "sqlite: query places")
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return eris.Wrap(err, "sqlite: scan place")
		}
		var p model.Place
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return eris.Wrap(err, "sqlite: decode place")
		}
		if err := fn(&p); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "sqlite: iterate places")
}

// EachPlaceURL calls fn for every exported place URL in insertion order.
func (s *SQLiteStore) EachPlaceURL(ctx context.Context, fn func(model.PlaceURL) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT place_id, url, search_string, rank FROM place_urls ORDER BY created_at, rowid`)
	if err != nil {
		return eris.Wrap(err, "sqlite: query place urls")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			u      model.PlaceURL
			search string
		)
		if err := rows.Scan(&u.PlaceID, &u.URL, &search, &u.Rank); err != nil {
			return eris.Wrap(err, "sqlite: scan place url")
		}
		if search != "" {
			u.SearchString = &search
		}
		if err := fn(u); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "sqlite: iterate place urls")
}

// CountFailed returns the number of failed requests stored for runID.
func (s *SQLiteStore) CountFailed(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM failed_requests WHERE run_id = ?", runID).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count failed requests")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
