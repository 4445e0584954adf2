package crawler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rendis/mapcrawl/internal/engine/browser"
	"github.com/rendis/mapcrawl/internal/model"
)

// fakePage is a scriptable browser tab. Selectors present in exists match;
// click hooks and the evaluate function drive page changes.
type fakePage struct {
	mu         sync.Mutex
	url        string
	exists     map[string]bool
	onClick    map[string]func(p *fakePage)
	onNavigate func(p *fakePage, url string)
	evaluate   func(p *fakePage, expr string) (any, bool)
	subs       map[int]*fakeSub
	nextSub    int
	visited    []string
	typed      []string
	closed     bool
}

type fakeSub struct {
	match func(string) bool
	ch    chan browser.Response
}

func newFakePage(url string) *fakePage {
	return &fakePage{
		url:     url,
		exists:  make(map[string]bool),
		onClick: make(map[string]func(p *fakePage)),
		subs:    make(map[int]*fakeSub),
	}
}

func (p *fakePage) set(sel string, present bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exists[sel] = present
}

func (p *fakePage) setURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = u
}

// emit delivers a response to every matching subscription.
func (p *fakePage) emit(resp browser.Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.subs {
		if s.match(resp.URL) {
			s.ch <- resp
		}
	}
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	p.visited = append(p.visited, url)
	p.url = url
	fn := p.onNavigate
	p.mu.Unlock()
	if fn != nil {
		fn(p, url)
	}
	return nil
}

func (p *fakePage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) Exists(_ context.Context, sel string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exists[sel], nil
}

func (p *fakePage) WaitFor(ctx context.Context, sel string, timeout time.Duration) error {
	return poll(ctx, time.Millisecond, min(timeout, 50*time.Millisecond), func() (bool, error) {
		return p.Exists(ctx, sel)
	})
}

func (p *fakePage) Click(_ context.Context, sel string) error {
	p.mu.Lock()
	fn := p.onClick[sel]
	p.mu.Unlock()
	if fn != nil {
		fn(p)
	}
	return nil
}

func (p *fakePage) Type(_ context.Context, _ string, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed = append(p.typed, text)
	return nil
}

func (p *fakePage) Evaluate(_ context.Context, expr string, out any) error {
	if p.evaluate == nil {
		return nil
	}
	v, ok := p.evaluate(p, expr)
	if !ok {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (p *fakePage) Responses(match func(string) bool) (<-chan browser.Response, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	s := &fakeSub{match: match, ch: make(chan browser.Response, 64)}
	p.subs[id] = s
	return s.ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// fakeBrowser hands out pages built by newPage.
type fakeBrowser struct {
	newPage func() *fakePage

	mu     sync.Mutex
	opened []*fakePage
}

func (b *fakeBrowser) NewPage(context.Context) (browser.Page, error) {
	p := b.newPage()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = append(b.opened, p)
	return p, nil
}

func (b *fakeBrowser) Close() error { return nil }

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) LoadState(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (m *memStore) SaveState(_ context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

type memSink struct {
	mu     sync.Mutex
	places []*model.Place
	urls   []model.PlaceURL
	failed []model.FailedRequest
	seen   map[string]bool
}

func newMemSink() *memSink {
	return &memSink{seen: make(map[string]bool)}
}

func (s *memSink) PushPlace(_ context.Context, _ string, p *model.Place) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := p.PlaceID + "|" + deref(p.SearchString)
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	s.places = append(s.places, p)
	return true, nil
}

func (s *memSink) PushPlaceURL(_ context.Context, _ string, u model.PlaceURL) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, u)
	return nil
}

func (s *memSink) PushFailed(_ context.Context, _ string, f model.FailedRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, f)
	return nil
}

func testOptions() Options {
	return Options{
		RunID:               "test-run",
		PageLoadTimeout:     50 * time.Millisecond,
		OutcomeTimeout:      50 * time.Millisecond,
		OutcomePollInterval: time.Millisecond,
		ReviewButtonTimeout: 50 * time.Millisecond,
	}
}

// placeArray builds a positional place array with the given fields set.
func placeArray(fields map[int]any) []any {
	place := make([]any, 204)
	for i, v := range fields {
		place[i] = v
	}
	return place
}

func candidatePlace(id string, lat, lng float64) []any {
	return placeArray(map[int]any{
		78: id,
		9:  []any{nil, nil, lat, lng},
		11: "Place " + id,
		13: []any{"Pizza restaurant"},
	})
}

// searchBody serializes places the way a search data page carries them.
func searchBody(t *testing.T, places ...[]any) []byte {
	t.Helper()
	results := []any{[]any{"metadata"}}
	for _, p := range places {
		entry := make([]any, 15)
		entry[14] = p
		results = append(results, entry)
	}
	inner, err := json.Marshal([]any{[]any{"query", results}})
	require.NoError(t, err)
	envelope, err := json.Marshal(map[string]any{"d": ")]}'\n" + string(inner)})
	require.NoError(t, err)
	return envelope
}

// appState serializes a place into the detail page state string.
func appState(t *testing.T, place []any) string {
	t.Helper()
	state := make([]any, 7)
	state[6] = place
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	return ")]}'\n" + string(raw)
}
