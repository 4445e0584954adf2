package quota

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) LoadState(_ context.Context, key string, dst any) (bool, error) {
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
	m.data[key] = raw
	return nil
}

func TestSetEnqueued_ChecksBeforeIncrement(t *testing.T) {
	tr := NewTracker(2, 0)

	assert.True(t, tr.SetEnqueued("pizza"))
	assert.True(t, tr.SetEnqueued("pizza"))
	assert.False(t, tr.SetEnqueued("pizza"))
	assert.False(t, tr.CanEnqueueMore(""))
	assert.Equal(t, 2, tr.Snapshot().EnqueuedTotal)
}

func TestSetScraped_IncrementsBeforeCheck(t *testing.T) {
	tr := NewTracker(2, 0)

	assert.True(t, tr.SetScraped(""))
	assert.False(t, tr.SetScraped(""), "the place reaching the cap reports exhaustion")
	assert.False(t, tr.CanScrapeMore(""))
	assert.Equal(t, 2, tr.Snapshot().ScrapedTotal)
}

func TestPerKeyCap(t *testing.T) {
	tr := NewTracker(10, 2)

	assert.True(t, tr.SetEnqueued("a"))
	assert.True(t, tr.SetEnqueued("a"))
	assert.False(t, tr.SetEnqueued("a"))
	assert.True(t, tr.SetEnqueued("b"))
	assert.True(t, tr.CanEnqueueMore(""))

	st := tr.Snapshot()
	assert.Equal(t, 3, st.EnqueuedTotal)
	assert.Equal(t, 2, st.EnqueuedPerSearch["a"])
	assert.Equal(t, 1, st.EnqueuedPerSearch["b"])
}

func TestUnlimited(t *testing.T) {
	tr := NewTracker(0, 0)
	for i := 0; i < 1000; i++ {
		require.True(t, tr.SetEnqueued("k"))
	}
	assert.True(t, tr.CanScrapeMore("k"))
}

func TestSetEnqueued_ConcurrentCallersNeverExceedCap(t *testing.T) {
	tr := NewTracker(50, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.SetEnqueued("k") {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, granted)
	assert.Equal(t, 50, tr.Snapshot().EnqueuedTotal)
}

func TestPersistAndLoad(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	tr := NewTracker(5, 3)
	tr.SetEnqueued("a")
	tr.SetScraped("a")
	require.NoError(t, tr.Persist(ctx, store))

	restored := NewTracker(5, 3)
	require.NoError(t, restored.Load(ctx, store))
	assert.Equal(t, tr.Snapshot(), restored.Snapshot())

	empty := NewTracker(5, 3)
	require.NoError(t, empty.Load(ctx, newMemStore()))
	assert.Equal(t, 0, empty.Snapshot().EnqueuedTotal)
}
