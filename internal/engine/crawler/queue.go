package crawler

import (
	"context"
	"sync"
)

// AddResult is the outcome of adding a work item to the queue.
type AddResult int

const (
	Added AddResult = iota
	AlreadyQueued
	Rejected
)

// Queue is the in-memory work queue. Items are unique by key for the life of
// the queue, so a place found by several searches is visited once.
type Queue struct {
	mu       sync.Mutex
	pending  []*WorkItem
	seen     map[string]struct{}
	inFlight int
	handled  int
	aborted  bool
	changed  chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{
		seen:    make(map[string]struct{}),
		changed: make(chan struct{}),
	}
}

// Add queues item at the back, or at the front when forefront is set.
func (q *Queue) Add(item *WorkItem, forefront bool) AddResult {
	return q.AddIf(item, forefront, nil)
}

// AddIf is Add with a gate that runs under the queue lock after the
// duplicate check. A gate returning false rejects the item. The gate is how
// quota accounting happens atomically with the enqueue: it is never
// consulted for items already queued.
func (q *Queue) AddIf(item *WorkItem, forefront bool, gate func() bool) AddResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	k := item.key()
	if _, ok := q.seen[k]; ok {
		return AlreadyQueued
	}
	if gate != nil && !gate() {
		return Rejected
	}
	q.seen[k] = struct{}{}
	if forefront {
		q.pending = append([]*WorkItem{item}, q.pending...)
	} else {
		q.pending = append(q.pending, item)
	}
	q.notifyLocked()
	return Added
}

// Next blocks until an item is available. It returns false once the queue is
// drained (nothing pending and nothing in flight), aborted, or ctx is done.
func (q *Queue) Next(ctx context.Context) (*WorkItem, bool) {
	for {
		q.mu.Lock()
		if q.aborted {
			q.mu.Unlock()
			return nil, false
		}
		if len(q.pending) > 0 {
			item := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.inFlight++
			q.mu.Unlock()
			return item, true
		}
		if q.inFlight == 0 {
			q.mu.Unlock()
			return nil, false
		}
		ch := q.changed
		q.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// Done marks an item returned by Next as finished.
func (q *Queue) Done(*WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight--
	q.handled++
	q.notifyLocked()
}

// Retry puts an item returned by Next back at the end of the queue.
func (q *Queue) Retry(item *WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight--
	q.pending = append(q.pending, item)
	q.notifyLocked()
}

// Abort stops handing out items. In-flight items are left to finish.
func (q *Queue) Abort() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.aborted = true
	q.notifyLocked()
}

// Aborted reports whether Abort was called.
func (q *Queue) Aborted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.aborted
}

// Pending returns a copy of the items waiting to be handed out.
func (q *Queue) Pending() []*WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*WorkItem, len(q.pending))
	copy(out, q.pending)
	return out
}

// Len is the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Handled is the number of items finished for good.
func (q *Queue) Handled() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.handled
}

func (q *Queue) notifyLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}
