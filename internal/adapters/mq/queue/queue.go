// Package queue holds enrichment work items waiting for a batch.
//
// Items are ordered by priority (visible before hidden) and then by arrival,
// so equal-priority items keep the order they were enqueued in.
package queue

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/milepost/internal/domain/model"
	"github.com/okian/milepost/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10000
)

// Queue is a priority queue of work items keyed by itinerary id.
type Queue interface {
	// Push adds item. It fails with ErrDuplicate when the id is queued.
	Push(ctx context.Context, item model.WorkItem) error
	// PopBatch removes and returns up to n items from the front.
	PopBatch(ctx context.Context, n int) []model.WorkItem
	// Reprioritize recomputes priorities from the visible set and returns how
	// many items changed. The order is rebuilt only when something changed.
	Reprioritize(ctx context.Context, visible map[string]bool) int
	// Contains reports whether id is queued.
	Contains(id string) bool
	// Len returns the number of queued items.
	Len(ctx context.Context) int
	// Clear drops every item.
	Clear()
	// Snapshot returns the queued items in dispatch order.
	Snapshot() []model.WorkItem
	Close() error
	IsClosed() bool
}

// PriorityQueue implements Queue with a slice kept sorted by
// (priority, sequence).
type PriorityQueue struct {
	mu       sync.Mutex
	items    []model.WorkItem
	ids      map[string]struct{}
	seq      uint64
	capacity int
	closed   bool
}

// NewPriorityQueue creates an empty queue.
func NewPriorityQueue(opts ...Option) *PriorityQueue {
	q := &PriorityQueue{
		ids:      make(map[string]struct{}),
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	metrics.UpdateQueueDepth(0)
	return q
}

func before(a, b model.WorkItem) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Seq < b.Seq
}

func (q *PriorityQueue) Push(_ context.Context, item model.WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch {
	case q.closed:
		return ErrClosed
	case len(q.items) >= q.capacity:
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return ErrFull
	}
	if _, ok := q.ids[item.ID]; ok {
		return ErrDuplicate
	}

	q.seq++
	item.Seq = q.seq
	i := sort.Search(len(q.items), func(i int) bool { return before(item, q.items[i]) })
	q.items = append(q.items, model.WorkItem{})
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = item
	q.ids[item.ID] = struct{}{}

	metrics.UpdateQueueDepth(len(q.items))
	return nil
}

func (q *PriorityQueue) PopBatch(_ context.Context, n int) []model.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.items) == 0 {
		return nil
	}
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := make([]model.WorkItem, n)
	copy(batch, q.items[:n])
	q.items = append(q.items[:0], q.items[n:]...)
	for _, it := range batch {
		delete(q.ids, it.ID)
	}

	metrics.UpdateQueueDepth(len(q.items))
	return batch
}

func (q *PriorityQueue) Reprioritize(_ context.Context, visible map[string]bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	changed := 0
	for i := range q.items {
		v := visible[q.items[i].ID]
		p := model.PriorityFor(v)
		q.items[i].Visible = v
		if q.items[i].Priority != p {
			q.items[i].Priority = p
			changed++
		}
	}
	if changed > 0 {
		sort.Slice(q.items, func(i, j int) bool { return before(q.items[i], q.items[j]) })
	}
	return changed
}

func (q *PriorityQueue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.ids[id]
	return ok
}

func (q *PriorityQueue) Len(_ context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *PriorityQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.ids = make(map[string]struct{})
	metrics.UpdateQueueDepth(0)
}

func (q *PriorityQueue) Snapshot() []model.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.WorkItem, len(q.items))
	copy(out, q.items)
	return out
}

// Close rejects further pushes. Queued items stay poppable.
func (q *PriorityQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

func (q *PriorityQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
