package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/okian/milepost/internal/domain/model"
)

func item(id string, visible bool) model.WorkItem {
	return model.WorkItem{ID: id, Carrier: "QF", Visible: visible, Priority: model.PriorityFor(visible)}
}

func ids(items []model.WorkItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestPriorityQueue_Ordering(t *testing.T) {
	q := NewPriorityQueue()
	ctx := context.Background()

	for _, it := range []model.WorkItem{item("h1", false), item("v1", true), item("h2", false), item("v2", true), item("v3", true)} {
		if err := q.Push(ctx, it); err != nil {
			t.Fatalf("push %s: %v", it.ID, err)
		}
	}

	want := []string{"v1", "v2", "v3", "h1", "h2"}
	if diff := cmp.Diff(want, ids(q.Snapshot())); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"v1", "v2"}, ids(q.PopBatch(ctx, 2))); diff != "" {
		t.Errorf("first batch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"v3", "h1"}, ids(q.PopBatch(ctx, 2))); diff != "" {
		t.Errorf("second batch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"h2"}, ids(q.PopBatch(ctx, 2))); diff != "" {
		t.Errorf("third batch (-want +got):\n%s", diff)
	}
	if got := q.PopBatch(ctx, 2); got != nil {
		t.Errorf("expected empty batch, got %v", ids(got))
	}
}

func TestPriorityQueue_Duplicates(t *testing.T) {
	q := NewPriorityQueue()
	ctx := context.Background()

	if err := q.Push(ctx, item("a", false)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.Push(ctx, item("a", true)); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	if !q.Contains("a") {
		t.Error("expected a to be queued")
	}

	q.PopBatch(ctx, 1)
	if q.Contains("a") {
		t.Error("expected a to be gone after pop")
	}
	if err := q.Push(ctx, item("a", false)); err != nil {
		t.Errorf("re-push after pop: %v", err)
	}
}

func TestPriorityQueue_Reprioritize(t *testing.T) {
	q := NewPriorityQueue()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_ = q.Push(ctx, item(id, false))
	}

	if n := q.Reprioritize(ctx, map[string]bool{}); n != 0 {
		t.Errorf("expected no change, got %d", n)
	}

	if n := q.Reprioritize(ctx, map[string]bool{"c": true}); n != 1 {
		t.Errorf("expected 1 change, got %d", n)
	}
	if diff := cmp.Diff([]string{"c", "a", "b"}, ids(q.Snapshot())); diff != "" {
		t.Errorf("order after promote (-want +got):\n%s", diff)
	}

	if n := q.Reprioritize(ctx, map[string]bool{"b": true}); n != 2 {
		t.Errorf("expected 2 changes, got %d", n)
	}
	snap := q.Snapshot()
	if diff := cmp.Diff([]string{"b", "a", "c"}, ids(snap)); diff != "" {
		t.Errorf("order after swap (-want +got):\n%s", diff)
	}
	if !snap[0].Visible || snap[0].Priority != model.PriorityVisible {
		t.Errorf("expected b visible with priority 1, got %+v", snap[0])
	}
}

func TestPriorityQueue_CapacityAndClose(t *testing.T) {
	q := NewPriorityQueue(WithCapacity(2))
	ctx := context.Background()

	_ = q.Push(ctx, item("a", true))
	_ = q.Push(ctx, item("b", true))
	if err := q.Push(ctx, item("c", true)); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}

	q.Clear()
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected empty queue after clear, got %d", l)
	}

	_ = q.Close()
	if !q.IsClosed() {
		t.Error("expected closed queue")
	}
	if err := q.Push(ctx, item("d", true)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestPriorityQueue_ConcurrentAccess(t *testing.T) {
	q := NewPriorityQueue()
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = q.Push(ctx, item(fmt.Sprintf("%d-%d", g, i), i%2 == 0))
			}
		}(g)
	}
	wg.Wait()

	if l := q.Len(ctx); l != 500 {
		t.Fatalf("expected 500 items, got %d", l)
	}

	popped := 0
	last := model.PriorityVisible
	for {
		batch := q.PopBatch(ctx, 7)
		if len(batch) == 0 {
			break
		}
		for _, it := range batch {
			if it.Priority < last {
				t.Fatalf("priority went backwards at %s", it.ID)
			}
			last = it.Priority
		}
		popped += len(batch)
	}
	if popped != 500 {
		t.Errorf("expected 500 popped, got %d", popped)
	}
}
