package producer

import (
	"errors"
	"testing"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
)

func queuedFix(capturedAtMs int64) models.PositionFix {
	return models.PositionFix{CapturedAtMs: capturedAtMs}
}

func TestRetryQueue_PushWithinCapacity(t *testing.T) {
	q := newRetryQueue(3)

	for i := int64(1); i <= 3; i++ {
		if err := q.Push(queuedFix(i)); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("queue length: got %d want 3", q.Len())
	}
}

func TestRetryQueue_EvictsOldestWhenFull(t *testing.T) {
	q := newRetryQueue(3)
	for i := int64(1); i <= 3; i++ {
		_ = q.Push(queuedFix(i))
	}

	err := q.Push(queuedFix(4))
	if !errors.Is(err, types.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull on eviction, got %v", err)
	}
	if q.Len() != 3 {
		t.Fatalf("queue must stay at capacity: len %d", q.Len())
	}

	fixes := q.Drain()
	for i, want := range []int64{2, 3, 4} {
		if fixes[i].CapturedAtMs != want {
			t.Fatalf("drained[%d]: got %d want %d (oldest dropped)", i, fixes[i].CapturedAtMs, want)
		}
	}
}

func TestRetryQueue_DrainEmpties(t *testing.T) {
	q := newRetryQueue(3)
	_ = q.Push(queuedFix(1))
	_ = q.Push(queuedFix(2))

	fixes := q.Drain()
	if len(fixes) != 2 {
		t.Fatalf("drained: got %d want 2", len(fixes))
	}
	if fixes[0].CapturedAtMs != 1 || fixes[1].CapturedAtMs != 2 {
		t.Fatalf("drain order must be oldest first: %v, %v", fixes[0].CapturedAtMs, fixes[1].CapturedAtMs)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty after drain: len %d", q.Len())
	}
	if got := q.Drain(); got != nil {
		t.Fatalf("draining an empty queue must return nil, got %d items", len(got))
	}
}

func TestRetryQueue_RequeuePrepends(t *testing.T) {
	q := newRetryQueue(5)
	_ = q.Push(queuedFix(3))

	q.Requeue([]models.PositionFix{queuedFix(1), queuedFix(2)})

	fixes := q.Drain()
	for i, want := range []int64{1, 2, 3} {
		if fixes[i].CapturedAtMs != want {
			t.Fatalf("requeued[%d]: got %d want %d", i, fixes[i].CapturedAtMs, want)
		}
	}
}

func TestRetryQueue_RequeueHonorsCapacity(t *testing.T) {
	q := newRetryQueue(3)
	_ = q.Push(queuedFix(4))
	_ = q.Push(queuedFix(5))

	q.Requeue([]models.PositionFix{queuedFix(1), queuedFix(2), queuedFix(3)})

	if q.Len() != 3 {
		t.Fatalf("requeue must honor the bound: len %d", q.Len())
	}

	// the newest window survives, oldest requeued entries are dropped
	fixes := q.Drain()
	for i, want := range []int64{3, 4, 5} {
		if fixes[i].CapturedAtMs != want {
			t.Fatalf("bounded requeue[%d]: got %d want %d", i, fixes[i].CapturedAtMs, want)
		}
	}
}

func TestRetryQueue_DefaultCapacity(t *testing.T) {
	q := newRetryQueue(0)
	if q.cap != DefaultQueueCapacity {
		t.Fatalf("default capacity: got %d want %d", q.cap, DefaultQueueCapacity)
	}
}
