package producer

import (
	"sync"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/metrics"
)

// DefaultQueueCapacity bounds the retry queue. On a long hub outage the
// producer keeps the freshest window of positions and drops the oldest:
// for live tracking, recency beats completeness.
const DefaultQueueCapacity = 50

// retryQueue is a bounded FIFO of fixes that failed to transmit.
// When full, Push evicts the oldest entry to make room.
type retryQueue struct {
	mu    sync.Mutex
	items []models.PositionFix
	cap   int
}

func newRetryQueue(capacity int) *retryQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &retryQueue{
		items: make([]models.PositionFix, 0, capacity),
		cap:   capacity,
	}
}

// Push enqueues a fix, evicting the oldest when the queue is at capacity.
// Returns ErrQueueFull when an eviction happened so callers can log it.
func (q *retryQueue) Push(fix models.PositionFix) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var err error
	if len(q.items) >= q.cap {
		q.items = q.items[1:]
		err = types.ErrQueueFull
	}
	q.items = append(q.items, fix)

	metrics.RetryQueueDepthGauge.WithLabelValues(types.VehicleService.String()).Set(float64(len(q.items)))

	return err
}

// Drain empties the queue and returns its contents, oldest first.
func (q *retryQueue) Drain() []models.PositionFix {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	out := q.items
	q.items = make([]models.PositionFix, 0, q.cap)

	metrics.RetryQueueDepthGauge.WithLabelValues(types.VehicleService.String()).Set(0)

	return out
}

// Requeue puts drained fixes back at the front after a failed flush,
// still honoring the capacity bound.
func (q *retryQueue) Requeue(fixes []models.PositionFix) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(fixes, q.items...)
	if len(q.items) > q.cap {
		q.items = q.items[len(q.items)-q.cap:]
	}

	metrics.RetryQueueDepthGauge.WithLabelValues(types.VehicleService.String()).Set(float64(len(q.items)))
}

// Len reports the current queue depth.
func (q *retryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// recentWindow collects the fixes delivered over the live channel since the
// last durable resend. Bounded drop-oldest like the retry queue, but never
// an error path: losing the oldest of an unflushed window only narrows the
// durable copy, the live delivery already happened.
type recentWindow struct {
	mu    sync.Mutex
	items []models.PositionFix
	cap   int
}

func newRecentWindow(capacity int) *recentWindow {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &recentWindow{
		items: make([]models.PositionFix, 0, capacity),
		cap:   capacity,
	}
}

func (w *recentWindow) Push(fix models.PositionFix) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.items) >= w.cap {
		w.items = w.items[1:]
	}
	w.items = append(w.items, fix)
}

// Drain empties the window and returns its contents, oldest first.
func (w *recentWindow) Drain() []models.PositionFix {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.items) == 0 {
		return nil
	}

	out := w.items
	w.items = make([]models.PositionFix, 0, w.cap)
	return out
}
