package query

import (
	"context"
	"sync"
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/service/eta"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger"
	wrap "github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger/wrapper"
)

const (
	// DefaultInterval is the polling cadence. Positions older than this are
	// acceptable to a passenger-facing view; anything fresher comes over
	// the push channel, not this hook.
	DefaultInterval = 15 * time.Second

	// DefaultHistorySize is how many recent fixes the hook retains for the
	// local live-speed estimate and for drawing a short trail behind the
	// vehicle marker.
	DefaultHistorySize = 5
)

// FetchFunc performs one remote position query. It must honor ctx
// cancellation: Stop aborts the in-flight call through it.
type FetchFunc func(ctx context.Context) (models.PositionFix, error)

// ResultFunc receives the per-tick estimate for the hook's stop.
type ResultFunc func(fix models.PositionFix, result models.StopProximityResult)

// Config tunes a hook. Zero values fall back to the defaults.
type Config struct {
	Interval    time.Duration
	HistorySize int
}

// Hook is the consumer-side view of one vehicle against one stop: it polls
// the position on a fixed cadence, keeps a small rolling history and derives
// a fresh arrival estimate each tick, refining the live speed locally from
// consecutive polled fixes. Results arriving out of order are resolved by
// capture timestamp: an older fix never overwrites a newer one, and only a
// newer fix produces a new estimate.
type Hook struct {
	fetch    FetchFunc
	engine   *eta.Engine
	route    *models.Route
	stop     models.Coordinate
	onResult ResultFunc

	interval    time.Duration
	historySize int
	l           logger.Logger

	mu      sync.Mutex
	history []models.PositionFix // oldest first
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHook(fetch FetchFunc, engine *eta.Engine, route *models.Route, stop models.Coordinate, onResult ResultFunc, cfg Config, l logger.Logger) *Hook {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	return &Hook{
		fetch:       fetch,
		engine:      engine,
		route:       route,
		stop:        stop,
		onResult:    onResult,
		interval:    cfg.Interval,
		historySize: cfg.HistorySize,
		l:           l,
	}
}

// Start begins polling. The first query fires immediately, then on the
// cadence. Calling Start on a running hook is a no-op.
func (h *Hook) Start() {
	h.mu.Lock()
	if h.done != nil {
		h.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()

	go h.loop(ctx, done)
}

// Stop cancels the in-flight query (if any) and waits for the polling
// goroutine to exit before returning. Safe to call more than once.
func (h *Hook) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (h *Hook) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.poll(ctx)
		}
	}
}

// poll runs one tick: fetch, record, and when the fix advanced the history,
// classify it against the stop and hand the estimate to the callback.
func (h *Hook) poll(ctx context.Context) {
	fix, err := h.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		h.l.Debug(wrap.WithAction(ctx, "position_poll"), "position query failed", "err", err.Error())
		return
	}

	curr, prev, ok := h.record(fix)
	if !ok {
		return
	}

	if h.onResult != nil && h.engine != nil {
		h.onResult(*curr, h.engine.Classify(curr, prev, h.stop, h.route))
	}
}

// record appends the fix to the history unless a newer one is already
// present, trimming to the retained window. On acceptance it returns copies
// of the newest and second-newest fixes for the live-speed refinement.
func (h *Hook) record(fix models.PositionFix) (curr, prev *models.PositionFix, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.history); n > 0 && fix.CapturedAtMs <= h.history[n-1].CapturedAtMs {
		return nil, nil, false
	}

	h.history = append(h.history, fix)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}

	curr = &fix
	if n := len(h.history); n > 1 {
		p := h.history[n-2]
		prev = &p
	}
	return curr, prev, true
}

// Latest returns the most recent fix, if any has arrived yet.
func (h *Hook) Latest() (models.PositionFix, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.history) == 0 {
		return models.PositionFix{}, false
	}
	return h.history[len(h.history)-1], true
}

// History returns a copy of the retained fixes, oldest first.
func (h *Hook) History() []models.PositionFix {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]models.PositionFix, len(h.history))
	copy(out, h.history)
	return out
}
