package producer

import (
	"context"
	"errors"
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger"
	wrap "github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger/wrapper"
)

// Transmitter ships fixes to the hub over two channels: a live push over
// the persistent WebSocket, and a batched HTTP fallback used for resends.
type Transmitter interface {
	PushLive(ctx context.Context, fix models.PositionFix) error
	SendBatch(ctx context.Context, fixes []models.PositionFix) error
}

// Config tunes the producer loop.
type Config struct {
	SampleInterval  time.Duration // how often a position is acquired
	ResendInterval  time.Duration // cadence of the HTTP fallback flush
	TransmitTimeout time.Duration // per-attempt deadline on either channel
	QueueCapacity   int           // retry queue bound
}

// Pipeline is the vehicle-side producer: it samples positions, tags them
// with quality and pushes them to the hub immediately, parking failures in
// a bounded retry queue that the fallback channel flushes periodically.
type Pipeline struct {
	source      PositionSource
	transmitter Transmitter
	queue       *retryQueue
	recent      *recentWindow

	cfg Config
	l   logger.Logger
}

func NewPipeline(source PositionSource, transmitter Transmitter, cfg Config, l logger.Logger) *Pipeline {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 3 * time.Second
	}
	if cfg.ResendInterval <= 0 {
		cfg.ResendInterval = 15 * time.Second
	}
	if cfg.TransmitTimeout <= 0 {
		cfg.TransmitTimeout = 10 * time.Second
	}

	return &Pipeline{
		source:      source,
		transmitter: transmitter,
		queue:       newRetryQueue(cfg.QueueCapacity),
		recent:      newRecentWindow(cfg.QueueCapacity),
		cfg:         cfg,
		l:           l,
	}
}

// Run samples and transmits until ctx is cancelled. Sampling never blocks
// on a slow hub: the transmit deadline caps every attempt, and failed fixes
// go to the retry queue instead of stalling the loop.
func (p *Pipeline) Run(ctx context.Context) {
	sample := time.NewTicker(p.cfg.SampleInterval)
	defer sample.Stop()

	resend := time.NewTicker(p.cfg.ResendInterval)
	defer resend.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sample.C:
			p.sampleAndPush(ctx)
		case <-resend.C:
			p.resendWindow(ctx)
		}
	}
}

func (p *Pipeline) sampleAndPush(ctx context.Context) {
	fix, err := p.source.Sample(ctx)
	if err != nil {
		p.l.Warn(wrap.WithAction(ctx, "position_sample"), "failed to acquire position", "err", err.Error())
		return
	}

	fix.Quality = models.QualityFromAccuracy(fix.AccuracyMeters)

	pushCtx, cancel := context.WithTimeout(ctx, p.cfg.TransmitTimeout)
	err = p.transmitter.PushLive(pushCtx, fix)
	cancel()

	if err != nil {
		p.park(ctx, fix, err)
		return
	}

	// delivered live; the resend tick still ships a durable copy over HTTP
	p.recent.Push(fix)

	// a successful live push means the hub is reachable again:
	// opportunistically flush anything parked earlier
	if p.queue.Len() > 0 {
		p.flushRetries(ctx)
	}
}

func (p *Pipeline) park(ctx context.Context, fix models.PositionFix, cause error) {
	ctx = wrap.WithAction(ctx, "fix_parked")
	if err := p.queue.Push(fix); errors.Is(err, types.ErrQueueFull) {
		p.l.Warn(ctx, "retry queue full, dropped oldest fix", "cause", cause.Error())
		return
	}
	p.l.Debug(ctx, "fix parked for retry", "cause", cause.Error(), "queue_depth", p.queue.Len())
}

// resendWindow ships the durable copy on the slow cadence: every fix since
// the last tick, parked failures first, in one batch over the HTTP fallback.
// Fixes already delivered over the socket are included on purpose; the hub
// treats replayed timestamps as no-ops, so the overlap is harmless.
func (p *Pipeline) resendWindow(ctx context.Context) {
	fixes := append(p.queue.Drain(), p.recent.Drain()...)
	if len(fixes) == 0 {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.TransmitTimeout)
	err := p.transmitter.SendBatch(sendCtx, fixes)
	cancel()

	if err != nil {
		p.queue.Requeue(fixes)
		p.l.Warn(wrap.WithAction(ctx, "window_resend"),
			"durable resend failed, fixes requeued",
			"count", len(fixes),
			"err", err.Error(),
		)
		return
	}

	p.l.Debug(wrap.WithAction(ctx, "window_resend"), "durable copy shipped over fallback", "count", len(fixes))
}

// flushRetries ships the parked fixes over the HTTP fallback in one batch.
// On failure everything goes back to the queue front, still capacity-bound.
func (p *Pipeline) flushRetries(ctx context.Context) {
	fixes := p.queue.Drain()
	if len(fixes) == 0 {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.TransmitTimeout)
	err := p.transmitter.SendBatch(sendCtx, fixes)
	cancel()

	if err != nil {
		p.queue.Requeue(fixes)
		p.l.Warn(wrap.WithAction(ctx, "retry_flush"),
			"fallback flush failed, fixes requeued",
			"count", len(fixes),
			"err", err.Error(),
		)
		return
	}

	p.l.Info(wrap.WithAction(ctx, "retry_flush"), "flushed parked fixes over fallback", "count", len(fixes))
}

// QueueDepth reports the current retry queue depth.
func (p *Pipeline) QueueDepth() int {
	return p.queue.Len()
}
