package producer

import (
	"context"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger"
	wrap "github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger/wrapper"
)

// PositionSource produces one position fix per call. Implemented by the
// device sensor adapter and by the route simulator.
type PositionSource interface {
	Sample(ctx context.Context) (models.PositionFix, error)
}

// SourceFunc adapts a plain function to a PositionSource.
type SourceFunc func(ctx context.Context) (models.PositionFix, error)

func (f SourceFunc) Sample(ctx context.Context) (models.PositionFix, error) {
	return f(ctx)
}

// FallbackSource tries the primary source and silently switches to the
// fallback when the primary fails, e.g. a vehicle without a GPS device
// falls back to the simulator. The switch is logged once per transition.
type FallbackSource struct {
	primary  PositionSource
	fallback PositionSource
	l        logger.Logger

	onFallback bool
}

func NewFallbackSource(primary, fallback PositionSource, l logger.Logger) *FallbackSource {
	return &FallbackSource{
		primary:  primary,
		fallback: fallback,
		l:        l,
	}
}

func (s *FallbackSource) Sample(ctx context.Context) (models.PositionFix, error) {
	fix, err := s.primary.Sample(ctx)
	if err == nil {
		if s.onFallback {
			s.onFallback = false
			s.l.Info(wrap.WithAction(ctx, "position_source_recovered"), "primary position source recovered")
		}
		return fix, nil
	}

	if !s.onFallback {
		s.onFallback = true
		s.l.Warn(wrap.WithAction(ctx, "position_source_fallback"),
			"primary position source failed, using fallback",
			"err", err.Error(),
		)
	}

	return s.fallback.Sample(ctx)
}
