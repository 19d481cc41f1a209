package microservices

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/config"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/adapter/http/server"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/adapter/hubclient"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/service/auth"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/service/eta"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/service/query"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger"
	wrap "github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger/wrapper"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
)

// ConsumerService is the passenger-facing side: it watches one trip against
// one stop, polling the hub on a fixed cadence and deriving a fresh arrival
// estimate per tick.
type ConsumerService struct {
	hook       *query.Hook
	httpServer *server.API

	cfg config.Config
	log logger.Logger
}

func NewConsumer(ctx context.Context, cfg config.Config, log logger.Logger) (*ConsumerService, error) {
	tripID, err := uuid.Parse(cfg.Query.TripID)
	if err != nil {
		return nil, fmt.Errorf("invalid QUERY_TRIP_ID: %w", err)
	}
	routeID, err := uuid.Parse(cfg.Query.RouteID)
	if err != nil {
		return nil, fmt.Errorf("invalid QUERY_ROUTE_ID: %w", err)
	}
	stopID, err := uuid.Parse(cfg.Query.StopID)
	if err != nil {
		return nil, fmt.Errorf("invalid QUERY_STOP_ID: %w", err)
	}

	httpClient := hubclient.NewHTTPClient(cfg.Query.HubHTTPURL, cfg.Query.Token, cfg.Query.RequestTimeout)

	route, err := httpClient.GetRoute(ctx, routeID)
	if err != nil {
		log.Error(ctx, "Failed to fetch route from hub", err)
		return nil, err
	}

	var stop *models.Stop
	for i := range route.Stops {
		if route.Stops[i].ID == stopID {
			stop = &route.Stops[i]
			break
		}
	}
	if stop == nil {
		return nil, fmt.Errorf("stop %s is not on route %s", stopID, routeID)
	}

	engine := eta.New(eta.Params{
		MinSpeedKmh:       cfg.Eta.MinSpeedKmh,
		MaxSpeedKmh:       cfg.Eta.MaxSpeedKmh,
		DefaultSpeedKmh:   cfg.Eta.DefaultSpeedKmh,
		MinMotionKmh:      cfg.Eta.MinMotionKmh,
		LiveWeight:        cfg.Eta.LiveWeight,
		AtStopRadiusKm:    cfg.Eta.AtStopRadiusKm,
		PassedToleranceKm: cfg.Eta.PassedToleranceKm,
	})

	fetch := func(ctx context.Context) (models.PositionFix, error) {
		return httpClient.LatestFix(ctx, tripID)
	}

	onResult := func(fix models.PositionFix, res models.StopProximityResult) {
		rctx := wrap.WithAction(context.Background(), "stop_estimate")
		fields := []any{
			"trip_id", tripID.String(),
			"stop_id", stopID.String(),
			"status", res.Status.String(),
			"distance_km", res.DistanceKm,
			"captured_at_ms", fix.CapturedAtMs,
		}
		if res.EtaMinutes != nil {
			fields = append(fields, "eta_minutes", *res.EtaMinutes)
		}
		log.Info(rctx, "stop arrival estimate", fields...)
	}

	hook := query.NewHook(fetch, engine, route, stop.Coord, onResult, query.Config{
		Interval:    cfg.Query.Interval,
		HistorySize: cfg.Query.HistorySize,
	}, log)

	tokenService := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	httpServer, err := server.New(cfg, nil, nil, tokenService, log)
	if err != nil {
		log.Error(ctx, "Failed to setup http server", err)
		return nil, err
	}

	return &ConsumerService{
		hook:       hook,
		httpServer: httpServer,
		cfg:        cfg,
		log:        log,
	}, nil
}

func (s *ConsumerService) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	s.hook.Start()

	s.httpServer.Run(ctx, errCh)
	defer func() {
		s.close(ctx)
		s.log.Info(ctx, "consumer service closed")
	}()

	// Waiting signal
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	s.log.Info(ctx, "consumer service started")

	select {
	case errRun := <-errCh:
		return errRun
	case sig := <-shutdownCh:
		s.log.Info(ctx, "shutting down application", "signal", sig.String())
		return nil
	}
}

func (s *ConsumerService) close(ctx context.Context) {
	if s.hook != nil {
		s.hook.Stop()
	}

	if s.httpServer != nil {
		if err := s.httpServer.Stop(ctx); err != nil {
			s.log.Warn(ctx, "Failed to gracefully close http server", "error", err.Error())
		}
	}
}
