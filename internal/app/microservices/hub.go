package microservices

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/config"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/adapter/http/server"
	repo "github.com/nxtbus/nxtbus-fleet-management-sub000/internal/adapter/postgres"
	rabbitAdapter "github.com/nxtbus/nxtbus-fleet-management-sub000/internal/adapter/rabbit"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/service/auth"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/service/eta"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/service/hub"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/postgres"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/rabbit"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/trm"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/wshub"
)

// HubService is the authoritative tracking side: it owns trip state,
// ingests fixes over WS and HTTP and multicasts updates to rooms.
type HubService struct {
	postgresDB *postgres.PostgreDB
	rabbitMQ   *rabbit.RabbitMQ
	rooms      *wshub.RoomHub
	tracking   *hub.Service
	httpServer *server.API

	cfg config.Config
	log logger.Logger
}

func NewHub(ctx context.Context, cfg config.Config, log logger.Logger) (*HubService, error) {
	postgresDB, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		log.Error(ctx, "Failed to setup database", err)
		return nil, err
	}

	rabbitMQ, err := rabbit.New(ctx, cfg.RabbitMQ.GetDSN(), log)
	if err != nil {
		log.Error(ctx, "Failed to setup rabbitmq", err)
		return nil, err
	}

	producer, err := rabbitAdapter.NewTrackingProducer(rabbitMQ)
	if err != nil {
		log.Error(ctx, "Failed to setup tracking producer", err)
		return nil, err
	}

	tripRepo := repo.NewTripRepo(postgresDB.Pool)
	routeRepo := repo.NewRouteRepo(postgresDB.Pool)

	engine := eta.New(eta.Params{
		MinSpeedKmh:       cfg.Eta.MinSpeedKmh,
		MaxSpeedKmh:       cfg.Eta.MaxSpeedKmh,
		DefaultSpeedKmh:   cfg.Eta.DefaultSpeedKmh,
		MinMotionKmh:      cfg.Eta.MinMotionKmh,
		LiveWeight:        cfg.Eta.LiveWeight,
		AtStopRadiusKm:    cfg.Eta.AtStopRadiusKm,
		PassedToleranceKm: cfg.Eta.PassedToleranceKm,
	})

	rooms := wshub.NewRoomHub(log)
	txManager := trm.New(postgresDB.Pool)
	tracking := hub.New(tripRepo, routeRepo, producer, rooms, engine, txManager, hub.Config{
		HeartbeatInterval: cfg.Hub.HeartbeatInterval,
		LivenessWindow:    cfg.Hub.LivenessWindow,
		RingCapacity:      cfg.Hub.FixRingCapacity,
	}, log)

	// journeys in flight survive a hub restart
	if _, err := tracking.RecoverActiveTrips(ctx); err != nil {
		log.Warn(ctx, "trip recovery failed, starting with empty state", "error", err.Error())
	}

	tokenService := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	httpServer, err := server.New(cfg, tracking, tracking, tokenService, log)
	if err != nil {
		log.Error(ctx, "Failed to setup http server", err)
		return nil, err
	}

	return &HubService{
		postgresDB: postgresDB,
		rabbitMQ:   rabbitMQ,
		rooms:      rooms,
		tracking:   tracking,
		httpServer: httpServer,
		cfg:        cfg,
		log:        log,
	}, nil
}

func (s *HubService) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	loopCtx, cancelLoops := context.WithCancel(ctx)
	defer cancelLoops()

	// heartbeat and liveness loops
	go s.tracking.Run(loopCtx)

	s.httpServer.Run(ctx, errCh)
	defer func() {
		s.close(ctx)
		s.log.Info(ctx, "hub service closed")
	}()

	// Waiting signal
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	s.log.Info(ctx, "hub service started")

	select {
	case errRun := <-errCh:
		return errRun
	case sig := <-shutdownCh:
		s.log.Info(ctx, "shutting down application", "signal", sig.String())
		return nil
	}
}

func (s *HubService) close(ctx context.Context) {
	if s.httpServer != nil {
		if err := s.httpServer.Stop(ctx); err != nil {
			s.log.Warn(ctx, "Failed to gracefully close http server", "error", err.Error())
		}
	}

	if s.rooms != nil {
		s.rooms.Close()
	}

	if s.rabbitMQ != nil {
		if err := s.rabbitMQ.Close(ctx); err != nil {
			s.log.Warn(ctx, "Failed to gracefully close rabbitmq", "error", err.Error())
		}
	}

	if s.postgresDB != nil && s.postgresDB.Pool != nil {
		s.postgresDB.Pool.Close()
	}
}
