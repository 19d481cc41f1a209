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
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/adapter/sensor"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/service/auth"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/service/producer"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
)

// VehicleService is the on-board producer: it acquires positions from the
// device sensor or the simulator and ships them to the hub.
type VehicleService struct {
	pipeline   *producer.Pipeline
	wsClient   *hubclient.WSClient
	httpServer *server.API

	cfg config.Config
	log logger.Logger
}

func NewVehicle(ctx context.Context, cfg config.Config, log logger.Logger) (*VehicleService, error) {
	vehicleID, err := uuid.Parse(cfg.Producer.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("invalid PRODUCER_VEHICLE_ID: %w", err)
	}
	routeID, err := uuid.Parse(cfg.Producer.RouteID)
	if err != nil {
		return nil, fmt.Errorf("invalid PRODUCER_ROUTE_ID: %w", err)
	}
	ownerID, err := uuid.Parse(cfg.Producer.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("invalid PRODUCER_OWNER_ID: %w", err)
	}

	httpClient := hubclient.NewHTTPClient(cfg.Producer.HubHTTPURL, cfg.Producer.Token, cfg.Producer.TransmitTimeout)

	tripID, err := httpClient.StartTrip(ctx, vehicleID, routeID, ownerID)
	if err != nil {
		log.Error(ctx, "Failed to start trip on hub", err)
		return nil, err
	}

	route, err := httpClient.GetRoute(ctx, routeID)
	if err != nil {
		log.Error(ctx, "Failed to fetch route from hub", err)
		return nil, err
	}

	// simulator is always available; a configured device gateway takes
	// priority and the simulator becomes the fallback
	sim := producer.NewSimulator(tripID, vehicleID, route, uint64(vehicleID[0])<<8|uint64(vehicleID[1]))

	var source producer.PositionSource = sim
	if cfg.Producer.SensorFeedURL != "" {
		device := sensor.NewHTTPSource(cfg.Producer.SensorFeedURL, tripID, vehicleID, cfg.Producer.TransmitTimeout)
		source = producer.NewFallbackSource(device, sim, log)
	}

	wsURL := fmt.Sprintf("%s/ws/vehicles/%s", cfg.Producer.HubWSURL, vehicleID)
	wsClient := hubclient.NewWSClient(wsURL, cfg.Producer.Token, log)

	pipeline := producer.NewPipeline(source, &transmitter{ws: wsClient, http: httpClient}, producer.Config{
		SampleInterval:  cfg.Producer.SampleInterval,
		ResendInterval:  cfg.Producer.ResendInterval,
		TransmitTimeout: cfg.Producer.TransmitTimeout,
		QueueCapacity:   cfg.Producer.QueueCapacity,
	}, log)

	tokenService := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	httpServer, err := server.New(cfg, nil, nil, tokenService, log)
	if err != nil {
		log.Error(ctx, "Failed to setup http server", err)
		return nil, err
	}

	return &VehicleService{
		pipeline:   pipeline,
		wsClient:   wsClient,
		httpServer: httpServer,
		cfg:        cfg,
		log:        log,
	}, nil
}

// transmitter pairs the two delivery channels for the pipeline.
type transmitter struct {
	ws   *hubclient.WSClient
	http *hubclient.HTTPClient
}

func (t *transmitter) PushLive(ctx context.Context, fix models.PositionFix) error {
	return t.ws.PushLive(ctx, fix)
}

func (t *transmitter) SendBatch(ctx context.Context, fixes []models.PositionFix) error {
	return t.http.SendBatch(ctx, fixes)
}

func (s *VehicleService) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	go s.pipeline.Run(runCtx)

	s.httpServer.Run(ctx, errCh)
	defer func() {
		s.close(ctx)
		s.log.Info(ctx, "vehicle service closed")
	}()

	// Waiting signal
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	s.log.Info(ctx, "vehicle service started")

	select {
	case errRun := <-errCh:
		return errRun
	case sig := <-shutdownCh:
		s.log.Info(ctx, "shutting down application", "signal", sig.String())
		return nil
	}
}

func (s *VehicleService) close(ctx context.Context) {
	if s.httpServer != nil {
		if err := s.httpServer.Stop(ctx); err != nil {
			s.log.Warn(ctx, "Failed to gracefully close http server", "error", err.Error())
		}
	}

	if s.wsClient != nil {
		s.wsClient.Close()
	}
}
