package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/config"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/adapter/http/handler"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/adapter/http/middleware"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger"
	wrap "github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger/wrapper"
)

const serverIPAddress = "%s:%s"

type API struct {
	mode   types.ServiceMode
	mux    *http.ServeMux
	server *http.Server
	routes *handlers // routes/handlers
	m      *middleware.Middleware

	addr string
	cfg  config.Config
	log  logger.Logger
}

type handlers struct {
	health     *handler.Health
	tracking   *handler.Tracking
	trackingWS *handler.TrackingWS
}

func New(
	cfg config.Config,
	trackingService handler.TrackingService,
	hubService handler.TrackingHubService,
	authService handler.AuthService,
	logger logger.Logger,
) (*API, error) {
	var addr string

	if authService == nil {
		return nil, errors.New("auth service is required")
	}

	h := &handlers{
		health: handler.NewHealth(cfg.Mode.String(), logger),
	}

	switch cfg.Mode {
	case types.HubService:
		addr = fmt.Sprintf(serverIPAddress, "0.0.0.0", cfg.Services.HubService)
		h.tracking = handler.NewTracking(trackingService, logger)
		h.trackingWS = handler.NewTrackingWS(hubService, authService, logger)
	case types.VehicleService:
		// vehicle service exposes only health and metrics; its work happens
		// in the producer pipeline, not behind HTTP endpoints
		addr = fmt.Sprintf(serverIPAddress, "0.0.0.0", cfg.Services.VehicleService)
	case types.ConsumerService:
		// consumer service likewise: the polling hook does the work
		addr = fmt.Sprintf(serverIPAddress, "0.0.0.0", cfg.Services.ConsumerService)
	default:
		return nil, fmt.Errorf("invalid mode: %s", cfg.Mode)
	}

	mid := middleware.NewMiddleware(authService, logger)

	api := &API{
		mode: cfg.Mode,

		mux:    http.NewServeMux(),
		routes: h,
		m:      mid,
		addr:   addr,
		cfg:    cfg,
		log:    logger,
	}

	api.server = &http.Server{
		Addr:    api.addr,
		Handler: api.withMiddleware(),
	}

	setupRoutes(api.mux, api.routes, api.m, api.mode, api.log)

	return api, nil
}

func (a *API) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctx = wrap.WithAction(ctx, "http_server_stop")

	a.log.Debug(ctx, "shutting down HTTP server...", "address", a.addr)
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	a.log.Debug(ctx, "shutting down HTTP server completed")

	return nil
}

func (a *API) Run(ctx context.Context, errCh chan<- error) {
	go func() {
		ctx = wrap.WithAction(ctx, "http_server_start")
		a.log.Info(ctx, "started http server", "address", a.addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
			return
		}
	}()
}

// withMiddleware applies middlewares to the mux
func (a *API) withMiddleware() http.Handler {
	return a.m.Recover(a.m.RequestID(a.m.Metrics(a.mode.String())(a.m.Auth(a.mux))))
}
