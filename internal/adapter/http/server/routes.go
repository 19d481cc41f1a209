package server

import (
	"context"
	"net/http"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/adapter/http/middleware"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger"
	wrap "github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger/wrapper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// setupRoutes - setups http routes
func setupRoutes(mux *http.ServeMux, routes *handlers, m *middleware.Middleware, mode types.ServiceMode, log logger.Logger) {
	// System Health
	mux.HandleFunc("/health", routes.health.HealthCheck)

	setupSwaggerRoutes(mux, mode, log)
	setupMetricsRoute(mux)

	if mode == types.HubService {
		setupTrackingRoutes(mux, routes, m)
	}
}

// setupTrackingRoutes setups routes for the tracking hub
func setupTrackingRoutes(mux *http.ServeMux, routes *handlers, m *middleware.Middleware) {
	mux.Handle("POST /trips", m.RequireRoles(routes.tracking.StartTrip, types.RoleVehicle, types.RoleOwner, types.RoleAdmin)) // Start a trip
	mux.Handle("POST /trips/{trip_id}/end", m.RequireRoles(routes.tracking.EndTrip, types.RoleVehicle, types.RoleAdmin))      // End a trip
	mux.Handle("POST /trips/{trip_id}/positions", m.RequireRoles(routes.tracking.IngestPositions, types.RoleVehicle))         // HTTP fallback ingestion
	mux.Handle("GET /trips/{trip_id}", m.RequireRoles(routes.tracking.GetTrip, types.RoleOwner, types.RoleAdmin))             // Current trip state
	mux.Handle("GET /trips/{trip_id}/positions", m.RequireRoles(routes.tracking.GetTripPositions, types.RoleOwner, types.RoleAdmin, types.RolePassenger))
	mux.HandleFunc("GET /routes/{route_id}", routes.tracking.GetRoute)           // Route geometry and stops (public)
	mux.HandleFunc("POST /routes/{route_id}/stops/eta", routes.tracking.StopEta) // Stop arrival estimates (public)

	mux.HandleFunc("GET /ws/vehicles/{vehicle_id}", routes.trackingWS.HandleVehicleWS) // WebSocket push channel for vehicles
	mux.HandleFunc("GET /ws/fleet", routes.trackingWS.HandleFleetWS)                   // WebSocket subscriptions for dashboards
}

// setupSwaggerRoutes configures Swagger UI endpoints based on service mode
func setupSwaggerRoutes(mux *http.ServeMux, mode types.ServiceMode, log logger.Logger) {
	var instanceName string

	switch mode {
	case types.HubService:
		instanceName = "hub"
	case types.VehicleService:
		instanceName = "vehicle"
	case types.ConsumerService:
		// no swagger bundle is generated for the consumer
		return
	default:
		log.Warn(wrap.WithAction(context.Background(), "setup swagger routes"), "unknown service mode for swagger setup", "mode", mode)
		return
	}

	// Swagger UI endpoint
	swaggerURL := httpSwagger.InstanceName(instanceName)
	mux.HandleFunc("/swagger/", httpSwagger.Handler(swaggerURL))
}

// setupMetricsRoute configures the Prometheus metrics endpoint
func setupMetricsRoute(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
