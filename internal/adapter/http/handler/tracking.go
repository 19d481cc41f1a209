package handler

import (
	"context"
	"net/http"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/adapter/http/handler/dto"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/service/hub"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger"
	wrap "github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger/wrapper"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/validator"
)

type Tracking struct {
	service TrackingService
	l       logger.Logger
}

type TrackingService interface {
	StartTrip(ctx context.Context, tripID, vehicleID, routeID, ownerID uuid.UUID, initialFix *models.PositionFix) (models.TripState, error)
	EndTrip(ctx context.Context, tripID uuid.UUID) (models.TripState, error)
	Ingest(ctx context.Context, fix models.PositionFix) (models.TripState, error)
	EstimatesForStop(ctx context.Context, routeID, stopID uuid.UUID) ([]hub.StopEstimate, error)
	TripSnapshot(ctx context.Context, tripID uuid.UUID) (models.TripState, error)
	RecentFixes(tripID uuid.UUID) ([]models.PositionFix, error)
	Route(ctx context.Context, routeID uuid.UUID) (*models.Route, error)
}

func NewTracking(service TrackingService, l logger.Logger) *Tracking {
	return &Tracking{
		service: service,
		l:       l,
	}
}

// StartTrip godoc
// @Summary      Start a trip
// @Description  Creates authoritative trip state for a vehicle on a route
// @Tags         Trips
// @Accept       json
// @Produce      json
// @Param        request body dto.StartTripReq true "Trip details"
// @Success      201  {object}  map[string]any
// @Failure      422  {object}  map[string]any
// @Router       /trips [post]
func (h *Tracking) StartTrip(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "start_trip")

	var req dto.StartTripReq
	if err := readJSON(w, r, &req); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to read request JSON data", err)
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		h.l.Warn(ctx, "invalid request data")
		failedValidationResponse(w, v.Errors)
		return
	}

	tripID := uuid.New()

	var initialFix *models.PositionFix
	if req.InitialFix != nil {
		fix := req.InitialFix.ToModel(tripID)
		initialFix = &fix
	}

	trip, err := h.service.StartTrip(ctx, tripID, req.VehicleID, req.RouteID, req.OwnerID, initialFix)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to start trip", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{
		"trip_id":    trip.TripID,
		"status":     trip.Status,
		"started_at": trip.StartedAt,
	}

	if err := writeJSON(w, http.StatusCreated, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "trip started successfully", "trip_id", trip.TripID, "vehicle_id", req.VehicleID)
}

// EndTrip godoc
// @Summary      End a trip
// @Description  Marks the trip ended and broadcasts the final summary
// @Tags         Trips
// @Produce      json
// @Param        trip_id path string true "Trip ID"
// @Success      200  {object}  map[string]any
// @Failure      404  {object}  map[string]any
// @Router       /trips/{trip_id}/end [post]
func (h *Tracking) EndTrip(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "end_trip")

	tripID, err := uuid.Parse(r.PathValue("trip_id"))
	if err != nil {
		h.l.Warn(ctx, "invalid trip uuid format")
		errorResponse(w, http.StatusBadRequest, "invalid trip uuid format")
		return
	}

	trip, err := h.service.EndTrip(ctx, tripID)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to end trip", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{
		"trip_id":           trip.TripID,
		"status":            trip.Status,
		"ended_at":          trip.EndedAt,
		"total_distance_km": trip.TotalDistanceKm,
		"quality_histogram": trip.QualityCounts,
	}

	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "trip ended successfully", "trip_id", tripID)
}

// IngestPositions godoc
// @Summary      Ingest position fixes
// @Description  Fallback channel for producers: accepts a batch of fixes for one trip
// @Tags         Trips
// @Accept       json
// @Produce      json
// @Param        trip_id path string true "Trip ID"
// @Param        request body dto.IngestBatchReq true "Position fixes, oldest first"
// @Success      200  {object}  map[string]any
// @Failure      422  {object}  map[string]any
// @Router       /trips/{trip_id}/positions [post]
func (h *Tracking) IngestPositions(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "ingest_positions")

	tripID, err := uuid.Parse(r.PathValue("trip_id"))
	if err != nil {
		h.l.Warn(ctx, "invalid trip uuid format")
		errorResponse(w, http.StatusBadRequest, "invalid trip uuid format")
		return
	}

	var req dto.IngestBatchReq
	if err := readJSON(w, r, &req); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to read request JSON data", err)
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		h.l.Warn(ctx, "invalid request data")
		failedValidationResponse(w, v.Errors)
		return
	}

	// stale fixes in a late batch are expected, not an error: count them
	// and keep folding the rest
	accepted, rejected := 0, 0
	for _, fixReq := range req.Fixes {
		if _, err := h.service.Ingest(ctx, fixReq.ToModel(tripID)); err != nil {
			rejected++
			continue
		}
		accepted++
	}

	response := envelope{
		"trip_id":  tripID,
		"accepted": accepted,
		"rejected": rejected,
	}

	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}
}

// GetTrip godoc
// @Summary      Trip state
// @Description  Returns the current authoritative state of a trip
// @Tags         Trips
// @Produce      json
// @Param        trip_id path string true "Trip ID"
// @Success      200  {object}  map[string]any
// @Failure      404  {object}  map[string]any
// @Router       /trips/{trip_id} [get]
func (h *Tracking) GetTrip(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "get_trip")

	tripID, err := uuid.Parse(r.PathValue("trip_id"))
	if err != nil {
		h.l.Warn(ctx, "invalid trip uuid format")
		errorResponse(w, http.StatusBadRequest, "invalid trip uuid format")
		return
	}

	trip, err := h.service.TripSnapshot(ctx, tripID)
	if err != nil {
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"trip": trip}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}
}

// GetTripPositions godoc
// @Summary      Recent positions
// @Description  Returns the retained fix history of a trip, oldest first
// @Tags         Trips
// @Produce      json
// @Param        trip_id path string true "Trip ID"
// @Success      200  {object}  map[string]any
// @Failure      404  {object}  map[string]any
// @Router       /trips/{trip_id}/positions [get]
func (h *Tracking) GetTripPositions(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "get_trip_positions")

	tripID, err := uuid.Parse(r.PathValue("trip_id"))
	if err != nil {
		h.l.Warn(ctx, "invalid trip uuid format")
		errorResponse(w, http.StatusBadRequest, "invalid trip uuid format")
		return
	}

	fixes, err := h.service.RecentFixes(tripID)
	if err != nil {
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"trip_id": tripID, "positions": fixes}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}
}

// GetRoute godoc
// @Summary      Route details
// @Description  Returns route geometry and stop sequence
// @Tags         Routes
// @Produce      json
// @Param        route_id path string true "Route ID"
// @Success      200  {object}  map[string]any
// @Failure      404  {object}  map[string]any
// @Router       /routes/{route_id} [get]
func (h *Tracking) GetRoute(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "get_route")

	routeID, err := uuid.Parse(r.PathValue("route_id"))
	if err != nil {
		h.l.Warn(ctx, "invalid route uuid format")
		errorResponse(w, http.StatusBadRequest, "invalid route uuid format")
		return
	}

	route, err := h.service.Route(ctx, routeID)
	if err != nil {
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"route": route}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}
}

// StopEta godoc
// @Summary      Stop arrival estimates
// @Description  Classifies every active vehicle on the route against a stop
// @Tags         Routes
// @Accept       json
// @Produce      json
// @Param        route_id path string true "Route ID"
// @Param        request body dto.StopEtaReq true "Target stop"
// @Success      200  {object}  map[string]any
// @Failure      404  {object}  map[string]any
// @Router       /routes/{route_id}/stops/eta [post]
func (h *Tracking) StopEta(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "stop_eta")

	routeID, err := uuid.Parse(r.PathValue("route_id"))
	if err != nil {
		h.l.Warn(ctx, "invalid route uuid format")
		errorResponse(w, http.StatusBadRequest, "invalid route uuid format")
		return
	}

	var req dto.StopEtaReq
	if err := readJSON(w, r, &req); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to read request JSON data", err)
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		h.l.Warn(ctx, "invalid request data")
		failedValidationResponse(w, v.Errors)
		return
	}

	estimates, err := h.service.EstimatesForStop(ctx, routeID, req.StopID)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to compute stop estimates", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{
		"route_id":  routeID,
		"stop_id":   req.StopID,
		"estimates": estimates,
	}

	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}
}
