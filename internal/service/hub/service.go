package hub

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/service/eta"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger"
	wrap "github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger/wrapper"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/metrics"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/wshub"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/service/tracker"
)

// Config tunes the hub's periodic loops.
type Config struct {
	HeartbeatInterval time.Duration // FLEET_SUMMARY cadence per fleet room
	LivenessWindow    time.Duration // silence after which a trip is force-ended
	RingCapacity      int           // retained fixes per vehicle
}

// session pairs one active trip with its reducer. The per-session mutex
// serializes all mutation of one trip while leaving other trips untouched.
type session struct {
	mu    sync.Mutex
	state *tracker.VehicleState

	tripID    uuid.UUID
	vehicleID uuid.UUID
	routeID   uuid.UUID
	ownerID   uuid.UUID
	route     *models.Route
}

// Service is the authoritative tracking hub: it ingests fixes, folds them
// into per-trip state, persists accepted fixes, re-publishes them to the
// broker and multicasts updates to the subscribed rooms.
type Service struct {
	trips     map[uuid.UUID]*session // keyed by trip ID
	byVehicle map[uuid.UUID]uuid.UUID
	mu        sync.RWMutex

	tripRepo  TripRepo
	routeRepo RouteRepo
	publisher Publisher
	rooms     RoomRegistry
	engine    *eta.Engine
	txm       TxManager

	cfg Config
	l   logger.Logger
	now func() time.Time
}

func New(tripRepo TripRepo, routeRepo RouteRepo, publisher Publisher, rooms RoomRegistry, engine *eta.Engine, txm TxManager, cfg Config, l logger.Logger) *Service {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}
	if cfg.LivenessWindow <= 0 {
		cfg.LivenessWindow = 45 * time.Second
	}

	return &Service{
		trips:     make(map[uuid.UUID]*session),
		byVehicle: make(map[uuid.UUID]uuid.UUID),
		tripRepo:  tripRepo,
		routeRepo: routeRepo,
		publisher: publisher,
		rooms:     rooms,
		engine:    engine,
		txm:       txm,
		cfg:       cfg,
		l:         l,
		now:       time.Now,
	}
}

/*=====================Connection placement=======================*/

// PlaceConnection registers an authenticated connection and joins it to the
// rooms its role grants: admins see the whole fleet, owners their own fleet,
// and everyone gets a self room for direct messages.
func (s *Service) PlaceConnection(conn *wshub.Conn, user *models.User) error {
	if err := s.rooms.Add(conn); err != nil {
		return err
	}

	if err := s.rooms.Join(types.UserRoom(user.ID), user.ID); err != nil {
		return err
	}

	switch user.Role {
	case types.RoleAdmin:
		if err := s.rooms.Join(types.RoomAllFleets, user.ID); err != nil {
			return err
		}
	case types.RoleOwner:
		if err := s.rooms.Join(types.FleetRoom(user.OwnerID), user.ID); err != nil {
			return err
		}
	}

	metrics.WebSocketConnectionsGauge.WithLabelValues(types.HubService.String()).Set(float64(s.rooms.Len()))

	return nil
}

// RemoveConnection drops a connection from the registry. The trip (if any)
// stays active: the liveness sweeper ends it only after the silence window,
// so a vehicle that reconnects quickly resumes the same trip.
func (s *Service) RemoveConnection(entityID uuid.UUID) {
	if err := s.rooms.Remove(entityID); err != nil {
		ctx := wrap.WithAction(context.Background(), "ws_connection_remove")
		s.l.Debug(ctx, "connection already gone", "entity_id", entityID)
	}

	metrics.WebSocketConnectionsGauge.WithLabelValues(types.HubService.String()).Set(float64(s.rooms.Len()))
}

/*======================Trip lifecycle============================*/

// StartTrip creates the authoritative state for a new journey and announces
// it to the admin room and the owning fleet's room. When the producer sends
// its first fix along, the trip record and the fix commit in one transaction:
// a trip never exists without its opening position, nor the other way round.
func (s *Service) StartTrip(ctx context.Context, tripID, vehicleID, routeID, ownerID uuid.UUID, initialFix *models.PositionFix) (models.TripState, error) {
	ctx = wrap.WithAction(ctx, types.ActionTripStarted)
	ctx = wrap.WithTripID(ctx, tripID.String())
	ctx = wrap.WithVehicleID(ctx, vehicleID.String())

	route, err := s.routeRepo.Get(ctx, routeID)
	if err != nil {
		return models.TripState{}, wrap.Error(ctx, fmt.Errorf("route lookup: %w", err))
	}

	if initialFix != nil {
		if err := validateFix(*initialFix); err != nil {
			return models.TripState{}, wrap.Error(ctx, err)
		}
		initialFix.TripID = tripID
		initialFix.VehicleID = vehicleID
		initialFix.Quality = models.QualityFromAccuracy(initialFix.AccuracyMeters)
	}

	startedAt := s.now()
	trip := &models.TripState{
		TripID:    tripID,
		VehicleID: vehicleID,
		RouteID:   routeID,
		OwnerID:   ownerID,
		Status:    types.TripActive,
		StartedAt: startedAt,
	}

	sess := &session{
		state:     tracker.NewVehicleState(trip, s.cfg.RingCapacity),
		tripID:    tripID,
		vehicleID: vehicleID,
		routeID:   routeID,
		ownerID:   ownerID,
		route:     route,
	}

	s.mu.Lock()
	if existingID, ok := s.byVehicle[vehicleID]; ok {
		s.mu.Unlock()
		return models.TripState{}, wrap.Error(ctx, fmt.Errorf("vehicle already on trip %s", existingID))
	}
	s.trips[tripID] = sess
	s.byVehicle[vehicleID] = tripID
	active := len(s.trips)
	s.mu.Unlock()

	if initialFix != nil {
		if err := sess.state.Apply(*initialFix); err != nil {
			s.detach(tripID, vehicleID)
			return models.TripState{}, wrap.Error(ctx, fmt.Errorf("apply initial fix: %w", err))
		}
	}

	err = s.txm.Do(ctx, func(ctx context.Context) error {
		if err := s.tripRepo.CreateTrip(ctx, trip); err != nil {
			return err
		}
		if initialFix != nil {
			return s.tripRepo.AppendFix(ctx, *initialFix)
		}
		return nil
	})
	if err != nil {
		s.detach(tripID, vehicleID)
		return models.TripState{}, wrap.Error(ctx, fmt.Errorf("persist trip: %w", err))
	}

	metrics.ActiveTripsGauge.WithLabelValues(types.HubService.String()).Set(float64(active))

	s.announceLifecycle(ctx, types.EventTripStarted, models.TripLifecycleEvent{
		TripID:    tripID,
		VehicleID: vehicleID,
		RouteID:   routeID,
		OwnerID:   ownerID,
		StartedAt: &startedAt,
	})

	s.l.Info(ctx, "trip started", "route_id", routeID, "owner_id", ownerID)

	return sess.state.Snapshot(), nil
}

// EndTrip marks a trip ended, persists the final totals and announces the
// end to the admin and owner rooms. Idempotent: ending an ended or unknown
// trip returns ErrTripNotFound / ErrTripEnded without side effects.
func (s *Service) EndTrip(ctx context.Context, tripID uuid.UUID) (models.TripState, error) {
	ctx = wrap.WithAction(ctx, types.ActionTripEnded)
	ctx = wrap.WithTripID(ctx, tripID.String())

	s.mu.RLock()
	sess, ok := s.trips[tripID]
	s.mu.RUnlock()
	if !ok {
		return models.TripState{}, wrap.Error(ctx, types.ErrTripNotFound)
	}

	sess.mu.Lock()
	if sess.state.Status() == types.TripEnded {
		sess.mu.Unlock()
		return models.TripState{}, wrap.Error(ctx, types.ErrTripEnded)
	}
	endedAt := s.now()
	sess.state.End(endedAt)
	snapshot := sess.state.Snapshot()
	sess.mu.Unlock()

	s.detach(tripID, sess.vehicleID)

	if err := s.tripRepo.EndTrip(ctx, tripID, endedAt, snapshot.TotalDistanceKm); err != nil {
		s.l.Error(ctx, "failed to persist trip end", err)
	}

	s.mu.RLock()
	active := len(s.trips)
	s.mu.RUnlock()
	metrics.ActiveTripsGauge.WithLabelValues(types.HubService.String()).Set(float64(active))

	s.announceLifecycle(ctx, types.EventTripEnded, models.TripLifecycleEvent{
		TripID:    tripID,
		VehicleID: snapshot.VehicleID,
		RouteID:   snapshot.RouteID,
		OwnerID:   snapshot.OwnerID,
		EndedAt:   &endedAt,
	})

	s.l.Info(ctx, "trip ended",
		"total_distance_km", snapshot.TotalDistanceKm,
		"ended_at", endedAt,
	)

	return snapshot, nil
}

func (s *Service) detach(tripID, vehicleID uuid.UUID) {
	s.mu.Lock()
	delete(s.trips, tripID)
	delete(s.byVehicle, vehicleID)
	s.mu.Unlock()
}

// announceLifecycle multicasts a trip start/end to the admin-wide room and
// the owning fleet's room only. Passenger self rooms never receive these.
func (s *Service) announceLifecycle(ctx context.Context, eventType types.TrackingEvent, event models.TripLifecycleEvent) {
	msg := models.TrackingWebSocketMessage{EventType: eventType, Data: event}

	s.rooms.Broadcast(types.RoomAllFleets, msg)
	s.rooms.Broadcast(types.FleetRoom(event.OwnerID), msg)
	metrics.BroadcastEventsTotal.WithLabelValues(types.HubService.String(), eventType.String()).Inc()

	if err := s.publisher.PublishTripLifecycle(ctx, eventType.String(), event); err != nil {
		s.l.Warn(ctx, "failed to publish lifecycle event to broker", "err", err.Error())
	}
}

// RecoverActiveTrips rebuilds in-memory sessions from trips persisted as
// active, replaying each trip's retained fix log into a fresh reducer.
// Called once at startup, before any ingestion: a hub restart must not
// end every journey in flight. Returns the number of recovered trips.
func (s *Service) RecoverActiveTrips(ctx context.Context) (int, error) {
	ctx = wrap.WithAction(ctx, types.ActionTripRecovered)

	trips, err := s.tripRepo.ActiveTrips(ctx)
	if err != nil {
		return 0, wrap.Error(ctx, fmt.Errorf("load active trips: %w", err))
	}

	limit := s.cfg.RingCapacity
	if limit <= 0 {
		limit = tracker.DefaultRingCapacity
	}

	recovered := 0
	for i := range trips {
		trip := trips[i]
		tripCtx := wrap.WithTripID(ctx, trip.TripID.String())

		route, err := s.routeRepo.Get(tripCtx, trip.RouteID)
		if err != nil {
			s.l.Warn(tripCtx, "skipping trip with unknown route", "route_id", trip.RouteID)
			continue
		}

		fixes, err := s.tripRepo.RecentFixes(tripCtx, trip.TripID, limit)
		if err != nil {
			s.l.Warn(tripCtx, "skipping trip, fix log unreadable", "err", err.Error())
			continue
		}

		state := tracker.NewVehicleState(&trip, s.cfg.RingCapacity)
		state.Restore(fixes)

		sess := &session{
			state:     state,
			tripID:    trip.TripID,
			vehicleID: trip.VehicleID,
			routeID:   trip.RouteID,
			ownerID:   trip.OwnerID,
			route:     route,
		}

		s.mu.Lock()
		if _, ok := s.byVehicle[trip.VehicleID]; ok {
			s.mu.Unlock()
			s.l.Warn(tripCtx, "vehicle already has a session, skipping", "vehicle_id", trip.VehicleID)
			continue
		}
		s.trips[trip.TripID] = sess
		s.byVehicle[trip.VehicleID] = trip.TripID
		s.mu.Unlock()
		recovered++
	}

	s.mu.RLock()
	active := len(s.trips)
	s.mu.RUnlock()
	metrics.ActiveTripsGauge.WithLabelValues(types.HubService.String()).Set(float64(active))

	if recovered > 0 {
		s.l.Info(ctx, "recovered active trips", "count", recovered)
	}

	return recovered, nil
}

/*========================Fix ingestion===========================*/

// Ingest validates a fix, folds it into the trip's rolling state, persists
// it, re-publishes it to the broker and multicasts the update. Per-trip
// mutation is serialized by the session lock; trips never block each other.
func (s *Service) Ingest(ctx context.Context, fix models.PositionFix) (models.TripState, error) {
	ctx = wrap.WithAction(ctx, types.ActionFixIngested)
	ctx = wrap.WithTripID(ctx, fix.TripID.String())
	ctx = wrap.WithVehicleID(ctx, fix.VehicleID.String())

	if err := validateFix(fix); err != nil {
		metrics.FixesRejectedTotal.WithLabelValues(types.HubService.String(), "invalid").Inc()
		return models.TripState{}, wrap.Error(ctx, err)
	}

	s.mu.RLock()
	sess, ok := s.trips[fix.TripID]
	s.mu.RUnlock()
	if !ok {
		metrics.FixesRejectedTotal.WithLabelValues(types.HubService.String(), "unknown_trip").Inc()
		return models.TripState{}, wrap.Error(ctx, types.ErrTripNotFound)
	}

	fix.Quality = models.QualityFromAccuracy(fix.AccuracyMeters)

	sess.mu.Lock()
	err := sess.state.Apply(fix)
	var snapshot models.TripState
	if err == nil {
		snapshot = sess.state.Snapshot()
	}
	sess.mu.Unlock()

	if err != nil {
		reason := "stale"
		if err == types.ErrTripEnded {
			reason = "trip_ended"
		}
		metrics.FixesRejectedTotal.WithLabelValues(types.HubService.String(), reason).Inc()
		return models.TripState{}, wrap.Error(ctx, err)
	}

	metrics.FixesIngestedTotal.WithLabelValues(types.HubService.String(), fix.Source.String()).Inc()

	// persistence is append-only and off the hot decision path: a failed
	// insert is logged, the live state is already updated
	if err := s.tripRepo.AppendFix(ctx, fix); err != nil {
		s.l.Error(ctx, "failed to append fix", err)
	}

	event := models.PositionUpdateEvent{
		PositionFix: fix,
		RouteID:     sess.routeID,
		OwnerID:     sess.ownerID,
	}

	if err := s.publisher.PublishLocationUpdate(ctx, models.TrackingLocationMessage{
		PositionUpdateEvent: event,
		PublishedAt:         s.now(),
	}); err != nil {
		s.l.Warn(ctx, "failed to publish location update to broker", "err", err.Error())
	}

	msg := models.TrackingWebSocketMessage{EventType: types.EventPositionUpdated, Data: event}
	s.rooms.Broadcast(types.RoomAllFleets, msg)
	s.rooms.Broadcast(types.FleetRoom(sess.ownerID), msg)
	metrics.BroadcastEventsTotal.WithLabelValues(types.HubService.String(), types.EventPositionUpdated.String()).Inc()

	return snapshot, nil
}

func validateFix(fix models.PositionFix) error {
	switch {
	case fix.Latitude < -90 || fix.Latitude > 90,
		fix.Longitude < -180 || fix.Longitude > 180,
		math.IsNaN(fix.Latitude) || math.IsNaN(fix.Longitude),
		fix.AccuracyMeters < 0,
		fix.CapturedAtMs <= 0:
		return types.ErrInvalidFix
	}
	return nil
}

/*========================Stop queries============================*/

// StopEstimate is one vehicle's relationship to the queried stop.
type StopEstimate struct {
	TripID    uuid.UUID                  `json:"trip_id"`
	VehicleID uuid.UUID                  `json:"vehicle_id"`
	Result    models.StopProximityResult `json:"result"`
}

// EstimatesForStop classifies every active vehicle on the route against the
// given stop. Derived on demand from current state, never persisted.
func (s *Service) EstimatesForStop(ctx context.Context, routeID, stopID uuid.UUID) ([]StopEstimate, error) {
	route, err := s.routeRepo.Get(ctx, routeID)
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("route lookup: %w", err))
	}

	var stop *models.Stop
	for i := range route.Stops {
		if route.Stops[i].ID == stopID {
			stop = &route.Stops[i]
			break
		}
	}
	if stop == nil {
		return nil, wrap.Error(ctx, types.ErrStopNotFound)
	}

	s.mu.RLock()
	sessions := make([]*session, 0, len(s.trips))
	for _, sess := range s.trips {
		if sess.routeID == routeID {
			sessions = append(sessions, sess)
		}
	}
	s.mu.RUnlock()

	estimates := make([]StopEstimate, 0, len(sessions))
	for _, sess := range sessions {
		sess.mu.Lock()
		snapshot := sess.state.Snapshot()
		sess.mu.Unlock()

		estimates = append(estimates, StopEstimate{
			TripID:    sess.tripID,
			VehicleID: sess.vehicleID,
			Result:    s.engine.Classify(snapshot.CurrentFix, snapshot.PreviousFix, stop.Coord, route),
		})
	}

	return estimates, nil
}

// Route exposes route reference data to producers that have no database.
func (s *Service) Route(ctx context.Context, routeID uuid.UUID) (*models.Route, error) {
	route, err := s.routeRepo.Get(ctx, routeID)
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("route lookup: %w", err))
	}
	return route, nil
}

/*=====================Background loops===========================*/

// Run drives the heartbeat and liveness loops until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	sweep := time.NewTicker(s.cfg.LivenessWindow / 3)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			s.broadcastFleetSummaries(ctx)
		case <-sweep.C:
			s.sweepSilentTrips(ctx)
		}
	}
}

// broadcastFleetSummaries pushes a FLEET_SUMMARY heartbeat into every fleet
// room: global counts to the admin room, per-owner counts to owner rooms.
// Sent every tick even when nothing moved, so dashboards can distinguish
// "nothing is happening" from "the feed is broken".
func (s *Service) broadcastFleetSummaries(ctx context.Context) {
	ctx = wrap.WithAction(ctx, types.ActionFleetSummary)
	ts := s.now()

	s.mu.RLock()
	total := 0
	perOwner := make(map[uuid.UUID]int)
	for _, sess := range s.trips {
		total++
		perOwner[sess.ownerID]++
	}
	s.mu.RUnlock()

	s.rooms.Broadcast(types.RoomAllFleets, models.TrackingWebSocketMessage{
		EventType: types.EventFleetSummary,
		Data:      models.FleetSummary{ActiveVehicleCount: total, Timestamp: ts},
	})

	for _, room := range s.rooms.Rooms() {
		ownerID, ok := parseFleetRoom(room)
		if !ok {
			continue
		}
		s.rooms.Broadcast(room, models.TrackingWebSocketMessage{
			EventType: types.EventFleetSummary,
			Data:      models.FleetSummary{ActiveVehicleCount: perOwner[ownerID], Timestamp: ts},
		})
	}

	metrics.BroadcastEventsTotal.WithLabelValues(types.HubService.String(), types.EventFleetSummary.String()).Inc()
}

func parseFleetRoom(room string) (uuid.UUID, bool) {
	const prefix = "fleet:"
	if len(room) <= len(prefix) || room[:len(prefix)] != prefix || room == types.RoomAllFleets {
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(room[len(prefix):])
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

// sweepSilentTrips ends every trip that has been silent longer than the
// liveness window. A vehicle that merely dropped its socket keeps its trip
// until the window elapses, so brief reconnects resume seamlessly.
func (s *Service) sweepSilentTrips(ctx context.Context) {
	ctx = wrap.WithAction(ctx, types.ActionLivenessSweep)
	cutoff := s.now().Add(-s.cfg.LivenessWindow)

	s.mu.RLock()
	var silent []uuid.UUID
	for tripID, sess := range s.trips {
		sess.mu.Lock()
		lastSeen := sess.state.LastFixAt()
		if lastSeen.IsZero() {
			lastSeen = sess.state.Snapshot().StartedAt
		}
		sess.mu.Unlock()

		if lastSeen.Before(cutoff) {
			silent = append(silent, tripID)
		}
	}
	s.mu.RUnlock()

	for _, tripID := range silent {
		s.l.Warn(wrap.WithTripID(ctx, tripID.String()), "ending silent trip")
		if _, err := s.EndTrip(ctx, tripID); err != nil {
			s.l.Debug(ctx, "silent trip already gone", "trip_id", tripID)
		}
	}
}

/*=========================Read model=============================*/

// TripSnapshot returns a copy of one trip's current state. Trips no longer
// in memory (ended, or started before the last restart and since closed)
// are read back from the trip store.
func (s *Service) TripSnapshot(ctx context.Context, tripID uuid.UUID) (models.TripState, error) {
	s.mu.RLock()
	sess, ok := s.trips[tripID]
	s.mu.RUnlock()
	if !ok {
		trip, err := s.tripRepo.GetTrip(ctx, tripID)
		if err != nil {
			return models.TripState{}, err
		}
		return *trip, nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state.Snapshot(), nil
}

// RecentFixes returns the retained fix history of one trip, oldest first.
func (s *Service) RecentFixes(tripID uuid.UUID) ([]models.PositionFix, error) {
	s.mu.RLock()
	sess, ok := s.trips[tripID]
	s.mu.RUnlock()
	if !ok {
		return nil, types.ErrTripNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state.RecentFixes(), nil
}

// ActiveTripCount reports how many trips are currently active.
func (s *Service) ActiveTripCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trips)
}
