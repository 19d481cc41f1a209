package models

import (
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
)

// TrackingWebSocketMessage is the envelope for every event fanned out to rooms.
type TrackingWebSocketMessage struct {
	EventType types.TrackingEvent `json:"event_type"`
	Data      any                 `json:"data"`
}

// PositionUpdateEvent carries an accepted fix plus owning identifiers
// so dashboards can attribute it without a lookup.
type PositionUpdateEvent struct {
	PositionFix

	RouteID uuid.UUID `json:"route_id"`
	OwnerID uuid.UUID `json:"owner_id"`
}

// TripLifecycleEvent announces a trip start or end to the admin and owner rooms.
type TripLifecycleEvent struct {
	TripID    uuid.UUID  `json:"trip_id"`
	VehicleID uuid.UUID  `json:"vehicle_id"`
	RouteID   uuid.UUID  `json:"route_id"`
	OwnerID   uuid.UUID  `json:"owner_id"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// RabbitMQ message: accepted fixes are re-published to <tracking_fanout>
// for consumers outside this core (notifications, analytics).
type TrackingLocationMessage struct {
	PositionUpdateEvent

	PublishedAt time.Time `json:"published_at"`
}
