package hub

import (
	"context"
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/wshub"
)

/*=================Trip Persistence (collaborator)================*/

// TripRepo is the append-only trip persistence collaborator: fix log plus
// trip start/end records. This core does not define its schema.
type TripRepo interface {
	CreateTrip(ctx context.Context, trip *models.TripState) error
	EndTrip(ctx context.Context, tripID uuid.UUID, endedAt time.Time, totalDistanceKm float64) error
	AppendFix(ctx context.Context, fix models.PositionFix) error
	GetTrip(ctx context.Context, tripID uuid.UUID) (*models.TripState, error)
	ActiveTrips(ctx context.Context) ([]models.TripState, error)
	RecentFixes(ctx context.Context, tripID uuid.UUID, limit int) ([]models.PositionFix, error)
}

/*====================Transaction manager=========================*/

// TxManager runs a function inside one database transaction. Satisfied by
// *trm.Manager; a trip record and its first fix commit or roll back together.
type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

/*=================Route Lookup (collaborator)====================*/

// RouteRepo is the read-only route/stop lookup collaborator.
type RouteRepo interface {
	Get(ctx context.Context, routeID uuid.UUID) (*models.Route, error)
}

/*========================Publisher===============================*/

// Publisher re-publishes accepted events to the message broker for
// consumers outside this core (notifications, analytics).
type Publisher interface {
	PublishLocationUpdate(ctx context.Context, msg models.TrackingLocationMessage) error
	PublishTripLifecycle(ctx context.Context, eventType string, event models.TripLifecycleEvent) error
}

/*=====================Room Registry==============================*/

// RoomRegistry is the connection/room bookkeeping surface the hub drives.
// Implemented by *wshub.RoomHub; faked in tests.
type RoomRegistry interface {
	Add(conn *wshub.Conn) error
	Join(room string, entityID uuid.UUID) error
	Remove(entityID uuid.UUID) error
	Broadcast(room string, msg any) int
	Rooms() []string
	Len() int
}
