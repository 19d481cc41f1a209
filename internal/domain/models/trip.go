package models

import (
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
)

// TripState is the authoritative server-owned state of one active journey.
// Mutated only by the ingestion path for the trip's vehicle.
type TripState struct {
	TripID          uuid.UUID                 `json:"trip_id"`
	VehicleID       uuid.UUID                 `json:"vehicle_id"`
	RouteID         uuid.UUID                 `json:"route_id"`
	OwnerID         uuid.UUID                 `json:"owner_id"`
	Status          types.TripStatus          `json:"status"`
	CurrentFix      *PositionFix              `json:"current_fix,omitempty"`
	PreviousFix     *PositionFix              `json:"previous_fix,omitempty"`
	StartedAt       time.Time                 `json:"started_at"`
	EndedAt         *time.Time                `json:"ended_at,omitempty"`
	LastFixAt       time.Time                 `json:"last_fix_at,omitzero"`
	TotalDistanceKm float64                   `json:"total_distance_km"`
	QualityCounts   map[types.QualityTier]int `json:"quality_histogram"`
}

// FleetSummary is the periodic heartbeat snapshot pushed to every fleet room.
type FleetSummary struct {
	ActiveVehicleCount int       `json:"active_vehicle_count"`
	Timestamp          time.Time `json:"timestamp"`
}
