package models

import (
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
)

// Route is read-only reference data supplied by the administration subsystem.
type Route struct {
	ID                       uuid.UUID  `json:"id"`
	Start                    Coordinate `json:"start"`
	End                      Coordinate `json:"end"`
	EstimatedDurationMinutes int        `json:"estimated_duration_minutes"`
	Stops                    []Stop     `json:"stops"`
}

type Stop struct {
	ID                            uuid.UUID  `json:"id"`
	Coord                         Coordinate `json:"coord"`
	CumulativeEtaMinutesFromStart int        `json:"cumulative_eta_minutes_from_start"`
}

// StopProximityResult is derived per observation and never persisted.
type StopProximityResult struct {
	Status          types.StopStatus `json:"status"`
	DistanceKm      float64          `json:"distance_km"`
	EtaMinutes      *int             `json:"eta_minutes,omitempty"`
	ArrivalAt       *time.Time       `json:"arrival_at,omitempty"`
	BlendedSpeedKmh *float64         `json:"blended_speed_kmh,omitempty"`
}
