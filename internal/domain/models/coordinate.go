package models

import (
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
)

// Coordinate is an immutable WGS84 point in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PositionFix is a single timestamped GPS observation produced by a vehicle.
// Immutable once created; folded into rolling state by the tracker and evicted FIFO.
type PositionFix struct {
	TripID         uuid.UUID         `json:"trip_id"`
	VehicleID      uuid.UUID         `json:"vehicle_id"`
	Latitude       float64           `json:"latitude"`
	Longitude      float64           `json:"longitude"`
	AccuracyMeters float64           `json:"accuracy_meters"`
	SpeedMps       *float64          `json:"speed_mps,omitempty"`
	HeadingDeg     *float64          `json:"heading_deg,omitempty"`
	CapturedAtMs   int64             `json:"captured_at_epoch_ms"`
	Quality        types.QualityTier `json:"quality_tier"`
	Source         types.FixSource   `json:"source"`
}

func (f PositionFix) Coordinate() Coordinate {
	return Coordinate{Latitude: f.Latitude, Longitude: f.Longitude}
}

func (f PositionFix) CapturedAt() time.Time {
	return time.UnixMilli(f.CapturedAtMs)
}

// QualityFromAccuracy derives the quality tier from reported GPS accuracy.
func QualityFromAccuracy(accuracyMeters float64) types.QualityTier {
	switch {
	case accuracyMeters <= 5:
		return types.QualityExcellent
	case accuracyMeters <= 10:
		return types.QualityGood
	case accuracyMeters <= 20:
		return types.QualityFair
	case accuracyMeters <= 50:
		return types.QualityPoor
	default:
		return types.QualityVeryPoor
	}
}
