package dto

import (
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/validator"
)

type PositionFixReq struct {
	VehicleID      uuid.UUID `json:"vehicle_id"`
	Latitude       *float64  `json:"latitude"`
	Longitude      *float64  `json:"longitude"`
	AccuracyMeters *float64  `json:"accuracy_meters"`
	SpeedMps       *float64  `json:"speed_mps"`
	HeadingDeg     *float64  `json:"heading_deg"`
	CapturedAtMs   *int64    `json:"captured_at_epoch_ms"`
	Source         string    `json:"source"`
}

func (r *PositionFixReq) Validate(v *validator.Validator) {
	// VehicleID
	v.Check(r.VehicleID != uuid.UUID{}, "vehicle_id", "must be provided")

	// Coordinates
	if r.Latitude != nil && r.Longitude != nil {
		v.Check(*r.Latitude >= -90 && *r.Latitude <= 90, "latitude", "must be between -90 and 90")
		v.Check(*r.Longitude >= -180 && *r.Longitude <= 180, "longitude", "must be between -180 and 180")
	} else {
		v.Check(r.Latitude != nil, "latitude", "must be provided")
		v.Check(r.Longitude != nil, "longitude", "must be provided")
	}

	// Accuracy
	v.Check(r.AccuracyMeters != nil, "accuracy_meters", "must be provided")
	if r.AccuracyMeters != nil {
		v.Check(*r.AccuracyMeters >= 0, "accuracy_meters", "must not be negative")
	}

	// Heading
	if r.HeadingDeg != nil {
		v.Check(*r.HeadingDeg >= 0 && *r.HeadingDeg < 360, "heading_deg", "must be between 0 and 360")
	}

	// Capture time
	v.Check(r.CapturedAtMs != nil, "captured_at_epoch_ms", "must be provided")
	if r.CapturedAtMs != nil {
		v.Check(*r.CapturedAtMs > 0, "captured_at_epoch_ms", "must be a positive epoch timestamp")
	}

	// Source
	if r.Source != "" {
		v.Check(validator.PermittedValue(types.FixSource(r.Source),
			types.SourceDeviceSensor, types.SourceSimulated),
			"source", "must be device-sensor or simulated")
	}
}

func (r *PositionFixReq) ToModel(tripID uuid.UUID) models.PositionFix {
	source := types.FixSource(r.Source)
	if source == "" {
		source = types.SourceDeviceSensor
	}

	return models.PositionFix{
		TripID:         tripID,
		VehicleID:      r.VehicleID,
		Latitude:       *r.Latitude,
		Longitude:      *r.Longitude,
		AccuracyMeters: *r.AccuracyMeters,
		SpeedMps:       r.SpeedMps,
		HeadingDeg:     r.HeadingDeg,
		CapturedAtMs:   *r.CapturedAtMs,
		Source:         source,
	}
}

// IngestBatchReq is the fallback-channel payload: the fixes a producer
// could not deliver over its socket, oldest first.
type IngestBatchReq struct {
	Fixes []PositionFixReq `json:"fixes"`
}

func (r *IngestBatchReq) Validate(v *validator.Validator) {
	v.Check(len(r.Fixes) > 0, "fixes", "must contain at least one fix")
	v.Check(len(r.Fixes) <= 100, "fixes", "must not contain more than 100 fixes")

	for i := range r.Fixes {
		r.Fixes[i].Validate(v)
	}
}

// StartTripReq creates a trip. The optional initial fix is persisted in the
// same transaction as the trip record.
type StartTripReq struct {
	VehicleID  uuid.UUID       `json:"vehicle_id"`
	RouteID    uuid.UUID       `json:"route_id"`
	OwnerID    uuid.UUID       `json:"owner_id"`
	InitialFix *PositionFixReq `json:"initial_fix,omitempty"`
}

func (r *StartTripReq) Validate(v *validator.Validator) {
	v.Check(r.VehicleID != uuid.UUID{}, "vehicle_id", "must be provided")
	v.Check(r.RouteID != uuid.UUID{}, "route_id", "must be provided")
	v.Check(r.OwnerID != uuid.UUID{}, "owner_id", "must be provided")

	if r.InitialFix != nil {
		r.InitialFix.Validate(v)
	}
}

type StopEtaReq struct {
	StopID uuid.UUID `json:"stop_id"`
}

func (r *StopEtaReq) Validate(v *validator.Validator) {
	v.Check(r.StopID != uuid.UUID{}, "stop_id", "must be provided")
}
