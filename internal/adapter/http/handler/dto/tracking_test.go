package dto

import (
	"testing"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/validator"
)

func ptr[T any](v T) *T { return &v }

func validFixReq() PositionFixReq {
	return PositionFixReq{
		VehicleID:      uuid.New(),
		Latitude:       ptr(43.238949),
		Longitude:      ptr(76.889709),
		AccuracyMeters: ptr(7.5),
		CapturedAtMs:   ptr(int64(1_700_000_000_000)),
		Source:         types.SourceDeviceSensor.String(),
	}
}

func TestPositionFixReq_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(r *PositionFixReq)
		badField string
	}{
		{"valid", func(r *PositionFixReq) {}, ""},
		{"missing vehicle id", func(r *PositionFixReq) { r.VehicleID = uuid.UUID{} }, "vehicle_id"},
		{"missing latitude", func(r *PositionFixReq) { r.Latitude = nil }, "latitude"},
		{"latitude out of range", func(r *PositionFixReq) { r.Latitude = ptr(91.0) }, "latitude"},
		{"longitude out of range", func(r *PositionFixReq) { r.Longitude = ptr(-181.0) }, "longitude"},
		{"missing accuracy", func(r *PositionFixReq) { r.AccuracyMeters = nil }, "accuracy_meters"},
		{"negative accuracy", func(r *PositionFixReq) { r.AccuracyMeters = ptr(-1.0) }, "accuracy_meters"},
		{"heading out of range", func(r *PositionFixReq) { r.HeadingDeg = ptr(360.0) }, "heading_deg"},
		{"missing capture time", func(r *PositionFixReq) { r.CapturedAtMs = nil }, "captured_at_epoch_ms"},
		{"zero capture time", func(r *PositionFixReq) { r.CapturedAtMs = ptr(int64(0)) }, "captured_at_epoch_ms"},
		{"unknown source", func(r *PositionFixReq) { r.Source = "carrier-pigeon" }, "source"},
		{"empty source allowed", func(r *PositionFixReq) { r.Source = "" }, ""},
		{"simulated source allowed", func(r *PositionFixReq) { r.Source = types.SourceSimulated.String() }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validFixReq()
			tt.mutate(&req)

			v := validator.New()
			req.Validate(v)

			if tt.badField == "" {
				if !v.Valid() {
					t.Fatalf("expected valid, got errors: %v", v.Errors)
				}
				return
			}
			if v.Valid() {
				t.Fatal("expected validation failure")
			}
			if _, ok := v.Errors[tt.badField]; !ok {
				t.Fatalf("expected error on %q, got %v", tt.badField, v.Errors)
			}
		})
	}
}

func TestPositionFixReq_ToModel(t *testing.T) {
	req := validFixReq()
	req.Source = ""
	tripID := uuid.New()

	fix := req.ToModel(tripID)

	if fix.TripID != tripID {
		t.Fatal("trip id not carried over")
	}
	if fix.Source != types.SourceDeviceSensor {
		t.Fatalf("empty source must default to %s, got %s", types.SourceDeviceSensor, fix.Source)
	}
	if fix.Latitude != *req.Latitude || fix.Longitude != *req.Longitude {
		t.Fatal("coordinates not carried over")
	}
}

func TestIngestBatchReq_Validate(t *testing.T) {
	v := validator.New()
	(&IngestBatchReq{}).Validate(v)
	if v.Valid() {
		t.Fatal("empty batch must be rejected")
	}

	big := IngestBatchReq{Fixes: make([]PositionFixReq, 101)}
	for i := range big.Fixes {
		big.Fixes[i] = validFixReq()
	}
	v = validator.New()
	big.Validate(v)
	if _, ok := v.Errors["fixes"]; !ok {
		t.Fatalf("oversized batch must be rejected, got %v", v.Errors)
	}

	ok := IngestBatchReq{Fixes: []PositionFixReq{validFixReq(), validFixReq()}}
	v = validator.New()
	ok.Validate(v)
	if !v.Valid() {
		t.Fatalf("valid batch rejected: %v", v.Errors)
	}
}

func TestStartTripReq_Validate(t *testing.T) {
	v := validator.New()
	(&StartTripReq{}).Validate(v)
	for _, field := range []string{"vehicle_id", "route_id", "owner_id"} {
		if _, ok := v.Errors[field]; !ok {
			t.Fatalf("expected error on %q, got %v", field, v.Errors)
		}
	}

	req := StartTripReq{VehicleID: uuid.New(), RouteID: uuid.New(), OwnerID: uuid.New()}
	v = validator.New()
	req.Validate(v)
	if !v.Valid() {
		t.Fatalf("valid request rejected: %v", v.Errors)
	}
}
