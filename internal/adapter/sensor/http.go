package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
)

// HTTPSource reads the current position from an on-board device gateway
// exposing a tiny HTTP endpoint. Typical for retrofitted fleets where the
// GPS unit and the transmit unit are separate boxes on one LAN.
type HTTPSource struct {
	feedURL   string
	tripID    uuid.UUID
	vehicleID uuid.UUID
	client    *http.Client
}

func NewHTTPSource(feedURL string, tripID, vehicleID uuid.UUID, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		feedURL:   feedURL,
		tripID:    tripID,
		vehicleID: vehicleID,
		client:    &http.Client{Timeout: timeout},
	}
}

// reading mirrors the device gateway's JSON document.
type reading struct {
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	AccuracyMeters float64  `json:"accuracy_meters"`
	SpeedMps       *float64 `json:"speed_mps"`
	HeadingDeg     *float64 `json:"heading_deg"`
	CapturedAtMs   int64    `json:"captured_at_epoch_ms"`
}

func (s *HTTPSource) Sample(ctx context.Context) (models.PositionFix, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return models.PositionFix{}, fmt.Errorf("sensor: build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return models.PositionFix{}, fmt.Errorf("sensor: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return models.PositionFix{}, fmt.Errorf("sensor: gateway returned %d", resp.StatusCode)
	}

	var r reading
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return models.PositionFix{}, fmt.Errorf("sensor: decode reading: %w", err)
	}

	capturedAt := r.CapturedAtMs
	if capturedAt == 0 {
		capturedAt = time.Now().UnixMilli()
	}

	return models.PositionFix{
		TripID:         s.tripID,
		VehicleID:      s.vehicleID,
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		AccuracyMeters: r.AccuracyMeters,
		SpeedMps:       r.SpeedMps,
		HeadingDeg:     r.HeadingDeg,
		CapturedAtMs:   capturedAt,
		Source:         types.SourceDeviceSensor,
	}, nil
}
