package hubclient

import (
	"bytes"
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

// HTTPClient is the batched fallback channel: parked fixes are POSTed to
// the hub's REST ingestion endpoint when the socket is down.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// StartTrip asks the hub to create a trip for this vehicle and returns the
// assigned trip ID.
func (c *HTTPClient) StartTrip(ctx context.Context, vehicleID, routeID, ownerID uuid.UUID) (uuid.UUID, error) {
	body, err := json.Marshal(map[string]any{
		"vehicle_id": vehicleID,
		"route_id":   routeID,
		"owner_id":   ownerID,
	})
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("hub client: marshal start trip: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/trips", bytes.NewReader(body))
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("hub client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: %w", types.ErrHubUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return uuid.UUID{}, fmt.Errorf("%w: hub returned %d", types.ErrHubUnreachable, resp.StatusCode)
	}

	var reply struct {
		TripID uuid.UUID `json:"trip_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return uuid.UUID{}, fmt.Errorf("hub client: decode start trip reply: %w", err)
	}

	return reply.TripID, nil
}

// GetRoute fetches route geometry from the hub. The simulator needs the
// stop sequence; vehicles have no database of their own.
func (c *HTTPClient) GetRoute(ctx context.Context, routeID uuid.UUID) (*models.Route, error) {
	url := fmt.Sprintf("%s/routes/%s", c.baseURL, routeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("hub client: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrHubUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: hub returned %d", types.ErrHubUnreachable, resp.StatusCode)
	}

	var reply struct {
		Route models.Route `json:"route"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("hub client: decode route reply: %w", err)
	}

	return &reply.Route, nil
}

// LatestFix returns the newest retained fix of a trip. The consumer hook
// polls this on its cadence; freshness beyond the retained window comes over
// the push channel, which consumers do not hold.
func (c *HTTPClient) LatestFix(ctx context.Context, tripID uuid.UUID) (models.PositionFix, error) {
	url := fmt.Sprintf("%s/trips/%s/positions", c.baseURL, tripID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.PositionFix{}, fmt.Errorf("hub client: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return models.PositionFix{}, fmt.Errorf("%w: %w", types.ErrHubUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.PositionFix{}, fmt.Errorf("%w: hub returned %d", types.ErrHubUnreachable, resp.StatusCode)
	}

	var reply struct {
		Positions []models.PositionFix `json:"positions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return models.PositionFix{}, fmt.Errorf("hub client: decode positions reply: %w", err)
	}
	if len(reply.Positions) == 0 {
		return models.PositionFix{}, fmt.Errorf("hub client: trip %s has no positions yet", tripID)
	}

	// the hub returns the window oldest first
	return reply.Positions[len(reply.Positions)-1], nil
}

// SendBatch ships the fixes grouped per trip. Fixes in one producer batch
// normally share a trip; the grouping keeps the endpoint contract simple.
func (c *HTTPClient) SendBatch(ctx context.Context, fixes []models.PositionFix) error {
	byTrip := make(map[uuid.UUID][]models.PositionFix)
	for _, fix := range fixes {
		byTrip[fix.TripID] = append(byTrip[fix.TripID], fix)
	}

	for tripID, batch := range byTrip {
		if err := c.postBatch(ctx, tripID, batch); err != nil {
			return err
		}
	}
	return nil
}

func (c *HTTPClient) postBatch(ctx context.Context, tripID uuid.UUID, fixes []models.PositionFix) error {
	body, err := json.Marshal(map[string]any{"fixes": fixes})
	if err != nil {
		return fmt.Errorf("hub client: marshal batch: %w", err)
	}

	url := fmt.Sprintf("%s/trips/%s/positions", c.baseURL, tripID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("hub client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrHubUnreachable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: hub returned %d", types.ErrHubUnreachable, resp.StatusCode)
	}

	return nil
}
