package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/metrics"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
)

// RouteRepo reads the route reference data owned by the administration
// subsystem. Read-only here: routes and stops are never written by tracking.
type RouteRepo struct {
	db *pgxpool.Pool
}

func NewRouteRepo(db *pgxpool.Pool) *RouteRepo {
	return &RouteRepo{db: db}
}

func (r *RouteRepo) Get(ctx context.Context, routeID uuid.UUID) (*models.Route, error) {
	q := TxorDB(ctx, r.db)

	routeQuery := `
        SELECT id, start_latitude, start_longitude, end_latitude, end_longitude, estimated_duration_minutes
        FROM routes
        WHERE id = $1;`

	var route models.Route
	start := time.Now()
	err := q.QueryRow(ctx, routeQuery, routeID).Scan(
		&route.ID,
		&route.Start.Latitude,
		&route.Start.Longitude,
		&route.End.Latitude,
		&route.End.Longitude,
		&route.EstimatedDurationMinutes,
	)
	metrics.RecordDatabaseQuery(types.HubService.String(), "get_route", err, time.Since(start))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrRouteNotFound
		}
		return nil, fmt.Errorf("route repo: Get: %w", err)
	}

	stopsQuery := `
        SELECT id, latitude, longitude, cumulative_eta_minutes
        FROM route_stops
        WHERE route_id = $1
        ORDER BY stop_order ASC;`

	start = time.Now()
	rows, err := q.Query(ctx, stopsQuery, routeID)
	metrics.RecordDatabaseQuery(types.HubService.String(), "get_route_stops", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("route repo: Get (stops): %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stop models.Stop
		if err := rows.Scan(
			&stop.ID,
			&stop.Coord.Latitude,
			&stop.Coord.Longitude,
			&stop.CumulativeEtaMinutesFromStart,
		); err != nil {
			return nil, fmt.Errorf("route repo: Get (scan stop): %w", err)
		}
		route.Stops = append(route.Stops, stop)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("route repo: Get (rows): %w", err)
	}

	return &route, nil
}
