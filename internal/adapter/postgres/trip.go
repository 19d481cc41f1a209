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
	wrap "github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger/wrapper"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/metrics"
	pgdb "github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/postgres"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
)

type TripRepo struct {
	db *pgxpool.Pool
}

func NewTripRepo(db *pgxpool.Pool) *TripRepo {
	return &TripRepo{db: db}
}

func (r *TripRepo) CreateTrip(ctx context.Context, trip *models.TripState) error {
	q := TxorDB(ctx, r.db)

	query := `INSERT INTO trips (id, vehicle_id, route_id, owner_id, status, started_at)
              VALUES ($1, $2, $3, $4, $5, $6);`

	start := time.Now()
	_, err := q.Exec(ctx, query,
		trip.TripID,
		trip.VehicleID,
		trip.RouteID,
		trip.OwnerID,
		trip.Status,
		trip.StartedAt,
	)
	metrics.RecordDatabaseQuery(types.HubService.String(), "create_trip", err, time.Since(start))

	if err != nil {
		if pgdb.IsUniqueViolation(err) {
			return types.ErrTripExists
		}
		return wrap.Error(wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed),
			fmt.Errorf("trip repo: CreateTrip: %w", err))
	}

	return nil
}

func (r *TripRepo) EndTrip(ctx context.Context, tripID uuid.UUID, endedAt time.Time, totalDistanceKm float64) error {
	q := TxorDB(ctx, r.db)

	query := `
        UPDATE trips
        SET status = 'ENDED', ended_at = $2, total_distance_km = $3, updated_at = now()
        WHERE id = $1;`

	start := time.Now()
	cmdTag, err := q.Exec(ctx, query, tripID, endedAt, totalDistanceKm)
	metrics.RecordDatabaseQuery(types.HubService.String(), "end_trip", err, time.Since(start))

	if err != nil {
		return wrap.Error(wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed),
			fmt.Errorf("trip repo: EndTrip: %w", err))
	}
	if cmdTag.RowsAffected() == 0 {
		return types.ErrTripNotFound
	}

	return nil
}

// AppendFix inserts one accepted fix into the append-only log. Fixes are
// never updated or deleted; the log is what replay and audits read.
func (r *TripRepo) AppendFix(ctx context.Context, fix models.PositionFix) error {
	q := TxorDB(ctx, r.db)

	query := `INSERT INTO position_fixes (trip_id, vehicle_id, latitude, longitude, accuracy_meters,
                                          speed_mps, heading_deg, captured_at_ms, quality, source)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	start := time.Now()
	_, err := q.Exec(ctx, query,
		fix.TripID,
		fix.VehicleID,
		fix.Latitude,
		fix.Longitude,
		fix.AccuracyMeters,
		fix.SpeedMps,
		fix.HeadingDeg,
		fix.CapturedAtMs,
		fix.Quality,
		fix.Source,
	)
	metrics.RecordDatabaseQuery(types.HubService.String(), "append_fix", err, time.Since(start))

	if err != nil {
		// the fix references a trip row that was never created
		if pgdb.IsForeignKeyViolation(err) {
			return types.ErrTripNotFound
		}
		return wrap.Error(wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed),
			fmt.Errorf("trip repo: AppendFix: %w", err))
	}

	return nil
}

// GetTrip loads one trip record. Used by recovery on hub restart.
func (r *TripRepo) GetTrip(ctx context.Context, tripID uuid.UUID) (*models.TripState, error) {
	q := TxorDB(ctx, r.db)

	query := `
        SELECT id, vehicle_id, route_id, owner_id, status, started_at, ended_at, total_distance_km
        FROM trips
        WHERE id = $1;`

	var trip models.TripState
	start := time.Now()
	err := q.QueryRow(ctx, query, tripID).Scan(
		&trip.TripID,
		&trip.VehicleID,
		&trip.RouteID,
		&trip.OwnerID,
		&trip.Status,
		&trip.StartedAt,
		&trip.EndedAt,
		&trip.TotalDistanceKm,
	)
	metrics.RecordDatabaseQuery(types.HubService.String(), "get_trip", err, time.Since(start))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrTripNotFound
		}
		return nil, fmt.Errorf("trip repo: GetTrip: %w", err)
	}

	return &trip, nil
}

// ActiveTrips returns every trip still marked active. Read once at startup
// to rebuild in-memory sessions after a hub restart.
func (r *TripRepo) ActiveTrips(ctx context.Context) ([]models.TripState, error) {
	q := TxorDB(ctx, r.db)

	query := `
        SELECT id, vehicle_id, route_id, owner_id, status, started_at, ended_at, total_distance_km
        FROM trips
        WHERE status = 'ACTIVE';`

	start := time.Now()
	rows, err := q.Query(ctx, query)
	metrics.RecordDatabaseQuery(types.HubService.String(), "active_trips", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("trip repo: ActiveTrips: %w", err)
	}
	defer rows.Close()

	var trips []models.TripState
	for rows.Next() {
		var trip models.TripState
		if err := rows.Scan(
			&trip.TripID,
			&trip.VehicleID,
			&trip.RouteID,
			&trip.OwnerID,
			&trip.Status,
			&trip.StartedAt,
			&trip.EndedAt,
			&trip.TotalDistanceKm,
		); err != nil {
			return nil, fmt.Errorf("trip repo: ActiveTrips (scan): %w", err)
		}
		trips = append(trips, trip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trip repo: ActiveTrips (rows): %w", err)
	}

	return trips, nil
}

// RecentFixes returns the latest fixes of a trip, oldest first.
func (r *TripRepo) RecentFixes(ctx context.Context, tripID uuid.UUID, limit int) ([]models.PositionFix, error) {
	q := TxorDB(ctx, r.db)

	query := `
        SELECT trip_id, vehicle_id, latitude, longitude, accuracy_meters,
               speed_mps, heading_deg, captured_at_ms, quality, source
        FROM (
            SELECT * FROM position_fixes
            WHERE trip_id = $1
            ORDER BY captured_at_ms DESC
            LIMIT $2
        ) recent
        ORDER BY captured_at_ms ASC;`

	start := time.Now()
	rows, err := q.Query(ctx, query, tripID, limit)
	metrics.RecordDatabaseQuery(types.HubService.String(), "recent_fixes", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("trip repo: RecentFixes: %w", err)
	}
	defer rows.Close()

	var fixes []models.PositionFix
	for rows.Next() {
		var fix models.PositionFix
		if err := rows.Scan(
			&fix.TripID,
			&fix.VehicleID,
			&fix.Latitude,
			&fix.Longitude,
			&fix.AccuracyMeters,
			&fix.SpeedMps,
			&fix.HeadingDeg,
			&fix.CapturedAtMs,
			&fix.Quality,
			&fix.Source,
		); err != nil {
			return nil, fmt.Errorf("trip repo: RecentFixes (scan): %w", err)
		}
		fixes = append(fixes, fix)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trip repo: RecentFixes (rows): %w", err)
	}

	return fixes, nil
}
