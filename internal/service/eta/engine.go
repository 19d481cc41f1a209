package eta

import (
	"math"
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/service/geo"
)

// Params holds the tuning constants of the estimation pipeline. The blend
// weighting and the speed caps are empirical; they are configuration, not
// hard constants, so deployments can adjust them without a rebuild.
type Params struct {
	MinSpeedKmh       float64 // lower clamp for every speed estimate
	MaxSpeedKmh       float64 // upper clamp (city-bus realism bound)
	DefaultSpeedKmh   float64 // fallback when route duration is missing
	MinMotionKmh      float64 // below this the live sample is "not reliably moving"
	LiveWeight        float64 // weight of the live sample in the blend
	AtStopRadiusKm    float64 // distance under which the vehicle is at the stop
	PassedToleranceKm float64 // dead zone of the passed heuristic
}

// DefaultParams returns the standard city-bus tuning.
func DefaultParams() Params {
	return Params{
		MinSpeedKmh:       5,
		MaxSpeedKmh:       35,
		DefaultSpeedKmh:   20,
		MinMotionKmh:      5,
		LiveWeight:        0.7,
		AtStopRadiusKm:    0.1,
		PassedToleranceKm: 0.15,
	}
}

// Engine converts distances and speed observations into arrival estimates
// and classifies a vehicle's relationship to a target stop.
type Engine struct {
	params Params
	now    func() time.Time
}

func New(params Params) *Engine {
	return &Engine{
		params: params,
		now:    time.Now,
	}
}

func (e *Engine) clamp(speedKmh float64) float64 {
	return math.Min(math.Max(speedKmh, e.params.MinSpeedKmh), e.params.MaxSpeedKmh)
}

// AverageRouteSpeedKmh derives the historical average speed of a route from
// its straight-line length and scheduled duration, clamped to the realism
// bounds. Missing or non-positive duration falls back to the default.
func (e *Engine) AverageRouteSpeedKmh(route *models.Route) float64 {
	if route == nil || route.EstimatedDurationMinutes <= 0 {
		return e.params.DefaultSpeedKmh
	}

	distance := geo.DistanceKm(route.Start, route.End)
	hours := float64(route.EstimatedDurationMinutes) / 60

	return e.clamp(distance / hours)
}

// LiveSpeedKmh computes the observed speed between two consecutive fixes.
// Returns nil when there is no previous fix or no forward time elapsed.
// Clamped to the upper bound: tiny time deltas otherwise turn sensor noise
// into absurd speeds.
func (e *Engine) LiveSpeedKmh(prev, curr *models.PositionFix) *float64 {
	if prev == nil || curr == nil {
		return nil
	}

	elapsedMs := curr.CapturedAtMs - prev.CapturedAtMs
	if elapsedMs <= 0 {
		return nil
	}

	distance := geo.DistanceKm(prev.Coordinate(), curr.Coordinate())
	hours := float64(elapsedMs) / float64(time.Hour/time.Millisecond)

	speed := math.Min(distance/hours, e.params.MaxSpeedKmh)
	return &speed
}

// BlendedSpeedKmh combines the live sample with the route average. A missing
// or below-motion-threshold live sample yields the clamped average; otherwise
// the weighted blend damps single-sample GPS noise while staying responsive
// to real traffic conditions.
func (e *Engine) BlendedSpeedKmh(live *float64, avgKmh float64) float64 {
	if live == nil || *live < e.params.MinMotionKmh {
		return e.clamp(avgKmh)
	}

	blended := e.params.LiveWeight**live + (1-e.params.LiveWeight)*avgKmh
	return e.clamp(blended)
}

// ETA converts a distance and a speed into whole minutes and a wall-clock
// arrival time. The speed is floored at the minimum to avoid division blowup.
func (e *Engine) ETA(distanceKm, speedKmh float64) (minutes int, arrivalAt time.Time) {
	speed := math.Max(speedKmh, e.params.MinSpeedKmh)
	minutes = int(math.Round(60 * distanceKm / speed))
	arrivalAt = e.now().Add(time.Duration(minutes) * time.Minute)
	return minutes, arrivalAt
}

// Classify evaluates the vehicle's relationship to a stop, in order:
// passed, at-stop, approaching. A nil fix means the trip has not started.
// A nil route skips the passed heuristic and estimates at the default speed.
// For approaching vehicles the ETA is computed via the blended-speed pipeline.
func (e *Engine) Classify(fix *models.PositionFix, prev *models.PositionFix, stop models.Coordinate, route *models.Route) models.StopProximityResult {
	if fix == nil {
		return models.StopProximityResult{Status: types.StopNotStarted}
	}

	vehicle := fix.Coordinate()
	distance := geo.DistanceKm(vehicle, stop)

	if route != nil && geo.HasPassed(vehicle, stop, route.End, e.params.PassedToleranceKm) {
		return models.StopProximityResult{
			Status:     types.StopPassed,
			DistanceKm: distance,
		}
	}

	if distance <= e.params.AtStopRadiusKm {
		return models.StopProximityResult{
			Status:     types.StopAtStop,
			DistanceKm: distance,
		}
	}

	avg := e.AverageRouteSpeedKmh(route)
	blended := e.BlendedSpeedKmh(e.LiveSpeedKmh(prev, fix), avg)
	minutes, arrivalAt := e.ETA(distance, blended)

	return models.StopProximityResult{
		Status:          types.StopApproaching,
		DistanceKm:      distance,
		EtaMinutes:      &minutes,
		ArrivalAt:       &arrivalAt,
		BlendedSpeedKmh: &blended,
	}
}
