package producer

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/service/geo"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
)

const (
	simMinSpeedKmh     = 25.0
	simMaxSpeedKmh     = 45.0
	simSpeedPeriod     = 2 * time.Minute // one full slow-fast-slow cycle
	simJitterMeters    = 10.0
	metersPerDegreeLat = 111_320.0
)

// Simulator generates plausible bus movement along a route's stop sequence:
// piecewise-linear travel through the waypoints at a sinusoidally varying
// speed, with small positional jitter so the stream looks like real GPS.
// Every fix it emits is tagged as simulated so downstream consumers can
// tell it apart from device data.
type Simulator struct {
	tripID    uuid.UUID
	vehicleID uuid.UUID

	waypoints []models.Coordinate
	legKm     []float64 // distance of each leg, len(waypoints)-1
	totalKm   float64

	traveledKm float64
	lastSample time.Time

	rng *rand.Rand
	now func() time.Time
}

// NewSimulator builds a simulator for the given trip. The route must have a
// start and an end; stops in between are optional.
func NewSimulator(tripID, vehicleID uuid.UUID, route *models.Route, seed uint64) *Simulator {
	waypoints := make([]models.Coordinate, 0, len(route.Stops)+2)
	waypoints = append(waypoints, route.Start)
	for _, stop := range route.Stops {
		waypoints = append(waypoints, stop.Coord)
	}
	waypoints = append(waypoints, route.End)

	legKm := make([]float64, len(waypoints)-1)
	total := 0.0
	for i := range legKm {
		legKm[i] = geo.DistanceKm(waypoints[i], waypoints[i+1])
		total += legKm[i]
	}

	return &Simulator{
		tripID:    tripID,
		vehicleID: vehicleID,
		waypoints: waypoints,
		legKm:     legKm,
		totalKm:   total,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:       time.Now,
	}
}

// Sample advances the simulated vehicle by the time elapsed since the last
// call and returns its new position. Never fails.
func (s *Simulator) Sample(_ context.Context) (models.PositionFix, error) {
	now := s.now()

	if !s.lastSample.IsZero() {
		dt := now.Sub(s.lastSample).Hours()
		s.traveledKm += s.speedKmhAt(now) * dt
		if s.totalKm > 0 {
			// loop back to the start when the route is exhausted
			s.traveledKm = math.Mod(s.traveledKm, s.totalKm)
		}
	}
	s.lastSample = now

	coord, heading := s.positionAt(s.traveledKm)

	// ~10m of positional jitter, uniform in both axes
	latJitter := (s.rng.Float64()*2 - 1) * simJitterMeters / metersPerDegreeLat
	lonJitter := (s.rng.Float64()*2 - 1) * simJitterMeters /
		(metersPerDegreeLat * math.Cos(coord.Latitude*math.Pi/180))

	speedMps := s.speedKmhAt(now) / 3.6

	return models.PositionFix{
		TripID:         s.tripID,
		VehicleID:      s.vehicleID,
		Latitude:       coord.Latitude + latJitter,
		Longitude:      coord.Longitude + lonJitter,
		AccuracyMeters: 4 + s.rng.Float64()*8,
		SpeedMps:       &speedMps,
		HeadingDeg:     &heading,
		CapturedAtMs:   now.UnixMilli(),
		Source:         types.SourceSimulated,
	}, nil
}

// speedKmhAt oscillates between the min and max simulated speeds over the
// configured period, so the stream shows accelerating and braking phases.
func (s *Simulator) speedKmhAt(t time.Time) float64 {
	mid := (simMinSpeedKmh + simMaxSpeedKmh) / 2
	amp := (simMaxSpeedKmh - simMinSpeedKmh) / 2
	phase := 2 * math.Pi * float64(t.UnixMilli()%simSpeedPeriod.Milliseconds()) / float64(simSpeedPeriod.Milliseconds())
	return mid + amp*math.Sin(phase)
}

// positionAt interpolates the point lying traveledKm along the waypoint
// polyline, plus the bearing of the leg it falls on.
func (s *Simulator) positionAt(traveledKm float64) (models.Coordinate, float64) {
	if s.totalKm == 0 || len(s.waypoints) < 2 {
		return s.waypoints[0], 0
	}

	remaining := traveledKm
	for i, leg := range s.legKm {
		if remaining <= leg && leg > 0 {
			frac := remaining / leg
			a, b := s.waypoints[i], s.waypoints[i+1]
			point := models.Coordinate{
				Latitude:  a.Latitude + (b.Latitude-a.Latitude)*frac,
				Longitude: a.Longitude + (b.Longitude-a.Longitude)*frac,
			}
			return point, geo.BearingDeg(a, b)
		}
		remaining -= leg
	}

	last := len(s.waypoints) - 1
	return s.waypoints[last], geo.BearingDeg(s.waypoints[last-1], s.waypoints[last])
}
