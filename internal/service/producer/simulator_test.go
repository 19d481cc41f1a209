package producer

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
)

// eastbound route along the equator with one intermediate stop
func simRoute() *models.Route {
	return &models.Route{
		ID:    uuid.New(),
		Start: models.Coordinate{Latitude: 0, Longitude: 0},
		End:   models.Coordinate{Latitude: 0, Longitude: 0.1},
		Stops: []models.Stop{
			{ID: uuid.New(), Coord: models.Coordinate{Latitude: 0, Longitude: 0.05}},
		},
	}
}

func TestSimulator_FirstSampleAtRouteStart(t *testing.T) {
	sim := NewSimulator(uuid.New(), uuid.New(), simRoute(), 42)
	start := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	sim.now = func() time.Time { return start }

	fix, err := sim.Sample(context.Background())
	if err != nil {
		t.Fatalf("sample: %v", err)
	}

	// within jitter range of the start point (~10 m is ~0.0001 deg)
	if math.Abs(fix.Latitude) > 0.001 || math.Abs(fix.Longitude) > 0.001 {
		t.Fatalf("first sample far from route start: %f, %f", fix.Latitude, fix.Longitude)
	}
	if fix.Source != types.SourceSimulated {
		t.Fatalf("source: got %s want %s", fix.Source, types.SourceSimulated)
	}
	if fix.CapturedAtMs != start.UnixMilli() {
		t.Fatalf("captured at: got %d want %d", fix.CapturedAtMs, start.UnixMilli())
	}
}

func TestSimulator_AdvancesAlongRoute(t *testing.T) {
	tripID, vehicleID := uuid.New(), uuid.New()
	sim := NewSimulator(tripID, vehicleID, simRoute(), 42)

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	sim.now = func() time.Time { return now }

	first, _ := sim.Sample(context.Background())

	now = now.Add(time.Minute)
	second, err := sim.Sample(context.Background())
	if err != nil {
		t.Fatalf("sample: %v", err)
	}

	if second.TripID != tripID || second.VehicleID != vehicleID {
		t.Fatal("fix must carry the trip and vehicle identifiers")
	}
	if second.Longitude <= first.Longitude {
		t.Fatalf("vehicle did not move east: %f -> %f", first.Longitude, second.Longitude)
	}

	// one minute at 25-45 km/h covers 0.4-0.75 km, well inside the 11 km route
	if second.Longitude > 0.1 {
		t.Fatalf("vehicle overshot the route after one minute: %f", second.Longitude)
	}
}

func TestSimulator_PlausibleTelemetry(t *testing.T) {
	sim := NewSimulator(uuid.New(), uuid.New(), simRoute(), 7)

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	sim.now = func() time.Time { return now }

	for i := 0; i < 20; i++ {
		now = now.Add(3 * time.Second)
		fix, err := sim.Sample(context.Background())
		if err != nil {
			t.Fatalf("sample %d: %v", i, err)
		}

		if fix.AccuracyMeters < 4 || fix.AccuracyMeters > 12 {
			t.Fatalf("accuracy out of range: %f", fix.AccuracyMeters)
		}
		if fix.SpeedMps == nil {
			t.Fatal("simulated fix must carry a speed")
		}
		if kmh := *fix.SpeedMps * 3.6; kmh < simMinSpeedKmh-0.01 || kmh > simMaxSpeedKmh+0.01 {
			t.Fatalf("speed out of range: %f km/h", kmh)
		}
		if fix.HeadingDeg == nil || *fix.HeadingDeg < 0 || *fix.HeadingDeg >= 360 {
			t.Fatalf("heading out of range: %v", fix.HeadingDeg)
		}
	}
}

func TestSimulator_LoopsAtRouteEnd(t *testing.T) {
	sim := NewSimulator(uuid.New(), uuid.New(), simRoute(), 42)

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	sim.now = func() time.Time { return now }
	_, _ = sim.Sample(context.Background())

	// an hour at simulator speeds exceeds the ~11 km route several times over
	now = now.Add(time.Hour)
	fix, err := sim.Sample(context.Background())
	if err != nil {
		t.Fatalf("sample: %v", err)
	}

	if fix.Longitude < -0.001 || fix.Longitude > 0.101 {
		t.Fatalf("looped position off the route: %f", fix.Longitude)
	}
}
