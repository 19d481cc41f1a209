package geo

import (
	"math"
	"testing"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
)

func coord(lat, lon float64) models.Coordinate {
	return models.Coordinate{Latitude: lat, Longitude: lon}
}

func TestDistanceKm_SamePoint(t *testing.T) {
	p := coord(43.238949, 76.889709)
	if d := DistanceKm(p, p); d != 0 {
		t.Fatalf("distance to self must be 0, got %f", d)
	}
}

func TestDistanceKm_Symmetric(t *testing.T) {
	a := coord(43.238949, 76.889709)
	b := coord(43.222015, 76.851248)

	ab := DistanceKm(a, b)
	ba := DistanceKm(b, a)
	if math.Abs(ab-ba) > 1e-9 {
		t.Fatalf("distance must be symmetric: a->b %f, b->a %f", ab, ba)
	}
	if ab <= 0 {
		t.Fatalf("distance between distinct points must be positive, got %f", ab)
	}
}

func TestDistanceKm_KnownVector(t *testing.T) {
	// one degree of longitude along the equator is ~111.19 km
	a := coord(0, 0)
	b := coord(0, 1)

	got := DistanceKm(a, b)
	want := 111.19
	if math.Abs(got-want) > 0.1 {
		t.Fatalf("unexpected distance: got %f want ~%f", got, want)
	}
}

func TestBearingDeg(t *testing.T) {
	tests := []struct {
		name string
		a, b models.Coordinate
		want float64
	}{
		{"due east", coord(0, 0), coord(0, 1), 90},
		{"due north", coord(0, 0), coord(1, 0), 0},
		{"due west", coord(0, 1), coord(0, 0), 270},
		{"due south", coord(1, 0), coord(0, 0), 180},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BearingDeg(tt.a, tt.b)
			if math.Abs(got-tt.want) > 0.01 {
				t.Fatalf("bearing: got %f want %f", got, tt.want)
			}
			if got < 0 || got >= 360 {
				t.Fatalf("bearing out of [0, 360): %f", got)
			}
		})
	}
}

func TestHasPassed(t *testing.T) {
	routeEnd := coord(0, 1)
	stop := coord(0, 0.5)
	const toleranceKm = 0.15

	tests := []struct {
		name    string
		vehicle models.Coordinate
		want    bool
	}{
		{"beyond the stop", coord(0, 0.8), true},
		{"before the stop", coord(0, 0.2), false},
		{"idling at the stop", coord(0, 0.5005), false}, // within tolerance, closer to end
		{"at route end", coord(0, 1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasPassed(tt.vehicle, stop, routeEnd, toleranceKm); got != tt.want {
				t.Fatalf("HasPassed = %v, want %v", got, tt.want)
			}
		})
	}
}
