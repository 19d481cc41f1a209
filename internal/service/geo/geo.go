package geo

import (
	"math"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
)

const (
	earthRadiusKm = 6371 // Earth radius in km
)

func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// DistanceKm computes the great-circle distance between two coordinates
// using the haversine formula. Accurate well within GPS error at urban
// distances; stop-detection thresholds are ~100 m, so no flat-earth
// shortcut is taken.
func DistanceKm(a, b models.Coordinate) float64 {
	lat1Rad := degreesToRadians(a.Latitude)
	lon1Rad := degreesToRadians(a.Longitude)
	lat2Rad := degreesToRadians(b.Latitude)
	lon2Rad := degreesToRadians(b.Longitude)

	diffLat := lat2Rad - lat1Rad
	diffLon := lon2Rad - lon1Rad

	h := math.Pow(math.Sin(diffLat/2), 2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Pow(math.Sin(diffLon/2), 2)

	angle := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * angle
}

// BearingDeg computes the initial bearing from a to b, in degrees [0, 360).
func BearingDeg(a, b models.Coordinate) float64 {
	lat1 := degreesToRadians(a.Latitude)
	lat2 := degreesToRadians(b.Latitude)
	diffLon := degreesToRadians(b.Longitude - a.Longitude)

	y := math.Sin(diffLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(diffLon)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// HasPassed judges that the vehicle has passed the stop when it is strictly
// closer to the route's end than the stop is, and more than toleranceKm away
// from the stop. The tolerance avoids flip-flopping while a vehicle idles
// near the stop. Direction-of-travel heuristic, not path-following: routes
// that double back near a stop can be misclassified.
func HasPassed(vehicle, stop, routeEnd models.Coordinate, toleranceKm float64) bool {
	vehicleToEnd := DistanceKm(vehicle, routeEnd)
	stopToEnd := DistanceKm(stop, routeEnd)
	vehicleToStop := DistanceKm(vehicle, stop)

	return vehicleToEnd < stopToEnd && vehicleToStop > toleranceKm
}
