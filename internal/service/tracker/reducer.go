package tracker

import (
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/service/geo"
)

const (
	// DefaultRingCapacity bounds the per-vehicle fix ring. Old fixes are
	// evicted FIFO; only the rolling state needs them, never history.
	DefaultRingCapacity = 256

	// minSegmentKm filters GPS jitter out of the distance accounting:
	// segments of 1 m or less are not accumulated.
	minSegmentKm = 0.001
)

// VehicleState is the rolling per-vehicle reducer. It owns the TripState for
// one trip and is the only writer of it: all mutation goes through Apply.
type VehicleState struct {
	trip *models.TripState

	ring     []models.PositionFix
	ringCap  int
	ringHead int
	ringLen  int
}

// NewVehicleState creates the reducer for a freshly started trip.
func NewVehicleState(trip *models.TripState, ringCap int) *VehicleState {
	if ringCap <= 0 {
		ringCap = DefaultRingCapacity
	}
	if trip.QualityCounts == nil {
		trip.QualityCounts = make(map[types.QualityTier]int)
	}
	return &VehicleState{
		trip:    trip,
		ring:    make([]models.PositionFix, ringCap),
		ringCap: ringCap,
	}
}

// Apply folds a fix into the rolling state. Fixes older than the current one
// are rejected with ErrStaleFix and leave the state untouched: late or
// reordered network delivery must not corrupt the live-speed calculation.
func (s *VehicleState) Apply(fix models.PositionFix) error {
	if s.trip.Status == types.TripEnded {
		return types.ErrTripEnded
	}

	if s.trip.CurrentFix != nil {
		if fix.CapturedAtMs < s.trip.CurrentFix.CapturedAtMs {
			return types.ErrStaleFix
		}
		// a duplicate delivery over the second channel: already applied
		if fix.CapturedAtMs == s.trip.CurrentFix.CapturedAtMs {
			return nil
		}
	}

	if s.trip.CurrentFix != nil {
		prev := *s.trip.CurrentFix
		s.trip.PreviousFix = &prev

		// accumulate distance only above the jitter threshold
		segment := geo.DistanceKm(prev.Coordinate(), fix.Coordinate())
		if segment > minSegmentKm {
			s.trip.TotalDistanceKm += segment
		}
	}

	s.trip.CurrentFix = &fix
	s.trip.LastFixAt = fix.CapturedAt()
	s.trip.QualityCounts[fix.Quality]++

	s.push(fix)

	return nil
}

// push appends the fix to the bounded ring, evicting the oldest when full.
func (s *VehicleState) push(fix models.PositionFix) {
	idx := (s.ringHead + s.ringLen) % s.ringCap
	s.ring[idx] = fix
	if s.ringLen < s.ringCap {
		s.ringLen++
	} else {
		s.ringHead = (s.ringHead + 1) % s.ringCap
	}
}

// RecentFixes returns the retained fixes, oldest first.
func (s *VehicleState) RecentFixes() []models.PositionFix {
	out := make([]models.PositionFix, 0, s.ringLen)
	for i := range s.ringLen {
		out = append(out, s.ring[(s.ringHead+i)%s.ringCap])
	}
	return out
}

// End marks the trip ended at the given time.
func (s *VehicleState) End(at time.Time) {
	s.trip.Status = types.TripEnded
	s.trip.EndedAt = &at
}

// Restore seeds the reducer from persisted fixes, oldest first, after a hub
// restart. Distance is not re-accumulated: the trip record already carries
// the total. The quality histogram restarts scoped to the restored window.
func (s *VehicleState) Restore(fixes []models.PositionFix) {
	for i := range fixes {
		fix := fixes[i]
		if s.trip.CurrentFix != nil {
			prev := *s.trip.CurrentFix
			s.trip.PreviousFix = &prev
		}
		s.trip.CurrentFix = &fix
		s.trip.LastFixAt = fix.CapturedAt()
		s.trip.QualityCounts[fix.Quality]++
		s.push(fix)
	}
}

// Snapshot returns a deep copy of the trip state, safe to hand to broadcast
// or persistence without racing the ingestion path.
func (s *VehicleState) Snapshot() models.TripState {
	copied := *s.trip

	if s.trip.CurrentFix != nil {
		fix := *s.trip.CurrentFix
		copied.CurrentFix = &fix
	}
	if s.trip.PreviousFix != nil {
		fix := *s.trip.PreviousFix
		copied.PreviousFix = &fix
	}
	if s.trip.EndedAt != nil {
		at := *s.trip.EndedAt
		copied.EndedAt = &at
	}

	copied.QualityCounts = make(map[types.QualityTier]int, len(s.trip.QualityCounts))
	for tier, n := range s.trip.QualityCounts {
		copied.QualityCounts[tier] = n
	}

	return copied
}

// LastFixAt reports when the vehicle was last heard from.
func (s *VehicleState) LastFixAt() time.Time {
	return s.trip.LastFixAt
}

// Status returns the current trip status.
func (s *VehicleState) Status() types.TripStatus {
	return s.trip.Status
}
