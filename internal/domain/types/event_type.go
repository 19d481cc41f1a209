package types

type TrackingEvent string

func (s TrackingEvent) String() string {
	return string(s)
}

const (
	EventTripStarted     TrackingEvent = "TRIP_STARTED"
	EventTripEnded       TrackingEvent = "TRIP_ENDED"
	EventPositionUpdated TrackingEvent = "POSITION_UPDATED"
	EventFleetSummary    TrackingEvent = "FLEET_SUMMARY"
)
