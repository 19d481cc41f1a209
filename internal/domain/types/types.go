package types

type ServiceMode string

// Hub Service - authenticates long-lived connections, ingests position fixes,
// owns authoritative trip state and multicasts updates to subscribed rooms
// Vehicle Service - acquires positions (sensor or simulator) and transmits them to the hub
// Consumer Service - polls one trip against one stop and derives arrival estimates
const (
	HubService      ServiceMode = "hub-service"
	VehicleService  ServiceMode = "vehicle-service"
	ConsumerService ServiceMode = "consumer-service"
)

func (s ServiceMode) String() string {
	return string(s)
}

// Enum for the origin of a position fix
type FixSource string

const (
	SourceDeviceSensor FixSource = "device-sensor"
	SourceSimulated    FixSource = "simulated"
)

func (s FixSource) String() string {
	return string(s)
}

// Enum for fix quality derived from reported GPS accuracy
type QualityTier string

const (
	QualityExcellent QualityTier = "excellent" // <= 5m
	QualityGood      QualityTier = "good"      // <= 10m
	QualityFair      QualityTier = "fair"      // <= 20m
	QualityPoor      QualityTier = "poor"      // <= 50m
	QualityVeryPoor  QualityTier = "very-poor" // > 50m
)

func (q QualityTier) String() string {
	return string(q)
}

// Enum for trip status
type TripStatus string

const (
	TripActive TripStatus = "ACTIVE"
	TripEnded  TripStatus = "ENDED"
)

func (s TripStatus) String() string {
	return string(s)
}

// Enum for a vehicle's relationship to a target stop
type StopStatus string

const (
	StopNotStarted  StopStatus = "NOT_STARTED"
	StopApproaching StopStatus = "APPROACHING"
	StopAtStop      StopStatus = "AT_STOP"
	StopPassed      StopStatus = "PASSED"
)

func (s StopStatus) String() string {
	return string(s)
}

// Enum for user roles
type UserRole string

func (r UserRole) String() string {
	return string(r)
}

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleOwner     UserRole = "OWNER"
	RoleVehicle   UserRole = "VEHICLE"
	RolePassenger UserRole = "PASSENGER"
)

// Typed close reasons sent before rejecting a websocket connection
type CloseReason string

const (
	CloseNoToken      CloseReason = "no-token"
	CloseInvalidToken CloseReason = "invalid-token"
)

func (c CloseReason) String() string {
	return string(c)
}
