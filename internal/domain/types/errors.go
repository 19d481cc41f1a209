package types

import "errors"

// Domain errors
var (
	// Fix ingestion
	ErrInvalidFix   = errors.New("invalid position fix")
	ErrStaleFix     = errors.New("fix is older than the current one")
	ErrTripNotFound = errors.New("trip not found")
	ErrTripEnded    = errors.New("trip already ended")
	ErrTripExists   = errors.New("trip already exists")

	// Routes
	ErrRouteNotFound = errors.New("route not found")
	ErrStopNotFound  = errors.New("stop not found on route")

	// Auth
	ErrNoToken      = errors.New("no token provided")
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("insufficient role")

	// Transport
	ErrHubUnreachable = errors.New("hub unreachable")
	ErrQueueFull      = errors.New("retry queue full")
)
