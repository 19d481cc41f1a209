package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/service/eta"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/wshub"
)

/*==========================Fakes=================================*/

type fakeTripRepo struct {
	mu        sync.Mutex
	createErr error

	created []models.TripState
	ended   map[uuid.UUID]float64
	fixes   []models.PositionFix
	stored  map[uuid.UUID]models.TripState
	active  []models.TripState
	recent  map[uuid.UUID][]models.PositionFix
}

func newFakeTripRepo() *fakeTripRepo {
	return &fakeTripRepo{
		ended:  make(map[uuid.UUID]float64),
		stored: make(map[uuid.UUID]models.TripState),
		recent: make(map[uuid.UUID][]models.PositionFix),
	}
}

func (f *fakeTripRepo) CreateTrip(_ context.Context, trip *models.TripState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, *trip)
	return nil
}

func (f *fakeTripRepo) EndTrip(_ context.Context, tripID uuid.UUID, _ time.Time, totalDistanceKm float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended[tripID] = totalDistanceKm
	return nil
}

func (f *fakeTripRepo) AppendFix(_ context.Context, fix models.PositionFix) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fixes = append(f.fixes, fix)
	return nil
}

func (f *fakeTripRepo) GetTrip(_ context.Context, tripID uuid.UUID) (*models.TripState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	trip, ok := f.stored[tripID]
	if !ok {
		return nil, types.ErrTripNotFound
	}
	return &trip, nil
}

func (f *fakeTripRepo) ActiveTrips(_ context.Context) ([]models.TripState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

func (f *fakeTripRepo) RecentFixes(_ context.Context, tripID uuid.UUID, _ int) ([]models.PositionFix, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recent[tripID], nil
}

// fakeTxManager runs the function directly and counts invocations, so tests
// can assert that trip and first fix were persisted inside one Do call.
type fakeTxManager struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return fn(ctx)
}

type fakeRouteRepo struct {
	routes map[uuid.UUID]*models.Route
}

func (f *fakeRouteRepo) Get(_ context.Context, routeID uuid.UUID) (*models.Route, error) {
	route, ok := f.routes[routeID]
	if !ok {
		return nil, types.ErrRouteNotFound
	}
	return route, nil
}

type lifecycleRecord struct {
	eventType string
	event     models.TripLifecycleEvent
}

type fakePublisher struct {
	mu        sync.Mutex
	locations []models.TrackingLocationMessage
	lifecycle []lifecycleRecord
}

func (f *fakePublisher) PublishLocationUpdate(_ context.Context, msg models.TrackingLocationMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations = append(f.locations, msg)
	return nil
}

func (f *fakePublisher) PublishTripLifecycle(_ context.Context, eventType string, event models.TripLifecycleEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lifecycle = append(f.lifecycle, lifecycleRecord{eventType: eventType, event: event})
	return nil
}

type fakeRooms struct {
	mu         sync.Mutex
	joined     map[string][]uuid.UUID
	broadcasts map[string][]models.TrackingWebSocketMessage
	conns      int
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{
		joined:     make(map[string][]uuid.UUID),
		broadcasts: make(map[string][]models.TrackingWebSocketMessage),
	}
}

func (f *fakeRooms) Add(_ *wshub.Conn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns++
	return nil
}

func (f *fakeRooms) Join(room string, entityID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined[room] = append(f.joined[room], entityID)
	return nil
}

func (f *fakeRooms) Remove(_ uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns--
	return nil
}

func (f *fakeRooms) Broadcast(room string, msg any) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := msg.(models.TrackingWebSocketMessage); ok {
		f.broadcasts[room] = append(f.broadcasts[room], m)
	}
	return len(f.joined[room])
}

func (f *fakeRooms) Rooms() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.joined))
	for room := range f.joined {
		out = append(out, room)
	}
	return out
}

func (f *fakeRooms) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns
}

func (f *fakeRooms) events(room string, eventType types.TrackingEvent) []models.TrackingWebSocketMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.TrackingWebSocketMessage
	for _, msg := range f.broadcasts[room] {
		if msg.EventType == eventType {
			out = append(out, msg)
		}
	}
	return out
}

/*==========================Harness===============================*/

type testEnv struct {
	service   *Service
	tripRepo  *fakeTripRepo
	routeRepo *fakeRouteRepo
	publisher *fakePublisher
	rooms     *fakeRooms
	txm       *fakeTxManager
	routeID   uuid.UUID
	stopID    uuid.UUID

	now time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	routeID, stopID := uuid.New(), uuid.New()
	env := &testEnv{
		tripRepo: newFakeTripRepo(),
		routeRepo: &fakeRouteRepo{routes: map[uuid.UUID]*models.Route{
			routeID: {
				ID:                       routeID,
				Start:                    models.Coordinate{Latitude: 0, Longitude: 0},
				End:                      models.Coordinate{Latitude: 0, Longitude: 1},
				EstimatedDurationMinutes: 240,
				Stops: []models.Stop{
					{ID: stopID, Coord: models.Coordinate{Latitude: 0, Longitude: 0.5}},
				},
			},
		}},
		publisher: &fakePublisher{},
		rooms:     newFakeRooms(),
		txm:       &fakeTxManager{},
		routeID:   routeID,
		stopID:    stopID,
		now:       time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}

	env.service = New(env.tripRepo, env.routeRepo, env.publisher, env.rooms, eta.New(eta.DefaultParams()), env.txm, Config{
		HeartbeatInterval: 5 * time.Second,
		LivenessWindow:    45 * time.Second,
	}, logger.InitLogger("test", logger.LevelError))
	env.service.now = func() time.Time { return env.now }

	return env
}

func (env *testEnv) startTrip(t *testing.T, ownerID uuid.UUID) (tripID, vehicleID uuid.UUID) {
	t.Helper()
	tripID, vehicleID = uuid.New(), uuid.New()
	if _, err := env.service.StartTrip(context.Background(), tripID, vehicleID, env.routeID, ownerID, nil); err != nil {
		t.Fatalf("start trip: %v", err)
	}
	return tripID, vehicleID
}

func (env *testEnv) fix(tripID, vehicleID uuid.UUID, lon float64, at time.Time) models.PositionFix {
	return models.PositionFix{
		TripID:         tripID,
		VehicleID:      vehicleID,
		Latitude:       0,
		Longitude:      lon,
		AccuracyMeters: 7,
		CapturedAtMs:   at.UnixMilli(),
		Source:         types.SourceDeviceSensor,
	}
}

/*=======================Trip lifecycle===========================*/

func TestStartTrip_AnnouncesToAdminAndOwnerRooms(t *testing.T) {
	env := newTestEnv(t)
	ownerID := uuid.New()

	tripID, _ := env.startTrip(t, ownerID)

	if got := len(env.rooms.events(types.RoomAllFleets, types.EventTripStarted)); got != 1 {
		t.Fatalf("admin room TRIP_STARTED events: got %d want 1", got)
	}
	if got := len(env.rooms.events(types.FleetRoom(ownerID), types.EventTripStarted)); got != 1 {
		t.Fatalf("owner room TRIP_STARTED events: got %d want 1", got)
	}

	if len(env.tripRepo.created) != 1 || env.tripRepo.created[0].TripID != tripID {
		t.Fatal("trip was not persisted")
	}
	if len(env.publisher.lifecycle) != 1 || env.publisher.lifecycle[0].eventType != types.EventTripStarted.String() {
		t.Fatal("lifecycle event was not published to the broker")
	}
	if env.service.ActiveTripCount() != 1 {
		t.Fatalf("active trips: got %d want 1", env.service.ActiveTripCount())
	}
}

func TestStartTrip_RejectsVehicleAlreadyOnTrip(t *testing.T) {
	env := newTestEnv(t)
	ownerID := uuid.New()
	_, vehicleID := env.startTrip(t, ownerID)

	_, err := env.service.StartTrip(context.Background(), uuid.New(), vehicleID, env.routeID, ownerID, nil)
	if err == nil {
		t.Fatal("second trip for the same vehicle must be rejected")
	}
	if env.service.ActiveTripCount() != 1 {
		t.Fatalf("active trips: got %d want 1", env.service.ActiveTripCount())
	}
}

func TestStartTrip_UnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.StartTrip(context.Background(), uuid.New(), uuid.New(), uuid.New(), uuid.New(), nil)
	if !errors.Is(err, types.ErrRouteNotFound) {
		t.Fatalf("expected ErrRouteNotFound, got %v", err)
	}
	if env.service.ActiveTripCount() != 0 {
		t.Fatal("failed start must not leave a session behind")
	}
}

func TestStartTrip_PersistFailureDetaches(t *testing.T) {
	env := newTestEnv(t)
	env.tripRepo.createErr = errors.New("db down")

	_, err := env.service.StartTrip(context.Background(), uuid.New(), uuid.New(), env.routeID, uuid.New(), nil)
	if err == nil {
		t.Fatal("expected persistence failure to surface")
	}
	if env.service.ActiveTripCount() != 0 {
		t.Fatal("failed persistence must detach the session")
	}
}

func TestStartTrip_InitialFixPersistedInOneTransaction(t *testing.T) {
	env := newTestEnv(t)
	vehicleID := uuid.New()

	initial := env.fix(uuid.UUID{}, vehicleID, 0.0, env.now)
	snapshot, err := env.service.StartTrip(context.Background(), uuid.New(), vehicleID, env.routeID, uuid.New(), &initial)
	if err != nil {
		t.Fatalf("start trip: %v", err)
	}

	if snapshot.CurrentFix == nil {
		t.Fatal("snapshot must carry the initial fix")
	}
	if snapshot.CurrentFix.Quality != types.QualityGood {
		t.Fatalf("initial fix quality: got %s want %s", snapshot.CurrentFix.Quality, types.QualityGood)
	}
	if len(env.tripRepo.created) != 1 || len(env.tripRepo.fixes) != 1 {
		t.Fatalf("persisted: %d trips, %d fixes, want 1 and 1", len(env.tripRepo.created), len(env.tripRepo.fixes))
	}
	if env.tripRepo.fixes[0].TripID != snapshot.TripID {
		t.Fatal("initial fix must carry the assigned trip id")
	}
	if env.txm.calls != 1 {
		t.Fatalf("trip and fix must share one transaction, got %d", env.txm.calls)
	}
}

func TestStartTrip_InitialFixNotAppendedWhenCreateFails(t *testing.T) {
	env := newTestEnv(t)
	env.tripRepo.createErr = errors.New("db down")
	vehicleID := uuid.New()

	initial := env.fix(uuid.UUID{}, vehicleID, 0.0, env.now)
	_, err := env.service.StartTrip(context.Background(), uuid.New(), vehicleID, env.routeID, uuid.New(), &initial)
	if err == nil {
		t.Fatal("expected persistence failure to surface")
	}
	if len(env.tripRepo.fixes) != 0 {
		t.Fatal("fix must not be appended when the trip insert fails")
	}
	if env.service.ActiveTripCount() != 0 {
		t.Fatal("failed persistence must detach the session")
	}
}

func TestStartTrip_InvalidInitialFix(t *testing.T) {
	env := newTestEnv(t)
	vehicleID := uuid.New()

	initial := env.fix(uuid.UUID{}, vehicleID, 0.0, env.now)
	initial.Latitude = 100

	_, err := env.service.StartTrip(context.Background(), uuid.New(), vehicleID, env.routeID, uuid.New(), &initial)
	if !errors.Is(err, types.ErrInvalidFix) {
		t.Fatalf("expected ErrInvalidFix, got %v", err)
	}
	if env.service.ActiveTripCount() != 0 || len(env.tripRepo.created) != 0 {
		t.Fatal("invalid initial fix must not create anything")
	}
}

func TestEndTrip(t *testing.T) {
	env := newTestEnv(t)
	ownerID := uuid.New()
	tripID, vehicleID := env.startTrip(t, ownerID)

	// two fixes ~1.1 km apart accumulate distance before the end
	_, _ = env.service.Ingest(context.Background(), env.fix(tripID, vehicleID, 0.0, env.now))
	_, _ = env.service.Ingest(context.Background(), env.fix(tripID, vehicleID, 0.01, env.now.Add(2*time.Minute)))

	snapshot, err := env.service.EndTrip(context.Background(), tripID)
	if err != nil {
		t.Fatalf("end trip: %v", err)
	}
	if snapshot.Status != types.TripEnded {
		t.Fatalf("status: got %s want %s", snapshot.Status, types.TripEnded)
	}
	if snapshot.TotalDistanceKm <= 1 {
		t.Fatalf("total distance: got %f want > 1", snapshot.TotalDistanceKm)
	}

	if _, ok := env.tripRepo.ended[tripID]; !ok {
		t.Fatal("trip end was not persisted")
	}
	if env.service.ActiveTripCount() != 0 {
		t.Fatal("ended trip must be detached")
	}
	if got := len(env.rooms.events(types.FleetRoom(ownerID), types.EventTripEnded)); got != 1 {
		t.Fatalf("owner room TRIP_ENDED events: got %d want 1", got)
	}

	// ending again: the session is gone
	if _, err := env.service.EndTrip(context.Background(), tripID); !errors.Is(err, types.ErrTripNotFound) {
		t.Fatalf("expected ErrTripNotFound on double end, got %v", err)
	}
}

func TestEndTrip_Unknown(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.EndTrip(context.Background(), uuid.New())
	if !errors.Is(err, types.ErrTripNotFound) {
		t.Fatalf("expected ErrTripNotFound, got %v", err)
	}
}

/*=======================Fix ingestion============================*/

func TestIngest_AcceptedFix(t *testing.T) {
	env := newTestEnv(t)
	ownerID := uuid.New()
	tripID, vehicleID := env.startTrip(t, ownerID)

	snapshot, err := env.service.Ingest(context.Background(), env.fix(tripID, vehicleID, 0.1, env.now))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if snapshot.CurrentFix == nil {
		t.Fatal("snapshot must carry the accepted fix")
	}
	if snapshot.CurrentFix.Quality != types.QualityGood {
		t.Fatalf("quality from 7 m accuracy: got %s want %s", snapshot.CurrentFix.Quality, types.QualityGood)
	}

	if got := len(env.rooms.events(types.RoomAllFleets, types.EventPositionUpdated)); got != 1 {
		t.Fatalf("admin room POSITION_UPDATED events: got %d want 1", got)
	}
	if got := len(env.rooms.events(types.FleetRoom(ownerID), types.EventPositionUpdated)); got != 1 {
		t.Fatalf("owner room POSITION_UPDATED events: got %d want 1", got)
	}

	if len(env.tripRepo.fixes) != 1 {
		t.Fatal("accepted fix was not persisted")
	}
	if len(env.publisher.locations) != 1 {
		t.Fatal("accepted fix was not re-published to the broker")
	}
	if env.publisher.locations[0].OwnerID != ownerID || env.publisher.locations[0].RouteID != env.routeID {
		t.Fatal("published location must carry owning identifiers")
	}
}

func TestIngest_UnknownTrip(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Ingest(context.Background(), env.fix(uuid.New(), uuid.New(), 0.1, env.now))
	if !errors.Is(err, types.ErrTripNotFound) {
		t.Fatalf("expected ErrTripNotFound, got %v", err)
	}
}

func TestIngest_InvalidFix(t *testing.T) {
	env := newTestEnv(t)
	tripID, vehicleID := env.startTrip(t, uuid.New())

	fix := env.fix(tripID, vehicleID, 0.1, env.now)
	fix.Latitude = 100

	_, err := env.service.Ingest(context.Background(), fix)
	if !errors.Is(err, types.ErrInvalidFix) {
		t.Fatalf("expected ErrInvalidFix, got %v", err)
	}
}

func TestIngest_StaleFix(t *testing.T) {
	env := newTestEnv(t)
	tripID, vehicleID := env.startTrip(t, uuid.New())

	if _, err := env.service.Ingest(context.Background(), env.fix(tripID, vehicleID, 0.1, env.now)); err != nil {
		t.Fatalf("first fix: %v", err)
	}

	_, err := env.service.Ingest(context.Background(), env.fix(tripID, vehicleID, 0.2, env.now.Add(-time.Minute)))
	if !errors.Is(err, types.ErrStaleFix) {
		t.Fatalf("expected ErrStaleFix, got %v", err)
	}
}

func TestIngest_RoomIsolation(t *testing.T) {
	env := newTestEnv(t)
	ownerA, ownerB := uuid.New(), uuid.New()
	tripA, vehicleA := env.startTrip(t, ownerA)
	env.startTrip(t, ownerB)

	if _, err := env.service.Ingest(context.Background(), env.fix(tripA, vehicleA, 0.1, env.now)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	// fleet A's movement must never leak into fleet B's room
	if got := len(env.rooms.events(types.FleetRoom(ownerB), types.EventPositionUpdated)); got != 0 {
		t.Fatalf("other fleet's room received %d POSITION_UPDATED events", got)
	}
	if got := len(env.rooms.events(types.FleetRoom(ownerA), types.EventPositionUpdated)); got != 1 {
		t.Fatalf("owning fleet's room: got %d events want 1", got)
	}
	if got := len(env.rooms.events(types.RoomAllFleets, types.EventPositionUpdated)); got != 1 {
		t.Fatalf("admin room: got %d events want 1", got)
	}
}

/*====================Connection placement========================*/

func TestPlaceConnection_JoinsRoleRooms(t *testing.T) {
	env := newTestEnv(t)

	ownerID := uuid.New()
	owner := &models.User{ID: uuid.New(), Role: types.RoleOwner, OwnerID: ownerID}
	if err := env.service.PlaceConnection(nil, owner); err != nil {
		t.Fatalf("place owner: %v", err)
	}

	admin := &models.User{ID: uuid.New(), Role: types.RoleAdmin}
	if err := env.service.PlaceConnection(nil, admin); err != nil {
		t.Fatalf("place admin: %v", err)
	}

	if len(env.rooms.joined[types.UserRoom(owner.ID)]) != 1 {
		t.Fatal("owner must join its self room")
	}
	if len(env.rooms.joined[types.FleetRoom(ownerID)]) != 1 {
		t.Fatal("owner must join its fleet room")
	}
	if len(env.rooms.joined[types.RoomAllFleets]) != 1 {
		t.Fatal("admin must join the all-fleets room")
	}
	if env.rooms.Len() != 2 {
		t.Fatalf("connections: got %d want 2", env.rooms.Len())
	}
}

/*======================Background loops==========================*/

func TestBroadcastFleetSummaries(t *testing.T) {
	env := newTestEnv(t)
	ownerA, ownerB := uuid.New(), uuid.New()

	env.startTrip(t, ownerA)
	env.startTrip(t, ownerA)
	env.startTrip(t, ownerB)

	// a dashboard is subscribed to fleet A's room
	_ = env.rooms.Join(types.FleetRoom(ownerA), uuid.New())

	env.service.broadcastFleetSummaries(context.Background())

	admin := env.rooms.events(types.RoomAllFleets, types.EventFleetSummary)
	if len(admin) != 1 {
		t.Fatalf("admin summaries: got %d want 1", len(admin))
	}
	if got := admin[0].Data.(models.FleetSummary).ActiveVehicleCount; got != 3 {
		t.Fatalf("global count: got %d want 3", got)
	}

	fleetA := env.rooms.events(types.FleetRoom(ownerA), types.EventFleetSummary)
	if len(fleetA) != 1 {
		t.Fatalf("fleet A summaries: got %d want 1", len(fleetA))
	}
	if got := fleetA[0].Data.(models.FleetSummary).ActiveVehicleCount; got != 2 {
		t.Fatalf("fleet A count: got %d want 2", got)
	}
}

func TestSweepSilentTrips(t *testing.T) {
	env := newTestEnv(t)
	tripID, vehicleID := env.startTrip(t, uuid.New())

	_, _ = env.service.Ingest(context.Background(), env.fix(tripID, vehicleID, 0.1, env.now.Add(10*time.Second)))

	// silence shorter than the window keeps the trip alive
	env.now = env.now.Add(40 * time.Second)
	env.service.sweepSilentTrips(context.Background())
	if env.service.ActiveTripCount() != 1 {
		t.Fatal("trip swept before the liveness window elapsed")
	}

	// past the window the trip is force-ended
	env.now = env.now.Add(30 * time.Second)
	env.service.sweepSilentTrips(context.Background())
	if env.service.ActiveTripCount() != 0 {
		t.Fatal("silent trip was not swept")
	}
	if _, ok := env.tripRepo.ended[tripID]; !ok {
		t.Fatal("swept trip end was not persisted")
	}
}

func TestSweepSilentTrips_NoFixesUsesStart(t *testing.T) {
	env := newTestEnv(t)
	env.startTrip(t, uuid.New())

	env.now = env.now.Add(30 * time.Second)
	env.service.sweepSilentTrips(context.Background())
	if env.service.ActiveTripCount() != 1 {
		t.Fatal("fresh trip without fixes must survive the sweep")
	}

	env.now = env.now.Add(30 * time.Second)
	env.service.sweepSilentTrips(context.Background())
	if env.service.ActiveTripCount() != 0 {
		t.Fatal("fixless trip must be swept after the window from its start")
	}
}

// A vehicle dropping its socket keeps its trip through the grace window,
// so a quick reconnect resumes the same trip with distance preserved.
func TestReconnectWithinGraceResumesTrip(t *testing.T) {
	env := newTestEnv(t)
	tripID, vehicleID := env.startTrip(t, uuid.New())

	_, _ = env.service.Ingest(context.Background(), env.fix(tripID, vehicleID, 0.0, env.now))
	_, _ = env.service.Ingest(context.Background(), env.fix(tripID, vehicleID, 0.01, env.now.Add(time.Minute)))
	before, _ := env.service.TripSnapshot(context.Background(), tripID)

	env.service.RemoveConnection(vehicleID)

	// 20 s of silence, then the vehicle is back and sends again
	env.now = env.now.Add(80 * time.Second)
	env.service.sweepSilentTrips(context.Background())

	snapshot, err := env.service.Ingest(context.Background(), env.fix(tripID, vehicleID, 0.02, env.now))
	if err != nil {
		t.Fatalf("fix after reconnect: %v", err)
	}
	if snapshot.TotalDistanceKm <= before.TotalDistanceKm {
		t.Fatal("distance must keep accumulating on the resumed trip")
	}
}

/*==========================Recovery==============================*/

func TestRecoverActiveTrips(t *testing.T) {
	env := newTestEnv(t)
	tripID, vehicleID := uuid.New(), uuid.New()

	env.tripRepo.active = []models.TripState{{
		TripID:          tripID,
		VehicleID:       vehicleID,
		RouteID:         env.routeID,
		OwnerID:         uuid.New(),
		Status:          types.TripActive,
		StartedAt:       env.now.Add(-10 * time.Minute),
		TotalDistanceKm: 5.5,
	}}
	env.tripRepo.recent[tripID] = []models.PositionFix{
		env.fix(tripID, vehicleID, 0.04, env.now.Add(-2*time.Minute)),
		env.fix(tripID, vehicleID, 0.05, env.now.Add(-time.Minute)),
	}

	n, err := env.service.RecoverActiveTrips(context.Background())
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 1 || env.service.ActiveTripCount() != 1 {
		t.Fatalf("recovered: got %d trips, %d active, want 1 and 1", n, env.service.ActiveTripCount())
	}

	// ordering guard survives the restart
	if _, err := env.service.Ingest(context.Background(), env.fix(tripID, vehicleID, 0.05, env.now.Add(-90*time.Second))); !errors.Is(err, types.ErrStaleFix) {
		t.Fatalf("expected ErrStaleFix against the replayed log, got %v", err)
	}

	// and ingestion resumes, accumulating on top of the persisted distance
	snapshot, err := env.service.Ingest(context.Background(), env.fix(tripID, vehicleID, 0.06, env.now))
	if err != nil {
		t.Fatalf("ingest after recovery: %v", err)
	}
	if snapshot.TotalDistanceKm <= 5.5 {
		t.Fatalf("distance must grow from the persisted total: %f", snapshot.TotalDistanceKm)
	}
}

func TestRecoverActiveTrips_SkipsUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	env.tripRepo.active = []models.TripState{{
		TripID:    uuid.New(),
		VehicleID: uuid.New(),
		RouteID:   uuid.New(), // not in the route repo
		Status:    types.TripActive,
		StartedAt: env.now,
	}}

	n, err := env.service.RecoverActiveTrips(context.Background())
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 0 || env.service.ActiveTripCount() != 0 {
		t.Fatal("a trip on an unknown route must be skipped, not recovered")
	}
}

func TestTripSnapshot_FallsBackToStore(t *testing.T) {
	env := newTestEnv(t)
	tripID := uuid.New()
	endedAt := env.now.Add(-time.Hour)

	env.tripRepo.stored[tripID] = models.TripState{
		TripID:          tripID,
		Status:          types.TripEnded,
		EndedAt:         &endedAt,
		TotalDistanceKm: 12.3,
	}

	trip, err := env.service.TripSnapshot(context.Background(), tripID)
	if err != nil {
		t.Fatalf("snapshot from store: %v", err)
	}
	if trip.Status != types.TripEnded || trip.TotalDistanceKm != 12.3 {
		t.Fatalf("stored trip state: %+v", trip)
	}

	if _, err := env.service.TripSnapshot(context.Background(), uuid.New()); !errors.Is(err, types.ErrTripNotFound) {
		t.Fatalf("expected ErrTripNotFound, got %v", err)
	}
}

/*=========================Stop queries===========================*/

func TestEstimatesForStop(t *testing.T) {
	env := newTestEnv(t)
	tripID, vehicleID := env.startTrip(t, uuid.New())

	// approaching from well before the stop
	_, _ = env.service.Ingest(context.Background(), env.fix(tripID, vehicleID, 0.2, env.now))

	estimates, err := env.service.EstimatesForStop(context.Background(), env.routeID, env.stopID)
	if err != nil {
		t.Fatalf("estimates: %v", err)
	}
	if len(estimates) != 1 {
		t.Fatalf("estimates: got %d want 1", len(estimates))
	}
	if estimates[0].TripID != tripID || estimates[0].VehicleID != vehicleID {
		t.Fatal("estimate must identify the trip and vehicle")
	}
	if estimates[0].Result.Status != types.StopApproaching {
		t.Fatalf("status: got %s want %s", estimates[0].Result.Status, types.StopApproaching)
	}
	if estimates[0].Result.EtaMinutes == nil {
		t.Fatal("approaching estimate must carry an ETA")
	}
}

func TestEstimatesForStop_NoFixMeansNotStarted(t *testing.T) {
	env := newTestEnv(t)
	env.startTrip(t, uuid.New())

	estimates, err := env.service.EstimatesForStop(context.Background(), env.routeID, env.stopID)
	if err != nil {
		t.Fatalf("estimates: %v", err)
	}
	if len(estimates) != 1 || estimates[0].Result.Status != types.StopNotStarted {
		t.Fatalf("expected a single NOT_STARTED estimate, got %+v", estimates)
	}
}

func TestEstimatesForStop_UnknownStop(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.EstimatesForStop(context.Background(), env.routeID, uuid.New())
	if !errors.Is(err, types.ErrStopNotFound) {
		t.Fatalf("expected ErrStopNotFound, got %v", err)
	}
}

/*==========================Helpers===============================*/

func TestParseFleetRoom(t *testing.T) {
	ownerID := uuid.New()

	if _, ok := parseFleetRoom(types.RoomAllFleets); ok {
		t.Fatal("the all-fleets room is not an owner room")
	}
	if _, ok := parseFleetRoom(types.UserRoom(ownerID)); ok {
		t.Fatal("user rooms must not parse as fleet rooms")
	}
	if _, ok := parseFleetRoom("fleet:not-a-uuid"); ok {
		t.Fatal("malformed owner id must not parse")
	}

	got, ok := parseFleetRoom(types.FleetRoom(ownerID))
	if !ok || got != ownerID {
		t.Fatalf("fleet room round trip: got %v ok=%v", got, ok)
	}
}
