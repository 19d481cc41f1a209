package query

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/service/eta"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger"
)

func testLogger() logger.Logger {
	return logger.InitLogger("test", logger.LevelError)
}

func testConfig() Config {
	return Config{Interval: time.Hour, HistorySize: 5}
}

// plainHook builds a hook with no stop binding, for the history-keeping tests.
func plainHook(fetch FetchFunc) *Hook {
	return NewHook(fetch, nil, nil, models.Coordinate{}, nil, testConfig(), testLogger())
}

func hookFix(capturedAtMs int64) models.PositionFix {
	return models.PositionFix{CapturedAtMs: capturedAtMs}
}

func hookFixAt(lon float64, capturedAtMs int64) models.PositionFix {
	return models.PositionFix{Longitude: lon, AccuracyMeters: 5, CapturedAtMs: capturedAtMs}
}

func TestRecord_LastWriteWinsByTimestamp(t *testing.T) {
	h := plainHook(nil)

	h.record(hookFix(2_000))
	h.record(hookFix(1_000)) // late delivery of an older fix
	h.record(hookFix(2_000)) // duplicate

	latest, ok := h.Latest()
	if !ok {
		t.Fatal("expected a latest fix")
	}
	if latest.CapturedAtMs != 2_000 {
		t.Fatalf("latest: got %d want 2000", latest.CapturedAtMs)
	}
	if got := len(h.History()); got != 1 {
		t.Fatalf("history length: got %d want 1", got)
	}
}

func TestRecord_TrimsToWindow(t *testing.T) {
	h := plainHook(nil)

	for i := int64(1); i <= 8; i++ {
		h.record(hookFix(i * 1_000))
	}

	history := h.History()
	if len(history) != 5 {
		t.Fatalf("history length: got %d want 5", len(history))
	}
	for i, want := range []int64{4_000, 5_000, 6_000, 7_000, 8_000} {
		if history[i].CapturedAtMs != want {
			t.Fatalf("history[%d]: got %d want %d (oldest first)", i, history[i].CapturedAtMs, want)
		}
	}
}

func TestLatest_EmptyHistory(t *testing.T) {
	h := plainHook(nil)

	if _, ok := h.Latest(); ok {
		t.Fatal("empty hook must report no latest fix")
	}
}

func TestPoll_DeliversStopEstimates(t *testing.T) {
	route := &models.Route{
		Start:                    models.Coordinate{Latitude: 0, Longitude: 0},
		End:                      models.Coordinate{Latitude: 0, Longitude: 1},
		EstimatedDurationMinutes: 240,
	}
	stop := models.Coordinate{Latitude: 0, Longitude: 0.5}

	// two polls 120s apart, the vehicle advancing toward the stop
	fixes := []models.PositionFix{
		hookFixAt(0.20, 1_000),
		hookFixAt(0.21, 121_000),
	}
	calls := 0
	fetch := func(ctx context.Context) (models.PositionFix, error) {
		fix := fixes[calls]
		calls++
		return fix, nil
	}

	var results []models.StopProximityResult
	onResult := func(_ models.PositionFix, res models.StopProximityResult) {
		results = append(results, res)
	}

	h := NewHook(fetch, eta.New(eta.DefaultParams()), route, stop, onResult, testConfig(), testLogger())
	h.poll(context.Background())
	h.poll(context.Background())

	if len(results) != 2 {
		t.Fatalf("estimates delivered: got %d want 2", len(results))
	}
	for i, res := range results {
		if res.Status != types.StopApproaching {
			t.Fatalf("results[%d] status: got %s want %s", i, res.Status, types.StopApproaching)
		}
		if res.EtaMinutes == nil || *res.EtaMinutes <= 0 {
			t.Fatalf("results[%d] must carry a positive ETA", i)
		}
		if res.BlendedSpeedKmh == nil {
			t.Fatalf("results[%d] must carry the blended speed", i)
		}
	}

	// the first tick has no previous fix, so its estimate rides on the route
	// average alone; the second blends in the locally observed live speed
	if math.Abs(*results[0].BlendedSpeedKmh-*results[1].BlendedSpeedKmh) < 0.1 {
		t.Fatal("second estimate must be refined by the local live speed")
	}
	params := eta.DefaultParams()
	if *results[1].BlendedSpeedKmh < params.MinSpeedKmh || *results[1].BlendedSpeedKmh > params.MaxSpeedKmh {
		t.Fatalf("blended speed out of bounds: %f", *results[1].BlendedSpeedKmh)
	}
}

func TestPoll_StaleFixProducesNoEstimate(t *testing.T) {
	route := &models.Route{
		Start: models.Coordinate{Latitude: 0, Longitude: 0},
		End:   models.Coordinate{Latitude: 0, Longitude: 1},
	}
	stop := models.Coordinate{Latitude: 0, Longitude: 0.5}

	fixes := []models.PositionFix{
		hookFixAt(0.2, 2_000),
		hookFixAt(0.1, 1_000), // reordered delivery of an older fix
	}
	calls := 0
	fetch := func(ctx context.Context) (models.PositionFix, error) {
		fix := fixes[calls]
		calls++
		return fix, nil
	}

	delivered := 0
	h := NewHook(fetch, eta.New(eta.DefaultParams()), route, stop,
		func(models.PositionFix, models.StopProximityResult) { delivered++ },
		testConfig(), testLogger())

	h.poll(context.Background())
	h.poll(context.Background())

	if delivered != 1 {
		t.Fatalf("estimates delivered: got %d want 1 (a stale fix must not re-estimate)", delivered)
	}
}

func TestStart_PollsImmediately(t *testing.T) {
	polled := make(chan struct{}, 1)
	fetch := func(ctx context.Context) (models.PositionFix, error) {
		select {
		case polled <- struct{}{}:
		default:
		}
		return hookFix(1_000), nil
	}

	h := plainHook(fetch)
	h.Start()
	defer h.Stop()

	select {
	case <-polled:
	case <-time.After(2 * time.Second):
		t.Fatal("first poll did not fire immediately")
	}
}

func TestStop_CancelsInFlightQuery(t *testing.T) {
	entered := make(chan struct{})
	fetch := func(ctx context.Context) (models.PositionFix, error) {
		close(entered)
		<-ctx.Done()
		return models.PositionFix{}, ctx.Err()
	}

	h := plainHook(fetch)
	h.Start()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("query never started")
	}

	// Stop must cancel the blocked query and wait for the loop to exit
	done := make(chan struct{})
	go func() {
		h.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after cancelling the in-flight query")
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	fetch := func(ctx context.Context) (models.PositionFix, error) {
		return models.PositionFix{}, errors.New("unreachable")
	}

	h := plainHook(fetch)
	h.Start()
	h.Start() // second start is a no-op

	h.Stop()
	h.Stop() // second stop must not panic or block
}

func TestFailedPollKeepsHistory(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context) (models.PositionFix, error) {
		calls++
		if calls > 1 {
			return models.PositionFix{}, errors.New("hub unreachable")
		}
		return hookFix(1_000), nil
	}

	h := plainHook(fetch)
	h.poll(context.Background())
	h.poll(context.Background())

	latest, ok := h.Latest()
	if !ok || latest.CapturedAtMs != 1_000 {
		t.Fatal("a failed poll must not disturb the recorded history")
	}
}
