package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		Retention:    RetentionConfig{MaxCount: 100},
		Bands:        testBands,
		Actuators:    []string{"relay-1", "relay-2"},
		PollInterval: Duration(20 * time.Millisecond),
	}
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestCoordinator_StartLoadsBulkFirst(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource().Seed(at(1), at(2), at(3))

	coord, err := New(src, testConfig(), WithFetchTimeout(time.Second))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer coord.Stop()

	if coord.State() != StateLoading {
		t.Errorf("expected loading before start, got %s", coord.State())
	}

	if err := coord.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Start returns only after the bulk load merged.
	snap := coord.Snapshot()
	if len(snap.Readings) != 3 {
		t.Errorf("expected 3 readings after start, got %d", len(snap.Readings))
	}
	if snap.Bulk != AdapterStopped {
		t.Errorf("expected bulk stopped after the one-shot load, got %s", snap.Bulk)
	}

	waitFor(t, "push active", func() bool {
		return coord.Snapshot().Push == AdapterActive
	})
	if coord.State() != StateHealthy {
		t.Errorf("expected healthy, got %s", coord.State())
	}
}

func TestCoordinator_StartTwice(t *testing.T) {
	src := NewChannelSource()
	coord, _ := New(src, testConfig(), WithFetchTimeout(time.Second))
	defer coord.Stop()

	if err := coord.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := coord.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped on second start, got %v", err)
	}
}

func TestCoordinator_BulkFailureThenPollRepairs(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource().Seed(at(1), at(2))
	src.SetFetchError(errors.New("connection refused"))

	coord, err := New(src, testConfig(), WithFetchRetry(1))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer coord.Stop()

	startErr := coord.Start(ctx)
	var ferr *FetchError
	if !errors.As(startErr, &ferr) || ferr.Op != "bulk" {
		t.Fatalf("expected bulk FetchError, got %v", startErr)
	}
	if coord.State() != StateEmpty {
		t.Errorf("expected empty after failed bulk with no data, got %s", coord.State())
	}
	if !IsTransient(coord.LastError()) {
		t.Errorf("expected a transient last error, got %v", coord.LastError())
	}

	// Once the backend recovers, the poll fallback converges the window.
	src.SetFetchError(nil)
	waitFor(t, "poll repair", func() bool {
		snap := coord.Snapshot()
		return len(snap.Readings) == 2 && snap.State == StateHealthy
	})
	if coord.LastError() != nil {
		t.Errorf("expected last error cleared after recovery, got %v", coord.LastError())
	}
}

func TestCoordinator_PushMergesIncrementally(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource().Seed(at(1))

	coord, _ := New(src, testConfig(), WithFetchTimeout(time.Second))
	defer coord.Stop()
	if err := coord.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "push active", func() bool {
		return coord.Snapshot().Push == AdapterActive
	})

	src.PublishReading(at(2))
	waitFor(t, "pushed reading merged", func() bool {
		return coord.Snapshot().Revision >= 2
	})
	snap := coord.Snapshot()
	if len(snap.Readings) != 2 {
		t.Errorf("expected 2 readings, got %d", len(snap.Readings))
	}
}

func TestCoordinator_PollSkipsRefetchWhenCaughtUp(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource().Seed(at(1), at(2))

	coord, _ := New(src, testConfig(), WithFetchTimeout(time.Second))
	if err := coord.runBulk(ctx); err != nil {
		t.Fatalf("bulk failed: %v", err)
	}
	base := src.FetchCount()

	// Backend latest equals store latest: the probe suffices.
	if err := coord.pollOnce(ctx); err != nil {
		t.Fatalf("pollOnce failed: %v", err)
	}
	if src.FetchCount() != base {
		t.Error("expected no refetch while caught up")
	}

	// A newer backend reading makes the next cycle refetch.
	src.Seed(at(1), at(2), at(3))
	if err := coord.pollOnce(ctx); err != nil {
		t.Fatalf("pollOnce failed: %v", err)
	}
	if src.FetchCount() != base+1 {
		t.Errorf("expected exactly one refetch, got %d", src.FetchCount()-base)
	}
	if coord.store.Len() != 3 {
		t.Errorf("expected 3 readings after refetch, got %d", coord.store.Len())
	}
}

func TestCoordinator_PollFailureKeepsData(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource().Seed(at(1), at(2))

	coord, _ := New(src, testConfig(), WithFetchRetry(1))
	if err := coord.runBulk(ctx); err != nil {
		t.Fatalf("bulk failed: %v", err)
	}

	src.SetProbeError(errors.New("timeout"))
	err := coord.pollOnce(ctx)
	var ferr *FetchError
	if !errors.As(err, &ferr) || ferr.Op != "probe" {
		t.Fatalf("expected probe FetchError, got %v", err)
	}

	if coord.store.Len() != 2 {
		t.Error("expected merged data untouched by a failed poll")
	}
	if coord.State() != StateDegraded {
		t.Errorf("expected degraded with data retained, got %s", coord.State())
	}
	if coord.poll.State() != AdapterDegraded {
		t.Errorf("expected poll channel degraded, got %s", coord.poll.State())
	}

	// Recovery on the next cycle.
	src.SetProbeError(nil)
	if err := coord.pollOnce(ctx); err != nil {
		t.Fatalf("pollOnce after recovery failed: %v", err)
	}
	if coord.poll.State() != AdapterActive {
		t.Errorf("expected poll active again, got %s", coord.poll.State())
	}
}

func TestCoordinator_SubscriptionLossTriggersCatchUp(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource().Seed(at(1))

	cfg := testConfig()
	cfg.PollInterval = Duration(time.Hour) // keep the poll fallback out of this test
	coord, _ := New(src, cfg, WithFetchTimeout(time.Second))
	defer coord.Stop()
	if err := coord.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "push active", func() bool {
		return coord.Snapshot().Push == AdapterActive
	})
	base := src.FetchCount()

	// Readings inserted while the channel is down are invisible to push.
	src.DropSubscriptions()
	waitFor(t, "push degraded", func() bool {
		return coord.Snapshot().Push == AdapterDegraded
	})
	waitFor(t, "dataset degraded while push is down", func() bool {
		return coord.State() == StateDegraded
	})
	src.Seed(at(1), at(2), at(3))

	// The reconnect runs a catch-up fetch before trusting the stream.
	waitFor(t, "push recovered", func() bool {
		return coord.Snapshot().Push == AdapterActive
	})
	waitFor(t, "catch-up merged the gap", func() bool {
		return coord.store.Len() == 3
	})
	if src.FetchCount() <= base {
		t.Error("expected a catch-up fetch on reconnect")
	}
	waitFor(t, "healthy after recovery", func() bool {
		return coord.State() == StateHealthy
	})
}

func TestCoordinator_StopIsDeterministic(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource().Seed(at(1))

	var final State
	coord, _ := New(src, testConfig(), WithFetchTimeout(time.Second))
	coord.OnStop(func(s State) { final = s })

	if err := coord.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "push active", func() bool {
		return coord.Snapshot().Push == AdapterActive
	})

	coord.Stop()
	coord.Stop() // idempotent

	if final != coord.State() {
		t.Errorf("expected OnStop to see the final state %s, got %s", coord.State(), final)
	}
	snap := coord.Snapshot()
	if snap.Push != AdapterStopped || snap.Poll != AdapterStopped {
		t.Errorf("expected all channels stopped, got push=%s poll=%s", snap.Push, snap.Poll)
	}

	if err := coord.ToggleActuator(ctx, "relay-1"); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped after stop, got %v", err)
	}
	if err := coord.SetMode(ctx, false); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped after stop, got %v", err)
	}
}

func TestCoordinator_ToggleRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource().AutoConfirm().Seed(at(1))

	coord, _ := New(src, testConfig(), WithFetchTimeout(time.Second))
	defer coord.Stop()
	if err := coord.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "push active", func() bool {
		return coord.Snapshot().Push == AdapterActive
	})

	if err := coord.SetMode(ctx, false); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	waitFor(t, "manual mode confirmed", func() bool {
		snap := coord.Snapshot()
		return snap.Mode == ModeManual && !snap.ModePending
	})

	if err := coord.ToggleActuator(ctx, "relay-1"); err != nil {
		t.Fatalf("ToggleActuator failed: %v", err)
	}
	waitFor(t, "toggle confirmed", func() bool {
		state := coord.Snapshot().Actuators["relay-1"]
		return state.Confirmed && !state.Pending
	})
}

func TestCoordinator_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := NewChannelSource().Seed(at(1))

	coord, _ := New(src, testConfig(), WithFetchTimeout(time.Second))
	defer coord.Stop()
	if err := coord.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	updates := coord.Watch(ctx)

	first, ok := <-updates
	if !ok {
		t.Fatal("expected an immediate first snapshot")
	}
	if len(first.Readings) != 1 {
		t.Errorf("expected 1 reading in first snapshot, got %d", len(first.Readings))
	}

	waitFor(t, "push active", func() bool {
		return coord.Snapshot().Push == AdapterActive
	})
	src.PublishReading(at(2))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				t.Fatal("watch channel closed early")
			}
			if len(snap.Readings) == 2 {
				cancel()
				waitFor(t, "watch channel close", func() bool {
					_, open := <-updates
					return !open
				})
				return
			}
		case <-deadline:
			t.Fatal("never observed the pushed reading via Watch")
		}
	}
}

func TestCoordinator_SetDateFilter(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource().Seed(at(1), at(2), at(3))

	coord, _ := New(src, testConfig(), WithFetchTimeout(time.Second))
	if err := coord.runBulk(ctx); err != nil {
		t.Fatalf("bulk failed: %v", err)
	}

	coord.SetDateFilter(at(2).Timestamp, at(3).Timestamp)
	snap := coord.Snapshot()
	if len(snap.Readings) != 2 {
		t.Fatalf("expected 2 filtered readings, got %d", len(snap.Readings))
	}
	if snap.View.Samples != 2 {
		t.Errorf("expected the view computed over the filtered range, got %d samples", snap.View.Samples)
	}

	// The filter is presentation-only: the store keeps everything.
	if coord.store.Len() != 3 {
		t.Errorf("expected store untouched by filter, len is %d", coord.store.Len())
	}

	coord.SetDateFilter(time.Time{}, time.Time{})
	if snap := coord.Snapshot(); len(snap.Readings) != 3 {
		t.Errorf("expected filter cleared, got %d readings", len(snap.Readings))
	}
}

func TestCoordinator_ErrorHistory(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource().Seed(at(1))

	coord, _ := New(src, testConfig(), WithFetchRetry(1))
	coord.ErrorHistorySize(5)
	if err := coord.runBulk(ctx); err != nil {
		t.Fatalf("bulk failed: %v", err)
	}

	src.SetProbeError(errors.New("timeout"))
	coord.pollOnce(ctx) //nolint:errcheck // recorded in history
	coord.pollOnce(ctx) //nolint:errcheck

	history := coord.ErrorHistory()
	if len(history) != 2 {
		t.Fatalf("expected 2 errors in history, got %d", len(history))
	}

	src.SetProbeError(nil)
	if err := coord.pollOnce(ctx); err != nil {
		t.Fatalf("pollOnce failed: %v", err)
	}
	if len(coord.ErrorHistory()) != 0 {
		t.Error("expected history cleared on recovery")
	}
}

func TestCoordinator_PollRecoveryKeepsPushError(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource().Seed(at(1))

	coord, _ := New(src, testConfig(), WithFetchRetry(1))
	if err := coord.runBulk(ctx); err != nil {
		t.Fatalf("bulk failed: %v", err)
	}

	// The poll degrades, then the push channel drops as well.
	src.SetProbeError(errors.New("timeout"))
	coord.pollOnce(ctx) //nolint:errcheck // recorded via LastError
	coord.push.transition(ctx, AdapterDegraded)
	coord.recordError(ctx, &SubscriptionLostError{Channel: "events"})

	// A recovered poll must not hide the outstanding push loss.
	src.SetProbeError(nil)
	if err := coord.pollOnce(ctx); err != nil {
		t.Fatalf("pollOnce after recovery failed: %v", err)
	}
	if coord.poll.State() != AdapterActive {
		t.Errorf("expected poll active, got %s", coord.poll.State())
	}
	if coord.State() != StateDegraded {
		t.Errorf("expected dataset degraded while push is down, got %s", coord.State())
	}
	if coord.LastError() == nil {
		t.Error("expected last error retained while push is down")
	}

	// Push recovery clears the error through its catch-up.
	coord.push.transition(ctx, AdapterActive)
	if err := coord.catchUp(ctx, coord.push.gen()); err != nil {
		t.Fatalf("catch-up failed: %v", err)
	}
	if coord.State() != StateHealthy {
		t.Errorf("expected healthy after push recovery, got %s", coord.State())
	}
	if coord.LastError() != nil {
		t.Errorf("expected last error cleared, got %v", coord.LastError())
	}
}

func TestCoordinator_RejectsInvalidConfig(t *testing.T) {
	src := NewChannelSource()

	cfg := testConfig()
	cfg.Retention = RetentionConfig{}
	if _, err := New(src, cfg); !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig for missing retention bound, got %v", err)
	}

	cfg = testConfig()
	cfg.Bands = Bands{{Label: "a", Min: 0, Max: 10}, {Label: "b", Min: 5, Max: 15}}
	if _, err := New(src, cfg); !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig for overlapping bands, got %v", err)
	}
}
