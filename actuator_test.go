package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"
)

// manualController builds a controller whose mode is already confirmed
// manual, so toggles pass the mode gate.
func manualController(sink CommandSink, ids ...string) *Controller {
	c := NewController(sink, ids...)
	c.ApplyConfirmed(context.Background(), ActuatorEvent{ID: ModeID, On: false})
	return c
}

func TestController_ToggleOptimistic(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource()
	c := manualController(src, "relay-1")

	if err := c.Toggle(ctx, "relay-1"); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}

	state := c.States()["relay-1"]
	if !state.Desired {
		t.Error("expected desired on after toggle")
	}
	if state.Confirmed {
		t.Error("expected confirmed unchanged until the backend echoes")
	}
	if !state.Pending {
		t.Error("expected pending while unconfirmed")
	}

	writes := src.Writes()
	if len(writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(writes))
	}
	if writes[0].ID != "relay-1" || !writes[0].On || writes[0].CommandID == "" {
		t.Errorf("unexpected write %+v", writes[0])
	}
}

func TestController_ToggleBlockedByAutomaticMode(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource()
	c := NewController(src, "relay-1")

	err := c.Toggle(ctx, "relay-1")
	if !errors.Is(err, ErrBlockedByMode) {
		t.Fatalf("expected ErrBlockedByMode, got %v", err)
	}

	if state := c.States()["relay-1"]; state.Desired || state.Pending {
		t.Errorf("expected no state change on rejection, got %+v", state)
	}
	if len(src.Writes()) != 0 {
		t.Error("expected no write on rejection")
	}
}

func TestController_ToggleWhilePendingRejected(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource()
	c := manualController(src, "relay-1")

	if err := c.Toggle(ctx, "relay-1"); err != nil {
		t.Fatalf("first toggle failed: %v", err)
	}
	err := c.Toggle(ctx, "relay-1")
	if !errors.Is(err, ErrWritePending) {
		t.Fatalf("expected ErrWritePending, got %v", err)
	}

	// The rejected toggle must not reach the sink or disturb state.
	if len(src.Writes()) != 1 {
		t.Errorf("expected exactly 1 write, got %d", len(src.Writes()))
	}
	if state := c.States()["relay-1"]; !state.Desired || !state.Pending {
		t.Errorf("expected in-flight state intact, got %+v", state)
	}
}

func TestController_UnknownActuator(t *testing.T) {
	src := NewChannelSource()
	c := manualController(src, "relay-1")

	if err := c.Toggle(context.Background(), "relay-9"); !errors.Is(err, ErrUnknownActuator) {
		t.Fatalf("expected ErrUnknownActuator, got %v", err)
	}
}

func TestController_RollbackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource()
	src.SetWriteError(errors.New("503"))
	c := manualController(src, "relay-1")

	err := c.Toggle(ctx, "relay-1")
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("expected *WriteError, got %v", err)
	}
	if werr.ActuatorID != "relay-1" {
		t.Errorf("expected actuator relay-1 in error, got %s", werr.ActuatorID)
	}

	state := c.States()["relay-1"]
	if state.Desired != state.Confirmed {
		t.Error("expected desired rolled back to confirmed")
	}
	if state.Pending {
		t.Error("expected pending cleared after rollback")
	}

	// The actuator accepts a new toggle once the failure resolved.
	src.SetWriteError(nil)
	if err := c.Toggle(ctx, "relay-1"); err != nil {
		t.Fatalf("toggle after rollback failed: %v", err)
	}
}

func TestController_ConfirmationClearsPending(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource()
	c := manualController(src, "relay-1")

	if err := c.Toggle(ctx, "relay-1"); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	commandID := c.States()["relay-1"].CommandID

	changed := c.ApplyConfirmed(ctx, ActuatorEvent{
		ID:        "relay-1",
		On:        true,
		CommandID: commandID,
		Timestamp: time.Now(),
	})
	if !changed {
		t.Error("expected confirmation to report a change")
	}

	state := c.States()["relay-1"]
	if !state.Confirmed || !state.Desired || state.Pending {
		t.Errorf("expected confirmed on, not pending, got %+v", state)
	}
}

func TestController_ConfirmedValueWins(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource()
	c := manualController(src, "relay-1")

	if err := c.Toggle(ctx, "relay-1"); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}

	// Another client switched the relay off while our write was in flight.
	c.ApplyConfirmed(ctx, ActuatorEvent{ID: "relay-1", On: false})

	state := c.States()["relay-1"]
	if state.Desired || state.Confirmed || state.Pending {
		t.Errorf("expected backend value to override local optimism, got %+v", state)
	}
}

func TestController_ConfirmationForUnknownIDIgnored(t *testing.T) {
	src := NewChannelSource()
	c := manualController(src, "relay-1")

	if changed := c.ApplyConfirmed(context.Background(), ActuatorEvent{ID: "relay-9", On: true}); changed {
		t.Error("expected unknown id to be ignored")
	}
}

func TestController_SetMode(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource()
	c := NewController(src, "relay-1")

	if c.Mode() != ModeAutomatic {
		t.Fatalf("expected automatic by default, got %s", c.Mode())
	}

	if err := c.SetMode(ctx, false); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if !c.ModePending() {
		t.Error("expected mode write pending until confirmed")
	}
	if c.Mode() != ModeAutomatic {
		t.Error("expected confirmed mode unchanged until the backend echoes")
	}

	// A second mode write while one is in flight is rejected.
	if err := c.SetMode(ctx, true); !errors.Is(err, ErrWritePending) {
		t.Errorf("expected ErrWritePending, got %v", err)
	}

	c.ApplyConfirmed(ctx, ActuatorEvent{ID: ModeID, On: false})
	if c.Mode() != ModeManual {
		t.Errorf("expected manual after confirmation, got %s", c.Mode())
	}
	if c.ModePending() {
		t.Error("expected pending cleared after confirmation")
	}

	writes := src.Writes()
	if len(writes) != 1 || !writes[0].Mode || writes[0].On {
		t.Errorf("expected one mode write requesting manual, got %+v", writes)
	}
}

func TestController_SetModeRollback(t *testing.T) {
	ctx := context.Background()
	src := NewChannelSource()
	src.SetWriteError(errors.New("refused"))
	c := NewController(src, "relay-1")

	err := c.SetMode(ctx, false)
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("expected *WriteError, got %v", err)
	}
	if c.Mode() != ModeAutomatic || c.ModePending() {
		t.Error("expected mode rolled back to automatic, not pending")
	}
}
