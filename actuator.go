package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// DefaultWriteTimeout bounds command-sink writes.
const DefaultWriteTimeout = 10 * time.Second

// Mode is the global automatic/manual switch. While automatic, relay
// toggles are rejected before any command is sent.
type Mode int

const (
	// ModeAutomatic lets the backend controller drive the relays.
	ModeAutomatic Mode = iota
	// ModeManual allows user-initiated relay toggles.
	ModeManual
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeAutomatic:
		return "automatic"
	case ModeManual:
		return "manual"
	default:
		return "unknown"
	}
}

// ActuatorState is the observable state of one relay. Desired and Confirmed
// differ only while a write is in flight or another client changed the row.
type ActuatorState struct {
	ID        string
	Desired   bool
	Confirmed bool
	Mode      Mode
	Pending   bool
	CommandID string
}

// relayRow is the controller-private state behind one ActuatorState.
type relayRow struct {
	desired   bool
	confirmed bool
	pending   bool
	commandID string
}

// Controller owns all actuator state. It runs a 4-state optimistic machine
// per relay: Confirmed ⇄ Pending(toggling) → Confirmed(new), or
// Pending → RolledBack → Confirmed(old) when the write is rejected.
//
// A second toggle while a write is pending on the same actuator is
// rejected, not queued: the next command is accepted only after the
// in-flight one resolves. Confirmation arrives exclusively through
// ApplyConfirmed, fed by the push listener observing the backend row.
// A successful write call alone never clears pending.
type Controller struct {
	mu     sync.Mutex
	sink   CommandSink
	clock  clockz.Clock
	relays map[string]*relayRow

	// The mode is a single global row with the same pending machine as
	// the relays, minus the mode precondition.
	mode relayRow

	metrics      MetricsProvider
	onChange     func()
	writeTimeout time.Duration
}

// NewController creates a Controller for the given relay ids. All relays
// start off, confirmed, not pending, with the mode set to automatic.
func NewController(sink CommandSink, ids ...string) *Controller {
	relays := make(map[string]*relayRow, len(ids))
	for _, id := range ids {
		relays[id] = &relayRow{}
	}
	return &Controller{
		sink:   sink,
		clock:  clockz.RealClock,
		relays: relays,
		// automatic maps to confirmed=true on the mode row
		mode:         relayRow{desired: true, confirmed: true},
		writeTimeout: DefaultWriteTimeout,
	}
}

// Clock sets a custom clock for write timeouts.
func (c *Controller) Clock(clock clockz.Clock) *Controller {
	c.clock = clock
	return c
}

// Metrics sets a metrics provider for write observability.
func (c *Controller) Metrics(provider MetricsProvider) *Controller {
	c.metrics = provider
	return c
}

// WriteTimeout bounds each command-sink write. Default: DefaultWriteTimeout.
func (c *Controller) WriteTimeout(d time.Duration) *Controller {
	c.writeTimeout = d
	return c
}

// OnChange sets a callback invoked after any observable state change.
// The coordinator uses it to fan out fresh snapshots.
func (c *Controller) OnChange(fn func()) *Controller {
	c.onChange = fn
	return c
}

// Mode returns the confirmed global mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return modeOf(c.mode.confirmed)
}

// ModePending reports whether a mode write is in flight.
func (c *Controller) ModePending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode.pending
}

// States returns a copy of every relay's observable state.
func (c *Controller) States() map[string]ActuatorState {
	c.mu.Lock()
	defer c.mu.Unlock()

	mode := modeOf(c.mode.confirmed)
	out := make(map[string]ActuatorState, len(c.relays))
	for id, row := range c.relays {
		out[id] = ActuatorState{
			ID:        id,
			Desired:   row.desired,
			Confirmed: row.confirmed,
			Mode:      mode,
			Pending:   row.pending,
			CommandID: row.commandID,
		}
	}
	return out
}

// Toggle optimistically flips the desired state of a relay and issues a
// command-sink write.
//
// Preconditions are checked before any state change or network call: the
// mode must be manual (ErrBlockedByMode) and no write may be pending on
// the actuator (ErrWritePending). On write failure the desired state rolls
// back to the last confirmed value, pending clears, and a WriteError is
// returned. On write success, pending stays set until the backend confirms
// the change through ApplyConfirmed.
func (c *Controller) Toggle(ctx context.Context, id string) error {
	c.mu.Lock()
	row, ok := c.relays[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownActuator, id)
	}
	if c.mode.confirmed {
		c.mu.Unlock()
		capitan.Emit(ctx, ToggleRejected,
			KeyActuator.Field(id),
			KeyReason.Field("automatic-mode"),
		)
		return ErrBlockedByMode
	}
	if row.pending {
		c.mu.Unlock()
		capitan.Emit(ctx, ToggleRejected,
			KeyActuator.Field(id),
			KeyReason.Field("write-pending"),
		)
		return fmt.Errorf("%w: %s", ErrWritePending, id)
	}

	target := !row.desired
	commandID := uuid.NewString()
	row.desired = target
	row.pending = true
	row.commandID = commandID
	c.mu.Unlock()

	c.notify()
	capitan.Emit(ctx, WriteIssued,
		KeyActuator.Field(id),
		KeyCommandID.Field(commandID),
		KeyDesired.Field(fmt.Sprintf("%t", target)),
	)
	if c.metrics != nil {
		c.metrics.OnWriteIssued(id)
	}

	err := c.write(ctx, func(wctx context.Context) error {
		return c.sink.WriteActuator(wctx, id, target, commandID)
	})
	if err != nil {
		c.rollbackRelay(ctx, id, commandID)
		return &WriteError{ActuatorID: id, CommandID: commandID, Err: err}
	}
	return nil
}

// SetMode optimistically switches the global mode and issues a write.
// The mode has no precondition of its own, but concurrent mode writes are
// rejected like concurrent relay toggles.
func (c *Controller) SetMode(ctx context.Context, automatic bool) error {
	c.mu.Lock()
	if c.mode.pending {
		c.mu.Unlock()
		capitan.Emit(ctx, ToggleRejected,
			KeyActuator.Field(ModeID),
			KeyReason.Field("write-pending"),
		)
		return fmt.Errorf("%w: %s", ErrWritePending, ModeID)
	}
	commandID := uuid.NewString()
	c.mode.desired = automatic
	c.mode.pending = true
	c.mode.commandID = commandID
	c.mu.Unlock()

	c.notify()
	capitan.Emit(ctx, WriteIssued,
		KeyActuator.Field(ModeID),
		KeyCommandID.Field(commandID),
		KeyDesired.Field(modeOf(automatic).String()),
	)
	if c.metrics != nil {
		c.metrics.OnWriteIssued(ModeID)
	}

	err := c.write(ctx, func(wctx context.Context) error {
		return c.sink.WriteMode(wctx, automatic, commandID)
	})
	if err != nil {
		c.rollbackMode(ctx, commandID)
		return &WriteError{ActuatorID: ModeID, CommandID: commandID, Err: err}
	}
	return nil
}

// ApplyConfirmed reconciles local state against a confirmed backend change.
// The confirmed value always wins: if another client raced the same row,
// the local desired state is overwritten rather than trusted. Pending
// clears regardless of which command caused the change.
//
// Events for unconfigured actuator ids are ignored. Returns whether any
// observable state changed.
func (c *Controller) ApplyConfirmed(ctx context.Context, ev ActuatorEvent) bool {
	c.mu.Lock()
	var row *relayRow
	if ev.ID == ModeID {
		row = &c.mode
	} else {
		var ok bool
		row, ok = c.relays[ev.ID]
		if !ok {
			c.mu.Unlock()
			return false
		}
	}

	changed := row.confirmed != ev.On || row.desired != ev.On || row.pending
	row.confirmed = ev.On
	row.desired = ev.On
	row.pending = false
	row.commandID = ""
	c.mu.Unlock()

	if changed {
		capitan.Emit(ctx, WriteConfirmed,
			KeyActuator.Field(ev.ID),
			KeyCommandID.Field(ev.CommandID),
		)
		c.notify()
	}
	return changed
}

// write runs one sink call under the configured timeout.
func (c *Controller) write(ctx context.Context, fn func(context.Context) error) error {
	if c.writeTimeout <= 0 {
		return fn(ctx)
	}
	wctx, cancel := c.clock.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	return fn(wctx)
}

// rollbackRelay undoes the optimistic flip after a rejected write. The
// generation check on commandID keeps a late rejection from clobbering a
// newer confirmed value.
func (c *Controller) rollbackRelay(ctx context.Context, id, commandID string) {
	c.mu.Lock()
	row := c.relays[id]
	if row.commandID == commandID {
		row.desired = row.confirmed
		row.pending = false
		row.commandID = ""
	}
	c.mu.Unlock()

	capitan.Emit(ctx, WriteRolledBack,
		KeyActuator.Field(id),
		KeyCommandID.Field(commandID),
	)
	if c.metrics != nil {
		c.metrics.OnWriteRolledBack(id)
	}
	c.notify()
}

// rollbackMode undoes an optimistic mode switch after a rejected write.
func (c *Controller) rollbackMode(ctx context.Context, commandID string) {
	c.mu.Lock()
	if c.mode.commandID == commandID {
		c.mode.desired = c.mode.confirmed
		c.mode.pending = false
		c.mode.commandID = ""
	}
	c.mu.Unlock()

	capitan.Emit(ctx, WriteRolledBack,
		KeyActuator.Field(ModeID),
		KeyCommandID.Field(commandID),
	)
	if c.metrics != nil {
		c.metrics.OnWriteRolledBack(ModeID)
	}
	c.notify()
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}

func modeOf(automatic bool) Mode {
	if automatic {
		return ModeAutomatic
	}
	return ModeManual
}
