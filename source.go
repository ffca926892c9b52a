package dashboard

import (
	"context"
	"time"
)

// ModeID is the actuator event id carrying the global automatic/manual
// mode row. The backend stores the mode alongside the relay rows, so it
// arrives on the same confirmation channel.
const ModeID = "mode"

// ActuatorEvent is one confirmed change to an actuator or mode row,
// observed on the backend. Confirmation events are the ultimate source of
// truth for actuator state; locally issued commands are never trusted on
// their own.
type ActuatorEvent struct {
	// ID is the actuator id, or ModeID for the mode row.
	ID string `json:"id"`

	// On is the confirmed relay state, or for the mode row, whether
	// automatic mode is active.
	On bool `json:"on"`

	// CommandID echoes the id of the command that caused the change, when
	// the backend knows it. Empty for changes made by another client.
	CommandID string `json:"command_id,omitempty"`

	// Timestamp is when the backend recorded the change.
	Timestamp time.Time `json:"timestamp"`
}

// DataSource is the read side of a backend. Implementations must honor
// context cancellation on every call and must not block indefinitely.
//
// Subscription channels are closed when the subscription is lost or the
// context is canceled; the caller resubscribes and runs a catch-up fetch,
// never assuming the resumed stream has no gap.
type DataSource interface {
	// FetchReadings returns readings newer than since, oldest first.
	// A zero since means the full retained window. limit bounds the
	// result size; zero means no limit.
	FetchReadings(ctx context.Context, since time.Time, limit int) ([]Reading, error)

	// FetchLatestTimestamp returns the newest reading timestamp known to
	// the backend, or false when the backend holds no readings. This is
	// the cheap probe the poll loader compares against the store before
	// deciding on a full refetch.
	FetchLatestTimestamp(ctx context.Context) (time.Time, bool, error)

	// SubscribeReadings returns a channel delivering newly inserted
	// readings as they happen.
	SubscribeReadings(ctx context.Context) (<-chan Reading, error)

	// SubscribeActuators returns a channel delivering confirmed actuator
	// and mode changes as they happen.
	SubscribeActuators(ctx context.Context) (<-chan ActuatorEvent, error)
}

// CommandSink is the write side of a backend. Writes are fire-and-forget
// from the controller's perspective: a nil return means the command was
// accepted, not that the state changed. Confirmation arrives asynchronously
// on the actuator subscription.
type CommandSink interface {
	// WriteActuator requests the relay identified by id be switched on or
	// off. commandID is attached so the confirmation can be correlated.
	WriteActuator(ctx context.Context, id string, on bool, commandID string) error

	// WriteMode requests the global automatic/manual mode be changed.
	WriteMode(ctx context.Context, automatic bool, commandID string) error
}

// Backend is a full data source and command sink. All bundled backends
// (postgres, nats, redis, file) implement it.
type Backend interface {
	DataSource
	CommandSink
}
