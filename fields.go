package dashboard

import "github.com/zoobzio/capitan"

// Field keys for coordinator and adapter events.
var (
	// KeyState is the current coordinator state.
	KeyState = capitan.NewStringKey("state")

	// KeyOldState is the previous state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the new state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyAdapter names the update channel: "bulk", "push", or "poll".
	KeyAdapter = capitan.NewStringKey("adapter")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyInserted is the number of readings a merge inserted.
	KeyInserted = capitan.NewIntKey("inserted")

	// KeyReplaced is the number of readings a merge replaced.
	KeyReplaced = capitan.NewIntKey("replaced")

	// KeyEvicted is the number of readings retention removed.
	KeyEvicted = capitan.NewIntKey("evicted")

	// KeySize is the store size after a merge.
	KeySize = capitan.NewIntKey("size")

	// KeyInterval is the configured poll interval.
	KeyInterval = capitan.NewDurationKey("interval")
)

// Field keys for actuator command events.
var (
	// KeyActuator is the actuator id a command targets.
	KeyActuator = capitan.NewStringKey("actuator")

	// KeyCommandID is the uuid attached to an in-flight write.
	KeyCommandID = capitan.NewStringKey("command_id")

	// KeyDesired is the requested relay state.
	KeyDesired = capitan.NewStringKey("desired")

	// KeyReason is why a toggle was rejected.
	KeyReason = capitan.NewStringKey("reason")
)
