package dashboard

import "github.com/zoobzio/capitan"

// Coordinator lifecycle signals.
var (
	// CoordinatorStarted is emitted when a Coordinator begins its startup
	// sequence.
	CoordinatorStarted = capitan.NewSignal(
		"dashboard.coordinator.started",
		"Coordinator startup sequence began",
	)

	// CoordinatorStopped is emitted when a Coordinator has released all
	// adapter resources.
	CoordinatorStopped = capitan.NewSignal(
		"dashboard.coordinator.stopped",
		"Coordinator stopped",
	)

	// CoordinatorStateChanged is emitted when the dataset transitions
	// between loading, healthy, degraded, and empty.
	CoordinatorStateChanged = capitan.NewSignal(
		"dashboard.coordinator.state.changed",
		"Coordinator state transition",
	)
)

// Store and channel signals.
var (
	// StoreMerged is emitted after a merge that changed the store.
	StoreMerged = capitan.NewSignal(
		"dashboard.store.merged",
		"Reading batch merged into the store",
	)

	// AdapterStateChanged is emitted when an update channel transitions
	// between lifecycle states.
	AdapterStateChanged = capitan.NewSignal(
		"dashboard.adapter.state.changed",
		"Update channel state transition",
	)

	// FetchFailed is emitted when a bulk, poll, or catch-up fetch fails.
	FetchFailed = capitan.NewSignal(
		"dashboard.fetch.failed",
		"Data source fetch failed",
	)

	// CatchUpStarted is emitted when a reconnect triggers a catch-up
	// refetch of the full window.
	CatchUpStarted = capitan.NewSignal(
		"dashboard.catchup.started",
		"Catch-up refetch after reconnect",
	)

	// StaleResponseDiscarded is emitted when a fetch completes after its
	// adapter was restarted or stopped and the result is dropped.
	StaleResponseDiscarded = capitan.NewSignal(
		"dashboard.fetch.stale.discarded",
		"Late fetch response discarded by generation guard",
	)
)

// Actuator command signals.
var (
	// WriteIssued is emitted when an optimistic actuator or mode write is
	// sent to the command sink.
	WriteIssued = capitan.NewSignal(
		"dashboard.write.issued",
		"Actuator command issued",
	)

	// WriteConfirmed is emitted when the backend confirms an actuator or
	// mode change.
	WriteConfirmed = capitan.NewSignal(
		"dashboard.write.confirmed",
		"Actuator change confirmed by backend",
	)

	// WriteRolledBack is emitted when a rejected write rolls the desired
	// state back to the last confirmed value.
	WriteRolledBack = capitan.NewSignal(
		"dashboard.write.rolledback",
		"Actuator write rolled back",
	)

	// ToggleRejected is emitted when a toggle is refused before any
	// command is sent (automatic mode, write already pending).
	ToggleRejected = capitan.NewSignal(
		"dashboard.toggle.rejected",
		"Toggle rejected by precondition",
	)
)
