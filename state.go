package dashboard

// State represents the overall state of a Coordinator's dataset.
type State int32

const (
	// StateLoading indicates the initial bulk load has not yet completed.
	StateLoading State = iota

	// StateHealthy indicates the dataset is current: the bulk load
	// completed and all update channels are delivering.
	StateHealthy

	// StateDegraded indicates a channel is failing but previously merged
	// data remains valid and the poll fallback keeps it converging.
	StateDegraded

	// StateEmpty indicates the initial bulk load failed and no data has
	// ever been merged. The coordinator keeps trying in the background.
	StateEmpty
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// AdapterState represents the lifecycle state of a single update channel
// (bulk loader, push listener, or poll loader).
type AdapterState int32

const (
	// AdapterIdle indicates the adapter has not been started.
	AdapterIdle AdapterState = iota

	// AdapterStarting indicates the adapter is acquiring its resources
	// (first fetch, subscription handshake).
	AdapterStarting

	// AdapterActive indicates the adapter's channel is delivering.
	AdapterActive

	// AdapterDegraded indicates the adapter's channel is unavailable.
	// Already-merged data is never discarded on this transition, and the
	// transition back to active triggers a catch-up fetch, not a blind
	// resume.
	AdapterDegraded

	// AdapterStopped indicates the adapter has released its resources.
	AdapterStopped
)

// String returns the string representation of the adapter state.
func (s AdapterState) String() string {
	switch s {
	case AdapterIdle:
		return "idle"
	case AdapterStarting:
		return "starting"
	case AdapterActive:
		return "active"
	case AdapterDegraded:
		return "degraded"
	case AdapterStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
