package dashboard

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on key synchronization events.
type MetricsProvider interface {
	// OnStateChange is called when the coordinator transitions between states.
	OnStateChange(from, to State)

	// OnAdapterStateChange is called when an update channel transitions
	// between lifecycle states. adapter is "bulk", "push", or "poll".
	OnAdapterStateChange(adapter string, from, to AdapterState)

	// OnMerge is called after a merge that changed the store.
	OnMerge(result MergeResult, size int)

	// OnFetchFailure is called when a fetch fails after exhausting its
	// retry budget. Duration is the time spent including retries.
	OnFetchFailure(adapter string, duration time.Duration)

	// OnWriteIssued is called when an optimistic command is sent.
	OnWriteIssued(actuatorID string)

	// OnWriteRolledBack is called when a rejected write is rolled back.
	OnWriteRolledBack(actuatorID string)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnStateChange(_, _ State)                             {}
func (NoOpMetricsProvider) OnAdapterStateChange(_ string, _, _ AdapterState)     {}
func (NoOpMetricsProvider) OnMerge(_ MergeResult, _ int)                         {}
func (NoOpMetricsProvider) OnFetchFailure(_ string, _ time.Duration)             {}
func (NoOpMetricsProvider) OnWriteIssued(_ string)                               {}
func (NoOpMetricsProvider) OnWriteRolledBack(_ string)                           {}
