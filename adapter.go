package dashboard

import (
	"context"
	"sync/atomic"

	"github.com/zoobzio/capitan"
)

// adapter is the shared lifecycle core of the three update channels.
// It tracks the Idle → Starting → Active ⇄ Degraded → Stopped machine and
// a generation counter that guards against late responses: a fetch started
// under an older generation is discarded, never merged.
type adapter struct {
	name       string
	state      atomic.Int32
	generation atomic.Uint64
	metrics    MetricsProvider
}

func newAdapter(name string, metrics MetricsProvider) *adapter {
	return &adapter{name: name, metrics: metrics}
}

// State returns the adapter's current lifecycle state.
func (a *adapter) State() AdapterState {
	return AdapterState(a.state.Load())
}

// transition moves the adapter to a new state, emitting a signal when the
// state actually changes.
func (a *adapter) transition(ctx context.Context, to AdapterState) {
	from := AdapterState(a.state.Swap(int32(to)))
	if from == to {
		return
	}
	capitan.Emit(ctx, AdapterStateChanged,
		KeyAdapter.Field(a.name),
		KeyOldState.Field(from.String()),
		KeyNewState.Field(to.String()),
	)
	if a.metrics != nil {
		a.metrics.OnAdapterStateChange(a.name, from, to)
	}
}

// bump advances the generation, invalidating responses started before it.
func (a *adapter) bump() uint64 {
	return a.generation.Add(1)
}

// gen returns the current generation.
func (a *adapter) gen() uint64 {
	return a.generation.Load()
}

// stale reports whether a response captured under g should be discarded.
func (a *adapter) stale(g uint64) bool {
	return a.generation.Load() != g
}
