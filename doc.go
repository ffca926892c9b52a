/*
Package dashboard reconciles a live sensor and relay dataset from three
overlapping feeds: a bulk load at startup, a push stream of incremental
events, and a periodic poll fallback. The three feeds converge into a
single time-ordered window of readings plus the confirmed state of the
relays, regardless of which feed delivers first or fails.

The package is designed to be embedded in clients that render or act on
the dataset, not run as a standalone service. It follows a builder
pattern, allowing callers to compose the coordinator around any backend.

# Basic Usage

Create a coordinator over a backend and a config:

	cfg := dashboard.Config{
	    Retention: dashboard.RetentionConfig{MaxCount: 50},
	    Bands: dashboard.Bands{
	        {Label: "cold", Min: -40, Max: 18},
	        {Label: "comfortable", Min: 18, Max: 26},
	        {Label: "hot", Min: 26, Max: 85},
	    },
	    Actuators: []string{"relay-1", "relay-2"},
	}

	coord, err := dashboard.New(backend, cfg,
	    dashboard.WithFetchTimeout(10*time.Second),
	    dashboard.WithFetchBackoff(3, 500*time.Millisecond),
	)
	if err != nil {
	    return err
	}
	if err := coord.Start(ctx); err != nil {
	    log.Printf("bulk load failed, continuing degraded: %v", err)
	}
	defer coord.Stop()

Read the merged dataset at any point:

	snap := coord.Snapshot()
	fmt.Println(snap.State, snap.View.Classification, len(snap.Readings))

Or react to every change:

	for snap := range coord.Watch(ctx) {
	    render(snap)
	}

# Merging

All three feeds land in one store keyed by timestamp. A reading whose
timestamp is already present replaces the stored value; otherwise it is
inserted in order. Replaying a feed is therefore harmless, and the window
never depends on arrival order. Retention trims the window after every
merge, by count or by age:

	dashboard.KeepLast(50)                  // newest 50 readings
	dashboard.KeepWithin(24 * time.Hour)    // last 24 hours

# Actuators

Relay toggles are optimistic. Toggle flips the desired state immediately,
issues the write, and rolls back if the write fails. The confirmed state
only changes when the backend echoes the command back on the push stream;
a confirmation always wins over local optimism:

	if err := coord.ToggleActuator(ctx, "relay-1"); err != nil {
	    // dashboard.ErrBlockedByMode, dashboard.ErrWritePending, or a *WriteError
	}

While the system mode is automatic, manual toggles are rejected with
ErrBlockedByMode. SetMode switches between automatic and manual through
the same optimistic write path.

# Degradation

Each feed carries its own state machine. When the push stream drops, the
coordinator backs off, resubscribes, and runs a catch-up fetch to cover
the gap before trusting the stream again. The poll loop probes the
backend's newest timestamp and refetches only when it is ahead of the
store. The dataset state reported by Snapshot is Loading until the first
data arrives, Healthy while the push stream is live, Degraded while any
feed is failing but data remains, and Empty when failures leave no data
at all.

# Backends

Any type implementing Backend plugs in. Subpackages provide backends for
PostgreSQL (LISTEN/NOTIFY), NATS, Redis, and newline-delimited JSON
files; ChannelSource is an in-memory backend for tests:

	src := dashboard.NewChannelSource().AutoConfirm()
	src.Seed(readings...)
	coord, _ := dashboard.New(src, cfg)

# Observability

The package emits capitan signals for every state transition, merge,
fetch failure, and write outcome. A MetricsProvider can be attached with
the chainable Metrics method to receive the same events as typed
callbacks.
*/
package dashboard
