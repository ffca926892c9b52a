package dashboard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/pipz"
)

// Defaults for the engine's timing knobs.
const (
	// DefaultPollInterval is the cadence of the poll fallback.
	DefaultPollInterval = 30 * time.Second

	// DefaultFetchTimeout bounds each fetch attempt.
	DefaultFetchTimeout = 15 * time.Second

	// DefaultStartupTimeout bounds the initial bulk load.
	DefaultStartupTimeout = 30 * time.Second

	// reconnectBase is the initial delay before a push resubscribe.
	// The delay doubles per failed attempt, capped at reconnectMax.
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
)

// Snapshot is the read-only view the presentation layer consumes. It is a
// value: nothing in it aliases engine-internal storage.
type Snapshot struct {
	// Readings is the date-filtered, time-ordered window.
	Readings []Reading

	// View is the derived projection over Readings.
	View View

	// Actuators maps relay id to its observable state.
	Actuators map[string]ActuatorState

	// Mode is the confirmed global mode; ModePending reports an in-flight
	// mode write.
	Mode        Mode
	ModePending bool

	// State is the overall dataset state.
	State State

	// Bulk, Push, and Poll expose the per-channel lifecycle states.
	Bulk AdapterState
	Push AdapterState
	Poll AdapterState

	// LastError is the most recent unresolved transient error, nil when
	// the dataset is in sync.
	LastError error

	// Revision increments on every merge that changed the store.
	Revision uint64
}

// Coordinator merges three independently failing update channels (a
// one-shot bulk load, a push subscription, and a poll fallback) into one
// authoritative, time-ordered dataset, and coordinates optimistic actuator
// writes against asynchronous backend confirmation.
//
// Startup runs the bulk load to completion (or timeout) before activating
// push and poll, so a push-only partial view is never presented as
// complete. Shutdown via Stop releases every subscription and timer
// deterministically; in-flight responses arriving after a stop are
// discarded by generation guards rather than merged.
type Coordinator struct {
	backend    Backend
	cfg        Config
	store      *Store
	controller *Controller
	pipeline   pipz.Chainable[*FetchRequest]

	clock          clockz.Clock
	metrics        MetricsProvider
	errorHistory   *errorRing
	onStop         func(State)
	startupTimeout time.Duration
	probeTimeout   time.Duration
	pollInterval   time.Duration
	fetchLimit     int

	state     atomic.Int32
	lastError atomic.Pointer[error]

	bulk *adapter
	push *adapter
	poll *adapter

	mu          sync.Mutex
	started     bool
	stopped     bool
	cancel      context.CancelFunc
	filterFrom  time.Time
	filterTo    time.Time
	watchers    map[int]chan struct{}
	nextWatcher int

	wg sync.WaitGroup
}

// New creates a Coordinator over a backend. The configuration is validated
// here; invalid retention policies or overlapping classification bands are
// construction errors.
//
// Pipeline options wrap the window fetch shared by the bulk loader, the
// poll refetch, and the catch-up fetch. When no options are given the
// fetch defaults to DefaultFetchTimeout per attempt with three
// exponentially backed-off attempts.
func New(backend Backend, cfg Config, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := NewStore(cfg.Retention.Policy())
	if err != nil {
		return nil, err
	}

	terminal := pipz.Apply(fetchID, func(ctx context.Context, req *FetchRequest) (*FetchRequest, error) {
		readings, err := backend.FetchReadings(ctx, req.Since, req.Limit)
		if err != nil {
			return req, err
		}
		req.Readings = readings
		return req, nil
	})
	if len(opts) == 0 {
		opts = []Option{
			WithFetchTimeout(DefaultFetchTimeout),
			WithFetchBackoff(3, 500*time.Millisecond),
		}
	}

	c := &Coordinator{
		backend:        backend,
		cfg:            cfg,
		store:          store,
		pipeline:       buildFetchPipeline(terminal, opts),
		clock:          clockz.RealClock,
		startupTimeout: DefaultStartupTimeout,
		probeTimeout:   DefaultFetchTimeout,
		pollInterval:   cfg.pollInterval(),
		fetchLimit:     cfg.fetchLimit(),
		bulk:           newAdapter("bulk", nil),
		push:           newAdapter("push", nil),
		poll:           newAdapter("poll", nil),
		watchers:       make(map[int]chan struct{}),
	}
	c.controller = NewController(backend, cfg.Actuators...).OnChange(c.notifyWatchers)
	c.state.Store(int32(StateLoading))
	return c, nil
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Clock sets a custom clock for poll cadence, timeouts, and retention.
// Use this with clockz.FakeClock for deterministic testing.
// Must be called before Start().
func (c *Coordinator) Clock(clock clockz.Clock) *Coordinator {
	c.clock = clock
	c.store.Clock(clock)
	c.controller.Clock(clock)
	return c
}

// Metrics sets a metrics provider for observability integration.
// Must be called before Start().
func (c *Coordinator) Metrics(provider MetricsProvider) *Coordinator {
	c.metrics = provider
	c.bulk.metrics = provider
	c.push.metrics = provider
	c.poll.metrics = provider
	c.controller.Metrics(provider)
	return c
}

// StartupTimeout bounds the initial bulk load. If the load does not
// complete within this duration, Start returns a transient error and the
// poll fallback repairs the window in the background.
// Default: DefaultStartupTimeout. Must be called before Start().
func (c *Coordinator) StartupTimeout(d time.Duration) *Coordinator {
	c.startupTimeout = d
	return c
}

// ProbeTimeout bounds the poll loader's cheap latest-timestamp probe.
// Default: DefaultFetchTimeout. Must be called before Start().
func (c *Coordinator) ProbeTimeout(d time.Duration) *Coordinator {
	c.probeTimeout = d
	return c
}

// WriteTimeout bounds command-sink writes.
// Default: DefaultWriteTimeout. Must be called before Start().
func (c *Coordinator) WriteTimeout(d time.Duration) *Coordinator {
	c.controller.WriteTimeout(d)
	return c
}

// ErrorHistorySize sets the number of recent transient errors to retain.
// Use 0 (default) to only retain the most recent error via LastError().
// Must be called before Start().
func (c *Coordinator) ErrorHistorySize(n int) *Coordinator {
	c.errorHistory = newErrorRing(n)
	return c
}

// OnStop sets a callback invoked once Stop has released all adapter
// resources. The callback receives the final dataset state.
// Must be called before Start().
func (c *Coordinator) OnStop(fn func(State)) *Coordinator {
	c.onStop = fn
	return c
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start runs the startup sequence: the bulk load to completion or timeout,
// then the push listener and poll loader in the background.
//
// If the bulk load fails, Start returns the error but the background
// channels still run: the poll fallback converges the window eventually.
// Start can only be called once.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrStopped
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	capitan.Emit(ctx, CoordinatorStarted,
		KeyInterval.Field(c.pollInterval),
	)

	err := c.runBulk(runCtx)

	c.wg.Add(2)
	go c.runPush(runCtx)
	go c.runPoll(runCtx)

	return err
}

// Stop cancels the subscriptions and timers of all three channels and
// blocks until their goroutines have exited. Late in-flight responses are
// invalidated so they can never merge after teardown. Stop is idempotent.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()

	// Invalidate any response still in flight.
	c.bulk.bump()
	c.push.bump()
	c.poll.bump()

	final := c.State()
	capitan.Emit(context.Background(), CoordinatorStopped,
		KeyState.Field(final.String()),
	)
	if c.onStop != nil {
		c.onStop(final)
	}
}

// -----------------------------------------------------------------------------
// Presentation boundary
// -----------------------------------------------------------------------------

// Snapshot returns the current reconciled view. The result is a copy; the
// presentation layer can hold it as long as it likes.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	from, to := c.filterFrom, c.filterTo
	c.mu.Unlock()

	var readings []Reading
	if from.IsZero() && to.IsZero() {
		readings = c.store.Snapshot()
	} else {
		readings = c.store.Query(from, to)
	}

	return Snapshot{
		Readings:    readings,
		View:        ComputeView(readings, c.cfg.Bands),
		Actuators:   c.controller.States(),
		Mode:        c.controller.Mode(),
		ModePending: c.controller.ModePending(),
		State:       c.State(),
		Bulk:        c.bulk.State(),
		Push:        c.push.State(),
		Poll:        c.poll.State(),
		LastError:   c.LastError(),
		Revision:    c.store.Revision(),
	}
}

// Watch returns a channel delivering a fresh Snapshot after every change
// to the reconciled state. The first snapshot is delivered immediately.
// The channel closes when ctx is canceled.
func (c *Coordinator) Watch(ctx context.Context) <-chan Snapshot {
	out := make(chan Snapshot, 1)
	ping := make(chan struct{}, 1)

	c.mu.Lock()
	id := c.nextWatcher
	c.nextWatcher++
	c.watchers[id] = ping
	c.mu.Unlock()

	go func() {
		defer close(out)
		defer func() {
			c.mu.Lock()
			delete(c.watchers, id)
			c.mu.Unlock()
		}()

		select {
		case out <- c.Snapshot():
		case <-ctx.Done():
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping:
				select {
				case out <- c.Snapshot():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// ToggleActuator flips the desired state of a relay, subject to the mode
// gate and the single-in-flight-write policy.
func (c *Coordinator) ToggleActuator(ctx context.Context, id string) error {
	if c.isStopped() {
		return ErrStopped
	}
	return c.controller.Toggle(ctx, id)
}

// SetMode switches the global automatic/manual mode.
func (c *Coordinator) SetMode(ctx context.Context, automatic bool) error {
	if c.isStopped() {
		return ErrStopped
	}
	return c.controller.SetMode(ctx, automatic)
}

// SetDateFilter restricts Snapshot readings and the derived view to the
// given inclusive range. Zero bounds are open on that side; two zero
// bounds clear the filter. The filter never affects retention.
func (c *Coordinator) SetDateFilter(from, to time.Time) {
	c.mu.Lock()
	c.filterFrom, c.filterTo = from, to
	c.mu.Unlock()
	c.notifyWatchers()
}

// State returns the overall dataset state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// LastError returns the most recent unresolved transient error, or nil.
func (c *Coordinator) LastError() error {
	ptr := c.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// ErrorHistory returns the recent transient errors, oldest first.
// Returns nil unless ErrorHistorySize was set.
func (c *Coordinator) ErrorHistory() []error {
	return c.errorHistory.all()
}

// Controller exposes the actuator controller for direct wiring.
func (c *Coordinator) Controller() *Controller {
	return c.controller
}

// -----------------------------------------------------------------------------
// Internals shared by the adapters
// -----------------------------------------------------------------------------

// merge folds a batch into the store and fans out change notifications.
func (c *Coordinator) merge(ctx context.Context, batch []Reading) {
	res := c.store.Merge(batch)
	if !res.changed() {
		return
	}
	capitan.Emit(ctx, StoreMerged,
		KeyInserted.Field(res.Inserted),
		KeyReplaced.Field(res.Replaced),
		KeyEvicted.Field(res.Evicted),
		KeySize.Field(c.store.Len()),
	)
	if c.metrics != nil {
		c.metrics.OnMerge(res, c.store.Len())
	}
	c.notifyWatchers()
}

// windowRequest builds the fetch request for the current retained window.
func (c *Coordinator) windowRequest(op string) *FetchRequest {
	req := &FetchRequest{Op: op, Limit: c.fetchLimit}
	if age := c.cfg.Retention.MaxAge.Std(); age > 0 {
		req.Since = c.clock.Now().Add(-age)
	}
	return req
}

// recordError stores a transient error and moves the dataset to its
// failure state. Existing data is never discarded here.
func (c *Coordinator) recordError(ctx context.Context, err error) {
	e := err
	c.lastError.Store(&e)
	c.errorHistory.push(err)
	c.transitionState(ctx, c.failureState())
}

// clearError marks the dataset in sync again.
func (c *Coordinator) clearError(ctx context.Context) {
	c.lastError.Store(nil)
	c.errorHistory.clear()
	c.transitionState(ctx, c.healthyState())
}

// failureState distinguishes "nothing ever loaded" from "stale but usable".
func (c *Coordinator) failureState() State {
	if c.store.Len() == 0 {
		return StateEmpty
	}
	return StateDegraded
}

// healthyState keeps the dataset marked degraded while the push channel is
// down, even when the poll fallback is keeping the window fresh. An
// unresolved transient error likewise holds the dataset in its failure
// state until a fetch actually succeeds.
func (c *Coordinator) healthyState() State {
	if c.push.State() == AdapterDegraded {
		return StateDegraded
	}
	if c.LastError() != nil {
		return c.failureState()
	}
	return StateHealthy
}

// transitionState updates the state and emits a change event if changed.
func (c *Coordinator) transitionState(ctx context.Context, newState State) {
	oldState := State(c.state.Swap(int32(newState)))
	if oldState == newState {
		return
	}
	capitan.Emit(ctx, CoordinatorStateChanged,
		KeyOldState.Field(oldState.String()),
		KeyNewState.Field(newState.String()),
	)
	if c.metrics != nil {
		c.metrics.OnStateChange(oldState, newState)
	}
	c.notifyWatchers()
}

// notifyWatchers pings every Watch subscriber without blocking. Pings
// coalesce: a slow consumer sees the latest snapshot, not every step.
func (c *Coordinator) notifyWatchers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ping := range c.watchers {
		select {
		case ping <- struct{}{}:
		default:
		}
	}
}

// sleep waits for d or until ctx is canceled. Returns false on cancel.
func (c *Coordinator) sleep(ctx context.Context, d time.Duration) bool {
	timer := c.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C():
		return true
	}
}

func (c *Coordinator) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}
