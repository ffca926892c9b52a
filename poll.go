package dashboard

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
)

// runPoll drives the poll fallback: on every tick it probes the backend's
// latest reading timestamp and refetches the full window only when the
// backend is ahead of the store. The cheap-probe-then-expensive-refetch
// split bounds bandwidth while guaranteeing eventual consistency even if
// the push channel silently drops events.
func (c *Coordinator) runPoll(ctx context.Context) {
	defer c.wg.Done()
	defer c.poll.transition(ctx, AdapterStopped)

	c.poll.transition(ctx, AdapterStarting)
	c.poll.bump()
	c.poll.transition(ctx, AdapterActive)

	timer := c.clock.NewTimer(c.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
			c.pollOnce(ctx) //nolint:errcheck // Errors stored via recordError
			timer.Reset(c.pollInterval)
		}
	}
}

// pollOnce performs one probe-and-maybe-refetch cycle.
func (c *Coordinator) pollOnce(ctx context.Context) error {
	g := c.poll.gen()
	start := c.clock.Now()
	wasDegraded := c.poll.State() == AdapterDegraded

	pctx, cancel := c.clock.WithTimeout(ctx, c.probeTimeout)
	latest, ok, err := c.backend.FetchLatestTimestamp(pctx)
	cancel()
	if err != nil {
		return c.pollFailed(ctx, &FetchError{Op: "probe", Err: err}, start)
	}

	if !ok {
		// Backend holds no readings at all; nothing to reconcile.
		c.poll.transition(ctx, AdapterActive)
		if wasDegraded {
			c.pollRecovered(ctx)
		}
		return nil
	}
	if max, has := c.store.MaxTimestamp(); has && !latest.After(max) {
		// Store is already caught up; skip the expensive refetch.
		c.poll.transition(ctx, AdapterActive)
		if wasDegraded {
			c.pollRecovered(ctx)
		}
		return nil
	}

	res, err := c.pipeline.Process(ctx, c.windowRequest("poll"))
	if err != nil {
		return c.pollFailed(ctx, &FetchError{Op: "poll", Err: err}, start)
	}

	if c.poll.stale(g) || ctx.Err() != nil {
		capitan.Emit(ctx, StaleResponseDiscarded,
			KeyAdapter.Field(c.poll.name),
		)
		return nil
	}

	c.merge(ctx, res.Readings)
	c.poll.transition(ctx, AdapterActive)
	c.pollRecovered(ctx)
	return nil
}

// pollRecovered resolves a poll failure. The error surface is only cleared
// when the push channel is up: while push is down, its loss remains the
// surfaced error, so a Snapshot never reports a degraded dataset with a
// nil LastError. Push recovery clears the error through its own catch-up.
func (c *Coordinator) pollRecovered(ctx context.Context) {
	if c.push.State() == AdapterDegraded {
		c.transitionState(ctx, c.failureState())
		return
	}
	c.clearError(ctx)
}

// pollFailed degrades the poll channel and records the transient error.
// The next tick retries; merged data stays untouched.
func (c *Coordinator) pollFailed(ctx context.Context, ferr *FetchError, start time.Time) error {
	capitan.Emit(ctx, FetchFailed,
		KeyAdapter.Field(c.poll.name),
		KeyError.Field(ferr.Error()),
	)
	if c.metrics != nil {
		c.metrics.OnFetchFailure(c.poll.name, c.clock.Since(start))
	}
	c.poll.transition(ctx, AdapterDegraded)
	c.recordError(ctx, ferr)
	return ferr
}
