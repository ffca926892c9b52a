package dashboard

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
)

// runPush maintains the long-lived subscription to reading inserts and
// actuator confirmations. Connection loss moves the channel to Degraded
// without discarding merged data, then resubscribes with exponential
// backoff. A resumed subscription is not trusted to have delivered every
// missed event: the transition back to Active runs a catch-up fetch of
// the full window first.
func (c *Coordinator) runPush(ctx context.Context) {
	defer c.wg.Done()
	defer c.push.transition(ctx, AdapterStopped)

	delay := reconnectBase
	wasDegraded := false

	for ctx.Err() == nil {
		c.push.transition(ctx, AdapterStarting)
		g := c.push.bump()

		readings, err := c.backend.SubscribeReadings(ctx)
		var actuators <-chan ActuatorEvent
		if err == nil {
			actuators, err = c.backend.SubscribeActuators(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.degradePush(ctx, &SubscriptionLostError{Channel: "subscribe", Err: err})
			wasDegraded = true
			if !c.sleep(ctx, delay) {
				return
			}
			delay = nextReconnectDelay(delay)
			continue
		}

		if wasDegraded {
			if err := c.catchUp(ctx, g); err == nil {
				wasDegraded = false
			}
		}

		c.push.transition(ctx, AdapterActive)
		c.transitionState(ctx, c.healthyState())
		delay = reconnectBase

		if !c.consumePush(ctx, readings, actuators) {
			return
		}

		c.degradePush(ctx, &SubscriptionLostError{Channel: "events"})
		wasDegraded = true
		if !c.sleep(ctx, delay) {
			return
		}
		delay = nextReconnectDelay(delay)
	}
}

// consumePush merges pushed readings and applies actuator confirmations
// until the subscription drops (returns true) or ctx is canceled (false).
func (c *Coordinator) consumePush(ctx context.Context, readings <-chan Reading, actuators <-chan ActuatorEvent) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case r, ok := <-readings:
			if !ok {
				return true
			}
			c.merge(ctx, []Reading{r})
		case ev, ok := <-actuators:
			if !ok {
				return true
			}
			c.controller.ApplyConfirmed(ctx, ev)
		}
	}
}

// degradePush records the loss and moves the channel to Degraded. The poll
// loader keeps its cadence regardless, so the window still converges.
func (c *Coordinator) degradePush(ctx context.Context, err *SubscriptionLostError) {
	c.push.transition(ctx, AdapterDegraded)
	c.recordError(ctx, err)
}

// catchUp refetches the full window after a reconnect instead of trusting
// the resumed stream to have no gap. The result is discarded if the push
// channel was restarted again while the fetch was in flight.
func (c *Coordinator) catchUp(ctx context.Context, g uint64) error {
	capitan.Emit(ctx, CatchUpStarted,
		KeyAdapter.Field(c.push.name),
	)
	start := c.clock.Now()

	res, err := c.pipeline.Process(ctx, c.windowRequest("catch-up"))
	if err != nil {
		ferr := &FetchError{Op: "catch-up", Err: err}
		capitan.Emit(ctx, FetchFailed,
			KeyAdapter.Field(c.push.name),
			KeyError.Field(ferr.Error()),
		)
		if c.metrics != nil {
			c.metrics.OnFetchFailure(c.push.name, c.clock.Since(start))
		}
		c.recordError(ctx, ferr)
		return ferr
	}

	if c.push.stale(g) || ctx.Err() != nil {
		capitan.Emit(ctx, StaleResponseDiscarded,
			KeyAdapter.Field(c.push.name),
		)
		return nil
	}

	c.merge(ctx, res.Readings)
	c.clearError(ctx)
	return nil
}

// nextReconnectDelay doubles the resubscribe delay up to reconnectMax.
func nextReconnectDelay(d time.Duration) time.Duration {
	d *= 2
	if d > reconnectMax {
		return reconnectMax
	}
	return d
}
