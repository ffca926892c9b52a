package dashboard

import (
	"context"

	"github.com/zoobzio/capitan"
)

// runBulk performs the one-shot initial load of the full retained window.
// It blocks until the fetch resolves or the startup timeout expires. The
// bulk channel never restarts: after completion it moves to Stopped and
// the push and poll channels take over.
func (c *Coordinator) runBulk(ctx context.Context) error {
	c.bulk.transition(ctx, AdapterStarting)
	g := c.bulk.bump()
	start := c.clock.Now()

	bctx := ctx
	if c.startupTimeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = c.clock.WithTimeout(ctx, c.startupTimeout)
		defer cancel()
	}

	res, err := c.pipeline.Process(bctx, c.windowRequest("bulk"))
	if err != nil {
		ferr := &FetchError{Op: "bulk", Err: err}
		capitan.Emit(ctx, FetchFailed,
			KeyAdapter.Field(c.bulk.name),
			KeyError.Field(ferr.Error()),
		)
		if c.metrics != nil {
			c.metrics.OnFetchFailure(c.bulk.name, c.clock.Since(start))
		}
		c.recordError(ctx, ferr)
		c.bulk.transition(ctx, AdapterStopped)
		return ferr
	}

	if c.bulk.stale(g) || ctx.Err() != nil {
		capitan.Emit(ctx, StaleResponseDiscarded,
			KeyAdapter.Field(c.bulk.name),
		)
		c.bulk.transition(ctx, AdapterStopped)
		return ctx.Err()
	}

	c.bulk.transition(ctx, AdapterActive)
	c.merge(ctx, res.Readings)
	c.clearError(ctx)
	c.bulk.transition(ctx, AdapterStopped)
	return nil
}
