package dashboard

import (
	"time"

	"github.com/zoobzio/pipz"
)

// fetchID names the terminal fetch stage in pipeline error output.
const fetchID pipz.Name = "fetch"

// FetchRequest carries one window fetch through the resilience pipeline.
// Middleware stages (retry, backoff, timeout) wrap the terminal stage that
// actually calls the data source.
type FetchRequest struct {
	// Op names the operation for error reporting: "bulk", "poll", or
	// "catch-up".
	Op string

	// Since bounds the fetch to readings newer than this instant.
	// Zero means the backend's full retained window.
	Since time.Time

	// Limit bounds the result size. Zero means no limit.
	Limit int

	// Readings is filled by the terminal stage on success.
	Readings []Reading
}

// buildFetchPipeline wraps the terminal fetch stage with pipeline options,
// innermost first.
func buildFetchPipeline(terminal pipz.Chainable[*FetchRequest], opts []Option) pipz.Chainable[*FetchRequest] {
	pipeline := terminal
	for _, opt := range opts {
		pipeline = opt(pipeline)
	}
	return pipeline
}
