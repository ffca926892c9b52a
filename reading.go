package dashboard

import "time"

// Reading is a single timestamped sensor sample. Readings are immutable
// values: once merged into a Store they are never patched, only replaced
// wholesale by a later merge carrying the same timestamp.
type Reading struct {
	// Timestamp identifies the reading. It is the merge key: two readings
	// with equal timestamps are the same logical sample.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// Temperature in degrees Celsius.
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// Humidity in percent relative humidity. Nil when the sensor did not
	// report humidity for this sample.
	Humidity *float64 `json:"humidity,omitempty" yaml:"humidity,omitempty"`
}

// Before reports whether r was sampled strictly before other.
func (r Reading) Before(other Reading) bool {
	return r.Timestamp.Before(other.Timestamp)
}

// Float64 returns a pointer to v. Convenience for building readings with
// humidity inline.
func Float64(v float64) *float64 {
	return &v
}
