package dashboard

import (
	"fmt"
	"time"
)

// RetentionPolicy bounds a Store by count or by age. Exactly one bound must
// be set per instance: a policy is either "keep the last N readings" or
// "keep readings younger than D", never both.
//
// The bound is enforced immediately after every merge, not lazily.
type RetentionPolicy struct {
	// MaxCount keeps the most recent MaxCount readings, evicting the
	// oldest first. Zero means no count bound.
	MaxCount int `json:"max_count,omitempty" yaml:"max_count,omitempty"`

	// MaxAge keeps readings whose timestamp is within MaxAge of the
	// current time. Zero means no age bound.
	MaxAge time.Duration `json:"max_age,omitempty" yaml:"max_age,omitempty"`
}

// KeepLast returns a count-bounded policy retaining the most recent n readings.
func KeepLast(n int) RetentionPolicy {
	return RetentionPolicy{MaxCount: n}
}

// KeepWithin returns an age-bounded policy retaining readings younger than d.
func KeepWithin(d time.Duration) RetentionPolicy {
	return RetentionPolicy{MaxAge: d}
}

// Validate checks that exactly one bound is configured.
func (p RetentionPolicy) Validate() error {
	switch {
	case p.MaxCount > 0 && p.MaxAge > 0:
		return fmt.Errorf("%w: retention policy sets both count and age bounds", ErrConfig)
	case p.MaxCount == 0 && p.MaxAge == 0:
		return fmt.Errorf("%w: retention policy sets neither count nor age bound", ErrConfig)
	case p.MaxCount < 0:
		return fmt.Errorf("%w: retention count must be positive", ErrConfig)
	case p.MaxAge < 0:
		return fmt.Errorf("%w: retention age must be positive", ErrConfig)
	}
	return nil
}

// evict applies the policy to a sorted reading sequence and returns the
// retained slice along with the number of evicted entries. now is only
// consulted for age-bounded policies.
func (p RetentionPolicy) evict(readings []Reading, now time.Time) ([]Reading, int) {
	switch {
	case p.MaxCount > 0 && len(readings) > p.MaxCount:
		cut := len(readings) - p.MaxCount
		return readings[cut:], cut

	case p.MaxAge > 0:
		cutoff := now.Add(-p.MaxAge)
		cut := 0
		for cut < len(readings) && readings[cut].Timestamp.Before(cutoff) {
			cut++
		}
		return readings[cut:], cut
	}
	return readings, 0
}
