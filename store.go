package dashboard

import (
	"sort"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// MergeResult reports what a single merge changed.
type MergeResult struct {
	// Inserted is the number of readings added with a new timestamp.
	Inserted int
	// Replaced is the number of readings that overwrote an existing
	// timestamp (last write wins).
	Replaced int
	// Evicted is the number of readings removed by the retention policy.
	Evicted int
}

// changed reports whether the merge altered the store at all.
func (r MergeResult) changed() bool {
	return r.Inserted > 0 || r.Replaced > 0 || r.Evicted > 0
}

// Store is a bounded, deduplicated, time-ordered collection of readings.
//
// The sequence is strictly ascending by timestamp at all times; no two
// entries share a timestamp after a merge. Merging is commutative and
// idempotent: batches may arrive in any completion order from any producer
// and the key-based merge restores chronological order. The retention
// policy is enforced immediately after every merge, never lazily.
type Store struct {
	mu       sync.RWMutex
	policy   RetentionPolicy
	clock    clockz.Clock
	readings []Reading
	revision uint64
}

// NewStore creates a Store bounded by the given retention policy.
// The policy is validated; an invalid policy is a construction error.
func NewStore(policy RetentionPolicy) (*Store, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		policy: policy,
		clock:  clockz.RealClock,
	}, nil
}

// Clock sets a custom clock for age-bounded eviction.
// Use this with clockz.FakeClock for deterministic retention testing.
func (s *Store) Clock(clock clockz.Clock) *Store {
	s.mu.Lock()
	s.clock = clock
	s.mu.Unlock()
	return s
}

// Merge inserts or replaces readings keyed by timestamp, then applies the
// retention policy. An empty batch is a no-op. Batches need not be ordered:
// out-of-order and duplicate entries still yield a sorted, deduplicated
// sequence.
func (s *Store) Merge(batch []Reading) MergeResult {
	var res MergeResult
	if len(batch) == 0 {
		return res
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range batch {
		i := sort.Search(len(s.readings), func(i int) bool {
			return !s.readings[i].Timestamp.Before(r.Timestamp)
		})
		if i < len(s.readings) && s.readings[i].Timestamp.Equal(r.Timestamp) {
			s.readings[i] = r
			res.Replaced++
			continue
		}
		s.readings = append(s.readings, Reading{})
		copy(s.readings[i+1:], s.readings[i:])
		s.readings[i] = r
		res.Inserted++
	}

	s.readings, res.Evicted = s.policy.evict(s.readings, s.clock.Now())

	if res.changed() {
		s.revision++
	}
	return res
}

// Snapshot returns a copy of the current ordered sequence. The returned
// slice never aliases internal storage.
func (s *Store) Snapshot() []Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Reading, len(s.readings))
	copy(out, s.readings)
	return out
}

// Query returns the readings with from <= timestamp <= to, without
// affecting retention. Zero bounds are open on that side.
func (s *Store) Query(from, to time.Time) []Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := 0
	if !from.IsZero() {
		lo = sort.Search(len(s.readings), func(i int) bool {
			return !s.readings[i].Timestamp.Before(from)
		})
	}
	hi := len(s.readings)
	if !to.IsZero() {
		hi = sort.Search(len(s.readings), func(i int) bool {
			return s.readings[i].Timestamp.After(to)
		})
	}
	if lo >= hi {
		return nil
	}
	out := make([]Reading, hi-lo)
	copy(out, s.readings[lo:hi])
	return out
}

// MaxTimestamp returns the newest timestamp in the store and true, or the
// zero time and false when the store is empty. The poll loader probes this
// against the backend before deciding whether a refetch is worthwhile.
func (s *Store) MaxTimestamp() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.readings) == 0 {
		return time.Time{}, false
	}
	return s.readings[len(s.readings)-1].Timestamp, true
}

// Len returns the number of retained readings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}

// Revision returns a counter that increments on every merge that changes
// the store. Consumers can compare revisions to detect staleness cheaply.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}
