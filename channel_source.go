package dashboard

import (
	"context"
	"sort"
	"sync"
	"time"
)

// WriteRecord is one command the ChannelSource received on its sink side.
type WriteRecord struct {
	ID        string
	On        bool
	CommandID string
	Mode      bool
}

// ChannelSource is an in-memory Backend backed by channels. Useful for
// testing and for custom sources that already produce typed values: tests
// seed the window, publish push events, script failures, and drop
// subscriptions to exercise the degraded paths.
type ChannelSource struct {
	mu       sync.Mutex
	readings []Reading

	nextSub      int
	readingSubs  map[int]*subscriber[Reading]
	actuatorSubs map[int]*subscriber[ActuatorEvent]

	fetchErr     error
	probeErr     error
	subscribeErr error
	writeErr     error

	autoConfirm bool
	writes      []WriteRecord
	fetches     int
}

// subscriber is one fan-out channel with close-safe delivery: sends after
// the subscription dropped are discarded instead of panicking.
type subscriber[T any] struct {
	mu     sync.Mutex
	ch     chan T
	closed bool
}

func newSubscriber[T any]() *subscriber[T] {
	return &subscriber[T]{ch: make(chan T, 16)}
}

func (s *subscriber[T]) send(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.ch <- v
	}
}

func (s *subscriber[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// NewChannelSource creates an empty in-memory backend.
func NewChannelSource() *ChannelSource {
	return &ChannelSource{
		readingSubs:  make(map[int]*subscriber[Reading]),
		actuatorSubs: make(map[int]*subscriber[ActuatorEvent]),
	}
}

// AutoConfirm makes every accepted write echo a confirmation event on the
// actuator subscription, the way a live backend row change would.
func (s *ChannelSource) AutoConfirm() *ChannelSource {
	s.mu.Lock()
	s.autoConfirm = true
	s.mu.Unlock()
	return s
}

// Seed replaces the backing window.
func (s *ChannelSource) Seed(readings ...Reading) *ChannelSource {
	s.mu.Lock()
	s.readings = append([]Reading(nil), readings...)
	sort.Slice(s.readings, func(i, j int) bool {
		return s.readings[i].Timestamp.Before(s.readings[j].Timestamp)
	})
	s.mu.Unlock()
	return s
}

// SetFetchError scripts FetchReadings failures. Nil clears.
func (s *ChannelSource) SetFetchError(err error) {
	s.mu.Lock()
	s.fetchErr = err
	s.mu.Unlock()
}

// SetProbeError scripts FetchLatestTimestamp failures. Nil clears.
func (s *ChannelSource) SetProbeError(err error) {
	s.mu.Lock()
	s.probeErr = err
	s.mu.Unlock()
}

// SetSubscribeError scripts subscription failures. Nil clears.
func (s *ChannelSource) SetSubscribeError(err error) {
	s.mu.Lock()
	s.subscribeErr = err
	s.mu.Unlock()
}

// SetWriteError scripts command-sink failures. Nil clears.
func (s *ChannelSource) SetWriteError(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

// PublishReading appends to the backing window and delivers the reading to
// every subscriber.
func (s *ChannelSource) PublishReading(r Reading) {
	s.mu.Lock()
	s.readings = append(s.readings, r)
	sort.Slice(s.readings, func(i, j int) bool {
		return s.readings[i].Timestamp.Before(s.readings[j].Timestamp)
	})
	subs := make([]*subscriber[Reading], 0, len(s.readingSubs))
	for _, sub := range s.readingSubs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.send(r)
	}
}

// PublishActuator delivers a confirmed actuator change to every subscriber.
func (s *ChannelSource) PublishActuator(ev ActuatorEvent) {
	s.mu.Lock()
	subs := make([]*subscriber[ActuatorEvent], 0, len(s.actuatorSubs))
	for _, sub := range s.actuatorSubs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.send(ev)
	}
}

// DropSubscriptions closes every open subscription channel, simulating a
// lost connection. Subscribers resubscribe and receive fresh channels.
func (s *ChannelSource) DropSubscriptions() {
	s.mu.Lock()
	for id, sub := range s.readingSubs {
		sub.close()
		delete(s.readingSubs, id)
	}
	for id, sub := range s.actuatorSubs {
		sub.close()
		delete(s.actuatorSubs, id)
	}
	s.mu.Unlock()
}

// FetchCount returns how many times FetchReadings has been called.
func (s *ChannelSource) FetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// Writes returns a copy of every command received so far.
func (s *ChannelSource) Writes() []WriteRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]WriteRecord(nil), s.writes...)
}

// FetchReadings returns readings newer than since, oldest first, keeping
// the newest limit entries.
func (s *ChannelSource) FetchReadings(_ context.Context, since time.Time, limit int) ([]Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetches++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []Reading
	for _, r := range s.readings {
		if !since.IsZero() && !r.Timestamp.After(since) {
			continue
		}
		out = append(out, r)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// FetchLatestTimestamp returns the newest backing timestamp.
func (s *ChannelSource) FetchLatestTimestamp(_ context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.probeErr != nil {
		return time.Time{}, false, s.probeErr
	}
	if len(s.readings) == 0 {
		return time.Time{}, false, nil
	}
	return s.readings[len(s.readings)-1].Timestamp, true, nil
}

// SubscribeReadings registers a reading subscriber.
func (s *ChannelSource) SubscribeReadings(ctx context.Context) (<-chan Reading, error) {
	s.mu.Lock()
	if s.subscribeErr != nil {
		err := s.subscribeErr
		s.mu.Unlock()
		return nil, err
	}
	id := s.nextSub
	s.nextSub++
	sub := newSubscriber[Reading]()
	s.readingSubs[id] = sub
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.readingSubs, id)
		s.mu.Unlock()
		sub.close()
	}()
	return sub.ch, nil
}

// SubscribeActuators registers an actuator subscriber.
func (s *ChannelSource) SubscribeActuators(ctx context.Context) (<-chan ActuatorEvent, error) {
	s.mu.Lock()
	if s.subscribeErr != nil {
		err := s.subscribeErr
		s.mu.Unlock()
		return nil, err
	}
	id := s.nextSub
	s.nextSub++
	sub := newSubscriber[ActuatorEvent]()
	s.actuatorSubs[id] = sub
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.actuatorSubs, id)
		s.mu.Unlock()
		sub.close()
	}()
	return sub.ch, nil
}

// WriteActuator records the command and optionally echoes a confirmation.
func (s *ChannelSource) WriteActuator(_ context.Context, id string, on bool, commandID string) error {
	s.mu.Lock()
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return err
	}
	s.writes = append(s.writes, WriteRecord{ID: id, On: on, CommandID: commandID})
	confirm := s.autoConfirm
	s.mu.Unlock()

	if confirm {
		s.PublishActuator(ActuatorEvent{ID: id, On: on, CommandID: commandID, Timestamp: time.Now()})
	}
	return nil
}

// WriteMode records the command and optionally echoes a confirmation.
func (s *ChannelSource) WriteMode(_ context.Context, automatic bool, commandID string) error {
	s.mu.Lock()
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return err
	}
	s.writes = append(s.writes, WriteRecord{ID: ModeID, On: automatic, CommandID: commandID, Mode: true})
	confirm := s.autoConfirm
	s.mu.Unlock()

	if confirm {
		s.PublishActuator(ActuatorEvent{ID: ModeID, On: automatic, CommandID: commandID, Timestamp: time.Now()})
	}
	return nil
}

// Ensure ChannelSource implements the full backend contract.
var _ Backend = (*ChannelSource)(nil)
