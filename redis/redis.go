// Package redis provides a dashboard.Backend over Redis using a sorted
// set for the reading window and Pub/Sub for the push channel.
//
// Readings live in a sorted set scored by unix milliseconds with the JSON
// reading as the member. The collector publishes each new reading on
// <prefix>:readings and each confirmed actuator change on
// <prefix>:actuators; commands are published on <prefix>:commands and
// mirrored into the <prefix>:actuators:desired hash for the device to pick
// up after a restart.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	dashboard "github.com/MarkBits1301/esp32-dashboard1"
)

// DefaultKeyPrefix roots every key and channel the backend uses.
const DefaultKeyPrefix = "dashboard"

// Backend implements dashboard.Backend over a Redis client.
type Backend struct {
	client *redis.Client
	codec  dashboard.Codec
	prefix string
}

// Option configures a Backend.
type Option func(*Backend)

// WithCodec sets the codec for stored and published payloads. Default: JSON.
func WithCodec(codec dashboard.Codec) Option {
	return func(b *Backend) {
		b.codec = codec
	}
}

// WithKeyPrefix overrides the key and channel prefix.
// Default: DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(b *Backend) {
		b.prefix = prefix
	}
}

// New creates a Backend over an established Redis client.
func New(client *redis.Client, opts ...Option) *Backend {
	b := &Backend{
		client: client,
		codec:  dashboard.JSONCodec{},
		prefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) key(suffix string) string {
	return b.prefix + ":" + suffix
}

// FetchReadings reads the sorted-set window, newest limit entries, oldest
// first.
func (b *Backend) FetchReadings(ctx context.Context, since time.Time, limit int) ([]dashboard.Reading, error) {
	min := "-inf"
	if !since.IsZero() {
		// Exclusive bound: the caller already holds the reading at since.
		min = "(" + strconv.FormatInt(since.UnixMilli(), 10)
	}

	// Reverse range so a limit keeps the newest entries.
	opts := &redis.ZRangeBy{Min: min, Max: "+inf"}
	if limit > 0 {
		opts.Count = int64(limit)
	}
	members, err := b.client.ZRevRangeByScore(ctx, b.key("readings"), opts).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch readings: %w", err)
	}

	out := make([]dashboard.Reading, 0, len(members))
	for i := len(members) - 1; i >= 0; i-- {
		var reading dashboard.Reading
		if err := b.codec.Unmarshal([]byte(members[i]), &reading); err != nil {
			continue
		}
		out = append(out, reading)
	}
	return out, nil
}

// FetchLatestTimestamp reads the highest score in the window.
func (b *Backend) FetchLatestTimestamp(ctx context.Context) (time.Time, bool, error) {
	members, err := b.client.ZRevRangeByScoreWithScores(ctx, b.key("readings"), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("fetch latest timestamp: %w", err)
	}
	if len(members) == 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(int64(members[0].Score)).UTC(), true, nil
}

// SubscribeReadings subscribes to the reading channel. The returned
// channel closes when the subscription drops or ctx is canceled.
func (b *Backend) SubscribeReadings(ctx context.Context) (<-chan dashboard.Reading, error) {
	msgs, err := b.subscribe(ctx, b.key("readings"))
	if err != nil {
		return nil, err
	}

	out := make(chan dashboard.Reading)
	go func() {
		defer close(out)
		for payload := range msgs {
			var reading dashboard.Reading
			if err := b.codec.Unmarshal(payload, &reading); err != nil {
				continue
			}
			select {
			case out <- reading:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// SubscribeActuators subscribes to the actuator channel.
func (b *Backend) SubscribeActuators(ctx context.Context) (<-chan dashboard.ActuatorEvent, error) {
	msgs, err := b.subscribe(ctx, b.key("actuators"))
	if err != nil {
		return nil, err
	}

	out := make(chan dashboard.ActuatorEvent)
	go func() {
		defer close(out)
		for payload := range msgs {
			var ev dashboard.ActuatorEvent
			if err := b.codec.Unmarshal(payload, &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// subscribe opens one Pub/Sub subscription and verifies it before use.
func (b *Backend) subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := b.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close() //nolint:errcheck
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer sub.Close() //nolint:errcheck

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// WriteActuator publishes a relay command and mirrors the desired state so
// a restarting device can recover it.
func (b *Backend) WriteActuator(ctx context.Context, id string, on bool, commandID string) error {
	payload, err := json.Marshal(map[string]any{
		"id":         id,
		"on":         on,
		"command_id": commandID,
	})
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.key("actuators:desired"), id, string(payload))
	pipe.Publish(ctx, b.key("commands"), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write actuator %s: %w", id, err)
	}
	return nil
}

// WriteMode publishes a mode command next to the relay commands.
func (b *Backend) WriteMode(ctx context.Context, automatic bool, commandID string) error {
	return b.WriteActuator(ctx, dashboard.ModeID, automatic, commandID)
}

// Ensure Backend implements the full backend contract.
var _ dashboard.Backend = (*Backend)(nil)
