// Package nats provides a dashboard.Backend over NATS subjects.
//
// The collector answers request-reply fetches and publishes every new
// reading and actuator change; commands travel the other way as requests
// so acceptance is acknowledged synchronously:
//
//	<prefix>.readings.fetch    request-reply, JSON fetch request -> JSON reading array
//	<prefix>.readings.latest   request-reply, empty -> JSON latest timestamp
//	<prefix>.readings          publish, one JSON reading per message
//	<prefix>.actuators         publish, one JSON actuator event per message
//	<prefix>.commands          request-reply, JSON command -> "+OK" or error text
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	dashboard "github.com/MarkBits1301/esp32-dashboard1"
)

// DefaultSubjectPrefix roots every subject the backend uses.
const DefaultSubjectPrefix = "dashboard"

// Backend implements dashboard.Backend over a NATS connection.
type Backend struct {
	conn   *nats.Conn
	codec  dashboard.Codec
	prefix string
}

// Option configures a Backend.
type Option func(*Backend)

// WithCodec sets the codec for message payloads. Default: JSON.
func WithCodec(codec dashboard.Codec) Option {
	return func(b *Backend) {
		b.codec = codec
	}
}

// WithSubjectPrefix overrides the subject prefix.
// Default: DefaultSubjectPrefix.
func WithSubjectPrefix(prefix string) Option {
	return func(b *Backend) {
		b.prefix = prefix
	}
}

// New creates a Backend over an established NATS connection.
func New(conn *nats.Conn, opts ...Option) *Backend {
	b := &Backend{
		conn:   conn,
		codec:  dashboard.JSONCodec{},
		prefix: DefaultSubjectPrefix,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) subject(parts ...string) string {
	return b.prefix + "." + strings.Join(parts, ".")
}

// fetchRequest is the request-reply payload for a window fetch.
type fetchRequest struct {
	Since time.Time `json:"since,omitempty"`
	Limit int       `json:"limit,omitempty"`
}

// FetchReadings requests the retained window from the collector.
func (b *Backend) FetchReadings(ctx context.Context, since time.Time, limit int) ([]dashboard.Reading, error) {
	req, err := marshalJSON(fetchRequest{Since: since, Limit: limit})
	if err != nil {
		return nil, err
	}
	msg, err := b.conn.RequestWithContext(ctx, b.subject("readings", "fetch"), req)
	if err != nil {
		return nil, fmt.Errorf("fetch readings: %w", err)
	}

	var readings []dashboard.Reading
	if err := b.codec.Unmarshal(msg.Data, &readings); err != nil {
		return nil, fmt.Errorf("decode readings: %w", err)
	}
	return readings, nil
}

// FetchLatestTimestamp requests the collector's newest reading timestamp.
func (b *Backend) FetchLatestTimestamp(ctx context.Context) (time.Time, bool, error) {
	msg, err := b.conn.RequestWithContext(ctx, b.subject("readings", "latest"), nil)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("fetch latest timestamp: %w", err)
	}

	var reply struct {
		Timestamp *time.Time `json:"timestamp"`
	}
	if err := b.codec.Unmarshal(msg.Data, &reply); err != nil {
		return time.Time{}, false, fmt.Errorf("decode latest timestamp: %w", err)
	}
	if reply.Timestamp == nil {
		return time.Time{}, false, nil
	}
	return *reply.Timestamp, true, nil
}

// SubscribeReadings subscribes to the reading subject. The returned
// channel closes when the connection drops or ctx is canceled.
func (b *Backend) SubscribeReadings(ctx context.Context) (<-chan dashboard.Reading, error) {
	msgs, err := b.subscribe(ctx, b.subject("readings"))
	if err != nil {
		return nil, err
	}

	out := make(chan dashboard.Reading)
	go func() {
		defer close(out)
		for msg := range msgs {
			var reading dashboard.Reading
			if err := b.codec.Unmarshal(msg.Data, &reading); err != nil {
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

// SubscribeActuators subscribes to the actuator subject.
func (b *Backend) SubscribeActuators(ctx context.Context) (<-chan dashboard.ActuatorEvent, error) {
	msgs, err := b.subscribe(ctx, b.subject("actuators"))
	if err != nil {
		return nil, err
	}

	out := make(chan dashboard.ActuatorEvent)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev dashboard.ActuatorEvent
			if err := b.codec.Unmarshal(msg.Data, &ev); err != nil {
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

// subscribe opens one subscription and hands its messages to a channel
// that closes on ctx cancel or connection closure.
func (b *Backend) subscribe(ctx context.Context, subject string) (<-chan *nats.Msg, error) {
	msgs := make(chan *nats.Msg, 64)
	sub, err := b.conn.ChanSubscribe(subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	out := make(chan *nats.Msg)
	go func() {
		defer close(out)
		defer sub.Unsubscribe() //nolint:errcheck

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// command is the request payload for actuator and mode writes.
type command struct {
	ID        string `json:"id"`
	On        bool   `json:"on"`
	CommandID string `json:"command_id"`
}

// WriteActuator sends a relay command and waits for the collector's ack.
func (b *Backend) WriteActuator(ctx context.Context, id string, on bool, commandID string) error {
	return b.writeCommand(ctx, command{ID: id, On: on, CommandID: commandID})
}

// WriteMode sends a mode command and waits for the collector's ack.
func (b *Backend) WriteMode(ctx context.Context, automatic bool, commandID string) error {
	return b.writeCommand(ctx, command{ID: dashboard.ModeID, On: automatic, CommandID: commandID})
}

func (b *Backend) writeCommand(ctx context.Context, cmd command) error {
	req, err := marshalJSON(cmd)
	if err != nil {
		return err
	}
	msg, err := b.conn.RequestWithContext(ctx, b.subject("commands"), req)
	if err != nil {
		return fmt.Errorf("write command %s: %w", cmd.ID, err)
	}
	if reply := string(msg.Data); reply != "+OK" {
		return fmt.Errorf("command %s rejected: %s", cmd.ID, reply)
	}
	return nil
}

// marshalJSON encodes outbound payloads. Requests are always JSON; the
// configurable codec only governs what the collector sends back.
func marshalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}

// Ensure Backend implements the full backend contract.
var _ dashboard.Backend = (*Backend)(nil)
