// Package postgres provides a dashboard.Backend over PostgreSQL using
// LISTEN/NOTIFY for the push channel.
//
// The expected schema is a readings table keyed by timestamp and an
// actuators table keyed by id, with triggers that NOTIFY the configured
// channels with a JSON payload of the changed row:
//
//	CREATE TABLE readings (
//	    ts          timestamptz PRIMARY KEY,
//	    temperature double precision NOT NULL,
//	    humidity    double precision
//	);
//	CREATE TABLE actuators (
//	    id         text PRIMARY KEY,
//	    state      boolean NOT NULL,
//	    command_id text NOT NULL DEFAULT '',
//	    updated_at timestamptz NOT NULL DEFAULT now()
//	);
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	dashboard "github.com/MarkBits1301/esp32-dashboard1"
)

// Defaults for listener reconnection bounds.
const (
	DefaultMinReconnect = time.Second
	DefaultMaxReconnect = 30 * time.Second
)

// Backend implements dashboard.Backend over a PostgreSQL database.
type Backend struct {
	db       *sql.DB
	conninfo string
	codec    dashboard.Codec

	readingsTable   string
	actuatorsTable  string
	readingChannel  string
	actuatorChannel string

	minReconnect time.Duration
	maxReconnect time.Duration
}

// Option configures a Backend.
type Option func(*Backend)

// WithCodec sets the codec for notification payloads. Default: JSON.
func WithCodec(codec dashboard.Codec) Option {
	return func(b *Backend) {
		b.codec = codec
	}
}

// WithTables overrides the readings and actuators table names.
func WithTables(readings, actuators string) Option {
	return func(b *Backend) {
		b.readingsTable = readings
		b.actuatorsTable = actuators
	}
}

// WithChannels overrides the notification channel names.
func WithChannels(readings, actuators string) Option {
	return func(b *Backend) {
		b.readingChannel = readings
		b.actuatorChannel = actuators
	}
}

// WithReconnect bounds the listener's reconnection backoff.
func WithReconnect(min, max time.Duration) Option {
	return func(b *Backend) {
		b.minReconnect = min
		b.maxReconnect = max
	}
}

// New creates a Backend over an open database handle. conninfo is the
// connection string used for the dedicated LISTEN connections; queries and
// writes go through db.
func New(db *sql.DB, conninfo string, opts ...Option) *Backend {
	b := &Backend{
		db:              db,
		conninfo:        conninfo,
		codec:           dashboard.JSONCodec{},
		readingsTable:   "readings",
		actuatorsTable:  "actuators",
		readingChannel:  "dashboard_readings",
		actuatorChannel: "dashboard_actuators",
		minReconnect:    DefaultMinReconnect,
		maxReconnect:    DefaultMaxReconnect,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// readingRow is the scan target and notification payload for one reading.
type readingRow struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    *float64  `json:"humidity,omitempty"`
}

func (r readingRow) reading() dashboard.Reading {
	return dashboard.Reading{
		Timestamp:   r.Timestamp,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
	}
}

// FetchReadings queries the readings table, newest limit rows, oldest first.
func (b *Backend) FetchReadings(ctx context.Context, since time.Time, limit int) ([]dashboard.Reading, error) {
	query := fmt.Sprintf(
		`SELECT ts, temperature, humidity FROM %s WHERE ($1 OR ts > $2) ORDER BY ts DESC`,
		pq.QuoteIdentifier(b.readingsTable),
	)
	args := []any{since.IsZero(), since}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []dashboard.Reading
	for rows.Next() {
		var row readingRow
		var humidity sql.NullFloat64
		if err := rows.Scan(&row.Timestamp, &row.Temperature, &humidity); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		if humidity.Valid {
			row.Humidity = &humidity.Float64
		}
		out = append(out, row.reading())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}

	// The query returns newest first so the limit keeps the right end.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// FetchLatestTimestamp returns the newest reading timestamp.
func (b *Backend) FetchLatestTimestamp(ctx context.Context) (time.Time, bool, error) {
	query := fmt.Sprintf(`SELECT max(ts) FROM %s`, pq.QuoteIdentifier(b.readingsTable))

	var latest sql.NullTime
	if err := b.db.QueryRowContext(ctx, query).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("query latest timestamp: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return latest.Time, true, nil
}

// SubscribeReadings listens on the reading notification channel. The
// returned channel closes when the listener loses its connection; the
// engine resubscribes and catches up.
func (b *Backend) SubscribeReadings(ctx context.Context) (<-chan dashboard.Reading, error) {
	notifications, err := b.listen(ctx, b.readingChannel)
	if err != nil {
		return nil, err
	}

	out := make(chan dashboard.Reading)
	go func() {
		defer close(out)
		for payload := range notifications {
			var row readingRow
			if err := b.codec.Unmarshal(payload, &row); err != nil {
				continue
			}
			select {
			case out <- row.reading():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// SubscribeActuators listens on the actuator notification channel.
func (b *Backend) SubscribeActuators(ctx context.Context) (<-chan dashboard.ActuatorEvent, error) {
	notifications, err := b.listen(ctx, b.actuatorChannel)
	if err != nil {
		return nil, err
	}

	out := make(chan dashboard.ActuatorEvent)
	go func() {
		defer close(out)
		for payload := range notifications {
			var ev struct {
				ID        string    `json:"id"`
				State     bool      `json:"state"`
				CommandID string    `json:"command_id"`
				UpdatedAt time.Time `json:"updated_at"`
			}
			if err := b.codec.Unmarshal(payload, &ev); err != nil {
				continue
			}
			select {
			case out <- dashboard.ActuatorEvent{
				ID:        ev.ID,
				On:        ev.State,
				CommandID: ev.CommandID,
				Timestamp: ev.UpdatedAt,
			}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// listen opens a dedicated LISTEN connection for one channel and returns
// raw notification payloads. A listener reconnect closes the channel: the
// engine must not trust a resumed stream to be gapless, so forcing a
// resubscribe (and the catch-up fetch that comes with it) is the correct
// recovery.
func (b *Backend) listen(ctx context.Context, channel string) (<-chan []byte, error) {
	listener := pq.NewListener(b.conninfo, b.minReconnect, b.maxReconnect, nil)
	if err := listener.Listen(channel); err != nil {
		listener.Close() //nolint:errcheck
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer listener.Close() //nolint:errcheck

		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				// A nil notification signals a reconnect; events may
				// have been missed while the connection was down.
				if n == nil {
					return
				}
				select {
				case out <- []byte(n.Extra):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// WriteActuator upserts the actuator row. The row trigger notifies every
// listening client, which is how the write is eventually confirmed.
func (b *Backend) WriteActuator(ctx context.Context, id string, on bool, commandID string) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (id, state, command_id, updated_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE SET state = $2, command_id = $3, updated_at = now()`,
		pq.QuoteIdentifier(b.actuatorsTable),
	)
	if _, err := b.db.ExecContext(ctx, query, id, on, commandID); err != nil {
		return fmt.Errorf("write actuator %s: %w", id, err)
	}
	return nil
}

// WriteMode upserts the mode row alongside the relay rows.
func (b *Backend) WriteMode(ctx context.Context, automatic bool, commandID string) error {
	return b.WriteActuator(ctx, dashboard.ModeID, automatic, commandID)
}

// Ensure Backend implements the full backend contract.
var _ dashboard.Backend = (*Backend)(nil)
