// Package file provides a dashboard.Backend over newline-delimited JSON
// files, watched with fsnotify.
//
// A collector appends one JSON reading per line to the readings file and
// one JSON actuator event per line to the events file; this backend tails
// both. Commands are appended to a commands file for the device side to
// consume. Useful for demos, replaying captured sessions, and air-gapped
// setups where the only transport is a shared filesystem.
package file

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	dashboard "github.com/MarkBits1301/esp32-dashboard1"
)

// Backend implements dashboard.Backend over NDJSON files.
type Backend struct {
	readingsPath string
	eventsPath   string
	commandsPath string
	codec        dashboard.Codec

	mu sync.Mutex // serializes command appends
}

// Option configures a Backend.
type Option func(*Backend)

// WithCodec sets the codec for decoding file lines. Default: JSON.
func WithCodec(codec dashboard.Codec) Option {
	return func(b *Backend) {
		b.codec = codec
	}
}

// New creates a Backend over three NDJSON files: the reading log, the
// actuator event log, and the command log this side appends to.
func New(readingsPath, eventsPath, commandsPath string, opts ...Option) *Backend {
	b := &Backend{
		readingsPath: readingsPath,
		eventsPath:   eventsPath,
		commandsPath: commandsPath,
		codec:        dashboard.JSONCodec{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FetchReadings replays the reading log, newest limit entries, oldest
// first. A missing file is an empty window, not an error.
func (b *Backend) FetchReadings(ctx context.Context, since time.Time, limit int) ([]dashboard.Reading, error) {
	lines, err := readLines(b.readingsPath)
	if err != nil {
		return nil, fmt.Errorf("read reading log: %w", err)
	}

	var out []dashboard.Reading
	for _, line := range lines {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var reading dashboard.Reading
		if err := b.codec.Unmarshal(line, &reading); err != nil {
			continue
		}
		if !since.IsZero() && !reading.Timestamp.After(since) {
			continue
		}
		out = append(out, reading)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// FetchLatestTimestamp scans the reading log for its newest timestamp.
func (b *Backend) FetchLatestTimestamp(ctx context.Context) (time.Time, bool, error) {
	readings, err := b.FetchReadings(ctx, time.Time{}, 0)
	if err != nil {
		return time.Time{}, false, err
	}

	var latest time.Time
	for _, r := range readings {
		if r.Timestamp.After(latest) {
			latest = r.Timestamp
		}
	}
	if latest.IsZero() {
		return time.Time{}, false, nil
	}
	return latest, true, nil
}

// SubscribeReadings tails the reading log. Only lines appended after the
// subscription starts are delivered; the bulk and catch-up fetches cover
// everything before that.
func (b *Backend) SubscribeReadings(ctx context.Context) (<-chan dashboard.Reading, error) {
	lines, err := b.tail(ctx, b.readingsPath)
	if err != nil {
		return nil, err
	}

	out := make(chan dashboard.Reading)
	go func() {
		defer close(out)
		for line := range lines {
			var reading dashboard.Reading
			if err := b.codec.Unmarshal(line, &reading); err != nil {
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

// SubscribeActuators tails the actuator event log.
func (b *Backend) SubscribeActuators(ctx context.Context) (<-chan dashboard.ActuatorEvent, error) {
	lines, err := b.tail(ctx, b.eventsPath)
	if err != nil {
		return nil, err
	}

	out := make(chan dashboard.ActuatorEvent)
	go func() {
		defer close(out)
		for line := range lines {
			var ev dashboard.ActuatorEvent
			if err := b.codec.Unmarshal(line, &ev); err != nil {
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

// tail watches a file for appends and emits complete new lines. The watch
// is on the parent directory so a file created after the subscription is
// still picked up.
func (b *Backend) tail(ctx context.Context, path string) (<-chan []byte, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close() //nolint:errcheck
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	offset := int64(0)
	if info, err := os.Stat(path); err == nil {
		offset = info.Size()
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer watcher.Close() //nolint:errcheck

		var carry []byte
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				// Truncation restarts the log; reread from the top.
				if info, err := os.Stat(path); err == nil && info.Size() < offset {
					offset = 0
					carry = nil
				}
				chunk, n, err := readFrom(path, offset)
				if err != nil {
					continue
				}
				offset += n

				carry = append(carry, chunk...)
				for {
					idx := bytes.IndexByte(carry, '\n')
					if idx < 0 {
						break
					}
					line := bytes.TrimSpace(carry[:idx])
					carry = carry[idx+1:]
					if len(line) == 0 {
						continue
					}
					select {
					case out <- append([]byte(nil), line...):
					case <-ctx.Done():
						return
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}

// WriteActuator appends a command line for the device side to consume.
func (b *Backend) WriteActuator(_ context.Context, id string, on bool, commandID string) error {
	return b.appendCommand(fmt.Sprintf(
		`{"id":%q,"on":%t,"command_id":%q}`, id, on, commandID,
	))
}

// WriteMode appends a mode command next to the relay commands.
func (b *Backend) WriteMode(_ context.Context, automatic bool, commandID string) error {
	return b.appendCommand(fmt.Sprintf(
		`{"id":%q,"on":%t,"command_id":%q}`, dashboard.ModeID, automatic, commandID,
	))
}

func (b *Backend) appendCommand(line string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.OpenFile(b.commandsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open command log: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append command: %w", err)
	}
	return f.Sync()
}

// readLines loads a whole NDJSON file. Missing files read as empty.
func readLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	return lines, scanner.Err()
}

// readFrom reads everything after offset.
func readFrom(path string, offset int64) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, 0, err
	}
	return data, int64(len(data)), nil
}

// Ensure Backend implements the full backend contract.
var _ dashboard.Backend = (*Backend)(nil)
