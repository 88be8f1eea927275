// Package workload builds the synthetic payloads written by the handler:
// fixed-size JSON events for the events workload and a byte stream of exact
// length for the batch workload.
package workload

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"

	bencherrors "github.com/ingestbench/ingestbench/internal/errors"
)

const eventSource = "ingestbench"

// event is the JSON shape of one generated event. Field order is fixed by
// encoding/json, which keeps the envelope size constant for a given data length.
type event struct {
	Timestamp string `json:"timestamp"`
	EventID   string `json:"event_id"`
	Source    string `json:"source"`
	Data      string `json:"data"`
}

// Generator produces event payloads. Event ids are a murmur3 hash of the
// generator seed and the event sequence number, so a run id used as seed
// yields reproducible ids.
type Generator struct {
	seed []byte
	now  func() time.Time
}

// NewGenerator creates a generator seeded with seed (usually the run id).
func NewGenerator(seed string) *Generator {
	return &Generator{
		seed: []byte(seed),
		now:  time.Now,
	}
}

// WithClock replaces the timestamp source; used by tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// EventID returns the 16 hex character id of event seq.
func (g *Generator) EventID(seq int) string {
	buf := make([]byte, len(g.seed)+8)
	copy(buf, g.seed)
	binary.BigEndian.PutUint64(buf[len(g.seed):], uint64(seq))
	return fmt.Sprintf("%016x", murmur3.Sum64(buf))
}

// EventPayload returns one event of exactly eventBytes bytes. Payloads large
// enough to hold the JSON envelope are valid JSON objects; smaller ones are
// plain filler bytes.
func (g *Generator) EventPayload(seq, eventBytes int) ([]byte, error) {
	if eventBytes <= 0 {
		return nil, bencherrors.NewInvalidParameter(fmt.Sprintf("event size must be positive, got %d", eventBytes))
	}

	ev := event{
		Timestamp: g.now().UTC().Format(time.RFC3339),
		EventID:   g.EventID(seq),
		Source:    eventSource,
	}
	envelope, err := json.Marshal(ev)
	if err != nil {
		return nil, bencherrors.NewInternalError("marshal event envelope", err)
	}

	fill := eventBytes - len(envelope)
	if fill < 0 {
		return bytes.Repeat([]byte{'x'}, eventBytes), nil
	}

	ev.Data = strings.Repeat("x", fill)
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, bencherrors.NewInternalError("marshal event", err)
	}
	return payload, nil
}

// Events returns exactly n payloads of exactly eventBytes bytes each.
func (g *Generator) Events(n, eventBytes int) ([][]byte, error) {
	if n <= 0 {
		return nil, bencherrors.NewInvalidParameter(fmt.Sprintf("event count must be positive, got %d", n))
	}

	events := make([][]byte, n)
	for i := 0; i < n; i++ {
		p, err := g.EventPayload(i, eventBytes)
		if err != nil {
			return nil, err
		}
		events[i] = p
	}
	return events, nil
}

// AggregateEvents joins the first batch events into newline-delimited JSON.
// If fewer events are available, all of them are used.
func AggregateEvents(events [][]byte, batch int) []byte {
	if batch > len(events) {
		batch = len(events)
	}
	if batch <= 0 {
		return nil
	}
	return bytes.Join(events[:batch], []byte{'\n'})
}

// ObjectReader streams exactly Size filler bytes. Byte i has value i%256 so
// consecutive bytes differ and the content does not compress to nothing.
type ObjectReader struct {
	size   int64
	offset int64
}

// NewObjectReader returns a reader for an object of exactly size bytes.
func NewObjectReader(size int64) (*ObjectReader, error) {
	if size <= 0 {
		return nil, bencherrors.NewInvalidParameter(fmt.Sprintf("object size must be positive, got %d", size))
	}
	return &ObjectReader{size: size}, nil
}

// Size returns the total object length.
func (r *ObjectReader) Size() int64 {
	return r.size
}

// Read implements io.Reader.
func (r *ObjectReader) Read(p []byte) (int, error) {
	if r.offset >= r.size {
		return 0, io.EOF
	}
	remaining := r.size - r.offset
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	for i := range p {
		p[i] = byte((r.offset + int64(i)) % 256)
	}
	r.offset += int64(len(p))
	return len(p), nil
}

// MB converts megabytes to bytes.
func MB(n int) int64 {
	return int64(n) * 1024 * 1024
}
