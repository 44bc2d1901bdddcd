package stationauth

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// AuditSink receives every [AuditEntry] the engine records, independent
// of the bounded in-memory trail. Implement it to export entries to
// durable storage.
type AuditSink interface {
	Emit(ctx context.Context, entry AuditEntry)
}

// NoOpSink is an [AuditSink] that silently discards all entries.
type NoOpSink struct{}

// Emit discards the entry.
func (NoOpSink) Emit(context.Context, AuditEntry) {}

// ChannelSink is a buffered channel-based [AuditSink] for consumers that
// want to drain entries on their own goroutine.
type ChannelSink struct {
	entries chan AuditEntry
}

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		entries: make(chan AuditEntry, buffer),
	}
}

// Emit delivers the entry, blocking until buffer space frees or ctx ends.
func (s *ChannelSink) Emit(ctx context.Context, entry AuditEntry) {
	select {
	case s.entries <- entry:
	case <-ctx.Done():
	}
}

// Entries exposes the receive side of the sink.
func (s *ChannelSink) Entries() <-chan AuditEntry {
	return s.entries
}

// JSONWriterSink writes newline-delimited JSON entries to an [io.Writer].
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit marshals and writes one entry per line. Marshal and write
// failures are dropped; the sink is best-effort export, not the trail.
func (s *JSONWriterSink) Emit(ctx context.Context, entry AuditEntry) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
