package stationauth

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// blockingSink holds every Emit until released, to back-pressure the
// dispatcher on demand.
type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	seen    []AuditEntry
}

func newBlockingSink() *blockingSink {
	return &blockingSink{release: make(chan struct{})}
}

func (s *blockingSink) Emit(_ context.Context, entry AuditEntry) {
	<-s.release
	s.mu.Lock()
	s.seen = append(s.seen, entry)
	s.mu.Unlock()
}

func (s *blockingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func auditEntry(id string) AuditEntry {
	return AuditEntry{
		ID:        id,
		UserID:    "u1",
		Action:    ActionLogin,
		Timestamp: time.Now(),
		RiskLevel: RiskLow,
	}
}

func TestDispatcherDeliversToSink(t *testing.T) {
	sink := NewChannelSink(8)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8}, sink)
	defer d.Close()

	d.Emit(context.Background(), auditEntry("e1"))

	select {
	case entry := <-sink.Entries():
		if entry.ID != "e1" {
			t.Fatalf("unexpected entry: %+v", entry)
		}
	case <-time.After(time.Second):
		t.Fatal("entry never reached the sink")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := newBlockingSink()
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 2, DropIfFull: true}, sink)

	// One entry stalls inside the sink; two fill the buffer; the rest drop.
	for i := 0; i < 6; i++ {
		d.Emit(context.Background(), auditEntry("e"))
	}
	if dropped := d.Dropped(); dropped < 3 {
		t.Fatalf("expected at least 3 drops, got %d", dropped)
	}

	close(sink.release)
	d.Close()
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := newBlockingSink()
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4, DropIfFull: true}, sink)

	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), auditEntry("e"))
	}
	close(sink.release)
	d.Close()

	if got := sink.count(); got != 3 {
		t.Fatalf("expected 3 delivered after drain, got %d", got)
	}

	// Emits after Close are silently ignored.
	d.Emit(context.Background(), auditEntry("late"))
	if got := sink.count(); got != 3 {
		t.Fatalf("post-close emit delivered: %d", got)
	}
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled audit must not start a dispatcher")
	}

	// nil dispatcher methods are safe no-ops.
	d.Emit(context.Background(), auditEntry("e"))
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), auditEntry("e1"))
	sink.Emit(context.Background(), auditEntry("e2"))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	for _, line := range lines {
		if !strings.Contains(line, `"login"`) {
			t.Fatalf("line missing action: %s", line)
		}
	}
}
