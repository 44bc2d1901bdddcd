package stationauth

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher moves entries from the recording path to the sink on a
// dedicated goroutine so slow sinks cannot stall sign-in.
type auditDispatcher struct {
	sink       AuditSink
	queue      chan AuditEntry
	stop       chan struct{}
	stopOnce   sync.Once
	done       sync.WaitGroup
	dropIfFull bool
	dropped    atomic.Uint64
	closed     atomic.Bool
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		queue:      make(chan AuditEntry, buffer),
		stop:       make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
	}

	d.done.Add(1)
	go d.pump()

	return d
}

func (d *auditDispatcher) pump() {
	defer d.done.Done()

	for {
		select {
		case entry := <-d.queue:
			d.sink.Emit(context.Background(), entry)
		case <-d.stop:
			d.flush()
			return
		}
	}
}

// flush delivers whatever is already buffered, then returns.
func (d *auditDispatcher) flush() {
	for {
		select {
		case entry := <-d.queue:
			d.sink.Emit(context.Background(), entry)
		default:
			return
		}
	}
}

func (d *auditDispatcher) Emit(ctx context.Context, entry AuditEntry) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- entry:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- entry:
	case <-ctx.Done():
	case <-d.stop:
	}
}

func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.done.Wait()
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
