package bridge

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eternisai/research-bridge/internal/metrics"
	"github.com/eternisai/research-bridge/internal/wire"
)

// ErrClientGone is returned by FrameWriter once a write to the client has failed
// or the writer has been closed. Every later write is a silent no-op returning it.
var ErrClientGone = errors.New("client disconnected")

// Sink delivers encoded frame lines to one client transport.
type Sink interface {
	// WriteLine writes one encoded frame, including its trailing newline,
	// and flushes it to the client.
	WriteLine(line []byte) error
}

// Stats are live counters of one bridge run. Safe to read while the run is active.
type Stats struct {
	Frames     atomic.Int64
	Heartbeats atomic.Int64
	TextBytes  atomic.Int64
}

// FrameWriter serializes frame writes to a Sink.
//
// The pipeline and the keepalive goroutine share it. It tracks the time of the
// last successful write and an explicit closed flag, checked before every write.
type FrameWriter struct {
	mu     sync.Mutex
	sink   Sink
	closed bool

	// lastWrite is unix nanoseconds; written under mu, read lock-free by the keepalive.
	lastWrite atomic.Int64

	// attempts counts calls that reached the sink, including failed ones.
	attempts atomic.Int64

	stats *Stats
}

// NewFrameWriter wraps sink. stats may be nil.
func NewFrameWriter(sink Sink, stats *Stats) *FrameWriter {
	if stats == nil {
		stats = &Stats{}
	}
	w := &FrameWriter{sink: sink, stats: stats}
	w.lastWrite.Store(time.Now().UnixNano())
	return w
}

// Write writes a single frame.
func (w *FrameWriter) Write(f wire.Frame) error {
	return w.WriteAll([]wire.Frame{f})
}

// WriteAll writes frames back to back; no other write can interleave with them.
func (w *FrameWriter) WriteAll(frames []wire.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, f := range frames {
		if err := w.writeLocked(f); err != nil {
			return err
		}
	}
	return nil
}

// heartbeat writes a zero-length TextDelta if nothing was written for at least idle.
// It reports whether a heartbeat was sent.
func (w *FrameWriter) heartbeat(idle time.Duration) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false, ErrClientGone
	}
	if w.IdleFor(time.Now()) < idle {
		return false, nil
	}
	if err := w.writeLocked(wire.TextDelta("")); err != nil {
		return false, err
	}
	w.stats.Heartbeats.Add(1)
	metrics.Heartbeats.Inc()
	return true, nil
}

func (w *FrameWriter) writeLocked(f wire.Frame) error {
	if w.closed {
		return ErrClientGone
	}

	line, err := f.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	w.attempts.Add(1)
	if err := w.sink.WriteLine(line); err != nil {
		w.closed = true
		metrics.ClientDisconnects.Inc()
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}

	w.lastWrite.Store(time.Now().UnixNano())
	w.stats.Frames.Add(1)
	if f.Kind == wire.KindTextDelta {
		if text, err := f.Text(); err == nil {
			w.stats.TextBytes.Add(int64(len(text)))
		}
	}
	metrics.FramesEmitted.WithLabelValues(string(f.Kind)).Inc()
	return nil
}

// Close marks the writer closed. Later writes return ErrClientGone without
// touching the sink.
func (w *FrameWriter) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// Closed reports whether the writer is closed.
func (w *FrameWriter) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// IdleFor returns how long ago the last successful write happened.
func (w *FrameWriter) IdleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, w.lastWrite.Load()))
}

// Attempts returns the number of writes that reached the sink.
func (w *FrameWriter) Attempts() int64 {
	return w.attempts.Load()
}
