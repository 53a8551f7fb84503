package bridge

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eternisai/research-bridge/internal/logger"
	"github.com/eternisai/research-bridge/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink records every line and can be told to start failing.
type recordingSink struct {
	mu      sync.Mutex
	lines   []string
	calls   int
	failAt  int // 1-based call that fails first; 0 never fails
	failErr error
}

func (s *recordingSink) WriteLine(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt > 0 && s.calls >= s.failAt {
		return s.failErr
	}
	s.lines = append(s.lines, string(line))
	return nil
}

func (s *recordingSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *recordingSink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestFrameWriter_WritesEncodedLines(t *testing.T) {
	var buf bytes.Buffer
	stats := &Stats{}
	w := NewFrameWriter(WriterSink{W: &buf}, stats)

	require.NoError(t, w.WriteAll([]wire.Frame{wire.TextDelta("hi"), wire.Error("boom")}))

	assert.Equal(t, "0:\"hi\"\n3:\"boom\"\n", buf.String())
	assert.EqualValues(t, 2, stats.Frames.Load())
	assert.EqualValues(t, 2, stats.TextBytes.Load())
}

func TestFrameWriter_NoWritesAfterDisconnect(t *testing.T) {
	sink := &recordingSink{failAt: 2, failErr: errors.New("broken pipe")}
	w := NewFrameWriter(sink, nil)

	require.NoError(t, w.Write(wire.TextDelta("a")))
	err := w.Write(wire.TextDelta("b"))
	require.ErrorIs(t, err, ErrClientGone)

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, w.Write(wire.TextDelta("c")), ErrClientGone)
	}

	assert.Equal(t, 2, sink.Calls(), "sink must not be touched after the first failure")
	assert.EqualValues(t, 2, w.Attempts())
	assert.True(t, w.Closed())
}

func TestFrameWriter_Close(t *testing.T) {
	sink := &recordingSink{}
	w := NewFrameWriter(sink, nil)
	w.Close()

	assert.ErrorIs(t, w.Write(wire.TextDelta("x")), ErrClientGone)
	assert.Zero(t, sink.Calls())
}

func TestKeepalive_SendsHeartbeatWhenIdle(t *testing.T) {
	sink := &recordingSink{}
	stats := &Stats{}
	w := NewFrameWriter(sink, stats)

	ka := StartKeepalive(w, 20*time.Millisecond, 5*time.Millisecond, logger.Discard())
	require.Eventually(t, func() bool { return stats.Heartbeats.Load() >= 2 }, time.Second, 5*time.Millisecond)
	ka.Stop()

	for _, line := range sink.Lines() {
		assert.Equal(t, "0:\"\"\n", line)
	}
}

func TestKeepalive_QuietWhileStreaming(t *testing.T) {
	sink := &recordingSink{}
	stats := &Stats{}
	w := NewFrameWriter(sink, stats)

	ka := StartKeepalive(w, 200*time.Millisecond, 5*time.Millisecond, logger.Discard())
	for i := 0; i < 10; i++ {
		require.NoError(t, w.Write(wire.TextDelta("tok")))
		time.Sleep(10 * time.Millisecond)
	}
	ka.Stop()

	assert.Zero(t, stats.Heartbeats.Load())
}

func TestKeepalive_NothingAfterStop(t *testing.T) {
	sink := &recordingSink{}
	w := NewFrameWriter(sink, nil)

	ka := StartKeepalive(w, time.Millisecond, time.Millisecond, logger.Discard())
	time.Sleep(10 * time.Millisecond)
	ka.Stop()
	ka.Stop()

	calls := sink.Calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, sink.Calls())
}

func TestKeepalive_ExitsWhenClientGone(t *testing.T) {
	sink := &recordingSink{failAt: 1, failErr: errors.New("reset")}
	w := NewFrameWriter(sink, nil)

	ka := StartKeepalive(w, time.Millisecond, time.Millisecond, logger.Discard())
	require.Eventually(t, w.Closed, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		ka.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keepalive did not exit after disconnect")
	}
	assert.Equal(t, 1, sink.Calls())
}

func TestSetStreamHeaders(t *testing.T) {
	h := http.Header{}
	SetStreamHeaders(h)
	assert.Equal(t, "no", h.Get("X-Accel-Buffering"))
	assert.Equal(t, "no-cache", h.Get("Cache-Control"))
	assert.Equal(t, "v1", h.Get("X-Vercel-AI-Data-Stream"))
	assert.True(t, strings.HasPrefix(h.Get("Content-Type"), "text/plain"))
}
