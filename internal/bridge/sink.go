package bridge

import (
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamHeaders are set on every HTTP bridge response before the first frame.
var StreamHeaders = map[string]string{
	"Content-Type":            "text/plain; charset=utf-8",
	"Cache-Control":           "no-cache",
	"Connection":              "keep-alive",
	"X-Accel-Buffering":       "no",
	"X-Vercel-AI-Data-Stream": "v1",
}

// SetStreamHeaders writes StreamHeaders to h.
func SetStreamHeaders(h http.Header) {
	for k, v := range StreamHeaders {
		h.Set(k, v)
	}
}

// HTTPSink writes frame lines to a chunked HTTP response, flushing after each.
type HTTPSink struct {
	w       io.Writer
	flusher http.Flusher
}

// NewHTTPSink wraps w. If w does not support flushing, writes are still delivered
// but buffered by the server.
func NewHTTPSink(w http.ResponseWriter) *HTTPSink {
	f, _ := w.(http.Flusher)
	return &HTTPSink{w: w, flusher: f}
}

func (s *HTTPSink) WriteLine(line []byte) error {
	if _, err := s.w.Write(line); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// WriterSink writes frame lines to any io.Writer. Used by tests and the CLI.
type WriterSink struct {
	W io.Writer
}

func (s WriterSink) WriteLine(line []byte) error {
	_, err := s.W.Write(line)
	return err
}

// WebSocketSink sends each frame as one text message, without the trailing newline.
type WebSocketSink struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWebSocketSink wraps conn. A zero writeTimeout disables write deadlines.
func NewWebSocketSink(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketSink {
	return &WebSocketSink{conn: conn, writeTimeout: writeTimeout}
}

func (s *WebSocketSink) WriteLine(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(websocket.TextMessage, line)
}

// CloseNormal sends a close frame with the normal closure code.
func (s *WebSocketSink) CloseNormal() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}
