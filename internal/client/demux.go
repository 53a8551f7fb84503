package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/eternisai/research-bridge/internal/logger"
	"github.com/eternisai/research-bridge/internal/metrics"
	"github.com/eternisai/research-bridge/internal/wire"
)

// Handler receives decoded frames in arrival order.
type Handler interface {
	OnTextDelta(text string)
	OnData(objects []json.RawMessage)
	OnToolCall(call wire.ToolCall)
	OnToolResult(result wire.ToolResult)
	OnError(message string)
	OnFinishEvent(ev wire.FinishEvent)
	OnFinishData(fd wire.FinishData)
}

// Demuxer splits a frame byte stream into lines and routes each frame to a Handler.
//
// Bytes may arrive in arbitrary chunks: the trailing unterminated fragment of
// every chunk is kept and prefixed to the next one. Lines that cannot be decoded
// are logged and skipped.
type Demuxer struct {
	handler Handler
	logger  *logger.Logger

	carry   []byte
	frames  int
	skipped int
}

// NewDemuxer creates a demultiplexer feeding h.
func NewDemuxer(h Handler, log *logger.Logger) *Demuxer {
	return &Demuxer{handler: h, logger: log.WithComponent("demux")}
}

// Write feeds a chunk of the stream. It never fails, so a Demuxer can sit
// behind io.Copy.
func (d *Demuxer) Write(p []byte) (int, error) {
	data := p
	if len(d.carry) > 0 {
		data = append(d.carry, p...)
		d.carry = nil
	}

	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		d.dispatch(data[:i])
		data = data[i+1:]
	}

	if len(data) > 0 {
		d.carry = append([]byte(nil), data...)
	}
	return len(p), nil
}

// Flush dispatches a final line that was not terminated by a newline.
func (d *Demuxer) Flush() {
	if len(d.carry) == 0 {
		return
	}
	line := d.carry
	d.carry = nil
	d.dispatch(line)
}

// Pending returns the number of buffered bytes of an incomplete line.
func (d *Demuxer) Pending() int {
	return len(d.carry)
}

// Frames returns the number of frames routed so far.
func (d *Demuxer) Frames() int {
	return d.frames
}

// Skipped returns the number of lines that were dropped.
func (d *Demuxer) Skipped() int {
	return d.skipped
}

func (d *Demuxer) dispatch(line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}

	f, err := wire.Decode(line)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, wire.ErrUnknownTag) {
			reason = "unknown_tag"
		}
		d.skip(reason, err)
		return
	}

	if err := d.route(f); err != nil {
		d.skip("bad_payload", err)
		return
	}
	d.frames++
}

func (d *Demuxer) route(f wire.Frame) error {
	switch f.Kind {
	case wire.KindTextDelta:
		text, err := f.Text()
		if err != nil {
			return err
		}
		d.handler.OnTextDelta(text)

	case wire.KindData:
		var objs []json.RawMessage
		if err := json.Unmarshal(f.Payload, &objs); err != nil {
			return err
		}
		d.handler.OnData(objs)

	case wire.KindToolCall:
		tc, err := f.ToolCall()
		if err != nil {
			return err
		}
		d.handler.OnToolCall(tc)

	case wire.KindToolResult:
		tr, err := f.ToolResult()
		if err != nil {
			return err
		}
		d.handler.OnToolResult(tr)

	case wire.KindError:
		msg, err := f.ErrorMessage()
		if err != nil {
			return err
		}
		d.handler.OnError(msg)

	case wire.KindFinishEvent:
		fe, err := f.FinishEvent()
		if err != nil {
			return err
		}
		d.handler.OnFinishEvent(fe)

	case wire.KindFinishData:
		fd, err := f.FinishData()
		if err != nil {
			return err
		}
		d.handler.OnFinishData(fd)
	}
	return nil
}

func (d *Demuxer) skip(reason string, err error) {
	d.skipped++
	metrics.ClientFramesSkipped.WithLabelValues(reason).Inc()
	d.logger.Warn("skipping frame", slog.String("reason", reason), slog.String("error", err.Error()))
}
