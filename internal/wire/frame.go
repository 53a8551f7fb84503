package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies the type of a frame in the data stream protocol.
type Kind string

const (
	KindTextDelta   Kind = "text_delta"
	KindData        Kind = "data"
	KindToolCall    Kind = "tool_call"
	KindToolResult  Kind = "tool_result"
	KindError       Kind = "error"
	KindFinishEvent Kind = "finish_event"
	KindFinishData  Kind = "finish_data"
)

// Tags as they appear on the wire, before the colon.
const (
	TagTextDelta   = "0"
	TagData        = "2"
	TagError       = "3"
	TagToolCall    = "9"
	TagToolResult  = "a"
	TagFinishData  = "d"
	TagFinishEvent = "e"
)

var (
	// ErrMalformedLine is returned when a line has no "<tag>:" prefix.
	ErrMalformedLine = errors.New("malformed frame line")

	// ErrUnknownTag is returned when a line carries a tag this protocol does not define.
	ErrUnknownTag = errors.New("unknown frame tag")
)

var tagByKind = map[Kind]string{
	KindTextDelta:   TagTextDelta,
	KindData:        TagData,
	KindToolCall:    TagToolCall,
	KindToolResult:  TagToolResult,
	KindError:       TagError,
	KindFinishEvent: TagFinishEvent,
	KindFinishData:  TagFinishData,
}

var kindByTag = map[string]Kind{
	TagTextDelta:   KindTextDelta,
	TagData:        KindData,
	TagToolCall:    KindToolCall,
	TagToolResult:  KindToolResult,
	TagError:       KindError,
	TagFinishEvent: KindFinishEvent,
	TagFinishData:  KindFinishData,
}

// Frame is one line of the downstream protocol.
// Payload holds the raw JSON after the tag; use the typed accessors to decode it.
type Frame struct {
	Kind    Kind
	Payload json.RawMessage
}

// Tag returns the wire tag for the frame kind.
func (f Frame) Tag() string {
	return tagByKind[f.Kind]
}

// Encode renders the frame as "<tag>:<json>\n".
func (f Frame) Encode() ([]byte, error) {
	tag, ok := tagByKind[f.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: kind %q", ErrUnknownTag, f.Kind)
	}

	payload := f.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	buf := make([]byte, 0, len(tag)+len(payload)+2)
	buf = append(buf, tag...)
	buf = append(buf, ':')
	buf = append(buf, payload...)
	buf = append(buf, '\n')
	return buf, nil
}

// Decode parses a single line (with or without its trailing newline) into a Frame.
func Decode(line []byte) (Frame, error) {
	line = bytes.TrimRight(line, "\r\n")

	idx := bytes.IndexByte(line, ':')
	if idx <= 0 {
		return Frame{}, ErrMalformedLine
	}

	tag := string(line[:idx])
	kind, ok := kindByTag[tag]
	if !ok {
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}

	payload := line[idx+1:]
	if !json.Valid(payload) {
		return Frame{}, fmt.Errorf("invalid %s payload: %q", kind, truncate(payload, 64))
	}

	// Copy so the frame does not alias the caller's read buffer.
	raw := make(json.RawMessage, len(payload))
	copy(raw, payload)

	return Frame{Kind: kind, Payload: raw}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
