package bridge

import (
	"errors"
	"strings"

	"github.com/eternisai/research-bridge/internal/backend"
	"github.com/eternisai/research-bridge/internal/wire"
	"github.com/google/uuid"
)

// Data payload types emitted by the transcoder.
const (
	DataTypeStatus   = "status"
	DataTypeSources  = "sources"
	DataTypeVideos   = "videos"
	DataTypeMetadata = "metadata"
)

const reasoningToolName = "reasoning"

var (
	// ErrUnknownStatus is returned for upstream statuses the bridge does not map.
	ErrUnknownStatus = errors.New("unknown backend status")

	// ErrTerminal is returned for events that arrive after the response finished.
	ErrTerminal = errors.New("response already finished")
)

// Transcoder maps backend events of a single response onto wire frames.
//
// It holds only per-response state: the text already sent downstream (used to
// decide whether a final answer still has to be delivered) and whether the
// response has reached a terminal frame. It performs no I/O.
type Transcoder struct {
	sent     strings.Builder
	deltas   int
	terminal bool

	newID func() string
}

// NewTranscoder creates a transcoder for one response.
func NewTranscoder() *Transcoder {
	return &Transcoder{newID: func() string { return uuid.New().String() }}
}

// Sent returns the text emitted so far.
func (t *Transcoder) Sent() string {
	return t.sent.String()
}

// Terminal reports whether a terminal frame (FinishData or Error) has been produced.
func (t *Transcoder) Terminal() bool {
	return t.terminal
}

// Transcode returns the frames for one backend event, in emission order.
//
// A nil slice with a nil error means the event was valid but produced nothing
// (for example a streaming event with empty content).
func (t *Transcoder) Transcode(ev backend.Event) ([]wire.Frame, error) {
	if t.terminal {
		return nil, ErrTerminal
	}

	switch ev.Status {
	case backend.StatusStreaming:
		if ev.Content == "" {
			return nil, nil
		}
		return []wire.Frame{t.text(ev.Content)}, nil

	case backend.StatusProcessing, backend.StatusGeneratingAudio, backend.StatusResearching:
		return []wire.Frame{wire.Data(progressPayload(ev))}, nil

	case backend.StatusComplete:
		return t.complete(ev), nil

	case backend.StatusFailed:
		return t.Fail(errorMessage(ev)), nil
	}

	return nil, ErrUnknownStatus
}

// Fail terminates the response with a single Error frame.
// It returns nil if the response is already terminal.
func (t *Transcoder) Fail(message string) []wire.Frame {
	if t.terminal {
		return nil
	}
	t.terminal = true
	return []wire.Frame{wire.Error(message)}
}

// Stop terminates the response normally, as when a user cancels generation.
// It returns nil if the response is already terminal.
func (t *Transcoder) Stop() []wire.Frame {
	if t.terminal {
		return nil
	}
	t.terminal = true
	return t.finish(wire.FinishReasonStop)
}

func (t *Transcoder) text(s string) wire.Frame {
	t.sent.WriteString(s)
	t.deltas++
	return wire.TextDelta(s)
}

func (t *Transcoder) complete(ev backend.Event) []wire.Frame {
	frames := make([]wire.Frame, 0, 7)
	answer := ev.Answer()

	// The answer is delivered exactly once: streamed or here.
	if t.deltas == 0 && answer != "" {
		frames = append(frames, t.text(answer))
	}

	if steps := ev.ReasoningSteps(); len(steps) > 0 {
		id := reasoningToolName + "-" + t.newID()
		frames = append(frames,
			wire.NewToolCall(wire.ToolCall{
				ToolCallID: id,
				ToolName:   reasoningToolName,
				Args:       map[string]any{"steps": steps},
			}),
			wire.NewToolResult(wire.ToolResult{
				ToolCallID: id,
				Result: map[string]any{
					"reasoning":    ev.ReasoningText(),
					"final_answer": answer,
				},
			}),
		)
	}

	if sources := ev.SourceList(); len(sources) > 0 {
		frames = append(frames, wire.Data(map[string]any{"type": DataTypeSources, "sources": sources}))
	}

	if len(ev.Videos) > 0 {
		frames = append(frames, wire.Data(map[string]any{"type": DataTypeVideos, "videos": ev.Videos}))
	}

	if ev.AudioPath != "" || ev.SessionID != "" {
		meta := map[string]any{"type": DataTypeMetadata}
		if ev.AudioPath != "" {
			meta["audio_url"] = ev.AudioPath
		}
		if ev.SessionID != "" {
			meta["session_id"] = ev.SessionID
		}
		frames = append(frames, wire.Data(meta))
	}

	t.terminal = true
	return append(frames, t.finish(wire.FinishReasonStop)...)
}

func (t *Transcoder) finish(reason string) []wire.Frame {
	usage := wire.Usage{CompletionTokens: t.deltas}
	return []wire.Frame{
		wire.NewFinishEvent(wire.FinishEvent{FinishReason: reason, Usage: usage}),
		wire.NewFinishData(wire.FinishData{FinishReason: reason, Usage: usage}),
	}
}

func progressPayload(ev backend.Event) map[string]any {
	payload := map[string]any{
		"type":   DataTypeStatus,
		"status": ev.Status,
		"detail": ev.Progress(),
	}

	optional := map[string]string{
		"eventType": ev.EventType,
		"query":     ev.Query,
		"title":     ev.Title,
		"url":       ev.URL,
		"domain":    ev.Domain,
		"message":   ev.Message,
	}
	for k, v := range optional {
		if v != "" {
			payload[k] = v
		}
	}
	if ev.ResearchChain != nil {
		payload["research_chain"] = ev.ResearchChain
	}
	return payload
}

func errorMessage(ev backend.Event) string {
	switch {
	case ev.Message != "":
		return ev.Message
	case ev.Detail != "":
		return ev.Detail
	case ev.Content != "":
		return ev.Content
	}
	return "backend reported an error"
}
