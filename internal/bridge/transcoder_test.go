package bridge

import (
	"encoding/json"
	"testing"

	"github.com/eternisai/research-bridge/internal/backend"
	"github.com/eternisai/research-bridge/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(frames []wire.Frame) []wire.Kind {
	out := make([]wire.Kind, len(frames))
	for i, f := range frames {
		out[i] = f.Kind
	}
	return out
}

func transcodeAll(t *testing.T, tc *Transcoder, events ...backend.Event) []wire.Frame {
	t.Helper()
	var all []wire.Frame
	for _, ev := range events {
		frames, err := tc.Transcode(ev)
		require.NoError(t, err)
		all = append(all, frames...)
	}
	return all
}

func TestTranscode_StreamedAnswerNotRepeated(t *testing.T) {
	tc := NewTranscoder()
	frames := transcodeAll(t, tc,
		backend.Event{Status: backend.StatusStreaming, Content: "Hel"},
		backend.Event{Status: backend.StatusStreaming, Content: "lo"},
		backend.Event{Status: backend.StatusComplete, FinalAnswer: "Hello"},
	)

	assert.Equal(t, []wire.Kind{
		wire.KindTextDelta, wire.KindTextDelta, wire.KindFinishEvent, wire.KindFinishData,
	}, kinds(frames))
	assert.Equal(t, "Hello", tc.Sent())
	assert.True(t, tc.Terminal())

	fd, err := frames[3].FinishData()
	require.NoError(t, err)
	assert.Equal(t, wire.FinishReasonStop, fd.FinishReason)
	assert.Equal(t, 2, fd.Usage.CompletionTokens)
}

func TestTranscode_AtomicAnswerSentOnce(t *testing.T) {
	tc := NewTranscoder()
	frames := transcodeAll(t, tc, backend.Event{Status: backend.StatusComplete, FinalAnswer: "Cats are mammals."})

	require.Equal(t, []wire.Kind{wire.KindTextDelta, wire.KindFinishEvent, wire.KindFinishData}, kinds(frames))
	text, err := frames[0].Text()
	require.NoError(t, err)
	assert.Equal(t, "Cats are mammals.", text)
}

func TestTranscode_ResponseFallback(t *testing.T) {
	tc := NewTranscoder()
	frames := transcodeAll(t, tc, backend.Event{Status: backend.StatusComplete, Response: "fallback"})

	text, err := frames[0].Text()
	require.NoError(t, err)
	assert.Equal(t, "fallback", text)
}

func TestTranscode_EmptyStreamingIgnored(t *testing.T) {
	frames, err := NewTranscoder().Transcode(backend.Event{Status: backend.StatusStreaming})
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestTranscode_ProgressStatuses(t *testing.T) {
	for _, status := range []string{backend.StatusProcessing, backend.StatusGeneratingAudio, backend.StatusResearching} {
		t.Run(status, func(t *testing.T) {
			tc := NewTranscoder()
			frames := transcodeAll(t, tc,
				backend.Event{Status: status, Detail: "working"},
				backend.Event{Status: status, Detail: "still working"},
			)
			require.Len(t, frames, 2)
			assert.False(t, tc.Terminal())

			objs, err := frames[0].DataObjects()
			require.NoError(t, err)
			require.Len(t, objs, 1)
			assert.Equal(t, DataTypeStatus, objs[0]["type"])
			assert.Equal(t, status, objs[0]["status"])
			assert.Equal(t, "working", objs[0]["detail"])
		})
	}
}

func TestTranscode_ResearchFieldsForwarded(t *testing.T) {
	frames := transcodeAll(t, NewTranscoder(), backend.Event{
		Status:    backend.StatusResearching,
		EventType: "search_result",
		Title:     "Cats 101",
		URL:       "https://a.com",
		Domain:    "a.com",
	})

	objs, err := frames[0].DataObjects()
	require.NoError(t, err)
	assert.Equal(t, "search_result", objs[0]["eventType"])
	assert.Equal(t, "https://a.com", objs[0]["url"])
	assert.Equal(t, "a.com", objs[0]["domain"])
	assert.NotContains(t, objs[0], "query")
}

func TestTranscode_CompleteFullSequence(t *testing.T) {
	tc := NewTranscoder()
	tc.newID = func() string { return "fixed" }

	frames := transcodeAll(t, tc, backend.Event{
		Status:      backend.StatusComplete,
		FinalAnswer: "answer",
		Reasoning:   json.RawMessage(`"step one\nstep two"`),
		Sources:     []any{map[string]any{"url": "https://a.com"}},
		Videos:      []any{"https://v.example/1"},
		AudioPath:   "/audio/1.mp3",
		SessionID:   "sess-1",
	})

	require.Equal(t, []wire.Kind{
		wire.KindTextDelta,
		wire.KindToolCall,
		wire.KindToolResult,
		wire.KindData,
		wire.KindData,
		wire.KindData,
		wire.KindFinishEvent,
		wire.KindFinishData,
	}, kinds(frames))

	call, err := frames[1].ToolCall()
	require.NoError(t, err)
	assert.Equal(t, "reasoning-fixed", call.ToolCallID)
	assert.Equal(t, "reasoning", call.ToolName)
	assert.Equal(t, []any{"step one", "step two"}, call.Args["steps"])

	result, err := frames[2].ToolResult()
	require.NoError(t, err)
	assert.Equal(t, call.ToolCallID, result.ToolCallID)
	assert.Equal(t, "answer", result.Result["final_answer"])
	assert.Equal(t, "step one\nstep two", result.Result["reasoning"])

	meta, err := frames[5].DataObjects()
	require.NoError(t, err)
	assert.Equal(t, DataTypeMetadata, meta[0]["type"])
	assert.Equal(t, "/audio/1.mp3", meta[0]["audio_url"])
	assert.Equal(t, "sess-1", meta[0]["session_id"])

	fe, err := frames[6].FinishEvent()
	require.NoError(t, err)
	assert.False(t, fe.IsContinued)
	assert.Equal(t, 1, fe.Usage.CompletionTokens)
}

func TestTranscode_ErrorIsTerminal(t *testing.T) {
	tc := NewTranscoder()
	frames := transcodeAll(t, tc, backend.Event{Status: backend.StatusFailed, Message: "model overloaded"})

	require.Equal(t, []wire.Kind{wire.KindError}, kinds(frames))
	msg, err := frames[0].ErrorMessage()
	require.NoError(t, err)
	assert.Equal(t, "model overloaded", msg)

	_, err = tc.Transcode(backend.Event{Status: backend.StatusStreaming, Content: "late"})
	assert.ErrorIs(t, err, ErrTerminal)
	assert.Nil(t, tc.Stop())
	assert.Nil(t, tc.Fail("again"))
}

func TestTranscode_UnknownStatus(t *testing.T) {
	_, err := NewTranscoder().Transcode(backend.Event{Status: "thinking_hard"})
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestTranscoder_Stop(t *testing.T) {
	tc := NewTranscoder()
	transcodeAll(t, tc, backend.Event{Status: backend.StatusStreaming, Content: "partial"})

	frames := tc.Stop()
	require.Equal(t, []wire.Kind{wire.KindFinishEvent, wire.KindFinishData}, kinds(frames))
	fd, err := frames[1].FinishData()
	require.NoError(t, err)
	assert.Equal(t, wire.FinishReasonStop, fd.FinishReason)
	assert.True(t, tc.Terminal())
}
