package wire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Tags(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{"text delta", TextDelta("Hel"), "0:\"Hel\"\n"},
		{"heartbeat", TextDelta(""), "0:\"\"\n"},
		{"data", Data(map[string]any{"status": "processing"}), "2:[{\"status\":\"processing\"}]\n"},
		{"error", Error("boom"), "3:\"boom\"\n"},
		{"finish data", NewFinishData(FinishData{FinishReason: FinishReasonStop, Usage: Usage{CompletionTokens: 2}}),
			"d:{\"finishReason\":\"stop\",\"usage\":{\"promptTokens\":0,\"completionTokens\":2}}\n"},
		{"finish event", NewFinishEvent(FinishEvent{FinishReason: FinishReasonStop}),
			"e:{\"finishReason\":\"stop\",\"usage\":{\"promptTokens\":0,\"completionTokens\":0},\"isContinued\":false}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.frame.Encode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestEncode_ToolFrames(t *testing.T) {
	call := NewToolCall(ToolCall{ToolCallID: "r-1", ToolName: "reasoning", Args: map[string]any{"steps": []string{"a"}}})
	line, err := call.Encode()
	require.NoError(t, err)
	assert.Equal(t, "9:", string(line[:2]))

	decoded, err := Decode(line)
	require.NoError(t, err)
	tc, err := decoded.ToolCall()
	require.NoError(t, err)
	assert.Equal(t, "r-1", tc.ToolCallID)
	assert.Equal(t, "reasoning", tc.ToolName)

	result := NewToolResult(ToolResult{ToolCallID: "r-1", Result: map[string]any{"reasoning": "x"}})
	line, err = result.Encode()
	require.NoError(t, err)
	assert.Equal(t, "a:", string(line[:2]))
}

func TestDecode(t *testing.T) {
	f, err := Decode([]byte("0:\"lo\"\n"))
	require.NoError(t, err)
	assert.Equal(t, KindTextDelta, f.Kind)
	text, err := f.Text()
	require.NoError(t, err)
	assert.Equal(t, "lo", text)

	f, err = Decode([]byte(`2:[{"type":"audio","audio_url":"/a.mp3"}]`))
	require.NoError(t, err)
	objs, err := f.DataObjects()
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "/a.mp3", objs[0]["audio_url"])
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte("no colon here"))
	assert.ErrorIs(t, err, ErrMalformedLine)

	_, err = Decode([]byte(":\"x\""))
	assert.ErrorIs(t, err, ErrMalformedLine)

	_, err = Decode([]byte("z:\"x\""))
	assert.ErrorIs(t, err, ErrUnknownTag)

	_, err = Decode([]byte("0:{not json"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnknownTag))
}

func TestDecode_WrongKindAccessor(t *testing.T) {
	f := TextDelta("x")
	_, err := f.DataObjects()
	assert.Error(t, err)
}

func TestEncode_UnknownKind(t *testing.T) {
	_, err := Frame{Kind: "bogus"}.Encode()
	assert.ErrorIs(t, err, ErrUnknownTag)
}
