package backend

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	ev, err := ParseLine(`data: {"status":"streaming","content":"Hel"}`)
	require.NoError(t, err)
	assert.Equal(t, StatusStreaming, ev.Status)
	assert.Equal(t, "Hel", ev.Content)

	ev, err = ParseLine(`data:{"status":"complete","response":"Hi","session_id":"s1"}`)
	require.NoError(t, err)
	assert.Equal(t, "Hi", ev.Answer())
	assert.Equal(t, "s1", ev.SessionID)
}

func TestParseLine_Ignored(t *testing.T) {
	for _, line := range []string{"", ": keepalive", "event: message", "data: ", "data: [DONE]", "id: 4"} {
		_, err := ParseLine(line)
		assert.ErrorIs(t, err, ErrIgnoredLine, "line %q", line)
	}
}

func TestParseLine_Malformed(t *testing.T) {
	_, err := ParseLine(`data: {"status":`)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIgnoredLine)
}

func TestParseLine_ErrorStatus(t *testing.T) {
	ev, err := ParseLine(`data: {"status":"error","message":"backend exploded"}`)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, ev.Status)
	assert.Equal(t, "backend exploded", ev.Message)
}

func TestParseLine_InvalidFieldKeepsEvent(t *testing.T) {
	ev, err := ParseLine(`data: {"status":"complete","final_answer":"Hi","session_id":42,"sources":"nope"}`)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, ev.Status)
	assert.Equal(t, "Hi", ev.Answer())
	assert.Empty(t, ev.SessionID)
	assert.Nil(t, ev.Sources)
	assert.Equal(t, []string{"session_id", "sources"}, ev.InvalidFields)
}

func TestParseLine_InvalidNestedChainIsDropped(t *testing.T) {
	ev, err := ParseLine(`data: {"status":"researching","research_chain":{"steps":[{"type":"search","resultCount":"many"}]}}`)
	require.NoError(t, err)
	assert.Nil(t, ev.ResearchChain)
	assert.Equal(t, []string{"research_chain"}, ev.InvalidFields)
}

func TestParseLine_NonObjectIsMalformed(t *testing.T) {
	_, err := ParseLine(`data: ["status","complete"]`)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIgnoredLine)
}

func TestReasoningSteps(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"absent", ``, nil},
		{"null", `null`, nil},
		{"string", `"step one\n\nstep two\n"`, []string{"step one", "step two"}},
		{"array", `["a", "", "b"]`, []string{"a", "b"}},
		{"array of objects", `[{"k":1}]`, []string{`{"k":1}`}},
		{"object", `{"k":1}`, []string{`{"k":1}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Event{Reasoning: json.RawMessage(tt.raw)}
			assert.Equal(t, tt.want, ev.ReasoningSteps())
			assert.Equal(t, len(tt.want) > 0, ev.HasReasoning())
		})
	}
}

func TestSourceListFallback(t *testing.T) {
	ev := Event{SearchResults: []any{map[string]any{"url": "https://a.com"}}}
	assert.Len(t, ev.SourceList(), 1)

	ev.Sources = []any{"x", "y"}
	assert.Len(t, ev.SourceList(), 2)
}

func TestResearchEvent(t *testing.T) {
	ev, err := ParseLine(`data: {"status":"researching","eventType":"search_result","title":"Cats 101","url":"https://a.com","domain":"a.com","detail":"found"}`)
	require.NoError(t, err)

	re := ev.ResearchEvent()
	assert.Equal(t, "search_result", re.EventType)
	assert.Equal(t, "https://a.com", re.URL)
	assert.Equal(t, "found", re.Message)
	assert.Nil(t, re.Chain)

	ev, err = ParseLine(`data: {"status":"researching","research_chain":{"summary":"s","steps":[{"type":"search","query":"q"}]}}`)
	require.NoError(t, err)
	require.NotNil(t, ev.ResearchEvent().Chain)
	assert.Equal(t, "q", ev.ResearchEvent().Chain.Steps[0].Query)
}
