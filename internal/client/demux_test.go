package client

import (
	"encoding/json"
	"testing"

	"github.com/eternisai/research-bridge/internal/logger"
	"github.com/eternisai/research-bridge/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a Handler that records what it saw as short strings.
type recorder struct {
	events []string
}

func (r *recorder) OnTextDelta(text string) { r.events = append(r.events, "text:"+text) }
func (r *recorder) OnData(objs []json.RawMessage) {
	r.events = append(r.events, "data:"+string(objs[0]))
}
func (r *recorder) OnToolCall(c wire.ToolCall) { r.events = append(r.events, "call:"+c.ToolCallID) }
func (r *recorder) OnToolResult(res wire.ToolResult) {
	r.events = append(r.events, "result:"+res.ToolCallID)
}
func (r *recorder) OnError(msg string) { r.events = append(r.events, "error:"+msg) }
func (r *recorder) OnFinishEvent(fe wire.FinishEvent) {
	r.events = append(r.events, "finish_event:"+fe.FinishReason)
}
func (r *recorder) OnFinishData(fd wire.FinishData) {
	r.events = append(r.events, "finish_data:"+fd.FinishReason)
}

func TestDemuxer_RoutesByTag(t *testing.T) {
	rec := &recorder{}
	d := NewDemuxer(rec, logger.Discard())

	stream := "0:\"Hel\"\n" +
		"2:[{\"type\":\"status\"}]\n" +
		"9:{\"toolCallId\":\"r1\",\"toolName\":\"reasoning\",\"args\":{}}\n" +
		"a:{\"toolCallId\":\"r1\",\"result\":{}}\n" +
		"e:{\"finishReason\":\"stop\",\"usage\":{\"promptTokens\":0,\"completionTokens\":1},\"isContinued\":false}\n" +
		"d:{\"finishReason\":\"stop\",\"usage\":{\"promptTokens\":0,\"completionTokens\":1}}\n"
	_, err := d.Write([]byte(stream))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"text:Hel",
		`data:{"type":"status"}`,
		"call:r1",
		"result:r1",
		"finish_event:stop",
		"finish_data:stop",
	}, rec.events)
	assert.Equal(t, 6, d.Frames())
	assert.Zero(t, d.Pending())
}

func TestDemuxer_CarriesPartialLines(t *testing.T) {
	rec := &recorder{}
	d := NewDemuxer(rec, logger.Discard())

	stream := []byte("0:\"Hello\"\n0:\" wor\\nld\"\n3:\"bad\"\n")
	for i := range stream {
		_, _ = d.Write(stream[i : i+1])
	}

	assert.Equal(t, []string{"text:Hello", "text: wor\nld", "error:bad"}, rec.events)
}

func TestDemuxer_SplitAcrossChunks(t *testing.T) {
	rec := &recorder{}
	d := NewDemuxer(rec, logger.Discard())

	_, _ = d.Write([]byte("0:\"a\"\n0:\"b"))
	assert.Equal(t, []string{"text:a"}, rec.events)
	assert.Equal(t, 4, d.Pending())

	_, _ = d.Write([]byte("c\"\n"))
	assert.Equal(t, []string{"text:a", "text:bc"}, rec.events)
}

func TestDemuxer_SkipsBadLines(t *testing.T) {
	rec := &recorder{}
	d := NewDemuxer(rec, logger.Discard())

	_, _ = d.Write([]byte("x:\"unknown\"\nno colon\n0:{broken\n9:\"not an object\"\n\n0:\"ok\"\n"))

	assert.Equal(t, []string{"text:ok"}, rec.events)
	assert.Equal(t, 4, d.Skipped())
	assert.Equal(t, 1, d.Frames())
}

func TestDemuxer_FlushDispatchesTrailingLine(t *testing.T) {
	rec := &recorder{}
	d := NewDemuxer(rec, logger.Discard())

	_, _ = d.Write([]byte("0:\"tail\""))
	assert.Empty(t, rec.events)

	d.Flush()
	assert.Equal(t, []string{"text:tail"}, rec.events)
	assert.Zero(t, d.Pending())
}
