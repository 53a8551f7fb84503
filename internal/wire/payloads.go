package wire

import (
	"encoding/json"
	"fmt"
)

// FinishReason values used by the bridge.
const (
	FinishReasonStop  = "stop"
	FinishReasonError = "error"
)

// ToolCall is the payload of a ToolCall frame.
type ToolCall struct {
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Args       map[string]any `json:"args"`
}

// ToolResult is the payload of a ToolResult frame.
type ToolResult struct {
	ToolCallID string         `json:"toolCallId"`
	Result     map[string]any `json:"result"`
}

// Usage is reported in both finish frames.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// FinishEvent is the payload of a FinishEvent frame.
type FinishEvent struct {
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
	IsContinued  bool   `json:"isContinued"`
}

// FinishData is the payload of the terminal FinishData frame.
type FinishData struct {
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
}

// TextDelta builds a TextDelta frame. An empty text is a valid heartbeat frame.
func TextDelta(text string) Frame {
	return mustFrame(KindTextDelta, text)
}

// Data builds a Data frame; the object is wrapped in a one-element array.
func Data(obj map[string]any) Frame {
	return mustFrame(KindData, []map[string]any{obj})
}

// Error builds an Error frame carrying a plain message.
func Error(message string) Frame {
	return mustFrame(KindError, message)
}

// NewToolCall builds a ToolCall frame.
func NewToolCall(tc ToolCall) Frame {
	return mustFrame(KindToolCall, tc)
}

// NewToolResult builds a ToolResult frame.
func NewToolResult(tr ToolResult) Frame {
	return mustFrame(KindToolResult, tr)
}

// NewFinishEvent builds a FinishEvent frame.
func NewFinishEvent(fe FinishEvent) Frame {
	return mustFrame(KindFinishEvent, fe)
}

// NewFinishData builds a FinishData frame.
func NewFinishData(fd FinishData) Frame {
	return mustFrame(KindFinishData, fd)
}

// Text decodes a TextDelta payload.
func (f Frame) Text() (string, error) {
	var s string
	if err := f.expect(KindTextDelta, &s); err != nil {
		return "", err
	}
	return s, nil
}

// ErrorMessage decodes an Error payload.
func (f Frame) ErrorMessage() (string, error) {
	var s string
	if err := f.expect(KindError, &s); err != nil {
		return "", err
	}
	return s, nil
}

// DataObjects decodes a Data payload into its objects.
func (f Frame) DataObjects() ([]map[string]any, error) {
	var objs []map[string]any
	if err := f.expect(KindData, &objs); err != nil {
		return nil, err
	}
	return objs, nil
}

// ToolCall decodes a ToolCall payload.
func (f Frame) ToolCall() (ToolCall, error) {
	var tc ToolCall
	err := f.expect(KindToolCall, &tc)
	return tc, err
}

// ToolResult decodes a ToolResult payload.
func (f Frame) ToolResult() (ToolResult, error) {
	var tr ToolResult
	err := f.expect(KindToolResult, &tr)
	return tr, err
}

// FinishEvent decodes a FinishEvent payload.
func (f Frame) FinishEvent() (FinishEvent, error) {
	var fe FinishEvent
	err := f.expect(KindFinishEvent, &fe)
	return fe, err
}

// FinishData decodes a FinishData payload.
func (f Frame) FinishData() (FinishData, error) {
	var fd FinishData
	err := f.expect(KindFinishData, &fd)
	return fd, err
}

func (f Frame) expect(kind Kind, v any) error {
	if f.Kind != kind {
		return fmt.Errorf("frame is %s, not %s", f.Kind, kind)
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", kind, err)
	}
	return nil
}

// mustFrame marshals payloads built from our own types; those cannot fail to encode
// except for values like NaN, which the bridge never produces.
func mustFrame(kind Kind, v any) Frame {
	raw, err := json.Marshal(v)
	if err != nil {
		raw, _ = json.Marshal(fmt.Sprintf("unencodable %s payload: %v", kind, err))
		kind = KindError
	}
	return Frame{Kind: kind, Payload: raw}
}
