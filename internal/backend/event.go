package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/eternisai/research-bridge/internal/research"
)

// Upstream statuses.
const (
	StatusStreaming       = "streaming"
	StatusProcessing      = "processing"
	StatusGeneratingAudio = "generating_audio"
	StatusResearching     = "researching"
	StatusComplete        = "complete"
	StatusFailed          = "error"
)

// ErrIgnoredLine is returned by ParseLine for lines that carry no event:
// comments, blank lines, other SSE fields and the "[DONE]" sentinel.
var ErrIgnoredLine = errors.New("line carries no event")

// Event is one JSON record from the backend stream. Every field but Status may be absent.
type Event struct {
	Status string `json:"status"`

	Content     string          `json:"content,omitempty"`
	Reasoning   json.RawMessage `json:"reasoning,omitempty"`
	FinalAnswer string          `json:"final_answer,omitempty"`
	Response    string          `json:"response,omitempty"`

	AudioPath     string `json:"audio_path,omitempty"`
	Sources       []any  `json:"sources,omitempty"`
	SearchResults []any  `json:"search_results,omitempty"`
	Videos        []any  `json:"videos,omitempty"`
	SessionID     string `json:"session_id,omitempty"`

	ResearchChain *research.Chain `json:"research_chain,omitempty"`

	Detail    string `json:"detail,omitempty"`
	Message   string `json:"message,omitempty"`
	Query     string `json:"query,omitempty"`
	EventType string `json:"eventType,omitempty"`
	Domain    string `json:"domain,omitempty"`
	Title     string `json:"title,omitempty"`
	URL       string `json:"url,omitempty"`

	// InvalidFields lists fields that were present but had an unexpected type.
	// They are left at their zero value; the rest of the event is still usable.
	InvalidFields []string `json:"-"`
}

// ParseLine decodes one upstream line of the form "data: {...}".
//
// Lines without the data prefix return ErrIgnoredLine and undecodable JSON returns
// a wrapped decode error. Fields are decoded one by one: a field of the wrong type
// is recorded in InvalidFields instead of failing the event.
func ParseLine(line string) (Event, error) {
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return Event{}, ErrIgnoredLine
	}
	payload = strings.TrimSpace(payload)
	if payload == "" || payload == "[DONE]" {
		return Event{}, ErrIgnoredLine
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return Event{}, fmt.Errorf("failed to decode backend event: %w", err)
	}

	var ev Event
	for name, decode := range ev.decoders() {
		raw, ok := fields[name]
		if !ok || string(raw) == "null" {
			continue
		}
		if err := decode(raw); err != nil {
			ev.InvalidFields = append(ev.InvalidFields, name)
		}
	}
	sort.Strings(ev.InvalidFields)
	return ev, nil
}

// decoders maps each wire field name to a function storing it into e.
func (e *Event) decoders() map[string]func(json.RawMessage) error {
	return map[string]func(json.RawMessage) error{
		"status":  field(&e.Status),
		"content": field(&e.Content),
		"reasoning": func(raw json.RawMessage) error {
			e.Reasoning = append(json.RawMessage(nil), raw...)
			return nil
		},
		"final_answer":   field(&e.FinalAnswer),
		"response":       field(&e.Response),
		"audio_path":     field(&e.AudioPath),
		"sources":        field(&e.Sources),
		"search_results": field(&e.SearchResults),
		"videos":         field(&e.Videos),
		"session_id":     field(&e.SessionID),
		"research_chain": field(&e.ResearchChain),
		"detail":         field(&e.Detail),
		"message":        field(&e.Message),
		"query":          field(&e.Query),
		"eventType":      field(&e.EventType),
		"domain":         field(&e.Domain),
		"title":          field(&e.Title),
		"url":            field(&e.URL),
	}
}

// field decodes into a fresh value and assigns it only on success, so a type
// mismatch never leaves dst half filled.
func field[T any](dst *T) func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

// Answer returns final_answer, falling back to response.
func (e Event) Answer() string {
	if e.FinalAnswer != "" {
		return e.FinalAnswer
	}
	return e.Response
}

// HasReasoning reports whether the event carries a non-empty reasoning field.
func (e Event) HasReasoning() bool {
	return len(e.ReasoningSteps()) > 0
}

// ReasoningSteps normalizes the reasoning field, which the backend sends either as
// a single string or as an array. Strings are split into non-empty lines.
func (e Event) ReasoningSteps() []string {
	raw := strings.TrimSpace(string(e.Reasoning))
	if raw == "" || raw == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(e.Reasoning, &text); err == nil {
		return splitLines(text)
	}

	var items []any
	if err := json.Unmarshal(e.Reasoning, &items); err == nil {
		steps := make([]string, 0, len(items))
		for _, item := range items {
			switch v := item.(type) {
			case string:
				if s := strings.TrimSpace(v); s != "" {
					steps = append(steps, s)
				}
			case nil:
			default:
				b, _ := json.Marshal(v)
				steps = append(steps, string(b))
			}
		}
		return steps
	}

	// Anything else (an object) is passed through as its JSON text.
	return []string{raw}
}

// ReasoningText joins the reasoning steps with newlines.
func (e Event) ReasoningText() string {
	return strings.Join(e.ReasoningSteps(), "\n")
}

// SourceList returns sources, falling back to search_results.
func (e Event) SourceList() []any {
	if len(e.Sources) > 0 {
		return e.Sources
	}
	return e.SearchResults
}

// Progress returns the human-readable progress text for non-terminal statuses.
func (e Event) Progress() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Message
}

// ResearchEvent extracts the research-chain relevant fields.
func (e Event) ResearchEvent() research.Event {
	msg := e.Message
	if msg == "" {
		msg = e.Detail
	}
	return research.Event{
		EventType: e.EventType,
		Query:     e.Query,
		Title:     e.Title,
		URL:       e.URL,
		Domain:    e.Domain,
		Message:   msg,
		Chain:     e.ResearchChain,
	}
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
