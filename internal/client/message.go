package client

import "github.com/eternisai/research-bridge/internal/research"

// Status is the lifecycle state of a Message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
)

// Message is the client-side state of one assistant response.
type Message struct {
	ID            string          `json:"id"`
	Content       string          `json:"content"`
	Status        Status          `json:"status"`
	Reasoning     string          `json:"reasoning,omitempty"`
	ResearchChain *research.Chain `json:"researchChain,omitempty"`
	AudioURL      string          `json:"audioUrl,omitempty"`
	SearchResults []any           `json:"searchResults,omitempty"`
	Videos        []any           `json:"videos,omitempty"`
	SessionID     string          `json:"sessionId,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	out := m
	out.ResearchChain = m.ResearchChain.Clone()
	out.SearchResults = cloneSlice(m.SearchResults)
	out.Videos = cloneSlice(m.Videos)
	return out
}

// Done reports whether the message reached a terminal status.
func (m Message) Done() bool {
	return m.Status == StatusSent || m.Status == StatusFailed
}

func cloneSlice(in []any) []any {
	if in == nil {
		return nil
	}
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies values produced by encoding/json.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []any:
		return cloneSlice(t)
	default:
		return v
	}
}
