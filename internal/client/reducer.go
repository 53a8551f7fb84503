package client

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/eternisai/research-bridge/internal/logger"
	"github.com/eternisai/research-bridge/internal/research"
	"github.com/eternisai/research-bridge/internal/wire"
	"github.com/google/uuid"
)

// Data payload types, matching what the server emits.
const (
	dataStatus   = "status"
	dataSources  = "sources"
	dataVideos   = "videos"
	dataMetadata = "metadata"

	statusResearching = "researching"
)

// CommitFunc is called synchronously after every state change with a copy of
// the changed message.
type CommitFunc func(id string, m Message)

// dataPayload is the union of all Data object shapes.
type dataPayload struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Detail string `json:"detail"`

	EventType     string          `json:"eventType"`
	Query         string          `json:"query"`
	Title         string          `json:"title"`
	URL           string          `json:"url"`
	Domain        string          `json:"domain"`
	Message       string          `json:"message"`
	ResearchChain *research.Chain `json:"research_chain"`

	Sources   []any  `json:"sources"`
	Videos    []any  `json:"videos"`
	AudioURL  string `json:"audio_url"`
	SessionID string `json:"session_id"`
}

func (p dataPayload) researchEvent() (research.Event, bool) {
	if p.Type != dataStatus {
		return research.Event{}, false
	}
	if p.ResearchChain == nil && p.EventType == "" && p.Status != statusResearching {
		return research.Event{}, false
	}
	msg := p.Message
	if msg == "" {
		msg = p.Detail
	}
	ev := research.Event{
		EventType: p.EventType,
		Query:     p.Query,
		Title:     p.Title,
		URL:       p.URL,
		Domain:    p.Domain,
		Message:   msg,
		Chain:     p.ResearchChain,
	}
	return ev, !ev.IsZero()
}

// Reducer accumulates frames into per-message state.
//
// One Reducer is the context of one conversation view: it owns the message store,
// the id of the assistant message currently being streamed, and the queue of
// events that arrived before that id was known. Handler methods resolve the
// current id; the id-taking methods may be called directly.
type Reducer struct {
	mu       sync.Mutex
	messages map[string]*Message
	current  string
	pending  []func(id string)

	commit CommitFunc
	newID  func() string
	logger *logger.Logger
}

// NewReducer creates an empty reducer. commit may be nil.
func NewReducer(commit CommitFunc, log *logger.Logger) *Reducer {
	return &Reducer{
		messages: make(map[string]*Message),
		commit:   commit,
		newID:    func() string { return uuid.New().String() },
		logger:   log.WithComponent("reducer"),
	}
}

// Begin makes id the current assistant message, creating it in the pending state,
// and replays any queued events against it.
func (r *Reducer) Begin(id string) {
	r.update(id, func(*Message) bool { return true })
	r.bind(id)
}

// Current returns the id of the current assistant message, or "".
func (r *Reducer) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// PendingLen returns the number of queued events.
func (r *Reducer) PendingLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Snapshot returns a deep copy of a message.
func (r *Reducer) Snapshot(id string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return Message{}, false
	}
	return m.Clone(), true
}

// TextDelta appends text to the message. Zero-length deltas are no-ops.
func (r *Reducer) TextDelta(id, text string) {
	if text == "" {
		return
	}
	r.update(id, func(m *Message) bool {
		if m.Done() {
			return false
		}
		m.Content += text
		m.Status = StatusStreaming
		return true
	})
}

// ToolResult records reasoning once. A final answer that differs from the
// accumulated content replaces it.
func (r *Reducer) ToolResult(id, reasoning, finalAnswer string) {
	r.update(id, func(m *Message) bool {
		changed := false
		if reasoning != "" && m.Reasoning == "" {
			m.Reasoning = reasoning
			changed = true
		}
		if finalAnswer != "" && finalAnswer != m.Content && !m.Done() {
			m.Content = finalAnswer
			changed = true
		}
		return changed
	})
}

// Data applies one Data object.
func (r *Reducer) Data(id string, raw json.RawMessage) {
	var p dataPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		r.logger.Warn("skipping undecodable data object", slog.String("error", err.Error()))
		return
	}

	r.update(id, func(m *Message) bool {
		switch p.Type {
		case dataStatus:
			ev, ok := p.researchEvent()
			if !ok {
				return false
			}
			next := research.Merge(m.ResearchChain, ev)
			if next == m.ResearchChain {
				return false
			}
			m.ResearchChain = next
			return true

		case dataSources:
			if len(p.Sources) == 0 || m.SearchResults != nil {
				return false
			}
			m.SearchResults = cloneSlice(p.Sources)
			return true

		case dataVideos:
			if len(p.Videos) == 0 || m.Videos != nil {
				return false
			}
			m.Videos = cloneSlice(p.Videos)
			return true

		case dataMetadata:
			changed := false
			if p.AudioURL != "" && m.AudioURL == "" {
				m.AudioURL = p.AudioURL
				changed = true
			}
			// A later session id supersedes an earlier one.
			if p.SessionID != "" && p.SessionID != m.SessionID {
				m.SessionID = p.SessionID
				changed = true
			}
			return changed
		}

		r.logger.Debug("ignoring data object", slog.String("type", p.Type))
		return false
	})
}

// Finish marks the message sent and closes its research chain.
func (r *Reducer) Finish(id string) {
	r.update(id, func(m *Message) bool {
		if m.Done() {
			return false
		}
		m.Status = StatusSent
		m.ResearchChain = research.Close(m.ResearchChain)
		return true
	})
}

// Fail marks the message failed and closes its research chain.
func (r *Reducer) Fail(id, message string) {
	r.update(id, func(m *Message) bool {
		if m.Done() {
			return false
		}
		m.Status = StatusFailed
		m.Error = message
		m.ResearchChain = research.Close(m.ResearchChain)
		return true
	})
}

// OnTextDelta implements Handler. The first non-empty delta creates the current
// assistant message if none is known yet.
func (r *Reducer) OnTextDelta(text string) {
	if text == "" {
		return
	}
	id := r.ensureCurrent()
	r.TextDelta(id, text)
}

// OnData implements Handler. Objects that arrive before an assistant message
// exists are queued.
func (r *Reducer) OnData(objects []json.RawMessage) {
	for _, obj := range objects {
		obj := obj
		r.withCurrent(func(id string) { r.Data(id, obj) })
	}
}

// OnToolCall implements Handler. Reasoning is taken from the matching result.
func (r *Reducer) OnToolCall(call wire.ToolCall) {
	r.logger.Debug("tool call", slog.String("tool_call_id", call.ToolCallID), slog.String("tool_name", call.ToolName))
}

// OnToolResult implements Handler.
func (r *Reducer) OnToolResult(result wire.ToolResult) {
	reasoning, _ := result.Result["reasoning"].(string)
	answer, _ := result.Result["final_answer"].(string)
	r.withCurrent(func(id string) { r.ToolResult(id, reasoning, answer) })
}

// OnError implements Handler.
func (r *Reducer) OnError(message string) {
	r.Fail(r.ensureCurrent(), message)
}

// OnFinishEvent implements Handler. The response is closed by FinishData.
func (r *Reducer) OnFinishEvent(wire.FinishEvent) {}

// OnFinishData implements Handler.
func (r *Reducer) OnFinishData(wire.FinishData) {
	r.Finish(r.ensureCurrent())
}

// withCurrent runs fn against the current message, or queues it.
func (r *Reducer) withCurrent(fn func(id string)) {
	r.mu.Lock()
	id := r.current
	if id == "" {
		r.pending = append(r.pending, fn)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	fn(id)
}

// ensureCurrent returns the current id, creating a message and draining the
// queue when there is none.
func (r *Reducer) ensureCurrent() string {
	r.mu.Lock()
	id := r.current
	r.mu.Unlock()
	if id != "" {
		return id
	}

	id = r.newID()
	r.Begin(id)
	return id
}

// bind sets the current id and replays the queue in arrival order.
func (r *Reducer) bind(id string) {
	r.mu.Lock()
	r.current = id
	queued := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, fn := range queued {
		fn(id)
	}
}

// update applies fn to the message with the given id, creating it when absent,
// and commits a copy if fn reports a change.
func (r *Reducer) update(id string, fn func(m *Message) bool) {
	r.mu.Lock()
	m, ok := r.messages[id]
	if !ok {
		m = &Message{ID: id, Status: StatusPending}
		r.messages[id] = m
	}
	changed := fn(m) || !ok
	var snapshot Message
	if changed {
		snapshot = m.Clone()
	}
	r.mu.Unlock()

	if changed && r.commit != nil {
		r.commit(id, snapshot)
	}
}
