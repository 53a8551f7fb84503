package streaming

import (
	"time"
)

// StopReason indicates why a run was stopped.
type StopReason string

const (
	// StopReasonUserCancelled indicates the user requested to stop generation.
	StopReasonUserCancelled StopReason = "user_cancelled"

	// StopReasonSystemShutdown indicates the server is shutting down.
	StopReasonSystemShutdown StopReason = "system_shutdown"
)

// RunInfo is a point-in-time view of one bridge run.
// Used by the status endpoint and for observability.
type RunInfo struct {
	// MessageID is the assistant message the run produces.
	MessageID string `json:"message_id"`

	// SessionID is the backend session, if the client supplied one.
	SessionID string `json:"session_id,omitempty"`

	// Transport is "http" or "websocket".
	Transport string `json:"transport"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Frames, TextBytes and Heartbeats are live counters.
	Frames     int64 `json:"frames"`
	TextBytes  int64 `json:"text_bytes"`
	Heartbeats int64 `json:"heartbeats"`

	Finished     bool       `json:"finished"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Stopped      bool       `json:"stopped"`
	StopReason   StopReason `json:"stop_reason,omitempty"`
	Error        string     `json:"error,omitempty"`

	// InstanceID is the bridge instance that owns the run.
	InstanceID string `json:"instance_id"`
}

// RegistryMetrics are aggregate counts across all runs held in memory.
type RegistryMetrics struct {
	ActiveRuns   int `json:"active_runs"`
	FinishedRuns int `json:"finished_runs"`
}
