package streaming

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eternisai/research-bridge/internal/bridge"
	"github.com/eternisai/research-bridge/internal/logger"
)

var (
	// ErrAlreadyStopped is returned by Stop for a run that was stopped before.
	ErrAlreadyStopped = errors.New("run already stopped")

	// ErrAlreadyFinished is returned by Stop for a run that already finished.
	ErrAlreadyFinished = errors.New("run already finished")
)

// Run tracks one in-flight bridge run: its cancel function, live counters and
// terminal outcome.
type Run struct {
	messageID string
	sessionID string
	transport string
	startedAt time.Time

	cancel context.CancelCauseFunc
	stats  *bridge.Stats

	mu         sync.RWMutex
	finished   bool
	finishedAt time.Time
	result     bridge.Result
	stopped    bool
	stopReason StopReason

	done chan struct{}
}

// Stats returns the live counters to hand to the run's FrameWriter.
func (r *Run) Stats() *bridge.Stats {
	return r.stats
}

// MessageID returns the id of the message the run produces.
func (r *Run) MessageID() string {
	return r.messageID
}

// Done is closed when the run finishes.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Finish records the outcome of the run. Only the first call has effect.
func (r *Run) Finish(res bridge.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.finished = true
	r.finishedAt = time.Now()
	r.result = res
	r.cancel(nil)
	close(r.done)
}

// Stop cancels the run with bridge.ErrStopped as the cause, so the pipeline
// finishes the response normally.
func (r *Run) Stop(reason StopReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return ErrAlreadyFinished
	}
	if r.stopped {
		return ErrAlreadyStopped
	}
	r.stopped = true
	r.stopReason = reason
	r.cancel(bridge.ErrStopped)
	return nil
}

// IsFinished reports whether Finish has been called.
func (r *Run) IsFinished() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finished
}

// Info returns a snapshot of the run.
func (r *Run) Info() RunInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := RunInfo{
		MessageID:  r.messageID,
		SessionID:  r.sessionID,
		Transport:  r.transport,
		StartedAt:  r.startedAt,
		Frames:     r.stats.Frames.Load(),
		TextBytes:  r.stats.TextBytes.Load(),
		Heartbeats: r.stats.Heartbeats.Load(),
		Finished:   r.finished,
		Stopped:    r.stopped,
		StopReason: r.stopReason,
		InstanceID: logger.GetInstanceID(),
	}
	if r.finished {
		at := r.finishedAt
		info.FinishedAt = &at
		info.FinishReason = r.result.FinishReason
		info.Error = r.result.Error
	}
	return info
}

func (r *Run) finishedBefore(cutoff time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finished && r.finishedAt.Before(cutoff)
}
