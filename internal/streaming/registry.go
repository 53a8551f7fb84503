package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eternisai/research-bridge/internal/bridge"
	"github.com/eternisai/research-bridge/internal/logger"
	"github.com/robfig/cron/v3"
)

// ErrRunExists is returned by Register when a run for the message id is still active.
var ErrRunExists = errors.New("run already active for message")

// RegisterOptions describe a run being registered.
type RegisterOptions struct {
	SessionID string
	Transport string
}

// Registry tracks the bridge runs owned by this instance.
//
// Responsibilities:
//   - Reject a second concurrent run for the same message id
//   - Let the stop endpoint (local or via NATS) cancel a run
//   - Keep finished runs for a retention window so their status can be queried
//   - Sweep expired runs on a cron schedule
//
// All methods are safe for concurrent use.
type Registry struct {
	runs map[string]*Run
	mu   sync.RWMutex

	retention time.Duration
	scheduler *cron.Cron
	logger    *logger.Logger

	totalRegistered int64
	totalSwept      int64
}

// NewRegistry creates a registry. Finished runs older than retention are removed
// by a sweep running on schedule (a robfig/cron spec such as "@every 1m").
// An empty schedule disables the sweep; call Sweep manually in that case.
func NewRegistry(retention time.Duration, schedule string, log *logger.Logger) (*Registry, error) {
	r := &Registry{
		runs:      make(map[string]*Run),
		retention: retention,
		logger:    log.WithComponent("registry"),
	}

	if schedule != "" {
		r.scheduler = cron.New()
		if _, err := r.scheduler.AddFunc(schedule, func() { r.Sweep(time.Now()) }); err != nil {
			return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
		}
		r.scheduler.Start()
	}

	r.logger.Info("run registry initialized",
		slog.Duration("retention", retention),
		slog.String("sweep_schedule", schedule))

	return r, nil
}

// Register creates a run for messageID and derives its context from parent.
//
// Returns:
//   - *Run: the new run; call Finish on it when the pipeline returns
//   - context.Context: the context to run the pipeline with; Stop cancels it
//     with bridge.ErrStopped as the cause
//   - error: ErrRunExists if an unfinished run holds the same id
//
// A finished run with the same id is replaced.
func (r *Registry) Register(parent context.Context, messageID string, opts RegisterOptions) (*Run, context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.runs[messageID]; ok && !existing.IsFinished() {
		return nil, nil, fmt.Errorf("%w: %s", ErrRunExists, messageID)
	}

	ctx, cancel := context.WithCancelCause(parent)
	run := &Run{
		messageID: messageID,
		sessionID: opts.SessionID,
		transport: opts.Transport,
		startedAt: time.Now(),
		cancel:    cancel,
		stats:     &bridge.Stats{},
		done:      make(chan struct{}),
	}
	r.runs[messageID] = run
	r.totalRegistered++

	r.logger.Debug("registered run",
		slog.String("message_id", messageID),
		slog.String("transport", opts.Transport))

	return run, ctx, nil
}

// Get returns the run for messageID, or nil.
func (r *Registry) Get(messageID string) *Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runs[messageID]
}

// Stop cancels the run for messageID.
//
// Returns found=false when this instance does not hold the run; otherwise the
// error from Run.Stop (nil, ErrAlreadyStopped or ErrAlreadyFinished).
func (r *Registry) Stop(messageID string, reason StopReason) (found bool, err error) {
	run := r.Get(messageID)
	if run == nil {
		return false, nil
	}

	if err := run.Stop(reason); err != nil {
		return true, err
	}

	r.logger.Info("run stopped",
		slog.String("message_id", messageID),
		slog.String("reason", string(reason)))
	return true, nil
}

// Active returns the info of every unfinished run.
func (r *Registry) Active() []RunInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]RunInfo, 0, len(r.runs))
	for _, run := range r.runs {
		if !run.IsFinished() {
			infos = append(infos, run.Info())
		}
	}
	return infos
}

// Metrics returns aggregate counts.
func (r *Registry) Metrics() RegistryMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var m RegistryMetrics
	for _, run := range r.runs {
		if run.IsFinished() {
			m.FinishedRuns++
		} else {
			m.ActiveRuns++
		}
	}
	return m
}

// Sweep removes runs that finished more than the retention window before now.
// In-progress runs are never removed. Returns the number of runs removed.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.retention)
	swept := 0

	r.mu.Lock()
	for id, run := range r.runs {
		if run.finishedBefore(cutoff) {
			delete(r.runs, id)
			swept++
		}
	}
	r.totalSwept += int64(swept)
	remaining := len(r.runs)
	r.mu.Unlock()

	if swept > 0 {
		r.logger.Info("swept finished runs",
			slog.Int("swept", swept),
			slog.Int("remaining", remaining))
	}
	return swept
}

// Shutdown stops the sweep scheduler and cancels every active run.
// It does not wait for the runs' pipelines to return; the HTTP server shutdown does that.
func (r *Registry) Shutdown() {
	r.logger.Info("shutting down run registry")

	if r.scheduler != nil {
		<-r.scheduler.Stop().Done()
	}

	r.mu.RLock()
	runs := make([]*Run, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run)
	}
	total, swept := r.totalRegistered, r.totalSwept
	r.mu.RUnlock()

	cancelled := 0
	for _, run := range runs {
		if err := run.Stop(StopReasonSystemShutdown); err == nil {
			cancelled++
		}
	}

	r.logger.Info("run registry shutdown complete",
		slog.Int("cancelled", cancelled),
		slog.Int64("total_registered", total),
		slog.Int64("total_swept", swept))
}
