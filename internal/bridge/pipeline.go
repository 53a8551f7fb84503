package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/eternisai/research-bridge/internal/backend"
	"github.com/eternisai/research-bridge/internal/logger"
	"github.com/eternisai/research-bridge/internal/metrics"
	"github.com/eternisai/research-bridge/internal/wire"
)

const (
	readBufferSize = 64 * 1024
	maxLineSize    = 1024 * 1024

	prematureEOFMessage = "upstream closed before completion"
)

// ErrStopped is the cancellation cause used when a user stops generation.
// A run cancelled with it finishes with reason "stop" instead of an error.
var ErrStopped = errors.New("generation stopped")

// Opener opens a backend event stream. *backend.Client implements it.
type Opener interface {
	Open(ctx context.Context, req backend.Request) (io.ReadCloser, error)
}

// Options tune a Pipeline.
type Options struct {
	IdleThreshold time.Duration
	CheckInterval time.Duration
}

// Pipeline runs one backend request per call and transcodes it to a client.
type Pipeline struct {
	opener Opener
	opts   Options
	logger *logger.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(opener Opener, opts Options, log *logger.Logger) *Pipeline {
	return &Pipeline{opener: opener, opts: opts, logger: log.WithComponent("bridge")}
}

// Result summarizes a finished run.
type Result struct {
	FinishReason string
	Error        string
	Frames       int64
	Heartbeats   int64
	Content      string
	ClientGone   bool
	Duration     time.Duration
}

// Run streams the response for req into w until the response finishes, the
// backend fails, the client goes away or ctx is cancelled.
//
// It never returns an error: every abnormal termination reaches the client as a
// single Error frame (when the client is still there) and is reported in Result.
func (p *Pipeline) Run(ctx context.Context, req backend.Request, w *FrameWriter) (res Result) {
	started := time.Now()
	log := p.logger.WithContext(ctx)
	tc := NewTranscoder()

	metrics.StreamsActive.Inc()
	defer metrics.StreamsActive.Dec()

	// The keepalive covers the connect phase too; retries can take seconds.
	ka := StartKeepalive(w, p.opts.IdleThreshold, p.opts.CheckInterval, log)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in bridge run", slog.Any("panic", r))
			res.FinishReason = wire.FinishReasonError
			res.Error = fmt.Sprintf("internal error: %v", r)
			ka.Stop()
			p.emit(w, tc.Fail("internal error"), &res)
		}
		ka.Stop()

		res.Frames = w.stats.Frames.Load()
		res.Heartbeats = w.stats.Heartbeats.Load()
		res.Content = tc.Sent()
		res.Duration = time.Since(started)
		metrics.StreamDuration.WithLabelValues(res.FinishReason).Observe(res.Duration.Seconds())

		log.Info("bridge run finished",
			slog.String("finish_reason", res.FinishReason),
			slog.Int64("frames", res.Frames),
			slog.Int64("heartbeats", res.Heartbeats),
			slog.Bool("client_gone", res.ClientGone),
			slog.Duration("duration", res.Duration))
	}()

	body, err := p.opener.Open(ctx, req)
	if err != nil {
		if stopped(ctx) {
			p.stop(w, tc, ka, &res)
			return res
		}
		if ctx.Err() != nil {
			p.abandon(w, ka, &res)
			return res
		}
		log.Warn("backend request failed", slog.String("error", err.Error()))
		p.fail(w, tc, ka, &res, err.Error())
		return res
	}

	// Closing the body unblocks the reader when the run is cancelled.
	stopClose := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer func() {
		stopClose()
		_ = body.Close()
	}()

	lines := backend.NewLineReader(body, readBufferSize, maxLineSize)

	var readErr error
	for {
		line, err := lines.Next()
		if errors.Is(err, backend.ErrLineTooLong) {
			metrics.BackendEventsDropped.WithLabelValues("oversized").Inc()
			log.Warn("skipping oversized backend line", slog.Int("limit", maxLineSize))
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}

		ev, err := backend.ParseLine(string(line))
		if err != nil {
			if !errors.Is(err, backend.ErrIgnoredLine) {
				metrics.BackendEventsDropped.WithLabelValues("malformed").Inc()
				log.Debug("skipping malformed backend line", slog.String("error", err.Error()))
			}
			continue
		}
		if len(ev.InvalidFields) > 0 {
			metrics.BackendFieldsInvalid.Add(float64(len(ev.InvalidFields)))
			log.Debug("ignoring backend fields with unexpected types",
				slog.String("status", ev.Status),
				slog.Any("fields", ev.InvalidFields))
		}

		frames, err := tc.Transcode(ev)
		if err != nil {
			reason := "unknown_status"
			if errors.Is(err, ErrTerminal) {
				reason = "after_terminal"
			}
			metrics.BackendEventsDropped.WithLabelValues(reason).Inc()
			log.Debug("dropping backend event", slog.String("status", ev.Status), slog.String("reason", reason))
			continue
		}

		if tc.Terminal() {
			// Stop the keepalive first so nothing follows the terminal frame.
			ka.Stop()
			res.FinishReason = wire.FinishReasonStop
			if ev.Status == backend.StatusFailed {
				res.FinishReason = wire.FinishReasonError
				res.Error = errorMessage(ev)
			}
			p.emit(w, frames, &res)
			return res
		}

		if !p.emit(w, frames, &res) {
			log.Info("client disconnected, cancelling backend stream")
			return res
		}
	}

	if stopped(ctx) {
		p.stop(w, tc, ka, &res)
		return res
	}
	if ctx.Err() != nil {
		p.abandon(w, ka, &res)
		return res
	}

	if readErr != nil {
		log.Warn("backend stream read failed", slog.String("error", readErr.Error()))
		p.fail(w, tc, ka, &res, fmt.Sprintf("upstream read failed: %v", readErr))
		return res
	}

	p.fail(w, tc, ka, &res, prematureEOFMessage)
	return res
}

// emit writes frames and reports whether the client is still there.
func (p *Pipeline) emit(w *FrameWriter, frames []wire.Frame, res *Result) bool {
	var err error
	if len(frames) == 0 {
		if w.Closed() {
			err = ErrClientGone
		}
	} else {
		err = w.WriteAll(frames)
	}
	if err != nil {
		res.ClientGone = true
		if res.FinishReason == "" {
			res.FinishReason = "client_gone"
		}
		return false
	}
	return true
}

func (p *Pipeline) fail(w *FrameWriter, tc *Transcoder, ka *Keepalive, res *Result, msg string) {
	ka.Stop()
	res.FinishReason = wire.FinishReasonError
	res.Error = msg
	p.emit(w, tc.Fail(msg), res)
}

func (p *Pipeline) stop(w *FrameWriter, tc *Transcoder, ka *Keepalive, res *Result) {
	ka.Stop()
	res.FinishReason = wire.FinishReasonStop
	p.emit(w, tc.Stop(), res)
}

// abandon ends a run whose context was cancelled for a reason other than a stop
// request. The client is gone, so nothing more is written.
func (p *Pipeline) abandon(w *FrameWriter, ka *Keepalive, res *Result) {
	ka.Stop()
	w.Close()
	res.ClientGone = true
	res.FinishReason = "cancelled"
}

func stopped(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrStopped)
}
