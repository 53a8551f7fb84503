package bridge

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eternisai/research-bridge/internal/logger"
)

// Keepalive periodically emits a zero-length TextDelta when the stream has been
// idle for longer than a threshold, so intermediaries do not time the connection out.
type Keepalive struct {
	writer   *FrameWriter
	idle     time.Duration
	interval time.Duration
	logger   *logger.Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// StartKeepalive launches the keepalive goroutine. A non-positive interval
// disables it; Stop is still safe to call.
func StartKeepalive(w *FrameWriter, idle, interval time.Duration, log *logger.Logger) *Keepalive {
	k := &Keepalive{
		writer:   w,
		idle:     idle,
		interval: interval,
		logger:   log,
		done:     make(chan struct{}),
	}
	if interval <= 0 {
		return k
	}

	k.wg.Add(1)
	go k.loop()
	return k
}

func (k *Keepalive) loop() {
	defer k.wg.Done()

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-k.done:
			return
		case <-ticker.C:
			sent, err := k.writer.heartbeat(k.idle)
			if err != nil {
				if !errors.Is(err, ErrClientGone) {
					k.logger.Warn("keepalive write failed", slog.String("error", err.Error()))
				}
				return
			}
			if sent {
				k.logger.Debug("keepalive sent")
			}
		}
	}
}

// Stop cancels the keepalive and waits for its goroutine to exit, so no heartbeat
// can be written after Stop returns. Safe to call more than once.
func (k *Keepalive) Stop() {
	k.stopOnce.Do(func() {
		close(k.done)
	})
	k.wg.Wait()
}
