package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eternisai/research-bridge/internal/logger"
	"github.com/nats-io/nats.go"
)

const (
	// NATS subject for stop requests.
	stopSubject = "bridge.stop"

	// How long RequestStop waits for the owning instance to answer.
	distributedStopTimeout = 5 * time.Second
)

// StopRequest asks the instance owning a run to stop it.
type StopRequest struct {
	MessageID string `json:"message_id"`
	Reason    string `json:"reason"`
}

// StopResponse is the owning instance's answer.
type StopResponse struct {
	Success         bool   `json:"success"`
	Found           bool   `json:"found"`
	AlreadyFinished bool   `json:"already_finished,omitempty"`
	Error           string `json:"error,omitempty"`
	InstanceID      string `json:"instance_id"`
}

// DistributedStopService stops runs owned by other bridge instances via NATS.
//
// Runs live in the memory of the instance that accepted the chat request. A stop
// request landing on another instance is published on bridge.stop; only the
// owner replies, and the first reply wins.
//
//	Instance A (owns run)                  Instance B (receives /stop)
//	─────────────────────                  ───────────────────────────
//	                                       POST /stop arrives
//	                                         └─► Run not in local registry
//	                                         └─► Request on bridge.stop
//	◄─── NATS delivers request ────
//	  └─► Find local run, stop it
//	  └─► Reply with result ────────────►
//	                                         └─► Return response to client
type DistributedStopService struct {
	nc           *nats.Conn
	registry     *Registry
	logger       *logger.Logger
	instanceID   string
	subscription *nats.Subscription
}

// NewDistributedStopService creates the service.
// Returns nil if there is no NATS connection; the service methods are nil-safe.
func NewDistributedStopService(nc *nats.Conn, registry *Registry, log *logger.Logger, instanceID string) *DistributedStopService {
	if nc == nil {
		return nil
	}

	return &DistributedStopService{
		nc:         nc,
		registry:   registry,
		logger:     log.WithComponent("distributed-stop"),
		instanceID: instanceID,
	}
}

// Start begins listening for stop requests from peers.
func (s *DistributedStopService) Start() error {
	if s == nil {
		return nil
	}

	sub, err := s.nc.Subscribe(stopSubject, s.handleStopRequest)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", stopSubject, err)
	}

	s.subscription = sub
	s.logger.Info("distributed stop service started",
		slog.String("subject", stopSubject),
		slog.String("instance_id", s.instanceID))
	return nil
}

// Stop drains the subscription.
func (s *DistributedStopService) Stop() error {
	if s == nil || s.subscription == nil {
		return nil
	}
	if err := s.subscription.Drain(); err != nil {
		return fmt.Errorf("failed to drain subscription: %w", err)
	}
	s.logger.Info("distributed stop service stopped")
	return nil
}

// RequestStop asks peers to stop messageID and waits for the owner's answer.
// A missing owner is reported as Found=false, not as an error.
func (s *DistributedStopService) RequestStop(ctx context.Context, messageID string) (*StopResponse, error) {
	if s == nil {
		return &StopResponse{}, nil
	}

	data, err := json.Marshal(StopRequest{MessageID: messageID, Reason: string(StopReasonUserCancelled)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, distributedStopTimeout)
	defer cancel()

	msg, err := s.nc.RequestWithContext(reqCtx, stopSubject, data)
	if err != nil {
		switch {
		case errors.Is(err, nats.ErrNoResponders),
			errors.Is(err, nats.ErrTimeout),
			errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			return &StopResponse{}, nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		}
		return nil, fmt.Errorf("stop request failed: %w", err)
	}

	var resp StopResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// handleStopRequest answers only when this instance owns the run, so the owner's
// reply is the one the requester receives.
func (s *DistributedStopService) handleStopRequest(msg *nats.Msg) {
	var req StopRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("received invalid stop request", slog.String("error", err.Error()))
		return
	}

	resp, owned := s.processLocalStop(req)
	if !owned {
		s.logger.Debug("run not owned by this instance, ignoring", slog.String("message_id", req.MessageID))
		return
	}
	resp.InstanceID = s.instanceID
	s.reply(msg, resp)

	s.logger.Info("processed distributed stop request",
		slog.String("message_id", req.MessageID),
		slog.Bool("success", resp.Success))
}

func (s *DistributedStopService) processLocalStop(req StopRequest) (StopResponse, bool) {
	reason := StopReason(req.Reason)
	if reason == "" {
		reason = StopReasonUserCancelled
	}

	found, err := s.registry.Stop(req.MessageID, reason)
	if !found {
		return StopResponse{}, false
	}

	switch {
	case err == nil:
		return StopResponse{Success: true, Found: true}, true
	case errors.Is(err, ErrAlreadyFinished), errors.Is(err, ErrAlreadyStopped):
		return StopResponse{Found: true, AlreadyFinished: true}, true
	default:
		return StopResponse{Found: true, Error: err.Error()}, true
	}
}

func (s *DistributedStopService) reply(msg *nats.Msg, resp StopResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal response", slog.String("error", err.Error()))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Error("failed to send response", slog.String("error", err.Error()))
	}
}
