package proxy

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/eternisai/research-bridge/internal/errors"
	"github.com/eternisai/research-bridge/internal/logger"
	"github.com/eternisai/research-bridge/internal/streaming"
	"github.com/gin-gonic/gin"
)

// StopResponse is returned by the stop endpoint on success.
type StopResponse struct {
	Success    bool   `json:"success"`
	MessageID  string `json:"message_id"`
	InstanceID string `json:"instance_id"`
}

// StopStreamHandler handles POST /api/v1/chat/:messageId/stop
// Stops an in-progress response; the client still receives a normal finish.
func StopStreamHandler(
	logger *logger.Logger,
	registry *streaming.Registry,
	distributed *streaming.DistributedStopService,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		messageID := c.Param("messageId")
		if messageID == "" || len(messageID) > maxMessageIDLength {
			apierrors.AbortWithBadRequest(c, "invalid messageId", nil)
			return
		}

		log := logger.WithContext(c.Request.Context()).WithComponent("stream-control").
			With(slog.String("message_id", messageID))

		found, err := registry.Stop(messageID, streaming.StopReasonUserCancelled)
		if found {
			if err != nil {
				if errors.Is(err, streaming.ErrAlreadyFinished) || errors.Is(err, streaming.ErrAlreadyStopped) {
					apierrors.AbortWithConflict(c, "response already finished", map[string]any{"message_id": messageID})
					return
				}
				apierrors.AbortWithInternal(c, "failed to stop response", nil)
				return
			}

			log.Info("stopped local run")
			c.JSON(http.StatusOK, StopResponse{Success: true, MessageID: messageID, InstanceID: instanceID()})
			return
		}

		// Not ours; ask the other instances.
		resp, err := distributed.RequestStop(c.Request.Context(), messageID)
		if err != nil {
			log.Error("distributed stop failed", slog.String("error", err.Error()))
			apierrors.AbortWithInternal(c, "failed to stop response", nil)
			return
		}

		switch {
		case resp.Found && resp.Success:
			log.Info("stopped remote run", slog.String("owner", resp.InstanceID))
			c.JSON(http.StatusOK, StopResponse{Success: true, MessageID: messageID, InstanceID: resp.InstanceID})
		case resp.Found && resp.AlreadyFinished:
			apierrors.AbortWithConflict(c, "response already finished", map[string]any{"message_id": messageID})
		case resp.Found:
			apierrors.AbortWithInternal(c, "failed to stop response", map[string]any{"reason": resp.Error})
		default:
			apierrors.AbortWithNotFound(c, "no active response for this message", map[string]any{"message_id": messageID})
		}
	}
}

// StreamStatusHandler handles GET /api/v1/chat/:messageId/status
// Returns the live counters and outcome of a run held by this instance.
func StreamStatusHandler(registry *streaming.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		messageID := c.Param("messageId")

		run := registry.Get(messageID)
		if run == nil {
			apierrors.AbortWithNotFound(c, "unknown message", map[string]any{"message_id": messageID})
			return
		}

		c.JSON(http.StatusOK, run.Info())
	}
}

// HealthHandler handles GET /health.
func HealthHandler(registry *streaming.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := registry.Metrics()
		c.JSON(http.StatusOK, gin.H{
			"status":        "ok",
			"instance_id":   instanceID(),
			"active_runs":   m.ActiveRuns,
			"finished_runs": m.FinishedRuns,
		})
	}
}
