package proxy

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/eternisai/research-bridge/internal/backend"
	"github.com/eternisai/research-bridge/internal/bridge"
	apierrors "github.com/eternisai/research-bridge/internal/errors"
	"github.com/eternisai/research-bridge/internal/logger"
	"github.com/eternisai/research-bridge/internal/streaming"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// Maximum length for message IDs to prevent memory abuse
	maxMessageIDLength = 256

	transportHTTP      = "http"
	transportWebSocket = "websocket"
)

// ChatRequest is the body of POST /api/v1/chat and the first WebSocket message.
type ChatRequest struct {
	Query     string         `json:"query"`
	SessionID string         `json:"session_id,omitempty"`
	MessageID string         `json:"message_id,omitempty"`
	Mode      string         `json:"mode,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// validate normalizes the request and returns a client-facing message if it is unusable.
func (r *ChatRequest) validate() string {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return "query is required"
	}
	if len(r.MessageID) > maxMessageIDLength {
		return "message_id exceeds maximum length"
	}
	if r.MessageID == "" {
		r.MessageID = uuid.New().String()
	}
	return ""
}

func (r *ChatRequest) backendRequest() backend.Request {
	return backend.Request{
		Query:     r.Query,
		SessionID: r.SessionID,
		Mode:      r.Mode,
		Options:   r.Options,
	}
}

// ChatHandler handles POST /api/v1/chat.
//
// The response is a chunked stream of wire frames. Validation and registration
// failures are returned as JSON errors before the stream starts; everything after
// that is reported in-band.
func ChatHandler(logger *logger.Logger, pipeline *bridge.Pipeline, registry *streaming.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.AbortWithBadRequest(c, "invalid request body", map[string]any{"reason": err.Error()})
			return
		}
		if msg := req.validate(); msg != "" {
			apierrors.AbortWithBadRequest(c, msg, nil)
			return
		}

		ctx := withRequestIDs(c.Request.Context(), "chat_http", req)
		log := logger.WithContext(ctx).WithComponent("chat")

		run, runCtx, err := registry.Register(ctx, req.MessageID, streaming.RegisterOptions{
			SessionID: req.SessionID,
			Transport: transportHTTP,
		})
		if err != nil {
			if errors.Is(err, streaming.ErrRunExists) {
				apierrors.AbortWithConflict(c, "a response is already streaming for this message", map[string]any{"message_id": req.MessageID})
				return
			}
			apierrors.AbortWithInternal(c, "failed to start response", nil)
			return
		}

		log.Info("chat stream started",
			slog.String("mode", req.Mode),
			slog.Int("query_length", len(req.Query)))

		bridge.SetStreamHeaders(c.Writer.Header())
		c.Header("X-Message-ID", req.MessageID)
		c.Status(http.StatusOK)
		c.Writer.WriteHeaderNow()
		c.Writer.Flush()

		writer := bridge.NewFrameWriter(bridge.NewHTTPSink(c.Writer), run.Stats())
		res := pipeline.Run(runCtx, req.backendRequest(), writer)
		run.Finish(res)
	}
}
