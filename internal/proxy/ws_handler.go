package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/eternisai/research-bridge/internal/bridge"
	"github.com/eternisai/research-bridge/internal/logger"
	"github.com/eternisai/research-bridge/internal/streaming"
	"github.com/eternisai/research-bridge/internal/wire"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// firstMessageTimeout bounds how long a new socket may stay silent before sending its request.
const firstMessageTimeout = 30 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the CORS layer
	},
}

// controlMessage is a client message sent while a response is streaming.
type controlMessage struct {
	Type string `json:"type"`
}

// ChatWebSocketHandler handles GET /api/v1/chat/ws.
//
// The first text message carries a ChatRequest. Frames are then sent one per
// text message, without the trailing newline. The client may send
// {"type":"stop"} to stop generation; closing the socket abandons the run.
func ChatWebSocketHandler(logger *logger.Logger, pipeline *bridge.Pipeline, registry *streaming.Registry, writeTimeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.WithContext(c.Request.Context()).WithComponent("chat-ws")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error("failed to upgrade connection to websocket", slog.String("error", err.Error()))
			return
		}
		defer conn.Close()

		sink := bridge.NewWebSocketSink(conn, writeTimeout)
		defer func() { _ = sink.CloseNormal() }()

		req, err := readChatRequest(conn)
		if err != nil {
			log.Warn("invalid websocket chat request", slog.String("error", err.Error()))
			_ = bridge.NewFrameWriter(sink, nil).Write(wire.Error(err.Error()))
			return
		}

		ctx, cancel := context.WithCancel(withRequestIDs(c.Request.Context(), "chat_ws", req))
		defer cancel()
		log = logger.WithContext(ctx).WithComponent("chat-ws")

		run, runCtx, err := registry.Register(ctx, req.MessageID, streaming.RegisterOptions{
			SessionID: req.SessionID,
			Transport: transportWebSocket,
		})
		if err != nil {
			_ = bridge.NewFrameWriter(sink, nil).Write(wire.Error(err.Error()))
			return
		}

		go watchClient(conn, run, cancel, log)

		log.Info("websocket chat stream started", slog.String("mode", req.Mode))

		writer := bridge.NewFrameWriter(sink, run.Stats())
		res := pipeline.Run(runCtx, req.backendRequest(), writer)
		run.Finish(res)
	}
}

func readChatRequest(conn *websocket.Conn) (ChatRequest, error) {
	var req ChatRequest

	if err := conn.SetReadDeadline(time.Now().Add(firstMessageTimeout)); err != nil {
		return req, err
	}
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return req, err
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return req, err
	}

	if msgType != websocket.TextMessage {
		return req, errors.New("expected a text message with the chat request")
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, errors.New("invalid request body")
	}
	if msg := req.validate(); msg != "" {
		return req, errors.New(msg)
	}
	return req, nil
}

// watchClient reads control messages until the socket fails, then cancels the run.
func watchClient(conn *websocket.Conn, run *streaming.Run, cancel context.CancelFunc, log *logger.Logger) {
	defer cancel()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !run.IsFinished() {
				log.Info("websocket client went away", slog.String("error", err.Error()))
			}
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "stop" {
			log.Debug("ignoring websocket message")
			continue
		}
		if err := run.Stop(streaming.StopReasonUserCancelled); err != nil {
			log.Debug("stop ignored", slog.String("error", err.Error()))
		}
	}
}
