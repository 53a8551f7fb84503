package proxy

import (
	"time"

	"github.com/eternisai/research-bridge/internal/bridge"
	"github.com/eternisai/research-bridge/internal/logger"
	"github.com/eternisai/research-bridge/internal/streaming"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps are the collaborators of the HTTP surface.
type RouterDeps struct {
	Logger      *logger.Logger
	Pipeline    *bridge.Pipeline
	Registry    *streaming.Registry
	Distributed *streaming.DistributedStopService

	WebSocketWriteTimeout time.Duration
	MetricsEnabled        bool
}

// NewRouter builds the gin engine serving the bridge endpoints.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(RecoveryMiddleware(deps.Logger))
	router.Use(RequestIDMiddleware())
	router.Use(RequestLoggingMiddleware(deps.Logger))

	router.GET("/health", HealthHandler(deps.Registry))
	if deps.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1")
	{
		chat := api.Group("/chat")
		{
			chat.POST("", ChatHandler(deps.Logger, deps.Pipeline, deps.Registry))
			chat.GET("/ws", ChatWebSocketHandler(deps.Logger, deps.Pipeline, deps.Registry, deps.WebSocketWriteTimeout))
			chat.POST("/:messageId/stop", StopStreamHandler(deps.Logger, deps.Registry, deps.Distributed))
			chat.GET("/:messageId/status", StreamStatusHandler(deps.Registry))
		}
	}

	return router
}
