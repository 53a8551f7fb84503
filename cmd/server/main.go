package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eternisai/research-bridge/internal/backend"
	"github.com/eternisai/research-bridge/internal/bridge"
	"github.com/eternisai/research-bridge/internal/config"
	"github.com/eternisai/research-bridge/internal/logger"
	"github.com/eternisai/research-bridge/internal/proxy"
	"github.com/eternisai/research-bridge/internal/streaming"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))
	slog.SetDefault(log.Logger)

	gin.SetMode(cfg.GinMode)

	backendClient := backend.NewClient(backend.ClientConfig{
		BaseURL:        cfg.BackendURL,
		ChatPath:       cfg.BackendChatPath,
		ModePaths:      cfg.ModePaths(),
		Attempts:       cfg.BackendConnectAttempts,
		RetryDelay:     cfg.BackendRetryDelay,
		ConnectTimeout: cfg.BackendConnectTimeout,
	}, log)

	pipeline := bridge.NewPipeline(backendClient, bridge.Options{
		IdleThreshold: cfg.KeepaliveIdleThreshold,
		CheckInterval: cfg.KeepaliveCheckInterval,
	}, log)

	registry, err := streaming.NewRegistry(cfg.StreamRetention, cfg.StreamSweepSchedule, log)
	if err != nil {
		log.Error("failed to create run registry", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// NATS is optional; without it stop requests only reach local runs.
	var nc *nats.Conn
	if cfg.NatsURL != "" {
		nc, err = nats.Connect(cfg.NatsURL,
			nats.Name("research-bridge-"+logger.GetInstanceID()),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Warn("NATS unavailable, distributed stop disabled", slog.String("error", err.Error()))
			nc = nil
		} else {
			log.Info("connected to NATS", slog.String("url", nc.ConnectedUrlRedacted()))
		}
	}

	distributed := streaming.NewDistributedStopService(nc, registry, log, logger.GetInstanceID())
	if err := distributed.Start(); err != nil {
		log.Error("failed to start distributed stop service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	router := proxy.NewRouter(proxy.RouterDeps{
		Logger:                log,
		Pipeline:              pipeline,
		Registry:              registry,
		Distributed:           distributed,
		WebSocketWriteTimeout: cfg.WebSocketWriteTimeout,
		MetricsEnabled:        cfg.MetricsEnabled,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           proxy.WithCORS(router, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("research bridge listening",
			slog.String("addr", srv.Addr),
			slog.String("backend", cfg.BackendURL),
			slog.String("instance_id", logger.GetInstanceID()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	// Stopping the runs lets every open stream end with a normal finish before
	// the listener drains.
	registry.Shutdown()

	if err := distributed.Stop(); err != nil {
		log.Warn("failed to stop distributed stop service", slog.String("error", err.Error()))
	}
	if nc != nil {
		_ = nc.Drain()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("server exited")
}
