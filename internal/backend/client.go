package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/eternisai/research-bridge/internal/logger"
	"github.com/eternisai/research-bridge/internal/metrics"
)

const (
	// maxErrorBodyBytes caps how much of an upstream error body is relayed to the client.
	maxErrorBodyBytes = 4 * 1024
)

// Request is the body sent to the backend chat endpoint.
type Request struct {
	Query     string         `json:"query"`
	SessionID string         `json:"session_id,omitempty"`
	Mode      string         `json:"mode,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// StatusError is a committed upstream HTTP error response. It is never retried.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

// ConnectError is returned once the retry budget is spent, or on the first
// failure that is not connection-level.
type ConnectError struct {
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to backend after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ClientConfig configures the backend client.
type ClientConfig struct {
	BaseURL  string
	ChatPath string
	// ModePaths overrides ChatPath for requests whose Mode has an entry.
	ModePaths      map[string]string
	Attempts       int
	RetryDelay     time.Duration
	ConnectTimeout time.Duration
}

// Client opens event streams on the backend.
type Client struct {
	baseURL    string
	chatPath   string
	modePaths  map[string]string
	attempts   int
	retryDelay time.Duration
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a backend client with its own pooled transport.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ConnectTimeout,
	}
	return NewClientWithHTTP(cfg, &http.Client{Transport: transport}, log)
}

// NewClientWithHTTP creates a backend client around an existing http.Client.
func NewClientWithHTTP(cfg ClientConfig, httpClient *http.Client, log *logger.Logger) *Client {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		chatPath:   cfg.ChatPath,
		modePaths:  cfg.ModePaths,
		attempts:   attempts,
		retryDelay: cfg.RetryDelay,
		httpClient: httpClient,
		logger:     log.WithComponent("backend"),
	}
}

// Open starts a streaming request and returns the response body once the backend
// has answered with a 2xx status.
//
// Connection-level failures are retried up to the configured number of attempts
// with a fixed delay between them. Any HTTP response, including an error status,
// ends the loop: error statuses come back as *StatusError.
func (c *Client) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode backend request: %w", err)
	}

	log := c.logger.WithContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.urlFor(req.Mode), bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create backend request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Accept-Encoding", "identity")

		resp, err := c.httpClient.Do(httpReq)
		if err == nil {
			if resp.StatusCode >= http.StatusBadRequest {
				metrics.BackendConnectAttempts.WithLabelValues("http_error").Inc()
				return nil, readStatusError(resp)
			}
			metrics.BackendConnectAttempts.WithLabelValues("ok").Inc()
			if attempt > 1 {
				log.Info("backend connected after retry", slog.Int("attempt", attempt))
			}
			return resp.Body, nil
		}

		lastErr = err
		if !IsConnectionError(err) {
			metrics.BackendConnectAttempts.WithLabelValues("fatal").Inc()
			return nil, &ConnectError{Attempts: attempt, Err: err}
		}
		metrics.BackendConnectAttempts.WithLabelValues("retryable").Inc()

		log.Warn("backend connection failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.attempts),
			slog.String("error", err.Error()))

		if attempt == c.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, &ConnectError{Attempts: attempt, Err: ctx.Err()}
		case <-time.After(c.retryDelay):
		}
	}

	return nil, &ConnectError{Attempts: c.attempts, Err: lastErr}
}

func (c *Client) urlFor(mode string) string {
	if path, ok := c.modePaths[mode]; ok && mode != "" {
		return c.baseURL + path
	}
	return c.baseURL + c.chatPath
}

func readStatusError(resp *http.Response) error {
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(b)),
	}
}
