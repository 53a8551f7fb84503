package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/eternisai/research-bridge/internal/client"
	"github.com/eternisai/research-bridge/internal/logger"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type askOptions struct {
	sessionID string
	messageID string
	mode      string
	websocket bool
	showJSON  bool
	verbose   bool
}

type chatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

// askCmd sends one query and prints the response as it streams.
func askCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Ask a question and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			req := chatRequest{
				Query:     strings.Join(args, " "),
				SessionID: opts.sessionID,
				MessageID: opts.messageID,
				Mode:      opts.mode,
			}

			log := logger.Discard()
			if opts.verbose {
				log = logger.New(logger.FromConfig("debug", "text"))
			}

			view := newRenderer(cmd.OutOrStdout(), opts.verbose)
			reducer := client.NewReducer(view.commit, log)
			demux := client.NewDemuxer(reducer, log)

			var err error
			if opts.websocket {
				err = askWebSocket(ctx, req, reducer, demux)
			} else {
				err = askHTTP(ctx, req, reducer, demux)
			}
			if err != nil {
				return err
			}

			msg, ok := reducer.Snapshot(reducer.Current())
			if !ok {
				return errors.New("stream ended without a response")
			}
			if opts.showJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(msg)
			}
			view.summary(msg)
			if msg.Status == client.StatusFailed {
				return fmt.Errorf("response failed: %s", msg.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.sessionID, "session", "s", "", "Backend session to continue")
	cmd.Flags().StringVar(&opts.messageID, "message-id", "", "Message ID to use (generated by the bridge if empty)")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "Backend mode, e.g. research")
	cmd.Flags().BoolVar(&opts.websocket, "ws", false, "Use the WebSocket transport")
	cmd.Flags().BoolVar(&opts.showJSON, "json", false, "Print the final message as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show research progress and client diagnostics")

	return cmd
}

func askHTTP(ctx context.Context, req chatRequest, reducer *client.Reducer, demux *client.Demuxer) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(serverURL, "/")+"/api/v1/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to reach bridge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("bridge returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	if id := resp.Header.Get("X-Message-ID"); id != "" {
		reducer.Begin(id)
	}

	return client.Consume(ctx, resp.Body, demux)
}

func askWebSocket(ctx context.Context, req chatRequest, reducer *client.Reducer, demux *client.Demuxer) error {
	wsURL := strings.TrimRight(serverURL, "/") + "/api/v1/chat/ws"
	wsURL = "ws" + strings.TrimPrefix(wsURL, "http")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to bridge: %w", err)
	}
	defer conn.Close()

	if req.MessageID != "" {
		reducer.Begin(req.MessageID)
	}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	// Interrupting asks the bridge to stop; the stream still ends with a finish.
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteJSON(map[string]string{"type": "stop"})
		case <-stopped:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				demux.Flush()
				return nil
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}
		_, _ = demux.Write(append(data, '\n'))

		if msg, ok := reducer.Snapshot(reducer.Current()); ok && msg.Done() {
			return nil
		}
	}
}
