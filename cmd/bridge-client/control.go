package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// stopCmd asks the bridge to stop a streaming response.
func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <message-id>",
		Short: "Stop a response that is still streaming",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, messageURL(args[0], "stop"), nil)
			if err != nil {
				return err
			}
			return printJSONResponse(cmd, req)
		},
	}
}

// statusCmd shows the counters and outcome of a run.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <message-id>",
		Short: "Show the state of a response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, messageURL(args[0], "status"), nil)
			if err != nil {
				return err
			}
			return printJSONResponse(cmd, req)
		},
	}
}

func messageURL(messageID, action string) string {
	return fmt.Sprintf("%s/api/v1/chat/%s/%s", strings.TrimRight(serverURL, "/"), url.PathEscape(messageID), action)
}

func printJSONResponse(cmd *cobra.Command, req *http.Request) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach bridge: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("unexpected response (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("bridge returned status %d", resp.StatusCode)
	}
	return nil
}
