package main

import (
	"os"

	"github.com/spf13/cobra"
)

var serverURL string

func main() {
	rootCmd := &cobra.Command{
		Use:   "bridge-client",
		Short: "Command-line client for the research bridge",
		Long: `bridge-client sends queries to a research bridge and renders the frame
stream as it arrives: answer text, research steps, sources and errors.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "url", envOr("BRIDGE_URL", "http://localhost:8080"), "Base URL of the bridge")

	rootCmd.AddCommand(
		askCmd(),
		stopCmd(),
		statusCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
