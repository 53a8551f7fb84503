package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	GinMode string

	// Backend
	BackendURL             string
	BackendChatPath        string
	BackendConnectAttempts int
	BackendRetryDelay      time.Duration
	BackendConnectTimeout  time.Duration

	// Keepalive
	KeepaliveIdleThreshold time.Duration
	KeepaliveCheckInterval time.Duration

	// Run registry
	StreamRetention     time.Duration
	StreamSweepSchedule string

	// WebSocket
	WebSocketWriteTimeout time.Duration

	// NATS (distributed stop); empty disables it.
	NatsURL string

	CORSAllowedOrigins []string

	ServerShutdownTimeoutSeconds int

	LogLevel  string
	LogFormat string

	MetricsEnabled bool

	// Bridge holds settings from the optional config file.
	Bridge *BridgeConfig
}

var AppConfig *Config

// LoadConfig loads the configuration into AppConfig and exits the process if it is invalid.
func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	AppConfig = cfg
}

// Load builds a Config from the environment and the optional config file.
func Load() (*Config, error) {
	cfg := &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		BackendURL:             getEnvOrDefault("BACKEND_URL", "http://localhost:8000"),
		BackendChatPath:        getEnvOrDefault("BACKEND_CHAT_PATH", "/api/chat/stream"),
		BackendConnectAttempts: getEnvAsInt("BACKEND_CONNECT_ATTEMPTS", 3),
		BackendRetryDelay:      getEnvAsDuration("BACKEND_RETRY_DELAY", time.Second),
		BackendConnectTimeout:  getEnvAsDuration("BACKEND_CONNECT_TIMEOUT", 30*time.Second),

		KeepaliveIdleThreshold: getEnvAsDuration("KEEPALIVE_IDLE_THRESHOLD", 15*time.Second),
		KeepaliveCheckInterval: getEnvAsDuration("KEEPALIVE_CHECK_INTERVAL", 5*time.Second),

		StreamRetention:     getEnvAsDuration("STREAM_RETENTION", 10*time.Minute),
		StreamSweepSchedule: getEnvOrDefault("STREAM_SWEEP_SCHEDULE", "@every 1m"),

		WebSocketWriteTimeout: getEnvAsDuration("WS_WRITE_TIMEOUT", 10*time.Second),

		NatsURL: getEnvOrDefault("NATS_URL", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "debug"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),

		MetricsEnabled: getEnvOrDefault("METRICS_ENABLED", "true") == "true",
	}

	// The config file is optional. When present, its values take precedence over
	// the environment for the settings it contains.
	configFilePath := getEnvOrDefault("CONFIG_FILE", "config.yaml")
	configFile, err := os.Open(configFilePath)
	switch {
	case err == nil:
		defer configFile.Close()
		log.Printf("Loading config file: %v", configFilePath)
		if err := LoadConfigFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configFilePath, err)
		}
	case errors.Is(err, os.ErrNotExist):
		log.Printf("Config file %s not found, using environment only", configFilePath)
	default:
		return nil, fmt.Errorf("failed to open config file %s: %w", configFilePath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would make the bridge misbehave at runtime.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return errors.New("BACKEND_URL must be set")
	}
	if c.BackendConnectAttempts < 1 {
		return fmt.Errorf("BACKEND_CONNECT_ATTEMPTS must be at least 1, got %d", c.BackendConnectAttempts)
	}
	if c.KeepaliveCheckInterval <= 0 {
		return fmt.Errorf("KEEPALIVE_CHECK_INTERVAL must be positive, got %v", c.KeepaliveCheckInterval)
	}
	if c.KeepaliveIdleThreshold < c.KeepaliveCheckInterval {
		return fmt.Errorf("KEEPALIVE_IDLE_THRESHOLD (%v) must not be shorter than KEEPALIVE_CHECK_INTERVAL (%v)",
			c.KeepaliveIdleThreshold, c.KeepaliveCheckInterval)
	}
	return nil
}

// ModePaths returns the backend path for every configured mode.
func (c *Config) ModePaths() map[string]string {
	paths := make(map[string]string)
	if c.Bridge == nil {
		return paths
	}
	for _, m := range c.Bridge.Modes {
		paths[m.Name] = m.ChatPath
	}
	return paths
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as time.Duration, using default %v: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// LoadConfigFile decodes the config file and applies its bridge block to config.
func LoadConfigFile(reader io.Reader, config *Config) error {
	var file struct {
		Bridge *BridgeConfig `yaml:"bridge"`
	}

	decoder := yaml.NewDecoder(reader)
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	if file.Bridge != nil {
		file.Bridge.apply(config)
		config.Bridge = file.Bridge
	}
	return nil
}
