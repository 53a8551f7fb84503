package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/robfig/cron/v3"
)

// BridgeConfig is the bridge block of the config file.
//
//	bridge:
//	  modes:
//	    - name: research
//	      chat_path: /api/research/stream
//	  backend:
//	    connect_attempts: 3
//	    retry_delay: 1s
//	  keepalive:
//	    idle_threshold: 15s
//	    check_interval: 5s
//	  sweep_schedule: "@every 1m"
type BridgeConfig struct {
	// Modes route requests with a matching mode field to a different backend path.
	Modes []ModeConfig `yaml:"modes"`

	Backend   BackendTuning   `yaml:"backend"`
	Keepalive KeepaliveTuning `yaml:"keepalive"`

	SweepSchedule string `yaml:"sweep_schedule"`
}

// ModeConfig maps a request mode to a backend path.
type ModeConfig struct {
	Name     string `yaml:"name"`
	ChatPath string `yaml:"chat_path"`
}

// BackendTuning overrides the connection retry settings. Zero values keep the
// environment's settings.
type BackendTuning struct {
	ConnectAttempts int           `yaml:"connect_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// KeepaliveTuning overrides the heartbeat settings. Zero values keep the
// environment's settings.
type KeepaliveTuning struct {
	IdleThreshold time.Duration `yaml:"idle_threshold"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

// Validate performs validation of a BridgeConfig value:
// - Checks that modes have a name and an absolute path
// - Checks for duplicate modes
// - Checks the sweep schedule parses
func (cfg *BridgeConfig) Validate() error {
	modes := make(map[string]struct{}, len(cfg.Modes))
	for _, mode := range cfg.Modes {
		if mode.Name == "" {
			return errors.New("mode name must be specified")
		}
		if !strings.HasPrefix(mode.ChatPath, "/") {
			return fmt.Errorf("chat_path of mode %v must start with '/'", mode.Name)
		}
		if _, exists := modes[mode.Name]; exists {
			return fmt.Errorf("duplicate configuration entry for mode %v", mode.Name)
		}
		modes[mode.Name] = struct{}{}
	}

	if cfg.Backend.ConnectAttempts < 0 {
		return fmt.Errorf("connect_attempts must not be negative, got %d", cfg.Backend.ConnectAttempts)
	}

	if cfg.SweepSchedule != "" {
		if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
			return fmt.Errorf("bad sweep_schedule %q: %w", cfg.SweepSchedule, err)
		}
	}

	return nil
}

func (cfg *BridgeConfig) apply(c *Config) {
	if cfg.Backend.ConnectAttempts > 0 {
		c.BackendConnectAttempts = cfg.Backend.ConnectAttempts
	}
	if cfg.Backend.RetryDelay > 0 {
		c.BackendRetryDelay = cfg.Backend.RetryDelay
	}
	if cfg.Backend.ConnectTimeout > 0 {
		c.BackendConnectTimeout = cfg.Backend.ConnectTimeout
	}
	if cfg.Keepalive.IdleThreshold > 0 {
		c.KeepaliveIdleThreshold = cfg.Keepalive.IdleThreshold
	}
	if cfg.Keepalive.CheckInterval > 0 {
		c.KeepaliveCheckInterval = cfg.Keepalive.CheckInterval
	}
	if cfg.SweepSchedule != "" {
		c.StreamSweepSchedule = cfg.SweepSchedule
	}
}

// unmarshalBridgeConfig implements a custom YAML unmarshaler for BridgeConfig.
// Validates the value after unmarshaling.
func unmarshalBridgeConfig(value *BridgeConfig, data []byte) error {
	type Aux BridgeConfig
	var aux Aux

	if err := yaml.Unmarshal(data, &aux); err != nil {
		return err
	}

	*value = BridgeConfig(aux)

	if err := value.Validate(); err != nil {
		return err
	}

	return nil
}

func init() {
	// Register unmarshalers of custom types with the YAML library
	yaml.RegisterCustomUnmarshaler[BridgeConfig](unmarshalBridgeConfig)
}
