package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Environment overrides applied after YAML.
const (
	EnvPort       = "HARNESS_CONTROL_PLANE_PORT"
	EnvToken      = "HARNESS_CONTROL_PLANE_TOKEN"
	EnvRuntimeDir = "HARNESS_RUNTIME"
)

// Initialize loads, merges, and validates configuration. A missing
// harness.yaml is fine: defaults plus environment overrides apply.
//
// Layering, lowest to highest precedence:
//  1. Built-in defaults
//  2. harness.yaml from configDir (env-expanded with {{.VAR}} templates)
//  3. HARNESS_* environment variables
func Initialize(configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)

	cfg := DefaultConfig()

	path := filepath.Join(configDir, "harness.yaml")
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg Config
		if err := yaml.Unmarshal(ExpandEnv(data), &fileCfg); err != nil {
			return nil, NewLoadError("harness.yaml", fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}
		if err := mergo.Merge(cfg, &fileCfg, mergo.WithOverride); err != nil {
			return nil, NewLoadError("harness.yaml", err)
		}
		log.Info("Loaded configuration file", "path", path)
	case os.IsNotExist(err):
		log.Info("No configuration file, using defaults", "path", path)
	default:
		return nil, NewLoadError("harness.yaml", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Server.RuntimeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve runtime directory: %w", err)
		}
		cfg.Server.RuntimeDir = filepath.Join(home, ".harness")
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	log.Info("Configuration initialized",
		"port", cfg.Server.Port,
		"runtime_dir", cfg.Server.RuntimeDir,
		"agents", len(cfg.Agents))
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port <= 65535 {
			cfg.Server.Port = port
		} else {
			slog.Warn("Ignoring invalid port override", "var", EnvPort, "value", v)
		}
	}
	if v := os.Getenv(EnvToken); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv(EnvRuntimeDir); v != "" {
		cfg.Server.RuntimeDir = v
	}
}

func validate(cfg *Config) error {
	if cfg.Server.UnixSocket == "" && (cfg.Server.Port < 1 || cfg.Server.Port > 65535) {
		return NewValidationError("server", "port", fmt.Errorf("%w: %d", ErrInvalidValue, cfg.Server.Port))
	}
	if cfg.Stream.Retention < 1 {
		return NewValidationError("stream", "retention", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if cfg.Stream.QueueDepth < 1 {
		return NewValidationError("stream", "queue_depth", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if cfg.Session.RingBytes < 1 {
		return NewValidationError("session", "ring_bytes", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	for name, agent := range cfg.Agents {
		if agent.Command == "" {
			return NewValidationError("agent", name, fmt.Errorf("%w: command", ErrMissingRequiredField))
		}
	}
	return nil
}
