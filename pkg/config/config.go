// Package config loads harness.yaml and resolves the daemon's effective
// configuration: control-plane listener, stream retention, session
// supervision limits, HTTP bridge, and the agent launch templates the
// session planner consumes. Values merge in three layers: built-in defaults,
// then YAML, then environment overrides.
package config

import "time"

// Config is the resolved daemon configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	HTTP    HTTPConfig    `yaml:"http"`
	Stream  StreamConfig  `yaml:"stream"`
	Session SessionConfig `yaml:"session"`

	// Agents maps agent types to launch templates. The empty key, when
	// present, serves unknown agent types.
	Agents map[string]AgentConfig `yaml:"agents"`
}

// ServerConfig is the control-plane listener and auth settings.
type ServerConfig struct {
	// Port for the TCP listener. Ignored when UnixSocket is set.
	Port int `yaml:"port"`
	// UnixSocket, when set, replaces the TCP listener.
	UnixSocket string `yaml:"unix_socket"`
	// Token is the bearer string every connection must present.
	Token string `yaml:"token"`
	// RuntimeDir holds the gateway record. Defaults to ~/.harness.
	RuntimeDir string `yaml:"runtime_dir"`
	// ShutdownGrace bounds how long draining waits for PTY children.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// HTTPConfig is the optional HTTP/WebSocket bridge.
type HTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// StreamConfig tunes the subscription multiplexer.
type StreamConfig struct {
	// Retention is the number of committed events kept for afterCursor replay.
	Retention int `yaml:"retention"`
	// QueueDepth bounds each subscription's delivery queue.
	QueueDepth int `yaml:"queue_depth"`
}

// SessionConfig tunes the PTY supervisor.
type SessionConfig struct {
	// RingBytes caps each session's retained output.
	RingBytes int `yaml:"ring_bytes"`
	// ExitRetention keeps an exited session attachable before its record is
	// dropped.
	ExitRetention time.Duration `yaml:"exit_retention"`
	DefaultCols   int           `yaml:"default_cols"`
	DefaultRows   int           `yaml:"default_rows"`
}

// AgentConfig is one agent launch template.
type AgentConfig struct {
	Command    string            `yaml:"command"`
	Args       []string          `yaml:"args"`
	Env        map[string]string `yaml:"env"`
	Cols       int               `yaml:"cols"`
	Rows       int               `yaml:"rows"`
	TerminalFg string            `yaml:"terminal_fg"`
	TerminalBg string            `yaml:"terminal_bg"`
}

// DefaultConfig returns the built-in defaults applied beneath harness.yaml.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          7421,
			RuntimeDir:    "",
			ShutdownGrace: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Port:    7422,
		},
		Stream: StreamConfig{
			Retention:  1024,
			QueueDepth: 256,
		},
		Session: SessionConfig{
			RingBytes:     1 << 20,
			ExitRetention: 5 * time.Minute,
			DefaultCols:   80,
			DefaultRows:   24,
		},
		Agents: map[string]AgentConfig{
			"shell": {Command: "/bin/sh"},
		},
	}
}
