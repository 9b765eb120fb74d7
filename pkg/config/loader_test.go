package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks the override variables so a test sees only its own values.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvPort, "")
	t.Setenv(EnvToken, "")
	t.Setenv(EnvRuntimeDir, "")
}

func writeYAML(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "harness.yaml"), []byte(content), 0o600))
}

func TestInitializeDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Initialize(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 7421, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownGrace)
	assert.False(t, cfg.HTTP.Enabled)
	assert.Equal(t, 1024, cfg.Stream.Retention)
	assert.Equal(t, 256, cfg.Stream.QueueDepth)
	assert.Equal(t, 1<<20, cfg.Session.RingBytes)
	assert.Equal(t, 80, cfg.Session.DefaultCols)
	assert.Equal(t, "/bin/sh", cfg.Agents["shell"].Command)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".harness"), cfg.Server.RuntimeDir)
}

func TestInitializeMergesYAMLOverDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeYAML(t, dir, `
server:
  port: 9000
  token: yaml-token
stream:
  retention: 64
agents:
  claude:
    command: claude
    args: ["--resume"]
`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "yaml-token", cfg.Server.Token)
	assert.Equal(t, 64, cfg.Stream.Retention)

	// Untouched sections keep their defaults, and the default agent survives
	// alongside the configured one.
	assert.Equal(t, 256, cfg.Stream.QueueDepth)
	assert.Equal(t, "claude", cfg.Agents["claude"].Command)
	assert.Equal(t, []string{"--resume"}, cfg.Agents["claude"].Args)
	assert.Equal(t, "/bin/sh", cfg.Agents["shell"].Command)
}

func TestInitializeEnvOverridesWinOverYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeYAML(t, dir, `
server:
  port: 9000
  token: yaml-token
`)
	t.Setenv(EnvPort, "9100")
	t.Setenv(EnvToken, "env-token")
	t.Setenv(EnvRuntimeDir, "/var/run/harness")

	cfg, err := Initialize(dir)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "env-token", cfg.Server.Token)
	assert.Equal(t, "/var/run/harness", cfg.Server.RuntimeDir)
}

func TestInitializeIgnoresInvalidPortOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv(EnvPort, "not-a-port")
	cfg, err := Initialize(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 7421, cfg.Server.Port)

	t.Setenv(EnvPort, "70000")
	cfg, err = Initialize(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 7421, cfg.Server.Port)
}

func TestInitializeExpandsTemplates(t *testing.T) {
	clearEnv(t)
	t.Setenv("HARNESS_TEST_SECRET", "s3cret")
	dir := t.TempDir()
	writeYAML(t, dir, `
server:
  token: "{{.HARNESS_TEST_SECRET}}"
`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Server.Token)
}

func TestInitializeInvalidYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeYAML(t, dir, "server: [broken")

	_, err := Initialize(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "harness.yaml", le.File)
}

func TestInitializeValidation(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name     string
		yaml     string
		section  string
		sentinel error
	}{
		{
			name:     "retention below one",
			yaml:     "stream:\n  retention: -1\n",
			section:  "stream",
			sentinel: ErrInvalidValue,
		},
		{
			name:     "queue depth below one",
			yaml:     "stream:\n  queue_depth: -1\n",
			section:  "stream",
			sentinel: ErrInvalidValue,
		},
		{
			name:     "ring bytes below one",
			yaml:     "session:\n  ring_bytes: -1\n",
			section:  "session",
			sentinel: ErrInvalidValue,
		},
		{
			name:     "agent without command",
			yaml:     "agents:\n  broken:\n    args: [\"-c\"]\n",
			section:  "agent",
			sentinel: ErrMissingRequiredField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeYAML(t, dir, tt.yaml)

			_, err := Initialize(dir)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.section, ve.Section)
		})
	}
}

func TestInitializeUnixSocketSkipsPortCheck(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeYAML(t, dir, `
server:
  unix_socket: /tmp/harness.sock
  port: -1
`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/harness.sock", cfg.Server.UnixSocket)
}

func TestInitializeTokenNotRequired(t *testing.T) {
	clearEnv(t)

	cfg, err := Initialize(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, cfg.Server.Token)
}
