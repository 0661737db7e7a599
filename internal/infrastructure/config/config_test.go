package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"go-realtime-relay/internal/infrastructure/logger"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "LOG_LEVEL", "LOG_FORMAT", "LLM_PROVIDER", "GROQ_API_KEY", "GROQ_BASE_URL", "GROQ_MODEL"} {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsRequireAPIKey(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "gsk-env")
	t.Setenv("PORT", "3000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GROQ_MODEL", "llama-3.1-8b-instant")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":3000", cfg.Server.Addr)
	require.Equal(t, logger.LevelDebug, cfg.Logger.Level)
	require.Equal(t, "gsk-env", cfg.Provider.APIKey)
	require.Equal(t, "llama-3.1-8b-instant", cfg.Provider.Model)
	require.Equal(t, 8192, cfg.Provider.MaxCompletionTokens)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  shutdown_timeout: 2s
logger:
  level: warn
  format: json
websocket:
  ping_interval: 20s
  pong_timeout: 30s
sse:
  keepalive_interval: 15s
provider:
  kind: loopback
  loopback_delay: 5ms
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, 2*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, logger.LevelWarn, cfg.Logger.Level)
	require.Equal(t, "json", cfg.Logger.Format)
	require.Equal(t, 20*time.Second, cfg.WebSocket.PingInterval)
	require.Equal(t, 10*time.Second, cfg.WebSocket.WriteTimeout, "unset keys keep their defaults")
	require.Equal(t, 15*time.Second, cfg.SSE.KeepAliveInterval)
	require.Equal(t, ProviderLoopback, cfg.Provider.Kind)
	require.Equal(t, 5*time.Millisecond, cfg.Provider.LoopbackDelay)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	t.Setenv("LLM_PROVIDER", "carrier-pigeon")
	_, err = Load("")
	require.ErrorContains(t, err, "unknown provider kind")

	t.Setenv("LLM_PROVIDER", "loopback")
	t.Setenv("LOG_LEVEL", "shouting")
	_, err = Load("")
	require.ErrorContains(t, err, "LOG_LEVEL")
}

func TestValidate_PingMustBeShorterThanPong(t *testing.T) {
	cfg := Default()
	cfg.Provider.Kind = ProviderLoopback
	cfg.WebSocket.PingInterval = time.Minute
	cfg.WebSocket.PongTimeout = time.Second

	require.ErrorContains(t, cfg.Validate(), "ping_interval")
}

func TestLoad_OverridesRunBeforeValidation(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("", func(c *Config) error {
		c.Provider.Kind = ProviderLoopback
		c.Server.Addr = ":9999"
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Server.Addr)

	_, err = Load("", func(c *Config) error {
		return errors.New("bad flag")
	})
	require.EqualError(t, err, "bad flag")
}

func TestLoad_ExampleFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "gsk-test")

	cfg, err := Load(filepath.Join("..", "..", "..", "config.example.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default().WebSocket, cfg.WebSocket)
	require.Equal(t, Default().Hub, cfg.Hub)
	require.Equal(t, 50*time.Millisecond, cfg.Provider.LoopbackDelay)
}
