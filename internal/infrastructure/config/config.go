package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go-realtime-relay/internal/infrastructure/hub"
	"go-realtime-relay/internal/infrastructure/logger"
	"go-realtime-relay/internal/infrastructure/provider/groq"
)

const (
	ProviderGroq     = "groq"
	ProviderLoopback = "loopback"
)

var ErrMissingAPIKey = errors.New("GROQ_API_KEY is missing; set it in .env or the environment")

type Config struct {
	Server    ServerConfig        `yaml:"server"`
	Logger    logger.Config       `yaml:"logger"`
	Hub       HubConfig           `yaml:"hub"`
	WebSocket hub.WebSocketConfig `yaml:"websocket"`
	SSE       SSEConfig           `yaml:"sse"`
	Provider  ProviderConfig      `yaml:"provider"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	// zero keeps long-lived SSE responses open
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type HubConfig struct {
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	SendTimeout     time.Duration `yaml:"send_timeout"`
}

type SSEConfig struct {
	KeepAliveInterval time.Duration `yaml:"keepalive_interval"`
}

type ProviderConfig struct {
	Kind string `yaml:"kind"` // groq, loopback

	APIKey              string  `yaml:"api_key"`
	BaseURL             string  `yaml:"base_url"`
	Model               string  `yaml:"model"`
	Temperature         float32 `yaml:"temperature"`
	TopP                float32 `yaml:"top_p"`
	MaxCompletionTokens int     `yaml:"max_completion_tokens"`
	ReasoningEffort     string  `yaml:"reasoning_effort"`

	LoopbackDelay time.Duration `yaml:"loopback_delay"`
}

func Default() *Config {
	g := groq.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Logger: *logger.NewDefaultConfig(),
		Hub: HubConfig{
			CleanupInterval: 30 * time.Second,
			SendTimeout:     10 * time.Second,
		},
		WebSocket: hub.DefaultWebSocketConfig(),
		SSE: SSEConfig{
			KeepAliveInterval: 30 * time.Second,
		},
		Provider: ProviderConfig{
			Kind:                ProviderGroq,
			BaseURL:             g.BaseURL,
			Model:               g.Model,
			Temperature:         g.Temperature,
			TopP:                g.TopP,
			MaxCompletionTokens: g.MaxCompletionTokens,
			ReasoningEffort:     g.ReasoningEffort,
			LoopbackDelay:       50 * time.Millisecond,
		},
	}
}

// Override adjusts a loaded configuration before validation, e.g. from
// command-line flags.
type Override func(*Config) error

// Load builds the configuration from defaults, the optional YAML file at
// path, environment variables and overrides, in that order.
func Load(path string, overrides ...Override) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	for _, override := range overrides {
		if err := override(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		level, err := logger.ParseLevel(v)
		if err != nil {
			return errors.Wrap(err, "LOG_LEVEL")
		}
		c.Logger.Level = level
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		c.Logger.Format = v
	}
	if v, ok := lookup("LLM_PROVIDER"); ok && v != "" {
		c.Provider.Kind = strings.ToLower(v)
	}
	if v, ok := lookup("GROQ_API_KEY"); ok && v != "" {
		c.Provider.APIKey = v
	}
	if v, ok := lookup("GROQ_BASE_URL"); ok && v != "" {
		c.Provider.BaseURL = v
	}
	if v, ok := lookup("GROQ_MODEL"); ok && v != "" {
		c.Provider.Model = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.PongTimeout {
		return errors.Errorf(
			"websocket.ping_interval (%s) must be shorter than websocket.pong_timeout (%s)",
			c.WebSocket.PingInterval, c.WebSocket.PongTimeout,
		)
	}
	switch c.Provider.Kind {
	case ProviderGroq:
		if strings.TrimSpace(c.Provider.APIKey) == "" {
			return ErrMissingAPIKey
		}
	case ProviderLoopback:
	default:
		return errors.Errorf("unknown provider kind %q", c.Provider.Kind)
	}
	return nil
}
