// Package groq streams chat completions from Groq's OpenAI-compatible
// endpoint. Any server speaking the same chat-completions dialect can be
// targeted through Config.BaseURL.
package groq

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"go-realtime-relay/internal/infrastructure/provider"
)

const (
	DefaultBaseURL             = "https://api.groq.com/openai/v1"
	DefaultModel               = "openai/gpt-oss-120b"
	DefaultMaxCompletionTokens = 8192
	DefaultReasoningEffort     = "medium"

	// reasonStreamFailed stands in for upstream errors that carry no message.
	reasonStreamFailed = "upstream stream error"
)

var _ provider.CompletionProvider = (*Client)(nil)

// Config holds the model parameters sent with every completion request.
type Config struct {
	APIKey              string
	BaseURL             string
	Model               string
	Temperature         float32
	TopP                float32
	MaxCompletionTokens int
	ReasoningEffort     string
	HTTPClient          *http.Client
}

// DefaultConfig returns Groq's endpoint and the default model parameters.
func DefaultConfig() Config {
	return Config{
		BaseURL:             DefaultBaseURL,
		Model:               DefaultModel,
		Temperature:         1,
		TopP:                1,
		MaxCompletionTokens: DefaultMaxCompletionTokens,
		ReasoningEffort:     DefaultReasoningEffort,
	}
}

type Client struct {
	cfg    Config
	client *openai.Client
}

// New creates a client; it fails when no API key is configured.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("groq: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	oaCfg := openai.DefaultConfig(cfg.APIKey)
	oaCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		oaCfg.HTTPClient = cfg.HTTPClient
	} else {
		// no overall timeout: a completion streams for as long as the model talks
		oaCfg.HTTPClient = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 60 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
		}
	}

	return &Client{cfg: cfg, client: openai.NewClientWithConfig(oaCfg)}, nil
}

// Complete starts a streaming completion. Failures to reach the upstream or
// non-2xx responses are returned directly; failures after the first byte
// surface through the stream.
func (c *Client) Complete(ctx context.Context, prompt string) (provider.FragmentStream, error) {
	reqCtx, cancel := context.WithCancel(ctx)

	stream, err := c.client.CreateChatCompletionStream(reqCtx, c.buildRequest(prompt))
	if err != nil {
		cancel()
		return nil, upstreamError(err)
	}

	return provider.NewStream(reqCtx, func(ctx context.Context, emit func(string) error) error {
		defer cancel()
		defer stream.Close()
		// closing the stream must also unblock a pending body read
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return upstreamError(err)
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			if err := emit(resp.Choices[0].Delta.Content); err != nil {
				return err
			}
		}
	}), nil
}

func (c *Client) buildRequest(prompt string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:         c.cfg.Temperature,
		TopP:                c.cfg.TopP,
		MaxCompletionTokens: c.cfg.MaxCompletionTokens,
		ReasoningEffort:     c.cfg.ReasoningEffort,
		Stream:              true,
	}
}

// upstreamError turns a go-openai failure into the reason shown to clients.
func upstreamError(err error) error {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return fmt.Errorf("upstream returned status %d", reqErr.HTTPStatusCode)
		}
		return errors.Wrap(err, "groq request failed")
	}

	msg := apiErr.Message
	if msg == "" {
		msg = reasonStreamFailed
	}
	if apiErr.HTTPStatusCode >= 400 {
		return fmt.Errorf("upstream returned status %d: %s", apiErr.HTTPStatusCode, msg)
	}
	return errors.New(msg)
}
