// Package loopback provides a CompletionProvider that streams the prompt
// back word by word. It needs no credentials and is used for local runs
// and tests of the relay pipeline.
package loopback

import (
	"context"
	"strings"
	"time"

	"go-realtime-relay/internal/infrastructure/provider"
)

var _ provider.CompletionProvider = (*Provider)(nil)

type Provider struct {
	delay  time.Duration
	prefix string
}

type Option func(*Provider)

// WithDelay pauses between fragments to mimic a remote model.
func WithDelay(d time.Duration) Option {
	return func(p *Provider) { p.delay = d }
}

// WithPrefix emits prefix as the first fragment.
func WithPrefix(prefix string) Option {
	return func(p *Provider) { p.prefix = prefix }
}

// New creates a provider that echoes the prompt back word by word.
func New(opts ...Option) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Complete(ctx context.Context, prompt string) (provider.FragmentStream, error) {
	fragments := Split(prompt)
	if p.prefix != "" {
		fragments = append([]string{p.prefix}, fragments...)
	}

	return provider.NewStream(ctx, func(ctx context.Context, emit func(string) error) error {
		for i, f := range fragments {
			if i > 0 && p.delay > 0 {
				select {
				case <-time.After(p.delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if err := emit(f); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

// Split cuts text into word fragments; every fragment after the first
// keeps its leading space so the concatenation equals the trimmed input.
func Split(text string) []string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		out = append(out, w)
	}
	return out
}
