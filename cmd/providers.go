package main

import (
	"fmt"

	"go-realtime-relay/internal/infrastructure/config"
	"go-realtime-relay/internal/infrastructure/provider"
	"go-realtime-relay/internal/infrastructure/provider/groq"
	"go-realtime-relay/internal/infrastructure/provider/loopback"
)

func newCompletionProvider(cfg config.ProviderConfig) (provider.CompletionProvider, error) {
	switch cfg.Kind {
	case config.ProviderGroq:
		client, err := groq.New(groq.Config{
			APIKey:              cfg.APIKey,
			BaseURL:             cfg.BaseURL,
			Model:               cfg.Model,
			Temperature:         cfg.Temperature,
			TopP:                cfg.TopP,
			MaxCompletionTokens: cfg.MaxCompletionTokens,
			ReasoningEffort:     cfg.ReasoningEffort,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderLoopback:
		return loopback.New(loopback.WithDelay(cfg.LoopbackDelay)), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}
