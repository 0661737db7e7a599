package main

import (
	"context"

	"golang.org/x/sync/errgroup"

	"go-realtime-relay/internal/application/relay"
	"go-realtime-relay/internal/infrastructure/config"
	"go-realtime-relay/internal/infrastructure/hub"
	"go-realtime-relay/internal/infrastructure/logger"
	"go-realtime-relay/internal/infrastructure/server"
)

type Application struct {
	logger   logger.Logger
	httpSrv  server.Server
	hub      *hub.Hub
	sessions *relay.StreamingSessionManager
	cfg      config.ServerConfig
}

func newApplication(
	logger logger.Logger,
	httpSrv server.Server,
	hubInstance *hub.Hub,
	sessions *relay.StreamingSessionManager,
	cfg config.ServerConfig,
) *Application {
	return &Application{
		logger:   logger.WithField("app", "relay"),
		httpSrv:  httpSrv,
		hub:      hubInstance,
		sessions: sessions,
		cfg:      cfg,
	}
}

// Run serves until ctx is cancelled, then shuts down streams, connections
// and the HTTP server in that order.
func (app *Application) Run(ctx context.Context) error {
	eg := errgroup.Group{}

	eg.Go(func() error {
		return app.httpSrv.Start(ctx)
	})

	eg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownTimeout)
		defer cancel()

		if err := app.sessions.Shutdown(shutdownCtx); err != nil {
			app.logger.Errorf("failed to drain streams: %v", err)
		}
		if err := app.hub.Stop(shutdownCtx); err != nil {
			app.logger.Errorf("failed to stop hub: %v", err)
		}

		return app.httpSrv.Stop(shutdownCtx)
	})

	return eg.Wait()
}
