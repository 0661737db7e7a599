package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"go-realtime-relay/internal/application/relay"
	"go-realtime-relay/internal/infrastructure/config"
	"go-realtime-relay/internal/infrastructure/hub"
	"go-realtime-relay/internal/infrastructure/logger"
	"go-realtime-relay/internal/infrastructure/server"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	addr       string
	logLevel   string
	provider   string
}

func newRootCommand() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "relay",
		Short:         "Real-time chat relay with streamed LLM answers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(WithSignal(cmd.Context()), f)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&f.addr, "addr", "", "listen address, overrides server.addr and PORT")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	cmd.Flags().StringVar(&f.provider, "provider", "", "completion provider: groq or loopback")

	return cmd
}

func (f flags) override(cfg *config.Config) error {
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
	if f.logLevel != "" {
		level, err := logger.ParseLevel(f.logLevel)
		if err != nil {
			return err
		}
		cfg.Logger.Level = level
	}
	if f.provider != "" {
		cfg.Provider.Kind = f.provider
	}
	return nil
}

func serve(ctx context.Context, f flags) error {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(f.configPath, f.override)
	if err != nil {
		return err
	}

	log := logger.NewLogrusLogger(&cfg.Logger)

	completions, err := newCompletionProvider(cfg.Provider)
	if err != nil {
		return err
	}
	log.Infof("Using %s completion provider", cfg.Provider.Kind)

	hubInstance := hub.New(log,
		hub.WithCleanupInterval(cfg.Hub.CleanupInterval),
		hub.WithSendTimeout(cfg.Hub.SendTimeout),
	)
	if err := hubInstance.Start(ctx); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}

	broadcast := relay.NewBroadcastRelay(hubInstance, log)
	sessions := relay.NewStreamingSessionManager(hubInstance, completions, log)
	gateway := relay.NewGateway(broadcast, sessions, log)

	router := InitRouter(cfg, hubInstance, broadcast, gateway, log)
	httpSrv := server.NewHTTPServer(router, cfg.Server)

	app := newApplication(log, httpSrv, hubInstance, sessions, cfg.Server)
	log.Infof("Listening on %s", cfg.Server.Addr)
	return app.Run(ctx)
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
