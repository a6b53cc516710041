package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/visagekit/blendstream/pkg/cli/config"
	controller "github.com/visagekit/blendstream/pkg/controller/http"
	"github.com/visagekit/blendstream/pkg/domain/interfaces"
	"github.com/visagekit/blendstream/pkg/domain/types"
	"github.com/visagekit/blendstream/pkg/infra/engine"
	"github.com/visagekit/blendstream/pkg/infra/notify"
	"github.com/visagekit/blendstream/pkg/usecase"
)

func cmdServe() *cli.Command {
	var (
		serverCfg config.Server
		engineCfg config.Engine
		streamCfg config.Stream
		sentryCfg config.Sentry
		slackCfg  config.Slack
	)

	flags := serverCfg.Flags()
	flags = append(flags, engineCfg.Flags()...)
	flags = append(flags, streamCfg.Flags()...)
	flags = append(flags, sentryCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			logger.Info("Starting blendstream server",
				slog.String("addr", serverCfg.Addr),
				slog.Any("engine", engineCfg),
				slog.Any("stream", streamCfg),
				slog.Any("sentry", sentryCfg),
			)

			if sentryCfg.Enabled() {
				if err := sentry.Init(sentry.ClientOptions{
					Dsn:         sentryCfg.DSN,
					Environment: sentryCfg.Environment,
					Release:     types.ServiceName + "@" + types.Version,
				}); err != nil {
					return goerr.Wrap(err, "failed to initialize Sentry")
				}
				defer sentry.Flush(2 * time.Second)
			}

			// Claim engine ports and build the client pool
			allocator := engine.NewAllocator(engineCfg.LockDir, engineCfg.BasePort, engineCfg.PoolSize())
			lease, err := allocator.Claim(ctx, engineCfg.Clients)
			if err != nil {
				return goerr.Wrap(err, "failed to claim engine ports")
			}
			defer lease.Release(ctx)

			clients := make([]interfaces.FaceEngine, 0, len(lease.Ports()))
			for _, port := range lease.Ports() {
				client, err := engine.NewClient(port, engine.WithTimeout(engineCfg.Timeout))
				if err != nil {
					return goerr.Wrap(err, "failed to create engine client")
				}
				clients = append(clients, client)
			}

			// Create use case
			streamUC, err := usecase.NewStream(clients,
				usecase.WithChunkDuration(streamCfg.ChunkDuration),
				usecase.WithFPSRange(streamCfg.DefaultFPS, streamCfg.MinFPS, streamCfg.MaxFPS),
			)
			if err != nil {
				return goerr.Wrap(err, "failed to create stream use case")
			}

			// Create HTTP server with options
			server, err := controller.NewServer(
				ctx,
				streamUC,
				controller.WithAddr(serverCfg.Addr),
				controller.WithTmpDir(serverCfg.TmpDir),
				controller.WithRateLimit(serverCfg.RateLimit, serverCfg.RateBurst),
				controller.WithNotifier(notify.NewSlack(slackCfg.WebhookURL)),
			)
			if err != nil {
				return goerr.Wrap(err, "failed to create HTTP server")
			}

			// Start server in goroutine
			go func() {
				logger.Info("HTTP server starting", slog.String("addr", serverCfg.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP server error", slog.Any("error", err))
				}
			}()

			// Wait for interrupt signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down...")
			case sig := <-sigChan:
				logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
			}

			// Graceful shutdown
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}

			logger.Info("Server shutdown complete")
			return nil
		},
	}
}
