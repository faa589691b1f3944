package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stacie-auth/stacie/internal/config"
	"github.com/stacie-auth/stacie/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the stacie ops server",
		Long: `serve starts the ops server, which exposes /healthz and /metrics for a
deployment's realm and guardrail posture and, when --hot-reload is set,
streams manifest reload events over /v1/policy/changes.

It does not participate in the credential-derivation or realm-sealing
calls themselves — those remain direct library calls from the serving
application, never a network round trip.`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(args)
		},
	}
	return cmd
}

func runServe(args []string) error {
	cfg, err := config.Parse(args, version)
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("stacie %s\n", version)
		return nil
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel()})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel()})
	}
	logger := slog.New(handler)

	srv, err := server.New(cfg, logger, version)
	if err != nil {
		return fmt.Errorf("initialising ops server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.HotReload {
		switch cfg.HotReloadMode {
		case "signal":
			sighup := make(chan os.Signal, 1)
			signal.Notify(sighup, syscall.SIGHUP)
			go func() {
				for range sighup {
					logger.Info("received SIGHUP, reloading manifest")
					if err := srv.Reload(); err != nil {
						logger.Error("manifest reload failed", "error", err)
					}
				}
			}()
		case "poll":
			go pollReload(ctx, srv, logger, cfg.PollInterval)
		case "file_watch":
			logger.Warn("hot-reload-mode=file_watch requested but no filesystem watcher is wired; falling back to poll", "poll_interval", cfg.PollInterval)
			go pollReload(ctx, srv, logger, cfg.PollInterval)
		}
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("ops server exited with error: %w", err)
	}
	return nil
}

func pollReload(ctx context.Context, srv *server.Server, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := srv.Reload(); err != nil {
				logger.Error("manifest reload failed", "error", err)
			}
		}
	}
}
