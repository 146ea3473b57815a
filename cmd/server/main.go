package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpmeet/internal/config"
	"github.com/BioHazard786/Warpmeet/internal/logging"
	"github.com/BioHazard786/Warpmeet/internal/room"
	"github.com/BioHazard786/Warpmeet/internal/server"
	"github.com/BioHazard786/Warpmeet/internal/signaling"
	"github.com/BioHazard786/Warpmeet/internal/version"
)

var opts config.ServerOptions

var rootCmd = &cobra.Command{
	Use:     "warpmeet-server",
	Short:   "Signaling server for WarpMeet group calls",
	Version: version.Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&opts.Addr, "addr", "a", "", "listen address (env: ADDR)")
	rootCmd.Flags().StringVar(&opts.AllowedOrigins, "origins", "", "comma separated websocket origins (env: ALLOWED_ORIGINS)")
}

func main() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	logger := logging.Init(slog.LevelInfo)

	cfg, err := config.LoadServer(opts)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rooms := room.NewDirectory(logger)
	hub := signaling.NewHub(rooms, logger)

	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: server.NewHandler(hub, server.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			SendQueue:      cfg.SendQueue,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("signaling server listening", "addr", cfg.Addr, "version", version.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
			"hub": func(ctx context.Context) error {
				stopHub()
				select {
				case <-hub.Done():
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	)

	if code := <-wait; code != 0 {
		return fmt.Errorf("shutdown finished with exit code %d", code)
	}
	logger.Info("shutdown complete")
	return nil
}
