package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/axiomchronicles/drevoid-server/internal/app"
	"github.com/axiomchronicles/drevoid-server/internal/config"
	"github.com/axiomchronicles/drevoid-server/internal/log"
)

func main() {
	var (
		configPath string
		listenAddr string
		httpAddr   string
		logLevel   string
	)

	root := &cobra.Command{
		Use:   "drevoid-server",
		Short: "LAN chat server with room moderation and CTF flag capture",
		RunE: func(cmd *cobra.Command, args []string) error {
			bootLogger := log.New(logLevel)
			cfg, path, err := config.Load(bootLogger, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			// Flags override the config file.
			if cmd.Flags().Changed("addr") {
				cfg.ListenAddr = listenAddr
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			logger := log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Str("addr", cfg.ListenAddr).Str("http_addr", cfg.HTTPAddr).Msg("starting drevoid server")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	defaults := config.Default()
	root.Flags().StringVar(&configPath, "config", "", "path to config file")
	root.Flags().StringVar(&listenAddr, "addr", defaults.ListenAddr, "TCP chat listen address")
	root.Flags().StringVar(&httpAddr, "http-addr", defaults.HTTPAddr, "HTTP observer/WebSocket listen address")
	root.Flags().StringVar(&logLevel, "log-level", defaults.LogLevel, "log level (debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
