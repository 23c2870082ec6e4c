package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vfrelay/pkg/channel"
	"vfrelay/pkg/channel/messenger"
	"vfrelay/pkg/channel/telegram"
	"vfrelay/pkg/config"
	"vfrelay/pkg/dialogue"
	"vfrelay/pkg/gateway"
	"vfrelay/pkg/logger"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook relay server",
	Long:  "Serves the Messenger webhook, status endpoints and any other enabled channels until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := logger.Component(appLogger, "cmd.serve")

		adapters, err := enabledAdapters(cfg, appLogger)
		if err != nil {
			log.Error("Channel configuration invalid", "error", err)
			return
		}

		runtime, err := dialogue.New(cfg, appLogger)
		if err != nil {
			log.Error("Failed to initialize dialogue runtime", "error", err)
			return
		}

		svc, err := gateway.NewService(cfg, runtime, adapters, appLogger)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("Relay started",
			"channels", enabledChannelNames(adapters),
			"runtime", cfg.Runtime.Provider,
			"session_mode", cfg.Runtime.Session.Mode,
			"port", cfg.Server.Port,
		)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Relay failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func enabledAdapters(cfg *config.Config, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 2)

	if cfg.Channels.Messenger.Enabled {
		drain := time.Duration(cfg.Server.DrainTimeoutSeconds) * time.Second
		adapter, err := messenger.NewAdapter(cfg.Channels.Messenger, drain, log)
		if err != nil {
			return nil, fmt.Errorf("configure messenger channel: %w", err)
		}
		adapters = append(adapters, adapter)
	}

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure telegram channel: %w", err)
		}
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
