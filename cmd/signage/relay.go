package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fleet-signage/internal/config"
	"fleet-signage/internal/relay"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Forward the on-bus GPS receiver to MQTT",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadRelay()
		if err != nil {
			return err
		}
		if err := setupLogger(cfg.LogLevel); err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		logger.Info("relay starting", zap.String("bus", cfg.BusID), zap.String("port", cfg.SerialPort))
		return relay.New(cfg, logger).Run(ctx)
	},
}
