package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verbose bool
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "signage",
	Short: "Landmark announcements for bus displays",
	Long: `signage decides when a bus is approaching or has reached a configured
landmark and pushes the announcement to the displays on board.

  serve    run the announcement API, websocket hub and MQTT ingest
  relay    forward the bus GPS receiver to MQTT
  display  connect a display to the hub and announce events`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(serveCmd, relayCmd, displayCmd)
}

// setupLogger builds the process logger once the command's config is known.
func setupLogger(level string) error {
	cfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %q", level)
	}
	if verbose {
		lvl = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.Level = lvl
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	logger = l
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
