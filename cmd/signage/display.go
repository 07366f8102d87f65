package main

import (
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"fleet-signage/internal/config"
	"fleet-signage/internal/display"
)

var displayCmd = &cobra.Command{
	Use:   "display",
	Short: "Announce landmark events on this display",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadDisplay()
		if err != nil {
			return err
		}
		if err := setupLogger(cfg.LogLevel); err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		voice := display.NewVoiceQueue(display.LogSpeaker{Log: logger.Named("voice")}, logger)
		overlay := display.NewOverlayController(
			display.LogScreen{Log: logger.Named("screen")},
			&display.LoopPlayer{Log: logger.Named("video")},
			cfg.OverlayDuration, cfg.ApproachThrottle,
		)
		defer overlay.Close()

		client, err := display.NewClient(cfg.WSURL, cfg.BusID, logger, voice, overlay)
		if err != nil {
			return err
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			voice.Run(ctx)
		}()
		err = client.Run(ctx)
		wg.Wait()
		return err
	},
}
