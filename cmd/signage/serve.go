package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fleet-signage/internal/announce"
	"fleet-signage/internal/api"
	"fleet-signage/internal/config"
	"fleet-signage/internal/db"
	"fleet-signage/internal/ingest"
	"fleet-signage/internal/metrics"
	"fleet-signage/internal/publisher"
	"fleet-signage/internal/statestore"
	"fleet-signage/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the announcement server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if err := db.Ping(ctx, sqlDB); err != nil {
		return err
	}

	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.ApproachMeters, cfg.RepeatWindow)
		srv := mcol.Serve(cfg.MetricsAddr, logger)
		defer shutdown(srv)
	}

	var state announce.StateStore = announce.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rs := statestore.NewRedis(statestore.Dial(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB))
		defer rs.Close()
		state = rs
		logger.Info("announcement state in redis", zap.String("addr", cfg.RedisAddr))
	}

	hub := ws.NewHub(logger, wrapHubMetrics(mcol))
	defer hub.Close()
	sinks := publisher.Fanout{hub}

	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol), logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	svc := announce.NewService(db.NewStore(sqlDB), state, sinks, wrapServiceMetrics(mcol), logger, announce.Options{
		ApproachMeters: cfg.ApproachMeters,
		RepeatWindow:   cfg.RepeatWindow,
		AlwaysForce:    cfg.AlwaysForce,
	})

	if cfg.MQTTBroker != "" {
		sub := ingest.NewSubscriber(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTGPSTopic, svc, wrapMQTTMetrics(mcol), logger)
		sub.Start()
		defer sub.Stop()
	}

	err = api.New(svc, http.HandlerFunc(hub.ServeWS), logger).Serve(ctx, cfg.HTTPAddr)
	logger.Info("shutdown complete")
	return err
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
