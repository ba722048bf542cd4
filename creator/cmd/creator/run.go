package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/qtcstream/qtcstream/creator/internal/admin"
	"github.com/qtcstream/qtcstream/creator/internal/config"
	"github.com/qtcstream/qtcstream/creator/internal/ingest"
	"github.com/qtcstream/qtcstream/creator/internal/mqtt"
	"github.com/qtcstream/qtcstream/creator/internal/pipeline"
	"github.com/qtcstream/qtcstream/creator/internal/shipper"
	"github.com/qtcstream/qtcstream/creator/internal/transform"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the online pipeline",
	Long: `Subscribes to the observer and entity topics, runs the tick loop and
publishes result batches to the result topic and, if configured, the collector.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("config")
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return runCreator(ctx, path)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runCreator(ctx context.Context, path string) error {
	slog.Info("qtc-creator starting", "config", path)

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	setLevel(cfg.LogLevel)
	slog.Info("config loaded",
		"target_frame", cfg.TargetFrame,
		"processing_rate", cfg.ProcessingRate,
		"decay_time", cfg.DecayTime,
		"qtc_type", cfg.Params.QTCType,
		"frames", len(cfg.Frames),
		"queue_limit", cfg.QueueLimit)

	inbox := ingest.NewInbox(cfg.QueueLimit)
	tree := transform.NewTree()
	cfg.ApplyFrames(tree)
	params := config.NewParamStore(cfg.Params)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := pipeline.NewMetrics(reg)

	var sinks []pipeline.Sink
	if cfg.MQTT.Broker != "" {
		sub := mqtt.NewSubscriber(inbox, mqtt.SubscriberConfig{
			EntityTopic:   cfg.MQTT.EntityTopic,
			ObserverTopic: cfg.MQTT.ObserverTopic,
			QoS:           cfg.MQTT.QoS,
		})
		client, err := mqtt.NewClient(mqtt.ClientConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password(),
		}, sub.OnConnect)
		if err != nil {
			return err
		}
		defer client.Close()
		if cfg.MQTT.ResultTopic != "" {
			sinks = append(sinks, mqtt.NewPublisher(client.Native(), cfg.MQTT.ResultTopic, cfg.MQTT.QoS, cfg.MQTT.PublishTimeout))
		}
	} else {
		slog.Warn("mqtt.broker not set, no observations will arrive")
	}

	if cfg.Shipper.Endpoint != "" {
		ship := shipper.New(cfg.Shipper)
		go ship.Run(ctx)
		sinks = append(sinks, ship)
	}

	p := pipeline.New(pipeline.SettingsFromConfig(cfg), pipeline.Deps{
		Source:    inbox,
		Params:    params,
		Transform: tree,
		Sinks:     sinks,
		Metrics:   metrics,
	})

	// Params, frames and log level reload live; everything else needs a restart.
	go func() {
		live := config.Live{Params: params, Tree: tree, Level: logLevel}
		if err := config.Watch(ctx, path, func(updated *config.Config) {
			r, err := live.Apply(updated)
			if err != nil {
				slog.Error("creator: reload rejected", "err", err)
				return
			}
			slog.Info("config hot-reloaded", "qtc_type", r.Params.QTCType, "frames", r.Frames, "level", r.Level)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	if cfg.Admin.Addr != "" {
		go func() {
			if err := admin.Serve(ctx, cfg.Admin.Addr, admin.New(params, p, reg)); err != nil {
				slog.Error("admin server stopped", "err", err)
			}
		}()
	}

	p.Run(ctx)
	slog.Info("qtc-creator shutting down")
	return nil
}

func setLevel(s string) {
	lvl, err := config.ParseLevel(s)
	if err != nil {
		slog.Warn("creator: keeping log level", "err", fmt.Errorf("config: %w", err))
		return
	}
	logLevel.Set(lvl)
}
