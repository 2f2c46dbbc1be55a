package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/zsl99a/netz/pkg/channel"
	"github.com/zsl99a/netz/pkg/codec"
	"github.com/zsl99a/netz/pkg/config"
	"github.com/zsl99a/netz/pkg/node"
	"github.com/zsl99a/netz/pkg/observability"
	"github.com/zsl99a/netz/pkg/transport"
)

// app holds what every subcommand builds from the configuration.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	transport transport.Transport
	format    codec.Format
	channel   channel.Options
}

func setup(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	logger = logger.With(zap.String("app", cfg.AppName))

	format, err := codec.NewRegistry().Lookup(cfg.Codec)
	if err != nil {
		return nil, err
	}
	fc, err := cfg.Frame.Build()
	if err != nil {
		return nil, err
	}
	tr, err := node.NewTransport(cfg.Transport, node.TransportOptions{Logger: logger})
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	logger.Debug("effective configuration", zap.Any("config", cfg))
	return &app{
		cfg:       cfg,
		log:       logger,
		registry:  reg,
		metrics:   metrics,
		transport: tr,
		format:    format,
		channel:   channel.Options{Frame: fc, Logger: logger, Metrics: metrics},
	}, nil
}

func (a *app) nodeOptions() node.Options {
	return node.Options{
		Name:    a.cfg.AppName,
		Format:  a.format,
		Channel: a.channel,
		Logger:  a.log,
		Metrics: a.metrics,
	}
}

// serveMetrics exposes the registry over HTTP when enabled. The returned
// function shuts the endpoint down.
func (a *app) serveMetrics() func() {
	if !a.cfg.Metrics.Enable {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, observability.Handler(a.registry))
	srv := &http.Server{Addr: a.cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.log.Info("metrics endpoint", zap.String("addr", srv.Addr), zap.String("path", a.cfg.Metrics.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics endpoint failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func (a *app) close() { _ = a.log.Sync() }
