package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bernabe05rodriguez-stack/CarScraper/cache"
	"github.com/bernabe05rodriguez-stack/CarScraper/config"
	"github.com/bernabe05rodriguez-stack/CarScraper/fx"
	"github.com/bernabe05rodriguez-stack/CarScraper/logging"
	"github.com/bernabe05rodriguez-stack/CarScraper/notify"
	"github.com/bernabe05rodriguez-stack/CarScraper/orchestrator"
	"github.com/bernabe05rodriguez-stack/CarScraper/ratelimit"
	"github.com/bernabe05rodriguez-stack/CarScraper/scraper"
	"github.com/bernabe05rodriguez-stack/CarScraper/source"
	"github.com/bernabe05rodriguez-stack/CarScraper/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// app holds everything a subcommand needs; close releases it in reverse order.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	sources  *source.Registry
	orch     *orchestrator.Orchestrator
	metrics  *scraper.Metrics
	closers  []func()
	metricsS *http.Server
}

func newLogger(cfg *config.Config, verbose bool) (*slog.Logger, func(), error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	tty := logging.IsTerminal(os.Stdout)
	opts := logging.Options{
		Writer: os.Stdout,
		Level:  level,
		JSON:   cfg.LogJSON || !tty,
		Color:  tty,
	}
	closeFn := func() {}
	if cfg.FluentEnabled {
		client, err := logging.DialFluent(logging.FluentConfig{Host: cfg.FluentHost, Port: cfg.FluentPort, TagPrefix: cfg.FluentTag})
		if err != nil {
			return nil, nil, err
		}
		opts.Extra = append(opts.Extra, logging.NewFluentHandler(client, level))
		closeFn = func() { _ = client.Close() }
	}
	return logging.New(opts), closeFn, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: scraper.NewMetrics()}

	limiter, err := ratelimit.New(cfg.MinDelay, cfg.MaxDelay)
	if err != nil {
		return nil, err
	}

	ropts := scraper.RendererOptionsFromConfig(cfg)
	ropts.Metrics = a.metrics
	ropts.Logger = logger
	renderer := scraper.NewChromeRenderer(ropts)
	a.closers = append(a.closers, renderer.Close)

	a.sources, err = source.Default(source.Deps{
		Config:   cfg,
		Limiter:  limiter,
		Renderer: renderer,
		Metrics:  a.metrics,
		Logger:   logger,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build source registry: %w", err)
	}

	var pg *storage.Postgres
	if cfg.DatabaseURL != "" {
		repo, pool, err := storage.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		pg = repo
	}

	copts := cache.Options{
		TTL:     cfg.CacheTTL,
		Size:    cfg.CacheSize,
		Metrics: cache.NewMetrics(a.metrics.Registry),
		Logger:  logger,
	}
	if pg != nil {
		copts.Store = pg
	}
	resultCache, err := cache.New(copts)
	if err != nil {
		a.close()
		return nil, err
	}

	var upstream fx.Source
	if cfg.RateAPIURL != "" {
		upstream = fx.NewFrankfurter(cfg.RateAPIURL, nil, cfg.RateTimeout)
	}
	rates := fx.NewFallback(upstream, fx.FallbackOptions{
		Configured: cfg.EURUSDRate,
		MaxAge:     cfg.RateMaxAge,
		Logger:     logger,
	})

	var publisher notify.Publisher = notify.Nop{}
	if cfg.AMQPURL != "" {
		amqpPub, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		publisher = amqpPub
		a.closers = append(a.closers, func() { _ = amqpPub.Close() })
	}

	oopts := orchestrator.OptionsFromConfig(cfg)
	oopts.Sources = a.sources
	oopts.Cache = resultCache
	oopts.Rates = rates
	oopts.Publisher = publisher
	oopts.Metrics = orchestrator.NewMetrics(a.metrics.Registry)
	oopts.Logger = logger
	if pg != nil {
		oopts.Store = pg
	}
	a.orch, err = orchestrator.New(oopts)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, a.orch.Close)

	if cfg.MetricsAddr != "" {
		a.metricsS = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := a.metricsS.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		logger.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}
	return a, nil
}

func (a *app) close() {
	if a.metricsS != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.metricsS.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
