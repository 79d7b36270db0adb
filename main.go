package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-search/config"
	"market-search/scraper/daangn"
	"market-search/server"
	"market-search/services"
	"market-search/storage"
	"market-search/utils"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)

	logger.Info("market search starting", utils.Fields{
		"upstream":    cfg.UpstreamBaseURL,
		"fetch_mode":  cfg.FetchMode,
		"store":       cfg.StoreBackend,
		"freshness_s": cfg.CacheFreshnessSec,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", err, utils.Fields{"backend": cfg.StoreBackend})
		os.Exit(1)
	}
	persistence := storage.NewPersistence(backend, nil, logger)
	defer persistence.Close()

	var transport daangn.Transport
	if cfg.FetchMode == "browser" {
		bt := daangn.NewBrowserTransport(cfg.ChromeBin, cfg.FetchTimeout(), logger)
		defer bt.Close()
		transport = bt
	} else {
		transport = daangn.NewCollyTransport(cfg.FetchTimeout(), logger)
	}
	client := daangn.NewClient(daangn.Options{
		BaseURL:   cfg.UpstreamBaseURL,
		Transport: transport,
		Logger:    logger,
	})

	cache, err := services.NewResponseCache(cfg.CacheFreshness(), nil)
	if err != nil {
		logger.Error("failed to create response cache", err, nil)
		os.Exit(1)
	}
	defer cache.Close()

	orch := services.NewOrchestrator(services.OrchestratorOptions{
		Fetcher: client,
		Cache:   cache,
		Store:   persistence,
		Jitter:  utils.NewJitter(cfg.JitterWindow()),
		Logger:  logger,
	})
	defer orch.Close()

	selected, err := persistence.LoadSelectedRegions()
	if err != nil {
		logger.Warn("saved regions unreadable, starting empty", utils.Fields{"error": err.Error()})
	}
	state, err := persistence.LoadSearchState()
	if err != nil {
		logger.Warn("saved search state unreadable, starting fresh", utils.Fields{"error": err.Error()})
	}
	orch.Restore(state, selected)

	excluded, err := persistence.LoadExclusions()
	if err != nil {
		logger.Warn("saved exclusions unreadable, starting empty", utils.Fields{"error": err.Error()})
	}
	exclusions := services.NewExclusionList(excluded, persistence, logger)

	handler := server.NewHandler(orch, client, exclusions, services.NewInsightService(logger))
	router := server.NewRouter(handler, server.NewEventStream(orch, cfg.CORSOrigins), cfg.CORSOrigins, logger)
	srv := server.NewServer(":"+cfg.HTTPPort, router, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", err, nil)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received", nil)
	}

	orch.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", err, nil)
	}
	logger.Info("market search stopped", nil)
}

func newLogger(cfg *config.Config) utils.Logger {
	stdout := utils.NewLoggerWithConfig(utils.LoggerConfig{
		Level: utils.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	if !cfg.FluentEnabled {
		return stdout
	}
	fl, err := utils.NewFluentLogger(utils.FluentConfig{
		Host:      cfg.FluentHost,
		Port:      cfg.FluentPort,
		TagPrefix: cfg.AppName,
		Level:     utils.ParseLevel(cfg.FluentLogLevel),
	})
	if err != nil {
		stdout.Warn("fluent bit disabled", utils.Fields{"error": err.Error()})
		return stdout
	}
	return utils.NewMultiLogger(stdout, fl)
}

func openBackend(ctx context.Context, cfg *config.Config, logger utils.Logger) (storage.Backend, error) {
	if cfg.StoreBackend == "postgres" {
		return storage.NewPostgresBackend(ctx, cfg.DSN(), cfg.DBConnectRetries, logger)
	}
	return storage.NewFileBackend(cfg.StoreDir)
}
