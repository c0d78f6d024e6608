// Package main wires together the crawler tracking service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/waio/crawlwatch/internal/api"
	"github.com/waio/crawlwatch/internal/classifier"
	"github.com/waio/crawlwatch/internal/clock/system"
	"github.com/waio/crawlwatch/internal/config"
	"github.com/waio/crawlwatch/internal/feed"
	"github.com/waio/crawlwatch/internal/ingest"
	"github.com/waio/crawlwatch/internal/logging"
	"github.com/waio/crawlwatch/internal/metrics"
	"github.com/waio/crawlwatch/internal/report"
	"github.com/waio/crawlwatch/internal/simulator"
	"github.com/waio/crawlwatch/internal/storage"
	memoryStorage "github.com/waio/crawlwatch/internal/storage/memory"
	postgresStorage "github.com/waio/crawlwatch/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	var store storage.Store
	if cfg.DB.DSN != "" {
		pgStore, err := postgresStorage.NewVisitStore(ctx, postgresStorage.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			logger.Fatal("postgres store init failed", zap.Error(err))
		}
		store = pgStore
		logger.Info("using postgres visit store")
	} else {
		store = memoryStorage.NewVisitStore()
		logger.Info("using in-memory visit store")
	}
	defer store.Close()

	cl, err := classifier.FromFile(cfg.Classifier.RulesFile)
	if err != nil {
		logger.Fatal("classifier init failed",
			zap.String("rules_file", cfg.Classifier.RulesFile),
			zap.Error(err))
	}

	registry := feed.NewRegistry(logger.Named("feed"))
	pipeline := ingest.New(cl, store, registry, ingest.Config{
		BufferSize:     cfg.Ingest.BufferSize,
		PersistUnknown: cfg.Ingest.PersistUnknown,
		Logger:         logger.Named("ingest"),
		Clock:          system.New(),
	})

	var sim *simulator.Simulator
	if cfg.Simulator.Enabled {
		sim = simulator.New(simulator.Config{
			MaxParallel:       cfg.Simulator.MaxParallel,
			NavigationTimeout: time.Duration(cfg.Simulator.NavTimeoutSec) * time.Second,
			RequestTimeout:    time.Duration(cfg.Simulator.RequestTimeoutSec) * time.Second,
		})
		defer sim.Close()
	}

	reporter := report.New(cfg.Report.CompareA, cfg.Report.CompareB)

	apiServer := api.NewServer(store, pipeline, registry, sim, reporter, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := pipeline.Close(shutdownCtx); err != nil {
		logger.Error("pipeline close error", zap.Error(err))
	}
	registry.CloseAll()
	logger.Info("shutdown complete")
}
