package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"intelligent-resource-analyzer/pkg/analyzer"
	"intelligent-resource-analyzer/pkg/logger"
	"intelligent-resource-analyzer/pkg/metrics"
	"intelligent-resource-analyzer/pkg/scheduler"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	source := newFileSource(snapshotsPath, retention(cfg))
	if err := source.Reload(); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewStoreCollector(cfg.Metrics.Namespace, source, nil),
	)
	exporter := metrics.NewPrometheusExporter(cfg.Metrics.Namespace, registry)

	svc, err := analyzer.NewService(cfg, source, append(serviceOptions(log), analyzer.WithExporter(exporter))...)
	if err != nil {
		return err
	}

	loc, err := cfg.Forecast.Zone()
	if err != nil {
		return err
	}
	var opts []scheduler.Option
	if cfg.Schedule.FailureThreshold > 0 {
		opts = append(opts, scheduler.WithCircuitBreaker(scheduler.NewCircuitBreaker(
			cfg.Schedule.FailureThreshold, cfg.Schedule.SuccessThreshold, cfg.Schedule.BreakerTimeout, nil)))
	}
	runner, err := scheduler.NewRunner(cfg.Schedule.Cron, loc, func(ctx context.Context) error {
		if err := source.Reload(); err != nil {
			return fmt.Errorf("failed to reload snapshots: %w", err)
		}
		if err := svc.ReloadRules(); err != nil {
			logger.Warnf("Keeping previous alert rules: %v", err)
		}
		reports, err := svc.AnalyzeAll(ctx)
		logger.WithFields("services", len(source.Services()), "reports", len(reports)).Info("Analysis run finished")
		return err
	}, opts...)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/status", statusHandler(runner, time.Now))
	server := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("Serving metrics", "address", cfg.Metrics.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	runnerDone := make(chan error, 1)
	go func() {
		if err := runner.RunNow(ctx); err != nil {
			log.WithError(err).Warn("Initial analysis run failed")
		}
		runnerDone <- runner.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-serverErr:
		if err != nil {
			logger.Errorf("Metrics server failed: %v", err)
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Metrics server shutdown failed")
	}
	return <-runnerDone
}
