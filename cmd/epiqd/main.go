// Command epiqd runs the episode-quality HTTP service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/epiqlabs/epiq/internal/adapters/http/api"
	"github.com/epiqlabs/epiq/internal/adapters/http/site"
	"github.com/epiqlabs/epiq/internal/adapters/http/swagger"
	"github.com/epiqlabs/epiq/internal/adapters/repository/episodedb"
	"github.com/epiqlabs/epiq/internal/adapters/repository/fithistory"
	service "github.com/epiqlabs/epiq/internal/app"
	"github.com/epiqlabs/epiq/internal/config"
	"github.com/epiqlabs/epiq/pkg/logger"
	"github.com/epiqlabs/epiq/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	// Disable default Go metrics collection; the system metrics updater
	// covers what we care about.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithJSON(cfg.LogJSON)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "fatal", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	episodes, err := episodedb.Open(ctx, filepath.Join(cfg.DataDir, "episodes.db"))
	if err != nil {
		return err
	}
	defer func() { _ = episodes.Close() }()

	fits, err := fithistory.Open(filepath.Join(cfg.DataDir, "fits"))
	if err != nil {
		return err
	}
	defer func() { _ = fits.Close() }()

	opts := []service.Option{
		service.WithLogger(log),
		service.WithShowName(cfg.Show),
		service.WithSamplerConfig(cfg.Draws, cfg.Tune, cfg.Chains, cfg.TargetAccept, cfg.Seed),
		service.WithMaxTreeDepth(cfg.MaxTreeDepth),
		service.WithBounds(cfg.RatingLower, cfg.RatingUpper),
		service.WithFitQueueSize(cfg.FitQueueSize),
		service.WithFitLog(fits),
		service.WithEpisodeSink(episodes),
	}
	if cfg.ImputeMissing {
		opts = append(opts, service.WithImputedRatings(cfg.ImputeValue))
	}
	svc := service.New(opts...)

	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	// Load the configured show from the episode DB, if it is there.
	haveData := false
	if cfg.Show != "" {
		_, records, err := episodes.LoadShow(ctx, cfg.Show)
		switch {
		case err == nil:
			if err := svc.Ingest(ctx, records); err != nil {
				return err
			}
			haveData = true
		case errors.Is(err, episodedb.ErrShowNotFound):
			log.Warn(ctx, "show not found in episode DB; starting empty",
				logger.String("show", cfg.Show))
		default:
			return err
		}
	}

	if cfg.FitOnStart && haveData {
		if _, ok := svc.RequestFit(ctx, "startup"); !ok {
			log.Warn(ctx, "startup fit request rejected")
		}
	}

	go startSystemMetricsUpdater(ctx)

	mux := http.NewServeMux()
	site.Register(ctx, mux)
	swagger.Register(ctx, mux)
	api.NewServer(svc, cfg.MaxTopLimit).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// startSystemMetricsUpdater periodically refreshes process-level gauges.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			metrics.UpdateSystemMemoryUsage(m.Alloc)
			metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
		}
	}
}
