package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gifforge/internal/artifactcache"
	"gifforge/internal/config"
	"gifforge/internal/ledger"
	"gifforge/internal/logging"
	"gifforge/internal/memory"
	"gifforge/internal/metrics"
	"gifforge/internal/pipeline"
	"gifforge/internal/raster"
	"gifforge/internal/server"
)

func main() {
	startTime := time.Now()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	memory.ConfigureFromEnv()
	raster.InitVips()
	defer raster.ShutdownVips()
	metrics.InitializeMetrics()

	for _, dir := range []string{cfg.WorkDir, cfg.CacheDir, cfg.LedgerDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			logging.Fatal("Failed to create directory %s: %v", dir, err)
		}
	}

	ctx := context.Background()

	cache, err := artifactcache.Open(ctx, cfg.CacheDir)
	if err != nil {
		logging.Fatal("Failed to open artifact cache: %v", err)
	}
	defer cache.Close()

	// Purge expired artifacts periodically
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		for range ticker.C {
			if _, err := cache.Purge(context.Background()); err != nil {
				logging.Warn("Artifact cache purge failed: %v", err)
			}
		}
	}()

	led, err := ledger.Open(filepath.Join(cfg.LedgerDir, "jobs"))
	if err != nil {
		logging.Fatal("Failed to open ledger: %v", err)
	}
	defer led.Close()

	pipe := pipeline.New(cfg.Limits, cache)
	srv := server.New(cfg, pipe, led)

	// Drop terminal jobs (and their retained artifact bytes) once their
	// retention window passes.
	go srv.Jobs().ReapEvery(ctx, 10*time.Minute)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // artifact downloads and websockets manage their own deadlines
		IdleTimeout:  60 * time.Second,
	}

	go handleShutdown(httpSrv)

	logging.Info("gifforge listening on %s (started in %v)", cfg.ListenAddr, time.Since(startTime).Round(time.Millisecond))
	if err := httpSrv.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("Server error: %v", err)
	}
}

func handleShutdown(srv *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logging.Info("Shutdown initiated by %s", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	}
	logging.Info("Shutdown complete")
}
