package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/whisperlive-lab/internal/config"
	"github.com/whisperlive-lab/internal/logging"
	"github.com/whisperlive-lab/internal/mcp"
	"github.com/whisperlive-lab/internal/metrics"
	"github.com/whisperlive-lab/internal/sidecar"
)

func main() {
	cfg, err := config.Load("")
	logging.InitLevel(cfg.LogLevel)
	defer func() { _ = logging.Sync() }()
	if err != nil {
		logging.Errorw("invalid configuration", "err", err)
		os.Exit(1)
	}

	m := metrics.NewMetrics()
	svc := &mcp.Service{
		Config:   cfg,
		Metrics:  m,
		Sidecars: sidecar.NewManager(cfg.Output.Dir, cfg.Output.SRT),
		Version:  os.Getenv("VERSION"),
	}

	mux := http.NewServeMux()
	mux.Handle("/health", m.Middleware("/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})))
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/mcp/ws", m.Middleware("/mcp/ws", mcp.WebSocketHandler(svc.NewServer())))

	port := os.Getenv("PORT")
	if port == "" {
		port = "9001"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if cfg.Output.Dir != "" && (cfg.Output.Retention > 0 || cfg.Output.MaxFiles > 0) {
		wg.Add(1)
		sidecar.StartCleaner(ctx, &wg, cfg.Output.Dir, cfg.Output.Retention, cfg.Output.CleanInterval, cfg.Output.MaxFiles)
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logging.Infow("mcp server listening", "addr", srv.Addr, "whisperlive_endpoint", cfg.Endpoint)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Errorw("mcp server failed", "err", err)
		os.Exit(1)
	}
	stop()
	wg.Wait()
	logging.Infow("mcp server stopped")
}
