package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vjranagit/promdash/internal/config"
	"github.com/vjranagit/promdash/pkg/api"
	"github.com/vjranagit/promdash/pkg/panel"
	"github.com/vjranagit/promdash/pkg/panelhttp"
	"github.com/vjranagit/promdash/pkg/promapi"
	"github.com/vjranagit/promdash/pkg/storage"
)

const version = "0.3.0"

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(log)

	log.Info("starting promdash", "version", version)

	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	log.Info("configuration loaded",
		"listen", cfg.Server.ListenAddr,
		"storage_path", cfg.Storage.Path,
		"retention_days", cfg.Storage.RetentionDays,
		"default_range_s", cfg.Panel.DefaultRangeSeconds)

	store, err := storage.New(cfg.ToStorageConfig())
	if err != nil {
		log.Error("failed to initialize storage", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	cached := storage.NewCachedStore(store, cfg.Storage.CacheCapacity,
		time.Duration(cfg.Storage.CacheTTLSeconds)*time.Second)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	panelMetrics := panel.NewMetrics()
	if err := panelMetrics.Register(registry); err != nil {
		log.Error("failed to register panel metrics", "err", err)
		os.Exit(1)
	}

	client, err := promapi.NewHTTPClient(backendURL(cfg), cfg.Panel.QueryTimeout)
	if err != nil {
		log.Error("invalid backend URL", "err", err)
		os.Exit(1)
	}

	panelServer := panelhttp.NewServer(panelhttp.ServerConfig{
		Client:  client,
		Logger:  log,
		Metrics: panelMetrics,
		Defaults: panel.Options{
			Mode:         panel.ModeGraph,
			RangeSeconds: cfg.Panel.DefaultRangeSeconds,
		},
	})

	server := api.NewServer(cfg.Server.ListenAddr, cached, log)
	server.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server.Handle("/panel/ws", panelServer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api server listening", "addr", cfg.Server.ListenAddr)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutdown signal received, stopping server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// backendURL resolves the base URL panel sessions query: the configured
// one, or the server's own listen address.
func backendURL(cfg *config.Config) string {
	if cfg.Panel.BackendURL != "" {
		return cfg.Panel.BackendURL
	}
	host, port, err := net.SplitHostPort(cfg.Server.ListenAddr)
	if err != nil {
		return "http://localhost:9090"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%s", host, port)
}
