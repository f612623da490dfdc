// Package main provides the tillsync daemon: it keeps the local POS
// database and the remote backend in sync and exposes a small local
// HTTP surface for status and manual triggers.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hweilin/tillsync/internal/config"
	"github.com/hweilin/tillsync/internal/logging"
	"github.com/hweilin/tillsync/internal/remote"
	"github.com/hweilin/tillsync/internal/schema"
	"github.com/hweilin/tillsync/internal/store"
	syncpkg "github.com/hweilin/tillsync/internal/sync"
	"github.com/hweilin/tillsync/internal/sync/queue"
	"github.com/hweilin/tillsync/internal/sync/realtime"
	"github.com/hweilin/tillsync/internal/sync/service"
)

func main() {
	// .env is optional; explicit environment always wins
	godotenv.Load()

	configPath := flag.String("config", "tillsync.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("Invalid configuration", err, nil)
		os.Exit(1)
	}

	logging.Init(os.Stdout, logLevel(cfg.LogLevel))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logging.Error("Failed to create data directory", err,
			map[string]interface{}{"dir": cfg.DataDir})
		os.Exit(1)
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		logging.Error("Failed to open local store", err, nil)
		os.Exit(1)
	}
	defer st.Close()

	registry := schema.Default()
	collections := append(registry.Names(), schema.QueueCollection)
	if err := store.NewMigrator(st.DB()).EnsureCollections(collections...); err != nil {
		logging.Error("Failed to prepare collections", err, nil)
		os.Exit(1)
	}

	client := remote.NewClient(&remote.Config{
		BaseURL: cfg.Remote.BaseURL,
		APIKey:  cfg.Remote.APIKey,
		Timeout: cfg.Remote.Timeout,
	})

	engine := syncpkg.NewEngine(st, client, registry, queue.New(st))

	listener := realtime.NewListener(realtime.Config{
		URL:         client.ChangesURL(""),
		Collections: registry.Names(),
	}, engine)

	svc := service.New(service.Config{
		Engine:         engine,
		Listener:       listener,
		HotCollections: registry.Hot(),
		SyncInterval:   cfg.SyncInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		logging.Error("Failed to start sync service", err, nil)
		os.Exit(1)
	}
	defer svc.Stop()

	prober := newProber(client, svc, cfg.ProbeInterval)
	prober.Start(ctx)
	defer prober.Stop()

	mux := http.NewServeMux()
	registerHandlers(mux, svc)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		logging.Info("Status endpoint listening", map[string]interface{}{"addr": cfg.ListenAddr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP server failed", err, nil)
			stop()
		}
	}()

	<-ctx.Done()
	logging.Info("Shutting down", nil)
	srv.Shutdown(context.Background())
}

func logLevel(s string) logging.LogLevel {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
