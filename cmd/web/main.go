package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdamBeresnev/fixture-engine/internal/config"
	"github.com/AdamBeresnev/fixture-engine/internal/db"
	"github.com/AdamBeresnev/fixture-engine/internal/metrics"
	"github.com/AdamBeresnev/fixture-engine/internal/service"
	"github.com/AdamBeresnev/fixture-engine/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	logger := cfg.Log.NewLogger()
	slog.SetDefault(logger)

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		log.Fatal("Failed to open database: ", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database.DB, cfg.Database.Migrations); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	opts := []service.Option{service.WithLogger(logger)}
	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, service.WithMetrics(metrics.New(registry)))
	}
	engine := service.NewEngine(database, store.NewTournamentStore(database), opts...)

	server := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           newRouter(engine, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", "addr", cfg.HTTP.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
