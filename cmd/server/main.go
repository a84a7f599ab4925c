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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/charlesng35/scopegrant/internal/app"
	"github.com/charlesng35/scopegrant/internal/database"
	"github.com/charlesng35/scopegrant/internal/grants"
	"github.com/charlesng35/scopegrant/internal/handlers"
	"github.com/charlesng35/scopegrant/internal/middleware"
	"github.com/charlesng35/scopegrant/internal/monitoring"
	"github.com/charlesng35/scopegrant/internal/registry"
	"github.com/charlesng35/scopegrant/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scopegrant-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory")

	if err := fs.Parse(args); err != nil {
		return err
	}

	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
	}
	cfg, err := app.LoadConfig(paths...)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	engineCfg, err := cfg.Grants.EngineConfig()
	if err != nil {
		return err
	}
	engineCfg.Apply()

	db, err := database.OpenAndMigrate(cfg.Database.StoreConfig())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if closeErr := database.Close(db); closeErr != nil {
			log.Warn("close database", zap.Error(closeErr))
		}
	}()

	store, err := grants.NewStore(db)
	if err != nil {
		return err
	}
	reg, err := registry.NewGormRegistry(db)
	if err != nil {
		return err
	}
	checker, err := grants.NewChecker(store, reg)
	if err != nil {
		return err
	}
	mutator, err := grants.NewMutator(store, reg, engineCfg)
	if err != nil {
		return err
	}
	query, err := grants.NewQuery(store)
	if err != nil {
		return err
	}

	var janitor *grants.Janitor
	if cfg.Grants.Cleanup.Enabled {
		janitor, err = grants.NewJanitor(store, cfg.Grants.Cleanup.Schedule)
		if err != nil {
			return err
		}
		if err := janitor.Start(); err != nil {
			return fmt.Errorf("start janitor: %w", err)
		}
		defer janitor.Stop()
	}

	handler, err := handlers.NewGrantHandler(checker, mutator, query)
	if err != nil {
		return err
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logger(), middleware.Metrics(), middleware.Actor())

	if cfg.Monitoring.Health.Enabled {
		router.GET("/healthz", monitoring.HealthHandler(monitoring.DatabaseCheck(db)))
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		router.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	handler.RegisterRoutes(router.Group("/api"))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
