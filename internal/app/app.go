// Package app wires the gateway's components together and runs the HTTP
// server with graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wisbric/mcpgateway/internal/config"
	"github.com/wisbric/mcpgateway/internal/crypto"
	"github.com/wisbric/mcpgateway/internal/edge"
	"github.com/wisbric/mcpgateway/internal/httpserver"
	"github.com/wisbric/mcpgateway/internal/platform"
	"github.com/wisbric/mcpgateway/internal/quota"
	"github.com/wisbric/mcpgateway/internal/rpc"
	"github.com/wisbric/mcpgateway/internal/store"
	"github.com/wisbric/mcpgateway/internal/telemetry"
	"github.com/wisbric/mcpgateway/internal/usagelog"
	"github.com/wisbric/mcpgateway/pkg/adapter"
)

const (
	serverName    = "mcpgateway"
	serverVersion = "0.1.0"
)

// Run reads config, connects to infrastructure, and starts the gateway
// (or applies migrations, depending on cfg.Mode).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting mcpgateway", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	if cfg.Mode == "migrate" {
		if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("migrations applied")
		return nil
	}

	if cfg.Mode != "api" {
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}

	if cfg.MasterKeyHex == "" {
		return errors.New("GATEWAY_MASTER_KEY is required")
	}

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	metadataStore := store.NewPostgresStore(db)

	sealer, err := crypto.NewSealer(cfg.MasterKeyHex)
	if err != nil {
		return fmt.Errorf("initializing credential sealer: %w", err)
	}

	gate := quota.NewGate(metadataStore)

	registry := adapter.NewRegistry()
	registry.Register(adapter.NewPostgresAdapter())
	registry.Register(adapter.NewMySQLAdapter())
	registry.Register(adapter.NewMSSQLAdapter())
	registry.Register(adapter.NewSupabaseAdapter())
	registry.Register(adapter.NewStripeAdapter())
	registry.Register(adapter.NewMixpanelAdapter())

	usageWriter := usagelog.NewWriter(metadataStore, logger)
	usageWriter.Start(ctx)
	defer usageWriter.Close()

	dispatcher := &rpc.Dispatcher{
		Store:         metadataStore,
		Sealer:        sealer,
		Gate:          gate,
		Registry:      registry,
		UsageLog:      usageWriter,
		Logger:        logger,
		ServerName:    serverName,
		ServerVersion: serverVersion,
	}

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	srv := httpserver.NewServer(httpserver.Config{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger, db, rdb, metricsReg)

	gatewayHandler := &edge.Handler{
		Store:          metadataStore,
		Dispatcher:     dispatcher,
		Logger:         logger,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
		ServerName:     serverName,
		ServerVersion:  serverVersion,
	}
	gatewayHandler.Mount(srv.Router)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
