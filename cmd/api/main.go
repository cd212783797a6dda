package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/app"
	"github.com/kbassist/backend/internal/metrics"
	"github.com/kbassist/backend/internal/telemetry"
	"github.com/kbassist/backend/pkg/config"
	appLogger "github.com/kbassist/backend/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting KB Assist API Server")

	metrics.Init()

	ctx := context.Background()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		appLogger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			appLogger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	a, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.Fatal("Failed to wire components", zap.Error(err))
	}
	defer a.Close()

	srv := app.NewServer(a)
	defer srv.Stop()

	// The server accepts requests while the index builds; queries get 503 until
	// it is ready.
	go func() {
		start := time.Now()
		if err := a.Initialize(ctx); err != nil {
			appLogger.Error("Knowledge base initialization failed", zap.Error(err))
			return
		}
		appLogger.Info("Knowledge base ready", zap.Duration("took", time.Since(start)))
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := srv.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := srv.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Warn("Shutdown did not complete cleanly", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
