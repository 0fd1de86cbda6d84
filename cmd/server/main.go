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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	server "github.com/joeecarter/health-gateway"
	"github.com/joeecarter/health-gateway/internal/logging"
	"github.com/joeecarter/health-gateway/internal/tracing"
)

var Version = "0.0.0"

func main() {
	addr := flag.String("addr", "", "The address to start the server on e.g. ':8080' (overrides the config file)")
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %s.\n", err.Error())
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if level, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.Log.Level = level
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Printf("Failed to build logger: %s.\n", err.Error())
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, err := tracing.New(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("Failed to set up tracing", zap.Error(err))
	}

	app, err := server.NewApp(ctx, cfg, logger, tracer.Provider())
	if err != nil {
		logger.Fatal("Failed to start", zap.Error(err))
	}

	if len(app.Stores()) == 0 {
		printConfigurationExplanation()
		_ = app.Close()
		_ = tracer.Shutdown(context.Background())
		os.Exit(1)
	}

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: app.Handler()}

	go func() {
		logger.Info("Starting health-gateway",
			zap.String("version", Version),
			zap.String("addr", cfg.HTTP.Addr),
			zap.Bool("health_data_available", app.Gateway().IsHealthDataAvailable()))
		logger.Info("Point Auto Export to /upload")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down cleanly", zap.Error(err))
	}
	if err := app.Close(); err != nil {
		logger.Error("Failed to close", zap.Error(err))
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to flush traces", zap.Error(err))
	}
}

func printConfigurationExplanation() {
	fmt.Printf("You have no metric stores configured.\n\n")

	fmt.Printf("Either list stores in the config file (-config) or set environment variables:\n")
	fmt.Println("- " + server.CLICKHOUSE_DSN)
	fmt.Println("- " + server.CLICKHOUSE_DATABASE)
	fmt.Println("- " + server.CLICKHOUSE_METRICS_TABLE)
	fmt.Println("- " + server.CLICKHOUSE_CREATE_TABLES + " (optional)")
}
