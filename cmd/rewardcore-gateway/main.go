package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"rewardcore/config"
	"rewardcore/router"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := setupLogging(cfg)

	table, err := cfg.Gateway.Table()
	if err != nil {
		log.Error("invalid route table", "error", err)
		os.Exit(1)
	}

	proxy := router.NewProxy(table,
		router.WithUpstreamTimeout(cfg.Gateway.UpstreamTimeout),
		router.WithLogger(log),
	)
	handler := router.NewMux(proxy, router.MuxOptions{
		PathPrefix:      cfg.Gateway.PathPrefix,
		AllowCORSOrigin: cfg.Gateway.CORSOrigin,
		ServiceName:     "rewardcore-gateway",
		Version:         "1.0.0",
	})

	srv := &http.Server{
		Addr:              cfg.Gateway.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout + cfg.Gateway.UpstreamTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	slog.Info("starting rewardcore gateway",
		"environment", cfg.Environment,
		"address", cfg.Gateway.Address,
		"services", table.Services())

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				return
			}
			slog.Error("failed to start gateway", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gateway", "timeout", cfg.Server.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during gateway shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway stopped")
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("REWARDCORE_CONFIG_FILE"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func setupLogging(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}

	out := os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	var handler slog.Handler
	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
