package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	jsonfileAdapter "rewardcore/adapters/jsonfile"
	mem "rewardcore/adapters/memory"
	redisAdapter "rewardcore/adapters/redis"
	"rewardcore/adapters/redisbus"
	sqlxAdapter "rewardcore/adapters/sqlx"
	"rewardcore/api/httpapi"
	"rewardcore/auth"
	"rewardcore/catalog"
	"rewardcore/config"
	"rewardcore/engine"
	"rewardcore/integrations/aggregates"
	"rewardcore/integrations/webhook"
	"rewardcore/leaderboard"
	"rewardcore/listener"
	"rewardcore/realtime"
	"rewardcore/reward"
)

// App aggregates the assembled server components.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Hub      *realtime.Hub
	Catalog  *catalog.Catalog
	Service  *engine.RewardService
	Listener *listener.Loop
	Handler  http.Handler
	Server   *http.Server
}

func provideConfig(_ context.Context) (*config.Config, error) {
	if path := os.Getenv("REWARDCORE_CONFIG_FILE"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideBoard() *leaderboard.SkipList {
	return leaderboard.NewSkipList()
}

func provideCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	return catalog.Load(cfg.Catalog.Path)
}

func provideLedger(ctx context.Context, cfg *config.Config) (engine.Ledger, error) {
	return setupLedger(ctx, cfg)
}

func provideService(cfg *config.Config, log *slog.Logger, hub *realtime.Hub, board *leaderboard.SkipList, cat *catalog.Catalog, ledger engine.Ledger) *engine.RewardService {
	opts := []reward.Option{
		reward.WithLedger(ledger),
		reward.WithCatalog(cat),
		reward.WithRealtime(hub),
		reward.WithLeaderboard(board),
		reward.WithDispatchMode(engine.DispatchAsync),
		reward.WithLogger(log),
	}
	if len(cfg.Aggregates) > 0 {
		opts = append(opts, reward.WithAggregates(aggregates.NewHTTPSource(cfg.Aggregates)))
	}
	svc := reward.New(opts...)

	if len(cfg.Webhooks.Endpoints) > 0 {
		webhook.Attach(svc, webhook.New(cfg.Webhooks.Endpoints, webhook.WithLogger(log)))
	}
	return svc
}

// provideListener builds the bus consumer loop, or nil when the bus is
// disabled and the synchronous /events intake is the only path in.
func provideListener(cfg *config.Config, log *slog.Logger, svc *engine.RewardService) (*listener.Loop, error) {
	if !cfg.Bus.Enabled {
		return nil, nil
	}
	bus, err := redisbus.New(cfg.Bus.Redis, cfg.Bus.Channel, log)
	if err != nil {
		return nil, fmt.Errorf("connect event bus: %w", err)
	}
	return listener.New(bus, svc, log), nil
}

func provideHandler(svc *engine.RewardService, cat *catalog.Catalog, hub *realtime.Hub, board *leaderboard.SkipList, cfg *config.Config) http.Handler {
	var verifier auth.Verifier
	if cfg.Auth.Enabled {
		verifier = auth.NewHTTPVerifier(cfg.Auth.IdentityURL)
	}
	return httpapi.NewMux(svc, cat, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		Board:            board,
		Verifier:         verifier,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	out := os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupLedger creates the appropriate ledger adapter based on configuration.
func setupLedger(_ context.Context, cfg *config.Config) (engine.Ledger, error) {
	switch cfg.Ledger.Adapter {
	case "memory":
		return mem.New(), nil
	case "redis":
		return redisAdapter.New(cfg.Ledger.Redis)
	case "sql":
		return sqlxAdapter.New(cfg.Ledger.SQL)
	case "file":
		return jsonfileAdapter.New(cfg.Ledger.File.Path)
	default:
		return nil, fmt.Errorf("unknown ledger adapter: %s", cfg.Ledger.Adapter)
	}
}
