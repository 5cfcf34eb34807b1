package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"marketvision/config"
	"marketvision/internal/adapters"
	"marketvision/internal/api"
	"marketvision/internal/database"
	"marketvision/internal/indicators"
	"marketvision/internal/ingest"
	"marketvision/internal/logging"
	"marketvision/internal/macro"
	"marketvision/internal/ml"
	"marketvision/internal/notification"
	"marketvision/internal/scheduler"
	msignal "marketvision/internal/signal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	logging.Setup(logging.Config{
		Level:      cfg.Logging.Level,
		Output:     cfg.Logging.Output,
		JSONFormat: cfg.Logging.JSONFormat,
	})
	logger := logging.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Candle storage.
	db, err := database.NewDB(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}
	repo := database.NewRepository(db)

	// Signal storage. Redis when configured and reachable, otherwise an
	// in-process store.
	store := buildSignalStore(ctx, cfg)

	// Market data providers, in fallback priority order.
	registry := adapters.NewRegistry()
	registry.Register(adapters.NewBinanceAdapter())
	registry.Register(adapters.NewCryptoCompareAdapter(cfg.Providers.CryptoCompareKey))
	if cfg.Providers.AlphaVantageKey != "" {
		registry.Register(adapters.NewAlphaVantageAdapter(cfg.Providers.AlphaVantageKey))
	} else {
		logger.Warn().Msg("no alpha vantage key, forex and metals data unavailable")
	}
	for symbol, name := range cfg.Scanner.AdapterOverrides {
		registry.SetOverride(symbol, name)
	}

	pipeline := ingest.NewPipeline(registry, repo)
	engine := msignal.NewEngine(indicators.DefaultRegistry(), ml.NewFeaturePredictor(ml.DefaultConfig()))

	// Notifications.
	manager := notification.NewManager()
	if cfg.Notifications.TelegramEnabled {
		manager.Add(notification.NewTelegramNotifier(notification.TelegramConfig{
			BotToken: cfg.Notifications.TelegramBotToken,
			ChatID:   cfg.Notifications.TelegramChatID,
			Enabled:  true,
		}))
	}
	if cfg.Notifications.DiscordEnabled {
		manager.Add(notification.NewDiscordNotifier(notification.DiscordConfig{
			WebhookURL: cfg.Notifications.DiscordWebhookURL,
			Enabled:    true,
		}))
	}

	// Macro context, Alpha Vantage backed.
	var macroCache *macro.Cache
	var cotClient *macro.COTClient
	if cfg.Macro.Enabled {
		cotClient = macro.NewCOTClient()
		if cfg.Providers.AlphaVantageKey != "" {
			client := macro.NewClient(cfg.Providers.AlphaVantageKey)
			macroCache = macro.NewCache(cfg.Macro.CachePath, client.FetchSummary)
		} else {
			logger.Warn().Msg("macro summary disabled, no alpha vantage key")
		}
	}

	sched := scheduler.New(scheduler.Config{
		ScanInterval:   time.Duration(cfg.Scanner.ScanIntervalSeconds) * time.Second,
		StartupGrace:   time.Duration(cfg.Scanner.StartupGraceSeconds) * time.Second,
		ScanDeadline:   time.Duration(cfg.Scanner.ScanDeadlineSeconds) * time.Second,
		SummaryHourUTC: cfg.Scanner.SummaryHourUTC,
		WatchedSymbols: cfg.Scanner.Symbols,
	}, pipeline, engine, store, nil)

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ProductionMode: cfg.Server.ProductionMode,
	}, store, registry, sched, repo, macroCache, cotClient)

	// Scheduler events fan out to external notifiers and to the
	// websocket stream.
	sched.SetNotifier(&streamNotifier{manager: manager, hub: server.Hub()})

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("api server stopped")
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api shutdown failed")
	}

	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("scheduler drain timed out")
	}
	logger.Info().Msg("stopped")
}

func buildSignalStore(ctx context.Context, cfg *config.Config) msignal.Store {
	logger := logging.Component("main")
	if !cfg.Redis.Enabled {
		logger.Info().Msg("using in-memory signal store")
		return msignal.NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).
			Msg("redis unreachable, falling back to in-memory signal store")
		return msignal.NewMemoryStore()
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("using redis signal store")
	return msignal.NewRedisStore(client)
}

// streamNotifier mirrors scheduler events to the notification manager
// and the websocket hub.
type streamNotifier struct {
	manager *notification.Manager
	hub     *api.WSHub
}

func (n *streamNotifier) NotifySignal(sig *msignal.Signal) {
	n.manager.NotifySignal(sig)
	n.hub.BroadcastSignal(sig)
}

func (n *streamNotifier) NotifyOutcome(sig *msignal.Signal) {
	n.manager.NotifyOutcome(sig)
	n.hub.BroadcastOutcome(sig)
}

func (n *streamNotifier) NotifySummary(a msignal.Analytics) {
	n.manager.NotifySummary(a)
}

func (n *streamNotifier) NotifyError(title, body string) {
	n.manager.NotifyError(title, body)
}
