package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/maltedev/seed-price-scraper/internal/alerts"
	"github.com/maltedev/seed-price-scraper/internal/api"
	"github.com/maltedev/seed-price-scraper/internal/browser"
	"github.com/maltedev/seed-price-scraper/internal/config"
	"github.com/maltedev/seed-price-scraper/internal/database"
	"github.com/maltedev/seed-price-scraper/internal/events"
	"github.com/maltedev/seed-price-scraper/internal/ingest"
	"github.com/maltedev/seed-price-scraper/internal/jobs"
	"github.com/maltedev/seed-price-scraper/internal/logging"
	"github.com/maltedev/seed-price-scraper/internal/repository"
	"github.com/maltedev/seed-price-scraper/internal/robots"
	"github.com/maltedev/seed-price-scraper/internal/scraper"
	"github.com/maltedev/seed-price-scraper/internal/sites"
	"github.com/maltedev/seed-price-scraper/internal/storage"
	"github.com/redis/go-redis/v9"
)

// app holds every wired component of one process.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db     *database.DB
	outbox *database.OutboxRepository
	store  repository.PriceRepository
	redis  *redis.Client

	notifier events.Notifier
	realtime events.RealtimePublisher
	engine   *alerts.Engine
	manager  *jobs.Manager
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger := logging.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	return cfg, logger, nil
}

// newApp connects storage and Redis and builds the scraping and alerting
// pipeline on top of them. Callers must Close the returned app.
func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openEvents(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.engine = alerts.NewEngine(a.store, a.notifier, alerts.Options{
		AntiSpamWindow:    cfg.Alerts.AntiSpamWindow,
		DiscountThreshold: cfg.Alerts.DiscountThreshold,
		Retention:         cfg.Alerts.Retention(),
		CheckInterval:     cfg.Alerts.CheckInterval,
	}, logger)

	recorder := ingest.NewRecorder(a.store, a.realtime, ingest.Options{
		PriceTTL:        cfg.Scraper.PriceTTL,
		DefaultCurrency: cfg.Scraper.DefaultCurrency,
		InstanceID:      cfg.Scraper.InstanceID,
	}, logger)

	guard := robots.NewGuard(robots.Options{
		UserAgent: cfg.Robots.UserAgent,
		Timeout:   cfg.Robots.Timeout,
	}, logger)

	a.manager = jobs.NewManager(sites.DefaultRegistry(), browser.NewPlaywrightLauncher(browserOptions(cfg.Browser), logger),
		guard, recorder, a.engine, jobs.Config{
			MaxParallel:     cfg.Jobs.MaxParallelScrapers,
			RateLimit:       cfg.Scraper.RateLimit,
			RateLimitJitter: cfg.Scraper.RateLimitJitter,
			Scraper: scraper.Options{
				NavigationTimeout: cfg.Scraper.NavigationTimeout,
				MaxRetries:        cfg.Scraper.MaxRetries,
				RetryBackoff:      cfg.Scraper.RetryBackoff,
				ProgressEvery:     cfg.Scraper.ProgressEvery,
			},
			CategoryOverrides:   cfg.Scraper.Categories,
			ScrapeInterval:      cfg.Jobs.ScrapeInterval,
			SweepInterval:       cfg.Jobs.SweepInterval,
			HistorySize:         cfg.Jobs.HistorySize,
			CheckAlertsAfterRun: cfg.Jobs.CheckAlertsAfterRun,
		}, logger)

	return a, nil
}

func (a *app) openStorage(ctx context.Context) error {
	switch a.cfg.Storage.Driver {
	case config.StorageDriverMemory:
		store, err := storage.NewStore(a.cfg.Storage.SnapshotPath)
		if err != nil {
			return fmt.Errorf("failed to open memory store: %w", err)
		}
		a.logger.Info("using in-memory storage", "snapshot", a.cfg.Storage.SnapshotPath, "rows", store.Stats())
		a.store = store
		return nil

	default:
		db, err := openDatabase(ctx, a.cfg.Database)
		if err != nil {
			return err
		}
		a.db = db
		a.store = database.NewRepository(db)
		a.outbox = database.NewOutboxRepository(db)
		a.logger.Info("connected to database")
		return nil
	}
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.New(ctx, database.Config{
		URL:         cfg.URL,
		Host:        cfg.Host,
		Port:        cfg.Port,
		User:        cfg.User,
		Password:    cfg.Password,
		Database:    cfg.DBName,
		SSLMode:     cfg.SSLMode,
		MaxConns:    int32(cfg.MaxConns),
		MinConns:    int32(cfg.MinConns),
		MaxConnLife: cfg.MaxConnLife,
		MaxConnIdle: cfg.MaxConnIdle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func (a *app) openEvents(ctx context.Context) error {
	if a.cfg.Events.Driver == config.EventsDriverLog {
		a.notifier = events.NewLogNotifier(a.logger)
		a.realtime = events.NopRealtimePublisher{}
		return nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	a.realtime = events.NewRedisRealtimePublisher(a.redis, a.cfg.Events.PriceChannel, a.logger)

	switch a.cfg.Events.Driver {
	case config.EventsDriverStream:
		a.notifier = events.NewStreamNotifier(a.redis, a.cfg.Events.NotificationStream, a.cfg.Events.StreamMaxLen, a.logger)
	default:
		a.notifier = events.NewOutboxNotifier(a.outbox, a.cfg.Events.NotificationStream, a.logger)
	}
	return nil
}

// relay returns nil unless alert events go through the outbox.
func (a *app) relay() *database.Relay {
	if a.outbox == nil || a.redis == nil || a.cfg.Events.Driver != config.EventsDriverOutbox {
		return nil
	}
	return database.NewRelay(a.outbox, a.redis, a.logger, database.RelayConfig{
		PollInterval: a.cfg.Events.RelayInterval,
		BatchSize:    a.cfg.Events.RelayBatchSize,
		StreamMaxLen: a.cfg.Events.StreamMaxLen,
	})
}

func (a *app) handlers() *api.Handlers {
	var outbox api.OutboxStats
	if a.outbox != nil {
		outbox = a.outbox
	}
	return api.NewHandlers(a.manager, a.store, outbox, a.logger)
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

func browserOptions(cfg config.BrowserConfig) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Headless
	if cfg.Timeout > 0 {
		opts.Timeout = cfg.Timeout
	}
	if cfg.UserAgent != "" {
		opts.UserAgent = cfg.UserAgent
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		opts.ViewportWidth = cfg.ViewportWidth
		opts.ViewportHeight = cfg.ViewportHeight
	}
	if cfg.AcceptLanguage != "" {
		opts.AcceptLanguage = cfg.AcceptLanguage
	}
	if cfg.TimezoneID != "" {
		opts.TimezoneID = cfg.TimezoneID
	}
	if cfg.Locale != "" {
		opts.Locale = cfg.Locale
	}
	opts.ProxyServer = cfg.ProxyServer
	return opts
}
