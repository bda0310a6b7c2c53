package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	EventsDriverOutbox = "outbox"
	EventsDriverStream = "stream"
	EventsDriverLog    = "log"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Robots   RobotsConfig
	Alerts   AlertsConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Events   EventsConfig
	Jobs     JobsConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type ScraperConfig struct {
	RateLimit         time.Duration
	RateLimitJitter   time.Duration
	NavigationTimeout time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	ProgressEvery     int
	PriceTTL          time.Duration
	DefaultCurrency   string
	InstanceID        string
	// Categories overrides adapter category paths, keyed by seedbank slug.
	Categories map[string][]string
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type RobotsConfig struct {
	UserAgent string
	Timeout   time.Duration
}

type AlertsConfig struct {
	CheckInterval     time.Duration
	AntiSpamWindow    time.Duration
	DiscountThreshold float64
	RetentionDays     int
}

func (a AlertsConfig) Retention() time.Duration {
	return time.Duration(a.RetentionDays) * 24 * time.Hour
}

type DatabaseConfig struct {
	URL         string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxConns    int
	MinConns    int
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Driver       string
	SnapshotPath string
}

type EventsConfig struct {
	Driver             string
	NotificationStream string
	StreamMaxLen       int64
	PriceChannel       string
	RelayInterval      time.Duration
	RelayBatchSize     int
}

type JobsConfig struct {
	ScrapeInterval      time.Duration
	SweepInterval       time.Duration
	MaxParallelScrapers int
	HistorySize         int
	CheckAlertsAfterRun bool
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LoadDotEnv reads KEY=value pairs from the given files into the environment
// without overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func Load() (*Config, error) {
	hostname, _ := os.Hostname()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Scraper: ScraperConfig{
			RateLimit:         getDurationOrDefault("SCRAPER_RATE_LIMIT", 2*time.Second),
			RateLimitJitter:   getDurationOrDefault("SCRAPER_RATE_LIMIT_JITTER", 0),
			NavigationTimeout: getDurationOrDefault("SCRAPER_NAVIGATION_TIMEOUT", 30*time.Second),
			MaxRetries:        getIntOrDefault("SCRAPER_MAX_RETRIES", 3),
			RetryBackoff:      getDurationOrDefault("SCRAPER_RETRY_BACKOFF", 3*time.Second),
			ProgressEvery:     getIntOrDefault("SCRAPER_PROGRESS_EVERY", 10),
			PriceTTL:          getDurationOrDefault("SCRAPER_PRICE_TTL", 24*time.Hour),
			DefaultCurrency:   getEnvOrDefault("SCRAPER_DEFAULT_CURRENCY", "EUR"),
			InstanceID:        getEnvOrDefault("SCRAPER_INSTANCE_ID", hostname),
			Categories:        categoryOverrides(os.Environ()),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", ""),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "de-DE,de;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Berlin"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "de-DE"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Robots: RobotsConfig{
			UserAgent: getEnvOrDefault("ROBOTS_USER_AGENT", "SeedPriceBot"),
			Timeout:   getDurationOrDefault("ROBOTS_TIMEOUT", 10*time.Second),
		},
		Alerts: AlertsConfig{
			CheckInterval:     getDurationOrDefault("ALERT_CHECK_INTERVAL", 5*time.Minute),
			AntiSpamWindow:    getDurationOrDefault("ALERT_ANTI_SPAM_WINDOW", 24*time.Hour),
			DiscountThreshold: getFloatOrDefault("ALERT_DISCOUNT_THRESHOLD", 20),
			RetentionDays:     getIntOrDefault("ALERT_RETENTION_DAYS", 90),
		},
		Database: DatabaseConfig{
			URL:         getEnvOrDefault("DATABASE_URL", ""),
			Host:        getEnvOrDefault("DB_HOST", "localhost"),
			Port:        getIntOrDefault("DB_PORT", 5432),
			User:        getEnvOrDefault("DB_USER", "postgres"),
			Password:    getEnvOrDefault("DB_PASSWORD", ""),
			DBName:      getEnvOrDefault("DB_NAME", "seed_prices"),
			SSLMode:     getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns:    getIntOrDefault("DB_MAX_CONNS", 20),
			MinConns:    getIntOrDefault("DB_MIN_CONNS", 2),
			MaxConnLife: getDurationOrDefault("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxConnIdle: getDurationOrDefault("DB_MAX_CONN_IDLE", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Driver:       getEnvOrDefault("STORAGE_DRIVER", StorageDriverPostgres),
			SnapshotPath: getEnvOrDefault("STORAGE_SNAPSHOT_PATH", ""),
		},
		Events: EventsConfig{
			Driver:             getEnvOrDefault("EVENTS_DRIVER", EventsDriverOutbox),
			NotificationStream: getEnvOrDefault("EVENTS_NOTIFICATION_STREAM", "stream:notifications"),
			StreamMaxLen:       int64(getIntOrDefault("EVENTS_STREAM_MAX_LEN", 10000)),
			PriceChannel:       getEnvOrDefault("EVENTS_PRICE_CHANNEL", "price:updated"),
			RelayInterval:      getDurationOrDefault("EVENTS_RELAY_INTERVAL", 5*time.Second),
			RelayBatchSize:     getIntOrDefault("EVENTS_RELAY_BATCH_SIZE", 100),
		},
		Jobs: JobsConfig{
			ScrapeInterval:      getDurationOrDefault("JOBS_SCRAPE_INTERVAL", 6*time.Hour),
			SweepInterval:       getDurationOrDefault("JOBS_SWEEP_INTERVAL", 24*time.Hour),
			MaxParallelScrapers: getIntOrDefault("JOBS_MAX_PARALLEL_SCRAPERS", 3),
			HistorySize:         getIntOrDefault("JOBS_HISTORY_SIZE", 50),
			CheckAlertsAfterRun: getBoolOrDefault("JOBS_CHECK_ALERTS_AFTER_RUN", true),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.RateLimit <= 0 {
		return fmt.Errorf("SCRAPER_RATE_LIMIT must be positive")
	}

	if c.Scraper.RateLimitJitter < 0 {
		return fmt.Errorf("SCRAPER_RATE_LIMIT_JITTER cannot be negative")
	}

	if c.Scraper.MaxRetries < 1 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES must be at least 1")
	}

	if c.Scraper.RetryBackoff < 0 {
		return fmt.Errorf("SCRAPER_RETRY_BACKOFF cannot be negative")
	}

	if c.Scraper.PriceTTL <= 0 {
		return fmt.Errorf("SCRAPER_PRICE_TTL must be positive")
	}

	if c.Alerts.DiscountThreshold < 0 || c.Alerts.DiscountThreshold > 100 {
		return fmt.Errorf("ALERT_DISCOUNT_THRESHOLD must be between 0 and 100")
	}

	if c.Alerts.AntiSpamWindow <= 0 {
		return fmt.Errorf("ALERT_ANTI_SPAM_WINDOW must be positive")
	}

	if c.Alerts.RetentionDays < 1 {
		return fmt.Errorf("ALERT_RETENTION_DAYS must be at least 1")
	}

	if c.Jobs.MaxParallelScrapers < 1 {
		return fmt.Errorf("JOBS_MAX_PARALLEL_SCRAPERS must be at least 1")
	}

	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	switch c.Events.Driver {
	case EventsDriverOutbox, EventsDriverStream, EventsDriverLog:
	default:
		return fmt.Errorf("unknown EVENTS_DRIVER %q", c.Events.Driver)
	}

	if c.Events.Driver == EventsDriverOutbox && c.Storage.Driver != StorageDriverPostgres {
		return fmt.Errorf("EVENTS_DRIVER=outbox requires STORAGE_DRIVER=postgres")
	}

	return nil
}

const categoryPrefix = "SCRAPER_CATEGORIES_"

// categoryOverrides collects SCRAPER_CATEGORIES_<SLUG>=path,path entries.
// The slug is lowercased and underscores become dashes, so
// SCRAPER_CATEGORIES_SENSI_SEEDS configures "sensi-seeds".
func categoryOverrides(environ []string) map[string][]string {
	out := make(map[string][]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, categoryPrefix) {
			continue
		}
		slug := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, categoryPrefix)), "_", "-")
		var paths []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		if slug != "" && len(paths) > 0 {
			out[slug] = paths
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
