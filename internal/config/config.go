package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/kjannette/dolarbot/internal/models"
)

type Config struct {
	// Secrets (from .env)
	BotToken        string
	DatabaseURL     string
	APIKey          string
	AlertWebhookURL string

	// Telegram
	BotName         string
	TelegramAPIRoot string

	// Browser
	InContainer     bool
	ChromePath      string
	PrewarmSessions bool

	// Logging
	LogLevel  string
	LogFormat string

	// Ops API
	APIPort         int
	CORSAllowOrigin string

	// Snapshot cache
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	SnapshotTTLMinutes int

	// Database pool
	DBMaxConns              int
	DBMinConns              int
	DBConnectTimeoutSeconds int

	// Scheduling
	CronTimezone   string
	RunOnInit      bool
	MigrateOnStart bool

	// Timing
	ReplyTimeoutSeconds      int
	NavigationTimeoutSeconds int
	ElementTimeoutSeconds    int

	// Delivery
	DeliveryRatePerSecond float64
	DeliveryBurst         int
	DeliveryConcurrency   int

	PairsFile string
	Pairs     []models.Pair
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		BotToken:        envStr("BOT_TOKEN", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		APIKey:          envStr("API_KEY", ""),
		AlertWebhookURL: envStr("ALERT_WEBHOOK_URL", ""),

		BotName:         envStr("BOT_NAME", "dolarBOT"),
		TelegramAPIRoot: envStr("TELEGRAM_API_ROOT", ""),

		InContainer:     envBool("IS_CONTAINER", false),
		ChromePath:      envStr("CHROME_PATH", ""),
		PrewarmSessions: envBool("PREWARM_SESSIONS", true),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "console"),

		APIPort:         envInt("API_PORT", 3001),
		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),

		RedisAddr:          envStr("REDIS_ADDR", ""),
		RedisPassword:      envStr("REDIS_PASSWORD", ""),
		RedisDB:            envInt("REDIS_DB", 0),
		SnapshotTTLMinutes: envInt("SNAPSHOT_TTL_MINUTES", 180),

		DBMaxConns:              envInt("DB_MAX_CONNS", 4),
		DBMinConns:              envInt("DB_MIN_CONNS", 1),
		DBConnectTimeoutSeconds: envInt("DB_CONNECT_TIMEOUT_SECONDS", 10),

		CronTimezone:   envStr("CRON_TIMEZONE", "UTC"),
		RunOnInit:      envBool("RUN_ON_INIT", true),
		MigrateOnStart: envBool("MIGRATE_ON_START", true),

		ReplyTimeoutSeconds:      envInt("REPLY_TIMEOUT_SECONDS", 10),
		NavigationTimeoutSeconds: envInt("NAVIGATION_TIMEOUT_SECONDS", 30),
		ElementTimeoutSeconds:    envInt("ELEMENT_TIMEOUT_SECONDS", 30),

		DeliveryRatePerSecond: envFloat("DELIVERY_RATE_PER_SECOND", 25),
		DeliveryBurst:         envInt("DELIVERY_BURST", 5),
		DeliveryConcurrency:   envInt("DELIVERY_CONCURRENCY", 8),

		PairsFile: envStr("PAIRS_FILE", ""),
	}

	pairs, err := LoadPairs(cfg.PairsFile)
	if err != nil {
		return nil, err
	}
	cfg.Pairs = pairs

	return cfg, nil
}

// ValidationError lists every configuration problem found at startup.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  %s", strings.Join(e.Problems, "\n  "))
}

func (c *Config) Validate() error {
	var errs []string

	if c.BotToken == "" {
		errs = append(errs, "BOT_TOKEN is required")
	}
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.TelegramAPIRoot != "" {
		if u, err := url.Parse(c.TelegramAPIRoot); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "TELEGRAM_API_ROOT must be an absolute URL")
		}
	}
	if _, err := time.LoadLocation(c.CronTimezone); err != nil {
		errs = append(errs, fmt.Sprintf("CRON_TIMEZONE %q is not a known location", c.CronTimezone))
	}
	if c.ReplyTimeoutSeconds <= 0 {
		errs = append(errs, "REPLY_TIMEOUT_SECONDS must be positive")
	}
	if c.DBMaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		errs = append(errs, "DB_MIN_CONNS must be between 0 and DB_MAX_CONNS")
	}
	if c.DeliveryConcurrency <= 0 {
		errs = append(errs, "DELIVERY_CONCURRENCY must be positive")
	}
	if len(c.Pairs) == 0 {
		errs = append(errs, "at least one tracked pair is required")
	}

	if len(errs) > 0 {
		return &ValidationError{Problems: errs}
	}
	return nil
}

func (c *Config) Print(log zerolog.Logger) {
	quotes := make([]string, len(c.Pairs))
	for i, p := range c.Pairs {
		quotes[i] = p.String()
	}

	log.Info().
		Str("bot", c.BotName).
		Str("telegram_api", boolLabel(c.TelegramAPIRoot != "", c.TelegramAPIRoot, "default")).
		Strs("pairs", quotes).
		Bool("container", c.InContainer).
		Bool("run_on_init", c.RunOnInit).
		Str("timezone", c.CronTimezone).
		Str("cache", boolLabel(c.RedisAddr != "", "redis "+c.RedisAddr, "memory")).
		Str("alerts", boolLabel(c.AlertWebhookURL != "", "webhook", "disabled")).
		Int("api_port", c.APIPort).
		Int("db_max_conns", c.DBMaxConns).
		Msg("configuration loaded")

	if c.APIKey == "" {
		log.Warn().Msg("API_KEY not set, ops API has no authentication")
	}
}

// TelegramEndpoint returns the tgbotapi endpoint format for the configured API root.
func (c *Config) TelegramEndpoint() string {
	if c.TelegramAPIRoot == "" {
		return "https://api.telegram.org/bot%s/%s"
	}
	return strings.TrimRight(c.TelegramAPIRoot, "/") + "/bot%s/%s"
}

func (c *Config) ReplyTimeout() time.Duration {
	return time.Duration(c.ReplyTimeoutSeconds) * time.Second
}

func (c *Config) DBConnectTimeout() time.Duration {
	return time.Duration(c.DBConnectTimeoutSeconds) * time.Second
}

func (c *Config) NavigationTimeout() time.Duration {
	return time.Duration(c.NavigationTimeoutSeconds) * time.Second
}

func (c *Config) ElementTimeout() time.Duration {
	return time.Duration(c.ElementTimeoutSeconds) * time.Second
}

func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLMinutes) * time.Minute
}

// Location returns the cron location, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.CronTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
