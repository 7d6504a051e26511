package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/kjannette/dolarbot/internal/api"
	"github.com/kjannette/dolarbot/internal/bot"
	"github.com/kjannette/dolarbot/internal/broadcast"
	"github.com/kjannette/dolarbot/internal/cache"
	"github.com/kjannette/dolarbot/internal/config"
	"github.com/kjannette/dolarbot/internal/db"
	"github.com/kjannette/dolarbot/internal/httputil"
	"github.com/kjannette/dolarbot/internal/logging"
	"github.com/kjannette/dolarbot/internal/metrics"
	"github.com/kjannette/dolarbot/internal/notifications"
	"github.com/kjannette/dolarbot/internal/repository"
	"github.com/kjannette/dolarbot/internal/scheduler"
	"github.com/kjannette/dolarbot/internal/scraper"
)

const banner = `
╔══════════════════════════════════════╗
║        dolarBOT price reminders      ║
║                                      ║
╚══════════════════════════════════════╝
`

// Long polling holds a request open for pollTimeout; the HTTP client must
// outlast it.
const (
	pollTimeout       = 60
	telegramClientTTL = 75 * time.Second
)

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	cfg.Print(log)

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec := metrics.New()
	alerts := notifications.NewAlerter(cfg.AlertWebhookURL, cfg.BotName, logging.Component(log, "alerts"))

	// Database
	dbLog := logging.Component(log, "db")
	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DatabaseURL, dbLog); err != nil {
			dbLog.Fatal().Err(err).Msg("migration failed")
		}
	}
	poolOpts := db.DefaultPoolOptions()
	poolOpts.MaxConns = int32(cfg.DBMaxConns)
	poolOpts.MinConns = int32(cfg.DBMinConns)
	poolOpts.ConnectTimeout = cfg.DBConnectTimeout()
	pool, err := db.Connect(ctx, cfg.DatabaseURL, poolOpts, dbLog)
	if err != nil {
		dbLog.Fatal().Err(err).Msg("connection failed")
	}
	defer func() {
		pool.Close()
		dbLog.Info().Msg("connection pool closed")
	}()
	if err := db.CheckSchema(ctx, pool, dbLog); err != nil {
		dbLog.Fatal().Err(err).Msg("schema check failed")
	}
	users := repository.NewUserRepo(pool)

	// Snapshot cache
	cacheLog := logging.Component(log, "cache")
	snapshots := newSnapshotStore(ctx, cfg, cacheLog)
	defer closeStore(snapshots, cacheLog)

	// Price source
	scrapeLog := logging.Component(log, "scraper")
	browser, err := scraper.NewBrowser(scraper.BrowserOptions{
		ExecPath:          cfg.ChromePath,
		NoSandbox:         cfg.InContainer,
		NavigationTimeout: cfg.NavigationTimeout(),
	})
	if err != nil {
		scrapeLog.Fatal().Err(err).Msg("browser start failed")
	}
	defer browser.Close()

	source := scraper.NewSource(browser, cfg.Pairs,
		scraper.WithElementTimeout(cfg.ElementTimeout()),
		scraper.WithLogger(scrapeLog),
		scraper.WithMetrics(rec),
	)
	defer func() {
		if err := source.Close(); err != nil {
			scrapeLog.Warn().Err(err).Msg("close sessions")
		}
	}()
	if cfg.PrewarmSessions {
		go func() {
			if err := source.Prewarm(ctx); err != nil {
				scrapeLog.Warn().Err(err).Msg("prewarm incomplete")
			}
		}()
	}

	// Telegram
	tgLog := logging.Component(log, "telegram")
	tgbotapi.SetLogger(logging.PrintLogger{L: tgLog})
	retry := httputil.DefaultRetry
	retry.Log = &tgLog
	tg, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, cfg.TelegramEndpoint(), httputil.NewClient(telegramClientTTL, retry))
	if err != nil {
		tgLog.Fatal().Err(err).Msg("bot login failed")
	}
	tgLog.Info().Str("username", tg.Self.UserName).Msg("logged in")

	sender := notifications.NewTelegram(tg, cfg.DeliveryRatePerSecond, cfg.DeliveryBurst)

	// 1. Broadcast batch + scheduler
	bcLog := logging.Component(log, "broadcast")
	batch := broadcast.NewBatch(broadcast.Deps{
		Prices:      source,
		Directory:   users,
		Sender:      sender,
		Reaper:      broadcast.NewReaper(users, bcLog, rec),
		Cache:       snapshots,
		Alerts:      alerts,
		Metrics:     rec,
		Log:         bcLog,
		Concurrency: cfg.DeliveryConcurrency,
	})

	sched, err := scheduler.New(batch, scheduler.Config{
		Location:  cfg.Location(),
		RunOnInit: cfg.RunOnInit,
	}, logging.Component(log, "scheduler"))
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler setup failed")
	}

	// 2. Ops API
	apiLog := logging.Component(log, "api")
	srv := api.NewServer(api.Deps{
		DB:          pool,
		Sessions:    source,
		Snapshots:   snapshots,
		Scheduler:   sched,
		Subscribers: users,
		Metrics:     rec.Handler(),
		Log:         apiLog,
	}, cfg.APIPort, cfg.APIKey, cfg.CORSAllowOrigin)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			apiLog.Fatal().Err(err).Msg("server error")
		}
	}()

	// 3. Interactive bot
	botLog := logging.Component(log, "bot")
	chat := bot.New(bot.Deps{
		API:          tg,
		Directory:    users,
		Prices:       source,
		Cache:        snapshots,
		Metrics:      rec,
		Log:          botLog,
		Name:         cfg.BotName,
		ReplyTimeout: cfg.ReplyTimeout(),
	})
	if err := chat.RegisterCommands(); err != nil {
		botLog.Warn().Err(err).Msg("command list not registered")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := tg.GetUpdatesChan(u)

	var serving sync.WaitGroup
	serving.Add(1)
	go func() {
		defer serving.Done()
		chat.Serve(ctx, updates)
	}()

	sched.Start()

	log.Info().Msg("all services started")
	alerts.Alert(ctx, fmt.Sprintf("started, tracking %d pairs", len(cfg.Pairs)))

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("shutting down gracefully")

	tg.StopReceivingUpdates()
	sched.Stop()
	serving.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		apiLog.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("shutdown complete")
}

// newSnapshotStore prefers Redis and falls back to process memory when Redis
// is not configured or unreachable.
func newSnapshotStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) cache.Store {
	if cfg.RedisAddr == "" {
		log.Info().Msg("using in-memory snapshot cache")
		return cache.NewMemory(cfg.SnapshotTTL())
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	r, err := cache.NewRedis(pingCtx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, cfg.SnapshotTTL())
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-memory snapshot cache")
		return cache.NewMemory(cfg.SnapshotTTL())
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("using redis snapshot cache")
	return r
}

// closeStore releases stores that hold a connection.
func closeStore(s cache.Store, log zerolog.Logger) {
	c, ok := s.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Msg("close snapshot cache")
		return
	}
	log.Info().Msg("snapshot cache closed")
}
