package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"newscurator/internal/bot"
	"newscurator/internal/cache"
	"newscurator/internal/catalog"
	"newscurator/internal/config"
	"newscurator/internal/fetcher"
	"newscurator/internal/filter"
	"newscurator/internal/scheduler"
	"newscurator/internal/seed"
	"newscurator/internal/storage"
)

const sweepInterval = 10 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log.Level, cfg.Log.Format)

	if cfg.Telegram.BotToken == "" {
		log.Error("TELEGRAM_BOT_TOKEN is required")
		os.Exit(1)
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.NewSQLite(cfg.Database.Path)
	if err != nil {
		log.Error("open database", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	c, closeCache, err := newCache(ctx, cfg.Cache, log)
	if err != nil {
		log.Error("create cache", "backend", cfg.Cache.Backend, "error", err)
		os.Exit(1)
	}
	defer closeCache()

	bundles, err := seed.Bundles()
	if err != nil {
		log.Error("load seed bundles", "error", err)
		os.Exit(1)
	}
	cat := catalog.New(store, store, c, bundles, log)
	if err := cat.Bootstrap(ctx, 0); err != nil {
		log.Error("bootstrap catalog", "error", err)
		os.Exit(1)
	}

	f := fetcher.New(fetcher.NewHTTPClient(cfg.Feeds.InsecureSkipVerify), cfg.Feeds.UserAgent, cfg.Feeds.ValidationTimeout)
	validator := fetcher.NewValidator(f, c, log)

	b, err := bot.New(cfg.Telegram.BotToken, bot.Deps{
		Store:     store,
		Catalog:   cat,
		Validator: validator,
		Config:    cfg,
		Logger:    log,
	})
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(scheduler.Deps{
		Store:     store,
		Filters:   cat,
		Fetcher:   f,
		Validator: validator,
		Engine:    filter.NewEngine(c, cfg.Feeds.Workers, log),
		Sender:    b,
		Logger:    log,
	}, cfg.Feeds.CheckInterval)
	b.SetChecker(sched)

	log.Info("starting curator", "cache_backend", cfg.Cache.Backend, "seed_bundles", len(bundles))

	go sched.Run(ctx)

	b.Run(ctx)

	log.Info("curator stopped")
}

// newCache builds the configured cache backend and returns its cleanup.
func newCache(ctx context.Context, cfg config.CacheConfig, log *slog.Logger) (cache.Cache, func(), error) {
	if cfg.Backend == "redis" {
		r, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	}

	m := cache.NewMemory()
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.Sweep(); n > 0 {
					log.Debug("swept expired cache entries", "count", n)
				}
			}
		}
	}()
	return m, func() {}, nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
