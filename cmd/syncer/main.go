package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"ua-news-backend/internal/adapters/newsapi"
	"ua-news-backend/internal/adapters/repo"
	"ua-news-backend/internal/adapters/rss"
	"ua-news-backend/internal/infra/cache"
	"ua-news-backend/internal/infra/config"
	"ua-news-backend/internal/infra/db"
	applog "ua-news-backend/internal/infra/log"
	"ua-news-backend/internal/infra/metrics"
	"ua-news-backend/internal/infra/queue"
	"ua-news-backend/internal/usecase/feed"
	syncusecase "ua-news-backend/internal/usecase/sync"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv).With().Str("service", "syncer").Logger()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger, ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("syncer: нет подключения к БД")
	}
	defer pool.Close()

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("syncer: миграция схемы не удалась")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	store := repo.NewPostgres(pool)
	throttle := cache.NewRedis(redisClient)
	refreshQueue := queue.NewRedisRefreshQueue(redisClient, cfg.Queues.Refresh)

	headlines := newsapi.NewClient(newsapi.Config{
		BaseURL: cfg.NewsAPI.BaseURL,
		APIKey:  cfg.NewsAPI.APIKey,
		Country: cfg.NewsAPI.Country,
		Timeout: cfg.NewsAPI.Timeout,
	})
	feedSource := rss.NewClient(rss.Config{
		FeedURL: cfg.RSS.FeedURL,
		Timeout: cfg.RSS.Timeout,
	})

	feedSvc := feed.NewService(logger, store, headlines, feedSource, throttle)
	syncer := syncusecase.NewService(logger, feedSvc, refreshQueue, syncusecase.Config{
		Interval:   cfg.Sync.Interval,
		Categories: cfg.SyncCategories(),
		Throttle:   cfg.Sync.Throttle,
	})

	logger.Info().
		Dur("interval", cfg.Sync.Interval).
		Strs("categories", cfg.SyncCategories()).
		Msg("syncer: запущен")
	syncer.Run(ctx)
	logger.Info().Msg("syncer: остановлен")
}
