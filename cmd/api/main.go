package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"ua-news-backend/internal/adapters/alert"
	"ua-news-backend/internal/adapters/api"
	"ua-news-backend/internal/adapters/newsapi"
	"ua-news-backend/internal/adapters/repo"
	"ua-news-backend/internal/adapters/rss"
	"ua-news-backend/internal/adapters/ticker"
	"ua-news-backend/internal/infra/cache"
	"ua-news-backend/internal/infra/config"
	"ua-news-backend/internal/infra/db"
	httpinfra "ua-news-backend/internal/infra/http"
	applog "ua-news-backend/internal/infra/log"
	"ua-news-backend/internal/infra/metrics"
	"ua-news-backend/internal/infra/queue"
	"ua-news-backend/internal/usecase/feed"
	"ua-news-backend/internal/usecase/pager"
	"ua-news-backend/internal/usecase/session"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv).With().Str("service", "api").Logger()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("api: миграция схемы не удалась")
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
	pg := pager.New(logger, headlines, feedSource)
	sess := session.New(ctx, logger, feedSvc, pg, store)
	defer sess.Stop()

	priceStream := ticker.NewStream(logger, ticker.Config{
		URL:       cfg.Ticker.URL,
		ProductID: cfg.Ticker.ProductID,
	})
	priceStream.Start(ctx)
	defer priceStream.Stop()

	alerts := alert.NewPublisher(logger, alert.Config{
		BrokerURL: cfg.Alert.BrokerURL,
		Topic:     cfg.Alert.Topic,
		Timeout:   cfg.Alert.Timeout,
	})
	defer alerts.Close()

	server := httpinfra.NewServer(logger)
	api.NewHandler(logger, sess, store, refreshQueue, priceStream, alerts).Register(server.Router)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api: остановка сервера не удалась")
		}
	}()

	if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
		logger.Fatal().Err(err).Msg("api: сервер упал")
	}
	logger.Info().Msg("api: остановлен")
}
