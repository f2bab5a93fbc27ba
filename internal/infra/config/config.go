package config

import (
	"log"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	NewsAPI struct {
		BaseURL  string        `envconfig:"NEWSAPI_BASE_URL" default:"https://newsapi.org"`
		APIKey   string        `envconfig:"NEWSAPI_KEY"`
		Country  string        `envconfig:"NEWSAPI_COUNTRY" default:"us"`
		PageSize int           `envconfig:"NEWSAPI_PAGE_SIZE" default:"20"`
		Timeout  time.Duration `envconfig:"NEWSAPI_TIMEOUT" default:"15s"`
	} `envconfig:""`

	RSS struct {
		FeedURL string        `envconfig:"RSS_FEED_URL" default:"https://www.pravda.com.ua/rss/"`
		Timeout time.Duration `envconfig:"RSS_TIMEOUT" default:"15s"`
	} `envconfig:""`

	Ticker struct {
		URL       string `envconfig:"TICKER_URL" default:"wss://ws-feed.exchange.coinbase.com"`
		ProductID string `envconfig:"TICKER_PRODUCT_ID" default:"BTC-USD"`
	} `envconfig:""`

	Alert struct {
		BrokerURL string        `envconfig:"MQTT_BROKER_URL" default:"tcp://broker.hivemq.com:1883"`
		Topic     string        `envconfig:"MQTT_ALERT_TOPIC" default:"newsapp/alert/tv21"`
		Timeout   time.Duration `envconfig:"MQTT_TIMEOUT" default:"10s"`
	} `envconfig:""`

	Sync struct {
		Interval   time.Duration `envconfig:"SYNC_INTERVAL" default:"15m"`
		Categories string        `envconfig:"SYNC_CATEGORIES" default:"general"`
		Throttle   time.Duration `envconfig:"SYNC_THROTTLE" default:"1m"`
	} `envconfig:""`

	Queues struct {
		Refresh string `envconfig:"REFRESH_QUEUE_KEY" default:"refresh_jobs"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// SyncCategories разбирает список категорий фоновой синхронизации.
func (c AppConfig) SyncCategories() []string {
	var out []string
	for _, part := range strings.Split(c.Sync.Categories, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
