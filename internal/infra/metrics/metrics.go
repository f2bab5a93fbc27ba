package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	RefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_refresh_total",
		Help: "Количество обновлений кэша по категориям",
	}, []string{"category", "status"})

	RefreshDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_refresh_seconds",
		Help:    "Время обновления категории",
		Buckets: prometheus.DefBuckets,
	})

	ToggleTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "article_toggle_total",
		Help: "Количество переключений сохранено/лайк",
	}, []string{"kind", "state"})

	TickerMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "price_ticker_messages_total",
		Help: "Количество принятых сообщений тикера",
	})

	AlertPublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_publish_total",
		Help: "Количество публикаций алертов в MQTT",
	}, []string{"status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		RefreshTotal,
		RefreshDuration,
		ToggleTotal,
		TickerMessagesTotal,
		AlertPublishTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveRefresh записывает исход обновления категории.
func ObserveRefresh(category string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RefreshTotal.WithLabelValues(category, status).Inc()
	RefreshDuration.Observe(time.Since(start).Seconds())
}
