// Package alert — публикация текстовых оповещений в MQTT-брокер умного
// дома (тема телевизора в гостиной).
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ua-news-backend/internal/infra/metrics"
)

// Config описывает параметры издателя.
type Config struct {
	BrokerURL string
	Topic     string
	Timeout   time.Duration
}

// Publisher лениво подключается к брокеру и переиспользует соединение.
// Ошибка публикации возвращается вызывающему и не фатальна для процесса.
type Publisher struct {
	logger zerolog.Logger
	cfg    Config

	mu     sync.Mutex
	client mqtt.Client
}

// NewPublisher создаёт издатель без подключения.
func NewPublisher(logger zerolog.Logger, cfg Config) *Publisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Publisher{
		logger: logger.With().Str("component", "alert").Logger(),
		cfg:    cfg,
	}
}

// connect возвращает живое соединение, подключаясь при первом вызове.
func (p *Publisher) connect() (mqtt.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil && p.client.IsConnected() {
		return p.client, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(p.cfg.BrokerURL).
		SetClientID("ua-news-" + uuid.NewString()[:8]).
		SetCleanSession(true).
		SetConnectTimeout(p.cfg.Timeout)
	client := mqtt.NewClient(opts)

	start := time.Now()
	token := client.Connect()
	ok := token.WaitTimeout(p.cfg.Timeout)
	err := token.Error()
	if ok && err == nil {
		metrics.ObserveNetworkRequest("alert", "connect", p.cfg.BrokerURL, start, nil)
		p.client = client
		p.logger.Info().Str("broker", p.cfg.BrokerURL).Msg("подключились к MQTT-брокеру")
		return client, nil
	}
	if err == nil {
		err = fmt.Errorf("таймаут подключения к брокеру %s", p.cfg.BrokerURL)
	}
	metrics.ObserveNetworkRequest("alert", "connect", p.cfg.BrokerURL, start, err)
	return nil, err
}

// Publish отправляет текст оповещения с QoS 1 (доставка минимум один раз,
// дубликаты возможны). Контекст ограничивает ожидание подтверждения.
func (p *Publisher) Publish(ctx context.Context, message string) error {
	client, err := p.connect()
	if err != nil {
		metrics.AlertPublishTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("подключение к брокеру: %w", err)
	}

	timeout := p.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	token := client.Publish(p.cfg.Topic, 1, false, message)
	if !token.WaitTimeout(timeout) {
		metrics.AlertPublishTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("таймаут публикации в %s", p.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		metrics.AlertPublishTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("публикация в %s: %w", p.cfg.Topic, err)
	}
	metrics.AlertPublishTotal.WithLabelValues("success").Inc()
	p.logger.Info().Str("topic", p.cfg.Topic).Msg("оповещение опубликовано")
	return nil
}

// Close разрывает соединение с брокером.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	p.client = nil
}
