// Package ticker — живой поток цены с websocket-фида биржи Coinbase.
package ticker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"ua-news-backend/internal/infra/metrics"
	"ua-news-backend/internal/infra/watch"
)

// Config описывает параметры потока.
type Config struct {
	URL       string
	ProductID string
}

// Stream держит одно websocket-соединение и публикует последнюю цену в
// ячейку состояния. Сообщения с type != "ticker" или пустой ценой
// отбрасываются, кривой JSON логируется и пропускается.
type Stream struct {
	logger zerolog.Logger
	cfg    Config
	price  *watch.Value[string]

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

// NewStream создаёт поток без подключения.
func NewStream(logger zerolog.Logger, cfg Config) *Stream {
	return &Stream{
		logger: logger.With().Str("component", "ticker").Logger(),
		cfg:    cfg,
		price:  watch.NewValue[string](),
	}
}

// Price возвращает ячейку последней цены.
func (s *Stream) Price() *watch.Value[string] { return s.price }

// Start подключается к фиду и запускает цикл чтения. Повторный вызов на
// запущенном потоке ничего не делает. Соединение закрывается при Stop или
// отмене контекста.
func (s *Stream) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true
	go s.run(streamCtx)
}

// Stop закрывает соединение и останавливает цикл чтения.
func (s *Stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	s.started = false
}

// run переподключается при обрыве, пока контекст жив.
func (s *Stream) run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := s.connectAndRead(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("поток цены оборвался, переподключение")
			select {
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
			}
		}
	}
}

type subscribeRequest struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

type tickerMessage struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
}

func (s *Stream) connectAndRead(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	start := time.Now()
	conn, _, err := websocket.Dial(dialCtx, s.cfg.URL, nil)
	cancel()
	metrics.ObserveNetworkRequest("ticker", "dial", s.cfg.URL, start, err)
	if err != nil {
		return fmt.Errorf("подключение к фиду: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	subscribe, err := json.Marshal(subscribeRequest{
		Type:       "subscribe",
		ProductIDs: []string{s.cfg.ProductID},
		Channels:   []string{"ticker"},
	})
	if err != nil {
		return fmt.Errorf("сериализация подписки: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, subscribe); err != nil {
		return fmt.Errorf("отправка подписки: %w", err)
	}
	s.logger.Info().Str("product", s.cfg.ProductID).Msg("подписка на тикер отправлена")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("чтение фида: %w", err)
		}

		var msg tickerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn().Err(err).Msg("кривое сообщение фида пропущено")
			continue
		}
		if msg.Type != "ticker" || msg.Price == "" {
			continue
		}
		metrics.TickerMessagesTotal.Inc()
		s.price.Set(msg.Price)
	}
}
