// Package sync — фоновая синхронизация кэша: периодический обход
// настроенных категорий и обработка ручных задач из очереди.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"ua-news-backend/internal/domain"
	"ua-news-backend/internal/usecase/feed"
)

// Config описывает параметры синхронизатора.
type Config struct {
	Interval   time.Duration
	Categories []string
	Throttle   time.Duration
}

// Service периодически обновляет настроенные категории и потребляет
// очередь ручных задач. Ошибки обновления ретраятся с экспоненциальной
// паузой и никогда не валят процесс.
type Service struct {
	logger zerolog.Logger
	feed   *feed.Service
	queue  domain.RefreshQueue
	cfg    Config
}

// NewService создаёт синхронизатор.
func NewService(logger zerolog.Logger, feedSvc *feed.Service, queue domain.RefreshQueue, cfg Config) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = []string{domain.DefaultCategory}
	}
	if cfg.Throttle <= 0 {
		cfg.Throttle = time.Minute
	}
	return &Service{
		logger: logger.With().Str("component", "sync").Logger(),
		feed:   feedSvc,
		queue:  queue,
		cfg:    cfg,
	}
}

// Run запускает оба цикла и блокируется до отмены контекста.
func (s *Service) Run(ctx context.Context) {
	go s.runLoop(ctx, "scheduler", s.scheduleLoop)
	s.runLoop(ctx, "consumer", s.consumeLoop)
}

// runLoop держит цикл живым: паника логируется, цикл перезапускается.
func (s *Service) runLoop(ctx context.Context, name string, loop func(context.Context)) {
	for ctx.Err() == nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().Interface("panic", r).Str("loop", name).Msg("цикл упал, перезапуск")
				}
			}()
			loop(ctx)
		}()
	}
}

// scheduleLoop обходит настроенные категории раз в интервал. Первый обход
// выполняется сразу при старте.
func (s *Service) scheduleLoop(ctx context.Context) {
	s.refreshAll(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshAll(ctx)
		}
	}
}

func (s *Service) refreshAll(ctx context.Context) {
	for _, category := range s.cfg.Categories {
		if ctx.Err() != nil {
			return
		}
		if err := s.refreshWithRetry(ctx, category); err != nil {
			s.logger.Error().Err(err).Str("category", category).Msg("категория не обновилась после ретраев")
		}
	}
}

// refreshWithRetry обновляет категорию с экспоненциальными паузами между
// попытками. Окно Once гасит повторы, если категорию только что обновили
// по ручной задаче.
func (s *Service) refreshWithRetry(ctx context.Context, category string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxElapsedTime = 2 * time.Minute
	policy := backoff.WithContext(bo, ctx)

	return backoff.Retry(func() error {
		err := s.feed.RefreshThrottled(ctx, category, domain.SourceNewsAPI, s.cfg.Throttle)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// consumeLoop читает ручные задачи из очереди. Задачи идемпотентны в
// пределах окна Once, повторная доставка безвредна.
func (s *Service) consumeLoop(ctx context.Context) {
	for {
		job, err := s.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msg("чтение очереди не удалось")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if err := s.handleJob(ctx, job); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Str("category", job.Category).Msg("задача не выполнена")
		}
	}
}

func (s *Service) handleJob(ctx context.Context, job domain.RefreshJob) error {
	s.logger.Info().
		Str("job_id", job.ID).
		Str("category", job.Category).
		Str("cause", string(job.Cause)).
		Msg("задача обновления принята")

	if job.Cause == domain.RefreshCauseManual {
		// Ручной запрос обходит окно троттлинга.
		if err := s.feed.Refresh(ctx, job.Category, domain.SourceNewsAPI); err != nil {
			return fmt.Errorf("ручное обновление: %w", err)
		}
		return nil
	}
	return s.feed.RefreshThrottled(ctx, job.Category, domain.SourceNewsAPI, s.cfg.Throttle)
}
