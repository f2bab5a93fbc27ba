// Package feed — оркестрация обновления кэша статей и наблюдение за ним.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ua-news-backend/internal/domain"
	"ua-news-backend/internal/infra/metrics"
	"ua-news-backend/internal/infra/watch"
)

const defaultPageSize = 20

// Store объединяет кэш статей с каналом уведомлений о записях.
type Store interface {
	domain.CacheRepo
	domain.StoreEvents
}

// Service обновляет кэш категорий из удалённых источников и раздаёт
// наблюдаемые снимки кэша. Обновление и наблюдение разделены: Observe
// никогда не ходит в сеть сам.
type Service struct {
	logger   zerolog.Logger
	store    Store
	headline domain.HeadlineSource
	rss      domain.FeedSource
	throttle domain.Cache
	pageSize int

	mu    sync.Mutex
	locks map[string]*categoryLock
}

// categoryLock — мьютекс категории со счётчиком ожидающих: запись в locks
// живёт только пока категорию кто-то обновляет, карта не растёт бесконечно.
type categoryLock struct {
	mu   sync.Mutex
	refs int
}

// NewService создаёт сервис обновления.
func NewService(logger zerolog.Logger, store Store, headline domain.HeadlineSource, rss domain.FeedSource, throttle domain.Cache) *Service {
	return &Service{
		logger:   logger.With().Str("component", "feed").Logger(),
		store:    store,
		headline: headline,
		rss:      rss,
		throttle: throttle,
		pageSize: defaultPageSize,
		locks:    make(map[string]*categoryLock),
	}
}

// lockCategory захватывает мьютекс категории и возвращает функцию
// освобождения. Конкурентные обновления одной категории сериализуются,
// разных — идут параллельно; последняя освободившая удаляет запись.
func (s *Service) lockCategory(category string) func() {
	s.mu.Lock()
	lock, ok := s.locks[category]
	if !ok {
		lock = &categoryLock{}
		s.locks[category] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, category)
		}
		s.mu.Unlock()
	}
}

// Refresh выгружает первую страницу категории и атомарно заменяет ей
// партицию кэша. Ошибка выгрузки оставляет кэш нетронутым. Пустой
// результат — валидное состояние, партиция очищается.
func (s *Service) Refresh(ctx context.Context, category string, source domain.Source) error {
	category = domain.NormalizeCategory(category)
	if category == "" {
		category = domain.DefaultCategory
	}

	unlock := s.lockCategory(category)
	defer unlock()

	start := time.Now()
	err := s.refresh(ctx, category, source)
	metrics.ObserveRefresh(category, start, err)
	if err != nil {
		s.logger.Error().Err(err).Str("category", category).Msg("обновление категории не удалось")
		return err
	}
	s.logger.Info().Str("category", category).Str("source", string(source)).Msg("категория обновлена")
	return nil
}

func (s *Service) refresh(ctx context.Context, category string, source domain.Source) error {
	var (
		articles []domain.Article
		err      error
	)
	switch source {
	case domain.SourceRSS:
		articles, err = s.rss.Fetch(ctx)
	default:
		articles, err = s.headline.FetchPage(ctx, category, 1, s.pageSize)
	}
	if err != nil {
		return fmt.Errorf("выгрузка статей %q: %w", category, err)
	}

	if err := s.store.ReplaceCategory(ctx, category, articles); err != nil {
		return fmt.Errorf("замена кэша %q: %w", category, err)
	}
	return nil
}

// RefreshThrottled обновляет категорию не чаще, чем раз в ttl. Повторный
// вызов внутри окна — не ошибка, обновление просто пропускается.
func (s *Service) RefreshThrottled(ctx context.Context, category string, source domain.Source, ttl time.Duration) error {
	category = domain.NormalizeCategory(category)
	if category == "" {
		category = domain.DefaultCategory
	}
	return s.throttle.Once("refresh:"+category, ttl, func() error {
		return s.Refresh(ctx, category, source)
	})
}

// Observe возвращает ячейку состояния с текущим снимком категории.
// Ячейка переигрывает последнее значение новому подписчику и обновляется
// после каждой закоммиченной записи в кэш этой категории. Функцию
// остановки нужно вызвать при завершении наблюдателя.
func (s *Service) Observe(ctx context.Context, category string) (*watch.Value[[]domain.Article], func()) {
	category = domain.NormalizeCategory(category)

	value := watch.NewValue[[]domain.Article]()
	events, unsubscribe := s.store.SubscribeStoreEvents()

	observeCtx, cancel := context.WithCancel(ctx)

	requery := func() {
		articles, err := s.store.ListByCategory(observeCtx, category)
		if err != nil {
			if observeCtx.Err() == nil {
				s.logger.Error().Err(err).Str("category", category).Msg("чтение кэша для наблюдателя не удалось")
			}
			return
		}
		value.Set(articles)
	}
	requery()

	go func() {
		defer value.Close()
		for {
			select {
			case <-observeCtx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if event.Table != domain.TableArticlesCache {
					continue
				}
				if event.Category != "" && event.Category != category {
					continue
				}
				requery()
			}
		}
	}()

	return value, func() {
		cancel()
		unsubscribe()
	}
}
