// Package session — композиция состояния читателя: выбранная категория и
// источник, наблюдаемая лента, закладки, лайки и производная аналитика.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"ua-news-backend/internal/domain"
	"ua-news-backend/internal/infra/metrics"
	"ua-news-backend/internal/infra/watch"
	"ua-news-backend/internal/usecase/feed"
	"ua-news-backend/internal/usecase/pager"
)

// Тексты одноразовых уведомлений.
const (
	NoticeSaved   = "Статтю збережено"
	NoticeUnsaved = "Статтю видалено зі збережених"
	NoticeLiked   = "Статтю вподобано"
	NoticeUnliked = "Вподобання знято"
)

// Store объединяет хранилища, которые наблюдает сессия.
type Store interface {
	domain.CacheRepo
	domain.SavedRepo
	domain.LikedRepo
	domain.StoreEvents
}

// Session держит состояние одного читателя. Лента текущей категории,
// список закладок и множество лайков — ячейки состояния с повтором
// последнего значения; уведомления — событийный канал без повтора.
type Session struct {
	logger zerolog.Logger
	feed   *feed.Service
	pager  *pager.Pager
	store  Store

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	category      string
	source        domain.Source
	generation    int
	feedGen       int
	feedStop      func()
	refreshCancel context.CancelFunc

	feedValue  *watch.Value[[]domain.Article]
	savedValue *watch.Value[[]domain.Article]
	likedValue *watch.Value[[]domain.ArticleID]
	counts     *watch.Value[[]domain.CategoryCount]
	notices    *watch.Broadcast[string]

	toggleMu sync.Mutex
	toggles  map[domain.ArticleID]*articleLock
}

// articleLock — мьютекс статьи со счётчиком ожидающих: запись в toggles
// живёт только на время переключений этого id, карта не растёт бесконечно.
type articleLock struct {
	mu   sync.Mutex
	refs int
}

// New создаёт сессию с категорией по умолчанию и запускает наблюдателей
// хранилища. Stop обязателен при завершении.
func New(ctx context.Context, logger zerolog.Logger, feedSvc *feed.Service, pg *pager.Pager, store Store) *Session {
	sessionCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		logger:     logger.With().Str("component", "session").Logger(),
		feed:       feedSvc,
		pager:      pg,
		store:      store,
		ctx:        sessionCtx,
		cancel:     cancel,
		category:   domain.DefaultCategory,
		source:     domain.SourceNewsAPI,
		feedValue:  watch.NewValue[[]domain.Article](),
		savedValue: watch.NewValue[[]domain.Article](),
		likedValue: watch.NewValue[[]domain.ArticleID](),
		counts:     watch.NewValue[[]domain.CategoryCount](),
		notices:    watch.NewBroadcast[string](),
		toggles:    make(map[domain.ArticleID]*articleLock),
	}
	s.startFeedObserver(domain.DefaultCategory)
	s.refreshSaved()
	s.refreshLiked()
	go s.watchStores()
	return s
}

// Stop останавливает наблюдателей и закрывает все ячейки состояния.
func (s *Session) Stop() {
	s.cancel()
	s.mu.Lock()
	if s.feedStop != nil {
		s.feedStop()
		s.feedStop = nil
	}
	if s.refreshCancel != nil {
		s.refreshCancel()
		s.refreshCancel = nil
	}
	s.mu.Unlock()
	s.feedValue.Close()
	s.savedValue.Close()
	s.likedValue.Close()
	s.counts.Close()
}

// Feed возвращает ячейку снимков ленты текущей категории.
func (s *Session) Feed() *watch.Value[[]domain.Article] { return s.feedValue }

// Saved возвращает ячейку списка закладок.
func (s *Session) Saved() *watch.Value[[]domain.Article] { return s.savedValue }

// Liked возвращает ячейку множества лайкнутых идентификаторов.
func (s *Session) Liked() *watch.Value[[]domain.ArticleID] { return s.likedValue }

// CategoryCounts возвращает ячейку производной аналитики по закладкам.
func (s *Session) CategoryCounts() *watch.Value[[]domain.CategoryCount] { return s.counts }

// Notices регистрирует подписчика одноразовых уведомлений.
func (s *Session) Notices(buffer int) (<-chan string, func()) {
	return s.notices.Subscribe(buffer)
}

// Category возвращает текущую категорию.
func (s *Session) Category() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.category
}

// Source возвращает текущий источник.
func (s *Session) Source() domain.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// SelectCategory меняет выбранную категорию. Обновление предыдущей
// категории в полёте отменяется: устаревший результат не доставляется в
// новую выборку.
func (s *Session) SelectCategory(name string) {
	category := domain.NormalizeCategory(name)
	if category == "" {
		category = domain.DefaultCategory
	}

	s.mu.Lock()
	if category == s.category {
		s.mu.Unlock()
		return
	}
	s.category = category
	s.generation++
	if s.refreshCancel != nil {
		s.refreshCancel()
		s.refreshCancel = nil
	}
	source := s.source
	generation := s.generation
	s.mu.Unlock()

	s.pager.Reset(category, source)
	s.startFeedObserver(category)
	s.refreshInBackground(category, source, generation)
}

// SelectSource меняет источник ленты и перезапускает последовательность
// страниц с первой.
func (s *Session) SelectSource(source domain.Source) {
	s.mu.Lock()
	if source == s.source {
		s.mu.Unlock()
		return
	}
	s.source = source
	s.generation++
	if s.refreshCancel != nil {
		s.refreshCancel()
		s.refreshCancel = nil
	}
	category := s.category
	generation := s.generation
	s.mu.Unlock()

	s.pager.Reset(category, source)
	s.refreshInBackground(category, source, generation)
}

// startFeedObserver переключает ячейку ленты на новую категорию. Старый
// наблюдатель останавливается до запуска нового, а его пересыльщик
// сверяет поколение перед записью: снимок, забуференный до отписки, не
// перезапишет ленту новой категории.
func (s *Session) startFeedObserver(category string) {
	s.mu.Lock()
	s.feedGen++
	gen := s.feedGen
	if s.feedStop != nil {
		s.feedStop()
		s.feedStop = nil
	}
	s.mu.Unlock()

	value, stop := s.feed.Observe(s.ctx, category)
	snapshots, unsubscribe := value.Subscribe()

	s.mu.Lock()
	s.feedStop = func() {
		unsubscribe()
		stop()
	}
	s.mu.Unlock()

	go func() {
		for snap := range snapshots {
			s.mu.Lock()
			stale := s.feedGen != gen
			s.mu.Unlock()
			if stale {
				return
			}
			s.feedValue.Set(snap)
		}
	}()
}

// refreshInBackground запускает обновление категории, отбрасывая результат,
// если выборка успела смениться.
func (s *Session) refreshInBackground(category string, source domain.Source, generation int) {
	refreshCtx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.refreshCancel = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		err := s.feed.Refresh(refreshCtx, category, source)

		s.mu.Lock()
		stale := s.generation != generation
		s.mu.Unlock()
		if stale || refreshCtx.Err() != nil {
			return
		}
		if err != nil {
			s.notices.Publish(fmt.Sprintf("Не вдалося оновити стрічку: %v", err))
		}
	}()
}

// LoadNextPage подгружает следующую страницу текущей последовательности.
func (s *Session) LoadNextPage(ctx context.Context) ([]domain.Article, error) {
	return s.pager.LoadNextPage(ctx)
}

// ResetPager начинает последовательность страниц заново с текущей
// категорией и источником.
func (s *Session) ResetPager() {
	s.mu.Lock()
	category, source := s.category, s.source
	s.mu.Unlock()
	s.pager.Reset(category, source)
}

// IsSaved сообщает, лежит ли статья в закладках.
func (s *Session) IsSaved(ctx context.Context, id domain.ArticleID) (bool, error) {
	return s.store.IsSaved(ctx, id)
}

// ListSaved возвращает актуальный список закладок.
func (s *Session) ListSaved(ctx context.Context) ([]domain.Article, error) {
	return s.store.List(ctx)
}

// ListLikedIDs возвращает актуальное множество лайкнутых идентификаторов.
func (s *Session) ListLikedIDs(ctx context.Context) ([]domain.ArticleID, error) {
	return s.store.ListIDs(ctx)
}

// lockArticle захватывает мьютекс статьи и возвращает функцию
// освобождения: переключения одного id идут строго по очереди, видимое
// состояние при сдвоенном нажатии остаётся идемпотентным. Последний
// освободивший удаляет запись из карты.
func (s *Session) lockArticle(id domain.ArticleID) func() {
	s.toggleMu.Lock()
	lock, ok := s.toggles[id]
	if !ok {
		lock = &articleLock{}
		s.toggles[id] = lock
	}
	lock.refs++
	s.toggleMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.toggleMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.toggles, id)
		}
		s.toggleMu.Unlock()
	}
}

// ToggleSave сохраняет статью или убирает её из закладок, в зависимости от
// текущего состояния. Сохраняется полный снимок содержимого.
func (s *Session) ToggleSave(ctx context.Context, article domain.Article) error {
	unlock := s.lockArticle(article.ID)
	defer unlock()

	saved, err := s.store.IsSaved(ctx, article.ID)
	if err != nil {
		return fmt.Errorf("проверка закладки: %w", err)
	}
	if saved {
		if err := s.store.Delete(ctx, article.ID); err != nil {
			return fmt.Errorf("удаление закладки: %w", err)
		}
		metrics.ToggleTotal.WithLabelValues("save", "off").Inc()
		s.notices.Publish(NoticeUnsaved)
		return nil
	}
	if err := s.store.Save(ctx, article); err != nil {
		return fmt.Errorf("сохранение закладки: %w", err)
	}
	metrics.ToggleTotal.WithLabelValues("save", "on").Inc()
	s.notices.Publish(NoticeSaved)
	return nil
}

// ToggleLike ставит или снимает лайк. Лайк хранит только идентификатор.
func (s *Session) ToggleLike(ctx context.Context, id domain.ArticleID) error {
	unlock := s.lockArticle(id)
	defer unlock()

	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("чтение лайков: %w", err)
	}
	liked := false
	for _, existing := range ids {
		if existing == id {
			liked = true
			break
		}
	}
	if liked {
		if err := s.store.Unlike(ctx, id); err != nil {
			return fmt.Errorf("снятие лайка: %w", err)
		}
		metrics.ToggleTotal.WithLabelValues("like", "off").Inc()
		s.notices.Publish(NoticeUnliked)
		return nil
	}
	if err := s.store.Like(ctx, id); err != nil {
		return fmt.Errorf("установка лайка: %w", err)
	}
	metrics.ToggleTotal.WithLabelValues("like", "on").Inc()
	s.notices.Publish(NoticeLiked)
	return nil
}

// ArticleByID разрешает идентификатор в статью: сперва подгруженные
// страницы, затем кэш, затем закладки.
func (s *Session) ArticleByID(ctx context.Context, id domain.ArticleID) (domain.Article, bool, error) {
	if article, ok := s.pager.ByID(id); ok {
		return article, true, nil
	}
	article, ok, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.Article{}, false, fmt.Errorf("поиск в кэше: %w", err)
	}
	if ok {
		return article, true, nil
	}
	article, ok, err = s.store.GetSaved(ctx, id)
	if err != nil {
		return domain.Article{}, false, fmt.Errorf("поиск в закладках: %w", err)
	}
	return article, ok, nil
}

// ExportSavedJSON сериализует закладки в отформатированный JSON-массив.
// Пустой список даёт "[]", а не null.
func (s *Session) ExportSavedJSON(ctx context.Context) ([]byte, error) {
	articles, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("чтение закладок: %w", err)
	}
	if articles == nil {
		articles = []domain.Article{}
	}
	data, err := json.MarshalIndent(articles, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("сериализация закладок: %w", err)
	}
	return data, nil
}

// watchStores переигрывает списки закладок и лайков после каждой
// закоммиченной записи в их таблицы.
func (s *Session) watchStores() {
	events, unsubscribe := s.store.SubscribeStoreEvents()
	defer unsubscribe()
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			switch event.Table {
			case domain.TableSavedArticles:
				s.refreshSaved()
			case domain.TableLikedArticles:
				s.refreshLiked()
			}
		}
	}
}

func (s *Session) refreshSaved() {
	articles, err := s.store.List(s.ctx)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("чтение закладок не удалось")
		}
		return
	}
	s.savedValue.Set(articles)
	s.counts.Set(deriveCounts(articles))
}

func (s *Session) refreshLiked() {
	ids, err := s.store.ListIDs(s.ctx)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("чтение лайков не удалось")
		}
		return
	}
	s.likedValue.Set(ids)
}

// deriveCounts группирует закладки по категориям и сортирует по убыванию
// количества; при равенстве — по алфавиту, чтобы порядок был стабильным.
func deriveCounts(articles []domain.Article) []domain.CategoryCount {
	byCategory := make(map[string]int)
	for _, article := range articles {
		byCategory[article.Category]++
	}
	counts := make([]domain.CategoryCount, 0, len(byCategory))
	for category, count := range byCategory {
		counts = append(counts, domain.CategoryCount{Category: category, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Category < counts[j].Category
	})
	return counts
}
