// Package pager — постраничная подгрузка ленты из удалённого источника.
package pager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"ua-news-backend/internal/domain"
)

// ErrEndOfFeed возвращается при попытке подгрузить страницу после того, как
// источник отдал пустую страницу. Конец ленты — терминальное состояние до
// следующего Reset.
var ErrEndOfFeed = errors.New("лента исчерпана")

const defaultPageSize = 20

// Pager накапливает страницы ленты и ведёт курсор. Ошибка подгрузки не
// сдвигает курсор и не трогает накопленные статьи: повторный вызов
// LoadNextPage повторяет ту же страницу.
type Pager struct {
	logger   zerolog.Logger
	headline domain.HeadlineSource
	rss      domain.FeedSource
	pageSize int

	mu       sync.Mutex
	category string
	source   domain.Source
	page     int
	done     bool
	items    []domain.Article
	byID     map[domain.ArticleID]domain.Article
	cancel   context.CancelFunc
}

// New создаёт пейджер с начальной категорией по умолчанию.
func New(logger zerolog.Logger, headline domain.HeadlineSource, rss domain.FeedSource) *Pager {
	return &Pager{
		logger:   logger.With().Str("component", "pager").Logger(),
		headline: headline,
		rss:      rss,
		pageSize: defaultPageSize,
		category: domain.DefaultCategory,
		source:   domain.SourceNewsAPI,
		page:     1,
		byID:     make(map[domain.ArticleID]domain.Article),
	}
}

// Reset отменяет подгрузку в полёте, сбрасывает накопленное и начинает
// новую последовательность с первой страницы.
func (p *Pager) Reset(category string, source domain.Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.category = domain.NormalizeCategory(category)
	if p.category == "" {
		p.category = domain.DefaultCategory
	}
	p.source = source
	p.page = 1
	p.done = false
	p.items = nil
	p.byID = make(map[domain.ArticleID]domain.Article)
}

// LoadNextPage подгружает очередную страницу и возвращает полный
// накопленный список. Пустая страница завершает ленту; для RSS лента
// завершается после первого батча.
func (p *Pager) LoadNextPage(ctx context.Context) ([]domain.Article, error) {
	p.mu.Lock()
	if p.done {
		items := append([]domain.Article(nil), p.items...)
		p.mu.Unlock()
		return items, ErrEndOfFeed
	}
	loadCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	category, source, page := p.category, p.source, p.page
	p.mu.Unlock()
	defer cancel()

	var (
		batch []domain.Article
		err   error
	)
	switch source {
	case domain.SourceRSS:
		batch, err = p.rss.Fetch(loadCtx)
	default:
		batch, err = p.headline.FetchPage(loadCtx, category, page, p.pageSize)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Reset во время подгрузки: результат устаревшей последовательности
	// не применяется.
	if p.category != category || p.source != source || p.page != page {
		return append([]domain.Article(nil), p.items...), nil
	}

	if err != nil {
		if loadCtx.Err() != nil {
			return append([]domain.Article(nil), p.items...), loadCtx.Err()
		}
		return append([]domain.Article(nil), p.items...), fmt.Errorf("подгрузка страницы %d: %w", page, err)
	}

	if len(batch) == 0 {
		p.done = true
		return append([]domain.Article(nil), p.items...), nil
	}

	p.items = append(p.items, batch...)
	for _, article := range batch {
		p.byID[article.ID] = article
	}
	if source == domain.SourceRSS {
		p.done = true
	} else {
		p.page++
	}
	return append([]domain.Article(nil), p.items...), nil
}

// Items возвращает накопленный список без подгрузки.
func (p *Pager) Items() []domain.Article {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Article(nil), p.items...)
}

// ByID ищет статью среди уже подгруженных страниц.
func (p *Pager) ByID(id domain.ArticleID) (domain.Article, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	article, ok := p.byID[id]
	return article, ok
}

// Category возвращает текущую категорию последовательности.
func (p *Pager) Category() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.category
}

// Source возвращает текущий источник последовательности.
func (p *Pager) Source() domain.Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}
