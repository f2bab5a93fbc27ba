package pager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ua-news-backend/internal/domain"
)

type pagedSource struct {
	mu    sync.Mutex
	pages map[int][]domain.Article
	err   error
	calls []int
}

func (s *pagedSource) FetchPage(_ context.Context, _ string, page, _ int) ([]domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, page)
	if s.err != nil {
		return nil, s.err
	}
	return s.pages[page], nil
}

type batchSource struct {
	articles []domain.Article
}

func (s *batchSource) Fetch(context.Context) ([]domain.Article, error) {
	return s.articles, nil
}

func article(n int) domain.Article {
	url := fmt.Sprintf("http://example.com/%d", n)
	return domain.Article{ID: domain.HashURL(url), Title: fmt.Sprintf("A%d", n), Description: "d", Author: "a", Date: "01.01.2025", Category: "general"}
}

func TestLoadNextPageAppendsAndAdvances(t *testing.T) {
	source := &pagedSource{pages: map[int][]domain.Article{
		1: {article(1), article(2)},
		2: {article(3)},
	}}
	p := New(zerolog.Nop(), source, &batchSource{})

	items, err := p.LoadNextPage(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("ожидали 2 статьи после первой страницы, получили %d", len(items))
	}

	items, err = p.LoadNextPage(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("ожидали 3 статьи после второй страницы, получили %d", len(items))
	}
	if got := source.calls; len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("курсор должен идти с первой страницы подряд, получили %v", got)
	}
}

func TestEmptyPageIsTerminal(t *testing.T) {
	source := &pagedSource{pages: map[int][]domain.Article{1: {article(1)}}}
	p := New(zerolog.Nop(), source, &batchSource{})

	_, _ = p.LoadNextPage(context.Background())
	items, err := p.LoadNextPage(context.Background())
	if err != nil {
		t.Fatalf("пустая страница не ошибка: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("накопленные статьи должны сохраниться, получили %d", len(items))
	}

	if _, err := p.LoadNextPage(context.Background()); !errors.Is(err, ErrEndOfFeed) {
		t.Fatalf("после конца ленты ожидали ErrEndOfFeed, получили %v", err)
	}
}

func TestFailureKeepsCursorAndItems(t *testing.T) {
	source := &pagedSource{pages: map[int][]domain.Article{
		1: {article(1)},
		2: {article(2)},
	}}
	p := New(zerolog.Nop(), source, &batchSource{})

	if _, err := p.LoadNextPage(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	source.mu.Lock()
	source.err = errors.New("network down")
	source.mu.Unlock()
	items, err := p.LoadNextPage(context.Background())
	if err == nil {
		t.Fatalf("ожидали ошибку подгрузки")
	}
	if len(items) != 1 {
		t.Fatalf("ошибка не должна трогать накопленное, получили %d", len(items))
	}

	// Повторный вызов пробует ту же страницу.
	source.mu.Lock()
	source.err = nil
	source.mu.Unlock()
	items, err = p.LoadNextPage(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("ожидали успешный повтор той же страницы, получили %d статей", len(items))
	}
	calls := source.calls
	if calls[len(calls)-1] != 2 || calls[len(calls)-2] != 2 {
		t.Fatalf("повтор должен запрашивать ту же страницу, получили %v", calls)
	}
}

func TestRSSIsSinglePage(t *testing.T) {
	rss := &batchSource{articles: []domain.Article{article(1), article(2)}}
	p := New(zerolog.Nop(), &pagedSource{}, rss)
	p.Reset("general", domain.SourceRSS)

	items, err := p.LoadNextPage(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("ожидали один полный батч, получили %d", len(items))
	}
	if _, err := p.LoadNextPage(context.Background()); !errors.Is(err, ErrEndOfFeed) {
		t.Fatalf("RSS-лента одностраничная, ожидали ErrEndOfFeed, получили %v", err)
	}
}

func TestResetClearsAccumulated(t *testing.T) {
	source := &pagedSource{pages: map[int][]domain.Article{1: {article(1)}}}
	p := New(zerolog.Nop(), source, &batchSource{})

	_, _ = p.LoadNextPage(context.Background())
	p.Reset("Sports", domain.SourceNewsAPI)

	if items := p.Items(); len(items) != 0 {
		t.Fatalf("Reset должен очищать накопленное, получили %d", len(items))
	}
	if p.Category() != "sports" {
		t.Fatalf("категория должна нормализоваться, получили %q", p.Category())
	}
	if _, ok := p.ByID(article(1).ID); ok {
		t.Fatalf("индекс по id должен очищаться вместе со списком")
	}
}

// blockingSource держит запрос до сигнала release и намеренно не реагирует
// на отмену контекста: устаревший батч всё равно возвращается, отбросить
// его обязана проверка последовательности в пейджере.
type blockingSource struct {
	started  chan struct{}
	release  chan struct{}
	once     sync.Once
	articles []domain.Article
}

func (s *blockingSource) FetchPage(context.Context, string, int, int) ([]domain.Article, error) {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return s.articles, nil
}

func TestResetMidFetchDiscardsStaleBatch(t *testing.T) {
	source := &blockingSource{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		articles: []domain.Article{article(1)},
	}
	p := New(zerolog.Nop(), source, &batchSource{})

	done := make(chan struct{})
	go func() {
		_, _ = p.LoadNextPage(context.Background())
		close(done)
	}()

	<-source.started
	p.Reset("sports", domain.SourceNewsAPI)
	close(source.release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("подгрузка не завершилась")
	}

	if items := p.Items(); len(items) != 0 {
		t.Fatalf("батч брошенной последовательности не должен применяться, получили %v", items)
	}
	if _, ok := p.ByID(article(1).ID); ok {
		t.Fatalf("статья брошенной последовательности не должна попасть в индекс")
	}
	if p.Category() != "sports" {
		t.Fatalf("ожидали новую категорию, получили %q", p.Category())
	}
}

func TestByIDFindsLoaded(t *testing.T) {
	source := &pagedSource{pages: map[int][]domain.Article{1: {article(1)}}}
	p := New(zerolog.Nop(), source, &batchSource{})

	_, _ = p.LoadNextPage(context.Background())
	got, ok := p.ByID(article(1).ID)
	if !ok || got.Title != "A1" {
		t.Fatalf("ожидали найти подгруженную статью, получили %v %v", got, ok)
	}
}
