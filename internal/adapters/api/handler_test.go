package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"ua-news-backend/internal/adapters/alert"
	"ua-news-backend/internal/adapters/ticker"
	"ua-news-backend/internal/domain"
	"ua-news-backend/internal/infra/watch"
	"ua-news-backend/internal/usecase/feed"
	"ua-news-backend/internal/usecase/pager"
	"ua-news-backend/internal/usecase/session"
)

type memStore struct {
	mu     sync.Mutex
	cache  map[string][]domain.Article
	saved  map[domain.ArticleID]domain.Article
	liked  map[domain.ArticleID]bool
	events *watch.Broadcast[domain.StoreEvent]
}

func newMemStore() *memStore {
	return &memStore{
		cache:  make(map[string][]domain.Article),
		saved:  make(map[domain.ArticleID]domain.Article),
		liked:  make(map[domain.ArticleID]bool),
		events: watch.NewBroadcast[domain.StoreEvent](),
	}
}

func (m *memStore) ReplaceCategory(_ context.Context, category string, articles []domain.Article) error {
	m.mu.Lock()
	m.cache[category] = append([]domain.Article(nil), articles...)
	m.mu.Unlock()
	m.events.Publish(domain.StoreEvent{Table: domain.TableArticlesCache, Category: category})
	return nil
}

func (m *memStore) ListByCategory(_ context.Context, category string) ([]domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Article(nil), m.cache[category]...), nil
}

func (m *memStore) GetByID(_ context.Context, id domain.ArticleID) (domain.Article, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, articles := range m.cache {
		for _, article := range articles {
			if article.ID == id {
				return article, true, nil
			}
		}
	}
	return domain.Article{}, false, nil
}

func (m *memStore) Save(_ context.Context, article domain.Article) error {
	m.mu.Lock()
	m.saved[article.ID] = article
	m.mu.Unlock()
	m.events.Publish(domain.StoreEvent{Table: domain.TableSavedArticles})
	return nil
}

func (m *memStore) Delete(_ context.Context, id domain.ArticleID) error {
	m.mu.Lock()
	delete(m.saved, id)
	m.mu.Unlock()
	m.events.Publish(domain.StoreEvent{Table: domain.TableSavedArticles})
	return nil
}

func (m *memStore) List(context.Context) ([]domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	articles := make([]domain.Article, 0, len(m.saved))
	for _, article := range m.saved {
		articles = append(articles, article)
	}
	return articles, nil
}

func (m *memStore) IsSaved(_ context.Context, id domain.ArticleID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.saved[id]
	return ok, nil
}

func (m *memStore) GetSaved(_ context.Context, id domain.ArticleID) (domain.Article, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	article, ok := m.saved[id]
	return article, ok, nil
}

func (m *memStore) Like(_ context.Context, id domain.ArticleID) error {
	m.mu.Lock()
	m.liked[id] = true
	m.mu.Unlock()
	m.events.Publish(domain.StoreEvent{Table: domain.TableLikedArticles})
	return nil
}

func (m *memStore) Unlike(_ context.Context, id domain.ArticleID) error {
	m.mu.Lock()
	delete(m.liked, id)
	m.mu.Unlock()
	m.events.Publish(domain.StoreEvent{Table: domain.TableLikedArticles})
	return nil
}

func (m *memStore) ListIDs(context.Context) ([]domain.ArticleID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]domain.ArticleID, 0, len(m.liked))
	for id := range m.liked {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) SubscribeStoreEvents() (<-chan domain.StoreEvent, func()) {
	return m.events.Subscribe(16)
}

type stubHeadlines struct{}

func (stubHeadlines) FetchPage(context.Context, string, int, int) ([]domain.Article, error) {
	return nil, nil
}

type stubFeedSource struct{}

func (stubFeedSource) Fetch(context.Context) ([]domain.Article, error) {
	return nil, errors.New("нет ленты")
}

type noopThrottle struct{}

func (noopThrottle) Once(_ string, _ time.Duration, fn func() error) error { return fn() }
func (noopThrottle) Set(string, []byte, time.Duration) error               { return nil }
func (noopThrottle) Get(string) ([]byte, error)                            { return nil, errors.New("miss") }

type memQueue struct {
	mu   sync.Mutex
	jobs []domain.RefreshJob
}

func (q *memQueue) Enqueue(_ context.Context, job domain.RefreshJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) Pop(ctx context.Context) (domain.RefreshJob, error) {
	<-ctx.Done()
	return domain.RefreshJob{}, ctx.Err()
}

func newTestRouter(t *testing.T, store *memStore, queue *memQueue) chi.Router {
	t.Helper()
	logger := zerolog.Nop()
	feedSvc := feed.NewService(logger, store, stubHeadlines{}, stubFeedSource{}, noopThrottle{})
	pg := pager.New(logger, stubHeadlines{}, stubFeedSource{})
	sess := session.New(context.Background(), logger, feedSvc, pg, store)
	t.Cleanup(sess.Stop)

	price := ticker.NewStream(logger, ticker.Config{URL: "ws://127.0.0.1:1", ProductID: "BTC-USD"})
	alerts := alert.NewPublisher(logger, alert.Config{BrokerURL: "tcp://127.0.0.1:1", Topic: "t", Timeout: 100 * time.Millisecond})

	r := chi.NewRouter()
	NewHandler(logger, sess, store, queue, price, alerts).Register(r)
	return r
}

func cachedArticle() domain.Article {
	return domain.Article{ID: domain.HashURL("http://a"), Title: "A", Description: "d", Author: "a", Date: "01.01.2025", Category: "general"}
}

func TestListArticlesEmpty(t *testing.T) {
	router := newTestRouter(t, newMemStore(), &memQueue{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/articles?category=general", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("пустая категория должна отдавать пустой массив, получили %q", got)
	}
}

func TestListArticlesReturnsCache(t *testing.T) {
	store := newMemStore()
	_ = store.ReplaceCategory(context.Background(), "general", []domain.Article{cachedArticle()})
	router := newTestRouter(t, store, &memQueue{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/articles?category=General", nil))

	var articles []domain.Article
	if err := json.Unmarshal(rec.Body.Bytes(), &articles); err != nil {
		t.Fatalf("некорректный JSON: %v", err)
	}
	if len(articles) != 1 || articles[0].Title != "A" {
		t.Fatalf("ожидали статью из кэша, получили %v", articles)
	}
}

func TestToggleSaveRoundTrip(t *testing.T) {
	store := newMemStore()
	article := cachedArticle()
	_ = store.ReplaceCategory(context.Background(), "general", []domain.Article{article})
	router := newTestRouter(t, store, &memQueue{})

	url := fmt.Sprintf("/api/v1/articles/%d/save", article.ID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, url, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
	}
	var state map[string]bool
	_ = json.Unmarshal(rec.Body.Bytes(), &state)
	if !state["saved"] {
		t.Fatalf("после первого переключения статья должна быть сохранена")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, url, nil))
	_ = json.Unmarshal(rec.Body.Bytes(), &state)
	if state["saved"] {
		t.Fatalf("после второго переключения закладка должна сняться")
	}
}

func TestToggleSaveUnknownID(t *testing.T) {
	router := newTestRouter(t, newMemStore(), &memQueue{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/articles/12345/save", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("неизвестный id должен давать 404, получили %d", rec.Code)
	}
}

func TestEnqueueRefresh(t *testing.T) {
	queue := &memQueue{}
	router := newTestRouter(t, newMemStore(), queue)

	body := strings.NewReader(`{"category":"Business"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/refresh", body))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("ожидали 202, получили %d", rec.Code)
	}
	queue.mu.Lock()
	defer queue.mu.Unlock()
	if len(queue.jobs) != 1 {
		t.Fatalf("ожидали одну задачу в очереди, получили %d", len(queue.jobs))
	}
	job := queue.jobs[0]
	if job.Category != "business" || job.Cause != domain.RefreshCauseManual || job.ID == "" {
		t.Fatalf("неожиданная задача: %+v", job)
	}
}

func TestSelectCategoryValidation(t *testing.T) {
	router := newTestRouter(t, newMemStore(), &memQueue{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/category", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("пустая категория должна давать 400, получили %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/category", strings.NewReader(`{"category":"Sports"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	var resp map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["category"] != "sports" {
		t.Fatalf("категория должна нормализоваться, получили %q", resp["category"])
	}
}

func TestSelectSourceValidation(t *testing.T) {
	router := newTestRouter(t, newMemStore(), &memQueue{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/source", strings.NewReader(`{"source":"telegraph"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("неизвестный источник должен давать 400, получили %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/source", strings.NewReader(`{"source":"rss"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
}

func TestExportSavedHeaders(t *testing.T) {
	router := newTestRouter(t, newMemStore(), &memQueue{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/export/saved", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	if disposition := rec.Header().Get("Content-Disposition"); !strings.Contains(disposition, "saved_articles.json") {
		t.Fatalf("ожидали заголовок вложения, получили %q", disposition)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("пустой экспорт должен давать пустой массив, получили %q", got)
	}
}

func TestLatestPriceUnavailable(t *testing.T) {
	router := newTestRouter(t, newMemStore(), &memQueue{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/price", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("до первого сообщения цена недоступна, ожидали 503, получили %d", rec.Code)
	}
}

func TestPublishAlertValidation(t *testing.T) {
	router := newTestRouter(t, newMemStore(), &memQueue{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/alert", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("пустое сообщение должно давать 400, получили %d", rec.Code)
	}
}

func TestArticleByIDBadID(t *testing.T) {
	router := newTestRouter(t, newMemStore(), &memQueue{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/articles/abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("нечисловой id должен давать 400, получили %d", rec.Code)
	}
}
