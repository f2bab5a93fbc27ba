// Package api — HTTP-поверхность читателя: тонкие обработчики поверх
// сессии, без бизнес-логики.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ua-news-backend/internal/adapters/alert"
	"ua-news-backend/internal/adapters/ticker"
	"ua-news-backend/internal/domain"
	"ua-news-backend/internal/usecase/pager"
	"ua-news-backend/internal/usecase/session"
)

// Handler собирает обработчики API.
type Handler struct {
	logger  zerolog.Logger
	session *session.Session
	cache   domain.CacheRepo
	queue   domain.RefreshQueue
	price   *ticker.Stream
	alerts  *alert.Publisher
}

// NewHandler создаёт обработчики.
func NewHandler(logger zerolog.Logger, sess *session.Session, cache domain.CacheRepo, queue domain.RefreshQueue, price *ticker.Stream, alerts *alert.Publisher) *Handler {
	return &Handler{
		logger:  logger.With().Str("component", "api").Logger(),
		session: sess,
		cache:   cache,
		queue:   queue,
		price:   price,
		alerts:  alerts,
	}
}

// Register вешает маршруты на роутер.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/articles", h.listArticles)
		r.Get("/articles/{id}", h.articleByID)
		r.Post("/articles/{id}/save", h.toggleSave)
		r.Post("/articles/{id}/like", h.toggleLike)
		r.Post("/refresh", h.enqueueRefresh)
		r.Get("/feed/page", h.feedPage)
		r.Put("/category", h.selectCategory)
		r.Put("/source", h.selectSource)
		r.Get("/saved", h.listSaved)
		r.Get("/liked", h.listLiked)
		r.Get("/analytics/categories", h.categoryCounts)
		r.Get("/export/saved", h.exportSaved)
		r.Get("/price", h.latestPrice)
		r.Post("/alert", h.publishAlert)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// listArticles отдаёт текущий снимок кэша категории. Пустая категория и
// UI-сентинел "Усі" означают категорию по умолчанию без фильтра.
func (h *Handler) listArticles(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" || category == domain.AllCategories {
		category = h.session.Category()
	}
	articles, err := h.cache.ListByCategory(r.Context(), domain.NormalizeCategory(category))
	if err != nil {
		h.logger.Error().Err(err).Msg("чтение кэша не удалось")
		writeError(w, http.StatusInternalServerError, "не вдалося прочитати стрічку")
		return
	}
	if articles == nil {
		articles = []domain.Article{}
	}
	writeJSON(w, http.StatusOK, articles)
}

func (h *Handler) articleByID(w http.ResponseWriter, r *http.Request) {
	id, err := parseArticleID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "некоректний ідентифікатор")
		return
	}
	article, ok, err := h.session.ArticleByID(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Msg("поиск статьи не удался")
		writeError(w, http.StatusInternalServerError, "не вдалося знайти статтю")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "статтю не знайдено")
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (h *Handler) toggleSave(w http.ResponseWriter, r *http.Request) {
	id, err := parseArticleID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "некоректний ідентифікатор")
		return
	}
	article, ok, err := h.session.ArticleByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "не вдалося знайти статтю")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "статтю не знайдено")
		return
	}
	if err := h.session.ToggleSave(r.Context(), article); err != nil {
		h.logger.Error().Err(err).Msg("переключение закладки не удалось")
		writeError(w, http.StatusInternalServerError, "не вдалося зберегти статтю")
		return
	}
	saved, err := h.session.IsSaved(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "не вдалося перевірити стан")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": saved})
}

func (h *Handler) toggleLike(w http.ResponseWriter, r *http.Request) {
	id, err := parseArticleID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "некоректний ідентифікатор")
		return
	}
	if err := h.session.ToggleLike(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Msg("переключение лайка не удалось")
		writeError(w, http.StatusInternalServerError, "не вдалося вподобати статтю")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type refreshRequest struct {
	Category string `json:"category"`
}

// enqueueRefresh ставит ручную задачу обновления в очередь. Обновление
// выполняет фоновый синхронизатор, ответ не ждёт его завершения.
func (h *Handler) enqueueRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "некоректне тіло запиту")
		return
	}
	category := domain.NormalizeCategory(req.Category)
	if category == "" {
		category = h.session.Category()
	}
	job := domain.RefreshJob{
		ID:          uuid.NewString(),
		Category:    category,
		Cause:       domain.RefreshCauseManual,
		RequestedAt: time.Now().UTC(),
	}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.logger.Error().Err(err).Msg("постановка задачи не удалась")
		writeError(w, http.StatusInternalServerError, "не вдалося поставити оновлення в чергу")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "category": category})
}

// feedPage подгружает следующую страницу последовательности; query reset=1
// начинает последовательность заново.
func (h *Handler) feedPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("reset") == "1" {
		h.session.ResetPager()
	}
	items, err := h.session.LoadNextPage(r.Context())
	if err != nil {
		if errors.Is(err, pager.ErrEndOfFeed) {
			writeJSON(w, http.StatusOK, map[string]any{"articles": items, "end_of_feed": true})
			return
		}
		h.logger.Error().Err(err).Msg("подгрузка страницы не удалась")
		writeError(w, http.StatusBadGateway, "не вдалося завантажити сторінку")
		return
	}
	if items == nil {
		items = []domain.Article{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": items, "end_of_feed": false})
}

type categoryRequest struct {
	Category string `json:"category"`
}

func (h *Handler) selectCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Category == "" {
		writeError(w, http.StatusBadRequest, "потрібна категорія")
		return
	}
	h.session.SelectCategory(req.Category)
	writeJSON(w, http.StatusOK, map[string]string{"category": h.session.Category()})
}

type sourceRequest struct {
	Source string `json:"source"`
}

func (h *Handler) selectSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "некоректне тіло запиту")
		return
	}
	source, ok := domain.ParseSource(req.Source)
	if !ok {
		writeError(w, http.StatusBadRequest, "невідоме джерело")
		return
	}
	h.session.SelectSource(source)
	writeJSON(w, http.StatusOK, map[string]string{"source": string(source)})
}

func (h *Handler) listSaved(w http.ResponseWriter, r *http.Request) {
	articles, err := h.session.ListSaved(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("чтение закладок не удалось")
		writeError(w, http.StatusInternalServerError, "не вдалося прочитати збережені")
		return
	}
	if articles == nil {
		articles = []domain.Article{}
	}
	writeJSON(w, http.StatusOK, articles)
}

func (h *Handler) listLiked(w http.ResponseWriter, r *http.Request) {
	ids, err := h.session.ListLikedIDs(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("чтение лайков не удалось")
		writeError(w, http.StatusInternalServerError, "не вдалося прочитати вподобані")
		return
	}
	if ids == nil {
		ids = []domain.ArticleID{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *Handler) categoryCounts(w http.ResponseWriter, r *http.Request) {
	counts, ok := h.session.CategoryCounts().Get()
	if !ok || counts == nil {
		counts = []domain.CategoryCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) exportSaved(w http.ResponseWriter, r *http.Request) {
	data, err := h.session.ExportSavedJSON(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("экспорт закладок не удался")
		writeError(w, http.StatusInternalServerError, "не вдалося експортувати збережені")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="saved_articles.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) latestPrice(w http.ResponseWriter, r *http.Request) {
	price, ok := h.price.Price().Get()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "ціна ще не отримана")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"price": price})
}

type alertRequest struct {
	Message string `json:"message"`
}

func (h *Handler) publishAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "потрібен текст оповіщення")
		return
	}
	if err := h.alerts.Publish(r.Context(), req.Message); err != nil {
		h.logger.Error().Err(err).Msg("публикация оповещения не удалась")
		writeError(w, http.StatusBadGateway, "не вдалося надіслати оповіщення")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseArticleID(raw string) (domain.ArticleID, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return domain.ArticleID(id), nil
}
