package domain

import (
	"hash/fnv"
	"strings"
)

// ArticleID — целочисленный идентификатор статьи, детерминированно
// выводится из URL источника.
type ArticleID int64

// HashURL вычисляет идентификатор статьи по URL (FNV-64a).
func HashURL(url string) ArticleID {
	h := fnv.New64a()
	_, _ = h.Write([]byte(url))
	return ArticleID(h.Sum64())
}

// Article — каноничное представление новости. Неизменяемое значение,
// создаётся заново при каждом маппинге.
type Article struct {
	ID          ArticleID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Author      string    `json:"author"`
	Date        string    `json:"date"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url,omitempty"`
}

// CategoryCount — количество сохранённых статей в категории.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Source описывает источник новостной ленты.
type Source string

const (
	// SourceNewsAPI — JSON API с пагинацией.
	SourceNewsAPI Source = "newsapi"
	// SourceRSS — XML-лента без пагинации, один фиксированный батч.
	SourceRSS Source = "rss"
)

// ParseSource валидирует строковое значение источника.
func ParseSource(raw string) (Source, bool) {
	switch Source(strings.ToLower(strings.TrimSpace(raw))) {
	case SourceNewsAPI:
		return SourceNewsAPI, true
	case SourceRSS:
		return SourceRSS, true
	}
	return "", false
}

// DefaultCategory — категория по умолчанию для удалённого API.
const DefaultCategory = "general"

// AllCategories — UI-сентинел "без фильтра", никогда не персистится.
const AllCategories = "Усі"

// NormalizeCategory приводит категорию к каноничному ключу партиции кэша:
// "Technology" и "technology" попадают в одну партицию.
func NormalizeCategory(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Имена таблиц локального хранилища; используются в StoreEvent.
const (
	TableArticlesCache = "articles_cache"
	TableSavedArticles = "saved_articles"
	TableLikedArticles = "liked_articles"
)

// StoreEvent — уведомление о закоммиченной записи в таблицу хранилища.
// Category заполняется только для articles_cache.
type StoreEvent struct {
	Table    string
	Category string
}
