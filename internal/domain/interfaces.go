package domain

import (
	"context"
	"time"
)

// CacheRepo управляет кэшем статей, партиционированным по категории.
type CacheRepo interface {
	// ReplaceCategory атомарно заменяет строки категории свежевыбранным
	// набором: удаление и вставка выполняются одной единицей работы,
	// наблюдатель никогда не видит промежуточное пустое состояние.
	// Пустой набор — валидный результат, категория очищается.
	ReplaceCategory(ctx context.Context, category string, articles []Article) error
	// ListByCategory возвращает статьи категории, сортировка по дате убыванию.
	ListByCategory(ctx context.Context, category string) ([]Article, error)
	// GetByID ищет статью в кэше по идентификатору.
	GetByID(ctx context.Context, id ArticleID) (Article, bool, error)
}

// SavedRepo управляет закладками пользователя. Полный снимок статьи,
// время жизни не зависит от вытеснения кэша.
type SavedRepo interface {
	Save(ctx context.Context, article Article) error
	Delete(ctx context.Context, id ArticleID) error
	List(ctx context.Context) ([]Article, error)
	IsSaved(ctx context.Context, id ArticleID) (bool, error)
	GetSaved(ctx context.Context, id ArticleID) (Article, bool, error)
}

// LikedRepo управляет множеством лайкнутых идентификаторов.
// Лайк не снимает снимок содержимого статьи.
type LikedRepo interface {
	Like(ctx context.Context, id ArticleID) error
	Unlike(ctx context.Context, id ArticleID) error
	ListIDs(ctx context.Context) ([]ArticleID, error)
}

// HeadlineSource выгружает страницу заголовков категории из JSON API.
type HeadlineSource interface {
	FetchPage(ctx context.Context, category string, page, pageSize int) ([]Article, error)
}

// FeedSource выгружает фиксированный батч статей из XML-ленты.
type FeedSource interface {
	Fetch(ctx context.Context) ([]Article, error)
}

// StoreEvents раздаёт уведомления о закоммиченных записях хранилища.
// Отмена подписки обязательна при завершении наблюдателя.
type StoreEvents interface {
	SubscribeStoreEvents() (<-chan StoreEvent, func())
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
