package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ua-news-backend/internal/domain"
	"ua-news-backend/internal/infra/metrics"
	"ua-news-backend/internal/infra/watch"
)

// Postgres реализует репозитории хранилища на основе pgxpool.
// После каждой закоммиченной мутации рассылает StoreEvent подписчикам,
// чтобы реактивные наблюдатели перечитали свою партицию.
type Postgres struct {
	pool   *pgxpool.Pool
	events *watch.Broadcast[domain.StoreEvent]
}

var (
	_ domain.CacheRepo   = (*Postgres)(nil)
	_ domain.SavedRepo   = (*Postgres)(nil)
	_ domain.LikedRepo   = (*Postgres)(nil)
	_ domain.StoreEvents = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, events: watch.NewBroadcast[domain.StoreEvent]()}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// SubscribeStoreEvents реализует domain.StoreEvents.
func (p *Postgres) SubscribeStoreEvents() (<-chan domain.StoreEvent, func()) {
	return p.events.Subscribe(16)
}

func (p *Postgres) notify(table, category string) {
	p.events.Publish(domain.StoreEvent{Table: table, Category: category})
}

// ReplaceCategory атомарно заменяет строки категории: удаление и батчевая
// вставка выполняются в одной транзакции, читатель видит либо старый, либо
// новый снимок. Пустой набор статей очищает категорию.
func (p *Postgres) ReplaceCategory(ctx context.Context, category string, articles []domain.Article) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "articles_cache", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	_, err = tx.Exec(ctx, `DELETE FROM articles_cache WHERE category=$1`, category)
	metrics.ObserveNetworkRequest("postgres", "articles_cache_clear", "articles_cache", start, err)
	if err != nil {
		return err
	}

	if len(articles) > 0 {
		batch := &pgx.Batch{}
		for _, a := range articles {
			batch.Queue(`
INSERT INTO articles_cache (id, title, description, author, date, category, image_url)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, description=EXCLUDED.description, author=EXCLUDED.author, date=EXCLUDED.date, category=EXCLUDED.category, image_url=EXCLUDED.image_url
`, int64(a.ID), a.Title, a.Description, a.Author, a.Date, category, a.ImageURL)
		}
		start = time.Now()
		br := tx.SendBatch(ctx, batch)
		metrics.ObserveNetworkRequest("postgres", "articles_cache_send_batch", "articles_cache", start, nil)
		for range articles {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return err
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "articles_cache", start, err)
	if err != nil {
		return err
	}
	p.notify(domain.TableArticlesCache, category)
	return nil
}

// ListByCategory возвращает статьи категории, свежие сверху.
func (p *Postgres) ListByCategory(ctx context.Context, category string) ([]domain.Article, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, title, description, author, date, category, image_url
FROM articles_cache WHERE category=$1
ORDER BY date DESC
`, category)
	metrics.ObserveNetworkRequest("postgres", "articles_cache_list", "articles_cache", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// GetByID ищет статью в кэше.
func (p *Postgres) GetByID(ctx context.Context, id domain.ArticleID) (domain.Article, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var (
		a     domain.Article
		rawID int64
	)
	err := p.pool.QueryRow(ctx, `
SELECT id, title, description, author, date, category, image_url
FROM articles_cache WHERE id=$1
`, int64(id)).Scan(&rawID, &a.Title, &a.Description, &a.Author, &a.Date, &a.Category, &a.ImageURL)
	a.ID = domain.ArticleID(rawID)
	metrics.ObserveNetworkRequest("postgres", "articles_cache_get", "articles_cache", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Article{}, false, nil
	}
	if err != nil {
		return domain.Article{}, false, err
	}
	return a, true, nil
}

// Save сохраняет полный снимок статьи в закладки.
func (p *Postgres) Save(ctx context.Context, a domain.Article) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO saved_articles (id, title, description, author, date, category, image_url, saved_at)
VALUES ($1,$2,$3,$4,$5,$6,$7, now())
ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, description=EXCLUDED.description, author=EXCLUDED.author, date=EXCLUDED.date, category=EXCLUDED.category, image_url=EXCLUDED.image_url
`, int64(a.ID), a.Title, a.Description, a.Author, a.Date, a.Category, a.ImageURL)
	metrics.ObserveNetworkRequest("postgres", "saved_articles_upsert", "saved_articles", start, err)
	if err != nil {
		return err
	}
	p.notify(domain.TableSavedArticles, "")
	return nil
}

// Delete удаляет закладку.
func (p *Postgres) Delete(ctx context.Context, id domain.ArticleID) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM saved_articles WHERE id=$1`, int64(id))
	metrics.ObserveNetworkRequest("postgres", "saved_articles_delete", "saved_articles", start, err)
	if err != nil {
		return err
	}
	p.notify(domain.TableSavedArticles, "")
	return nil
}

// List возвращает закладки, свежие сверху.
func (p *Postgres) List(ctx context.Context) ([]domain.Article, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, title, description, author, date, category, image_url
FROM saved_articles
ORDER BY date DESC
`)
	metrics.ObserveNetworkRequest("postgres", "saved_articles_list", "saved_articles", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// IsSaved проверяет наличие закладки.
func (p *Postgres) IsSaved(ctx context.Context, id domain.ArticleID) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var exists bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM saved_articles WHERE id=$1)`, int64(id)).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "saved_articles_exists", "saved_articles", start, err)
	return exists, err
}

// GetSaved ищет статью среди закладок.
func (p *Postgres) GetSaved(ctx context.Context, id domain.ArticleID) (domain.Article, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var (
		a     domain.Article
		rawID int64
	)
	err := p.pool.QueryRow(ctx, `
SELECT id, title, description, author, date, category, image_url
FROM saved_articles WHERE id=$1
`, int64(id)).Scan(&rawID, &a.Title, &a.Description, &a.Author, &a.Date, &a.Category, &a.ImageURL)
	a.ID = domain.ArticleID(rawID)
	metrics.ObserveNetworkRequest("postgres", "saved_articles_get", "saved_articles", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Article{}, false, nil
	}
	if err != nil {
		return domain.Article{}, false, err
	}
	return a, true, nil
}

// Like добавляет идентификатор в лайки, повторная вставка игнорируется.
func (p *Postgres) Like(ctx context.Context, id domain.ArticleID) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO liked_articles (id) VALUES ($1)
ON CONFLICT (id) DO NOTHING
`, int64(id))
	metrics.ObserveNetworkRequest("postgres", "liked_articles_insert", "liked_articles", start, err)
	if err != nil {
		return err
	}
	p.notify(domain.TableLikedArticles, "")
	return nil
}

// Unlike удаляет лайк.
func (p *Postgres) Unlike(ctx context.Context, id domain.ArticleID) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM liked_articles WHERE id=$1`, int64(id))
	metrics.ObserveNetworkRequest("postgres", "liked_articles_delete", "liked_articles", start, err)
	if err != nil {
		return err
	}
	p.notify(domain.TableLikedArticles, "")
	return nil
}

// ListIDs возвращает идентификаторы лайкнутых статей.
func (p *Postgres) ListIDs(ctx context.Context) ([]domain.ArticleID, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT id FROM liked_articles`)
	metrics.ObserveNetworkRequest("postgres", "liked_articles_list", "liked_articles", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []domain.ArticleID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, domain.ArticleID(id))
	}
	return ids, rows.Err()
}

func scanArticles(rows pgx.Rows) ([]domain.Article, error) {
	var articles []domain.Article
	for rows.Next() {
		var (
			a     domain.Article
			rawID int64
		)
		if err := rows.Scan(&rawID, &a.Title, &a.Description, &a.Author, &a.Date, &a.Category, &a.ImageURL); err != nil {
			return nil, err
		}
		a.ID = domain.ArticleID(rawID)
		articles = append(articles, a)
	}
	return articles, rows.Err()
}
