package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaVersion — версия локальной схемы. Повышение версии пересоздаёт
// производные таблицы (articles_cache, liked_articles); saved_articles —
// пользовательские данные, они не сносятся без явной миграции.
const schemaVersion = 2

// EnsureSchema создаёт таблицы хранилища и приводит схему к текущей версии.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_version (
    version INT NOT NULL
)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	err = tx.QueryRow(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	fresh := errors.Is(err, pgx.ErrNoRows)
	if err != nil && !fresh {
		return fmt.Errorf("read schema version: %w", err)
	}

	if !fresh && current != schemaVersion {
		// Производные таблицы пересоздаются заново, кэш восполнится
		// следующим обновлением.
		if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS articles_cache`); err != nil {
			return fmt.Errorf("drop articles_cache: %w", err)
		}
		if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS liked_articles`); err != nil {
			return fmt.Errorf("drop liked_articles: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
CREATE TABLE IF NOT EXISTS articles_cache (
    id          BIGINT PRIMARY KEY,
    title       TEXT NOT NULL,
    description TEXT NOT NULL,
    author      TEXT NOT NULL,
    date        TEXT NOT NULL,
    category    TEXT NOT NULL,
    image_url   TEXT NOT NULL DEFAULT ''
)`); err != nil {
		return fmt.Errorf("create articles_cache: %w", err)
	}
	if _, err := tx.Exec(ctx, `
CREATE INDEX IF NOT EXISTS articles_cache_category_idx ON articles_cache (category)`); err != nil {
		return fmt.Errorf("create category index: %w", err)
	}

	if _, err := tx.Exec(ctx, `
CREATE TABLE IF NOT EXISTS saved_articles (
    id          BIGINT PRIMARY KEY,
    title       TEXT NOT NULL,
    description TEXT NOT NULL,
    author      TEXT NOT NULL,
    date        TEXT NOT NULL,
    category    TEXT NOT NULL,
    image_url   TEXT NOT NULL DEFAULT '',
    saved_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return fmt.Errorf("create saved_articles: %w", err)
	}

	if _, err := tx.Exec(ctx, `
CREATE TABLE IF NOT EXISTS liked_articles (
    id BIGINT PRIMARY KEY
)`); err != nil {
		return fmt.Errorf("create liked_articles: %w", err)
	}

	if fresh {
		if _, err := tx.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, schemaVersion); err != nil {
			return fmt.Errorf("insert schema version: %w", err)
		}
	} else if current != schemaVersion {
		if _, err := tx.Exec(ctx, `UPDATE schema_version SET version=$1`, schemaVersion); err != nil {
			return fmt.Errorf("update schema version: %w", err)
		}
	}

	return tx.Commit(ctx)
}
