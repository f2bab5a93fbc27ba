// Package rss — клиент RSS-ленты "Українська правда".
package rss

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"ua-news-backend/internal/domain"
	"ua-news-backend/internal/infra/metrics"
)

const (
	defaultAuthor   = "Українська правда"
	defaultCategory = "Україна"

	displayDateLayout = "02.01.2006"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	htmlEntityRe = regexp.MustCompile(`&[^;\s]+;`)
	spacesRe     = regexp.MustCompile(`\s+`)
)

// Config описывает параметры клиента.
type Config struct {
	FeedURL string
	Timeout time.Duration
}

// Client выгружает и разбирает RSS-ленту одним батчем, без пагинации.
type Client struct {
	parser  *gofeed.Parser
	feedURL string
	timeout time.Duration
}

var _ domain.FeedSource = (*Client)(nil)

// NewClient создаёт клиент ленты.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		parser:  gofeed.NewParser(),
		feedURL: cfg.FeedURL,
		timeout: cfg.Timeout,
	}
}

// Fetch выгружает ленту целиком. Записи без заголовка или ссылки
// отбрасываются, остальные приводятся к доменной статье.
func (c *Client) Fetch(ctx context.Context) ([]domain.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	feed, err := c.parser.ParseURLWithContext(c.feedURL, ctx)
	metrics.ObserveNetworkRequest("rss", "fetch_feed", c.feedURL, start, err)
	if err != nil {
		return nil, fmt.Errorf("выгрузка RSS-ленты: %w", err)
	}

	articles := make([]domain.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if article, ok := mapItem(item); ok {
			articles = append(articles, article)
		}
	}
	return articles, nil
}

// mapItem переводит запись ленты в доменную статью. Описание очищается от
// HTML-разметки, автор и категория получают значения ленты по умолчанию.
func mapItem(item *gofeed.Item) (domain.Article, bool) {
	if item == nil || item.Title == "" || item.Link == "" {
		return domain.Article{}, false
	}

	author := defaultAuthor
	if item.Author != nil && item.Author.Name != "" {
		author = item.Author.Name
	}

	category := defaultCategory
	if len(item.Categories) > 0 && item.Categories[0] != "" {
		category = item.Categories[0]
	}

	date := "N/A"
	if item.PublishedParsed != nil {
		date = item.PublishedParsed.Format(displayDateLayout)
	} else if item.Published != "" {
		date = item.Published
	}

	return domain.Article{
		ID:          domain.HashURL(item.Link),
		Title:       StripHTML(item.Title),
		Description: StripHTML(item.Description),
		Author:      author,
		Date:        date,
		Category:    category,
		ImageURL:    imageURL(item),
	}, true
}

func imageURL(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

// StripHTML убирает теги и сущности из фрагмента разметки и схлопывает
// пробелы: "<p>This is <b>bold</b> text.</p>" превращается в
// "This is bold text.".
func StripHTML(raw string) string {
	text := htmlTagRe.ReplaceAllString(raw, " ")
	text = htmlEntityRe.ReplaceAllString(text, " ")
	text = spacesRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
