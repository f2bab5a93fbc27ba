// Package newsapi — клиент JSON API заголовков (newsapi.org, v2/top-headlines).
package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"ua-news-backend/internal/domain"
	"ua-news-backend/internal/infra/metrics"
)

// Config описывает параметры клиента.
type Config struct {
	BaseURL string
	APIKey  string
	Country string
	Timeout time.Duration
}

// Client выгружает страницы заголовков по категории.
type Client struct {
	http    *resty.Client
	country string
}

var _ domain.HeadlineSource = (*Client)(nil)

// NewClient создаёт клиент с таймаутом и ретраями.
func NewClient(cfg Config) *Client {
	if cfg.Country == "" {
		cfg.Country = "us"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetHeader("X-Api-Key", cfg.APIKey)
	return &Client{http: client, country: cfg.Country}
}

type sourceDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type articleDTO struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Author      string     `json:"author"`
	URL         string     `json:"url"`
	URLToImage  string     `json:"urlToImage"`
	PublishedAt string     `json:"publishedAt"`
	Source      *sourceDTO `json:"source"`
}

type headlinesResponse struct {
	Status   string       `json:"status"`
	Articles []articleDTO `json:"articles"`
}

// FetchPage выгружает одну страницу заголовков категории. Записи без
// обязательных полей отбрасываются, батч при этом не считается ошибочным.
func (c *Client) FetchPage(ctx context.Context, category string, page, pageSize int) ([]domain.Article, error) {
	category = domain.NormalizeCategory(category)

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"country":  c.country,
			"category": category,
			"page":     strconv.Itoa(page),
			"pageSize": strconv.Itoa(pageSize),
		}).
		Get("/v2/top-headlines")
	metrics.ObserveNetworkRequest("newsapi", "top_headlines", category, start, err)
	if err != nil {
		return nil, fmt.Errorf("запрос заголовков %q: %w", category, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("заголовки %q: неожиданный статус %d", category, resp.StatusCode())
	}

	var parsed headlinesResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("разбор ответа заголовков: %w", err)
	}

	articles := make([]domain.Article, 0, len(parsed.Articles))
	for _, dto := range parsed.Articles {
		if article, ok := mapArticle(dto, category); ok {
			articles = append(articles, article)
		}
	}
	return articles, nil
}
