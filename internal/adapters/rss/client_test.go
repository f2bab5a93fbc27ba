package rss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"ua-news-backend/internal/domain"
)

func TestStripHTML(t *testing.T) {
	cases := map[string]string{
		"<p>This is <b>bold</b> text.</p><br/>": "This is bold text.",
		"Plain text":                            "Plain text",
		"&laquo;Цитата&raquo; &mdash; текст":    "Цитата текст",
		"  много   пробелов  ":                  "много пробелов",
	}
	for raw, want := range cases {
		if got := StripHTML(raw); got != want {
			t.Fatalf("StripHTML(%q) = %q, ожидали %q", raw, got, want)
		}
	}
}

func TestMapItemDefaults(t *testing.T) {
	published := time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)
	item := &gofeed.Item{
		Title:           "Заголовок",
		Link:            "https://www.pravda.com.ua/news/1/",
		Description:     "<p>Опис <b>новини</b>.</p>",
		PublishedParsed: &published,
	}

	article, ok := mapItem(item)
	if !ok {
		t.Fatalf("не ожидали отбрасывания записи")
	}
	if article.Author != "Українська правда" {
		t.Fatalf("ожидали автора ленты по умолчанию, получили %q", article.Author)
	}
	if article.Category != "Україна" {
		t.Fatalf("ожидали категорию по умолчанию, получили %q", article.Category)
	}
	if article.Description != "Опис новини." {
		t.Fatalf("описание должно очищаться от разметки, получили %q", article.Description)
	}
	if article.Date != "15.10.2025" {
		t.Fatalf("ожидали дату 15.10.2025, получили %q", article.Date)
	}
	if article.ID != domain.HashURL(item.Link) {
		t.Fatalf("ожидали id = hash(link)")
	}
}

func TestMapItemExplicitCategory(t *testing.T) {
	item := &gofeed.Item{
		Title:      "Заголовок",
		Link:       "https://www.pravda.com.ua/news/2/",
		Categories: []string{"Економіка"},
	}
	article, ok := mapItem(item)
	if !ok {
		t.Fatalf("не ожидали отбрасывания записи")
	}
	if article.Category != "Економіка" {
		t.Fatalf("ожидали категорию из ленты, получили %q", article.Category)
	}
}

func TestMapItemDropsIncomplete(t *testing.T) {
	if _, ok := mapItem(&gofeed.Item{Link: "https://a"}); ok {
		t.Fatalf("запись без заголовка должна отбрасываться")
	}
	if _, ok := mapItem(&gofeed.Item{Title: "A"}); ok {
		t.Fatalf("запись без ссылки должна отбрасываться")
	}
}

func TestFetchParsesFeed(t *testing.T) {
	feedXML := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Українська правда</title>
    <link>https://www.pravda.com.ua/</link>
    <item>
      <title>Перша новина</title>
      <link>https://www.pravda.com.ua/news/1/</link>
      <description>&lt;p&gt;Опис першої.&lt;/p&gt;</description>
      <pubDate>Wed, 15 Oct 2025 12:00:00 +0000</pubDate>
    </item>
    <item>
      <title></title>
      <link>https://www.pravda.com.ua/news/2/</link>
    </item>
  </channel>
</rss>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedXML))
	}))
	defer server.Close()

	client := NewClient(Config{FeedURL: server.URL, Timeout: 5 * time.Second})
	articles, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("ожидали 1 статью после отбрасывания пустой, получили %d", len(articles))
	}
	if articles[0].Title != "Перша новина" {
		t.Fatalf("неожиданный заголовок %q", articles[0].Title)
	}
	if articles[0].Date != "15.10.2025" {
		t.Fatalf("ожидали дату 15.10.2025, получили %q", articles[0].Date)
	}
}
