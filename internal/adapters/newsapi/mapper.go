package newsapi

import (
	"strings"
	"time"

	"ua-news-backend/internal/domain"
)

const displayDateLayout = "02.01.2006"

// mapArticle переводит запись API в доменную статью. Записи без title,
// description или url отбрасываются, а не дополняются значениями по
// умолчанию. Идентификатор — хэш URL.
func mapArticle(dto articleDTO, category string) (domain.Article, bool) {
	if dto.Title == "" || dto.Description == "" || dto.URL == "" {
		return domain.Article{}, false
	}

	author := dto.Author
	if author == "" && dto.Source != nil {
		author = dto.Source.Name
	}
	if author == "" {
		author = "Unknown"
	}

	date := "N/A"
	if dto.PublishedAt != "" {
		date = formatDate(dto.PublishedAt)
	}

	if category == "" {
		if dto.Source != nil && dto.Source.Name != "" {
			category = dto.Source.Name
		} else {
			category = "General"
		}
	}

	return domain.Article{
		ID:          domain.HashURL(dto.URL),
		Title:       dto.Title,
		Description: dto.Description,
		Author:      author,
		Date:        date,
		Category:    category,
		ImageURL:    dto.URLToImage,
	}, true
}

// formatDate переводит метку ISO-8601 в отображаемый вид "15.10.2025".
// Неразбираемая строка возвращается как есть (до "T", если он есть),
// без ошибки.
func formatDate(raw string) string {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		if before, _, found := strings.Cut(raw, "T"); found {
			return before
		}
		return raw
	}
	return t.Format(displayDateLayout)
}
