package database

import "time"

// Article sources.
const (
	SourceOriginal = "original"
	SourceUpdated  = "updated"
)

// Article is a stored blog article, either scraped from the original site
// or published by a refresh run.
type Article struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Content           string    `json:"content"`
	OriginalURL       string    `json:"original_url"`
	OriginalArticleID *string   `json:"original_article_id"`
	Source            string    `json:"source"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewArticle is the input for CreateArticle.
type NewArticle struct {
	Title             string  `json:"title"`
	Content           string  `json:"content"`
	OriginalURL       string  `json:"original_url"`
	OriginalArticleID *string `json:"original_article_id"`
	Source            string  `json:"source"`
}

// ArticleUpdate is the input for UpdateArticle.
type ArticleUpdate struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	OriginalURL string `json:"original_url"`
}
