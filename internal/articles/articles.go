// Package articles is an HTTP client for the article store API.
package articles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TobiSchelling/refresher/internal/config"
	"github.com/TobiSchelling/refresher/internal/errs"
	"github.com/TobiSchelling/refresher/internal/logger"
)

// Article sources.
const (
	SourceOriginal = "original"
	SourceUpdated  = "updated"
)

// Article mirrors the store's JSON representation.
type Article struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Content           string    `json:"content"`
	OriginalURL       string    `json:"original_url"`
	OriginalArticleID *string   `json:"original_article_id,omitempty"`
	Source            string    `json:"source"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewArticle is the create payload.
type NewArticle struct {
	Title             string  `json:"title"`
	Content           string  `json:"content"`
	OriginalURL       string  `json:"original_url"`
	OriginalArticleID *string `json:"original_article_id,omitempty"`
	Source            string  `json:"source,omitempty"`
}

// Client talks to the article API.
type Client struct {
	baseURL string
	http    *http.Client
	log     logger.Logger
}

// NewClient creates a client for cfg.BaseURL.
func NewClient(cfg config.Articles, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// List returns all articles, newest first.
func (c *Client) List(ctx context.Context) ([]Article, error) {
	var list []Article
	if err := c.do(ctx, http.MethodGet, "/articles", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Get returns one article. A missing article is a NotFoundError.
func (c *Client) Get(ctx context.Context, id string) (*Article, error) {
	var a Article
	if err := c.do(ctx, http.MethodGet, "/articles/"+url.PathEscape(id), nil, &a); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, &errs.NotFoundError{ID: id}
		}
		return nil, err
	}
	return &a, nil
}

// Create stores an article. The API answers either with a
// {"message", "article"} envelope or a bare article; both are accepted.
func (c *Client) Create(ctx context.Context, in NewArticle) (*Article, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/articles", in, &raw); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return nil, &errs.ConflictError{OriginalURL: in.OriginalURL}
		}
		return nil, err
	}

	var env struct {
		Message string   `json:"message"`
		Article *Article `json:"article"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && env.Article != nil {
		if env.Message != "" {
			c.log.Debug("article stored", logger.String("message", env.Message), logger.String("id", env.Article.ID))
		}
		return env.Article, nil
	}

	var a Article
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decoding created article: %w", err)
	}
	if a.ID == "" {
		return nil, errors.New("created article has no id")
	}
	return &a, nil
}

// Update replaces title, content and original_url of an article.
func (c *Client) Update(ctx context.Context, id, title, content, originalURL string) (*Article, error) {
	body := map[string]string{"title": title, "content": content, "original_url": originalURL}
	var a Article
	if err := c.do(ctx, http.MethodPut, "/articles/"+url.PathEscape(id), body, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Delete removes an article.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/articles/"+url.PathEscape(id), nil, nil)
}

// LatestOriginal returns the newest article with source 'original'.
func (c *Client) LatestOriginal(ctx context.Context) (*Article, error) {
	list, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	if a := LatestOriginal(list); a != nil {
		return a, nil
	}
	return nil, &errs.NotFoundError{ID: "latest original"}
}

// LatestOriginal picks the newest original from list, or nil.
func LatestOriginal(list []Article) *Article {
	var latest *Article
	for i := range list {
		a := &list[i]
		if a.Source != SourceOriginal {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			latest = a
		}
	}
	return latest
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &errs.FetchError{URL: c.baseURL + path, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &errs.NotFoundError{ID: path}
	case resp.StatusCode == http.StatusConflict:
		return &errs.ConflictError{}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &errs.FetchError{
			URL:    c.baseURL + path,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s %s: %s", method, path, strings.TrimSpace(string(msg))),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}
