package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/refresher/internal/errs"
	"github.com/TobiSchelling/refresher/internal/logger"
)

const articleColumns = `id, title, content, original_url, original_article_id, source, created_at, updated_at`

// CreateArticle inserts an article. When the article is an updated variant
// and one already exists for the same original, that row is updated in place
// and updated is true. An original_url collision is a ConflictError.
func (db *DB) CreateArticle(ctx context.Context, in NewArticle) (a *Article, updated bool, err error) {
	if in.Source == "" {
		in.Source = SourceOriginal
	}
	if in.Source != SourceOriginal && in.Source != SourceUpdated {
		return nil, false, fmt.Errorf("invalid source %q", in.Source)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	now := db.now()
	if in.Source == SourceUpdated && in.OriginalArticleID != nil {
		var id string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM articles WHERE original_article_id = ? AND source = ?`,
			*in.OriginalArticleID, SourceUpdated,
		).Scan(&id)
		switch {
		case err == nil:
			_, err = tx.ExecContext(ctx,
				`UPDATE articles SET title = ?, content = ?, original_url = ?, updated_at = ? WHERE id = ?`,
				in.Title, in.Content, in.OriginalURL, formatTime(now), id,
			)
			if err != nil {
				return nil, false, conflictOr(err, in.OriginalURL)
			}
			a, err := getArticle(ctx, tx, id)
			if err != nil {
				return nil, false, err
			}
			if err := tx.Commit(); err != nil {
				return nil, false, fmt.Errorf("commit update: %w", err)
			}
			db.log.Info("updated existing rewritten article",
				logger.String("id", id), logger.String("original_article_id", *in.OriginalArticleID))
			return a, true, nil
		case !errors.Is(err, sql.ErrNoRows):
			return nil, false, fmt.Errorf("looking up updated article: %w", err)
		}
	}

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO articles (`+articleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.Title, in.Content, in.OriginalURL, in.OriginalArticleID, in.Source, formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, false, conflictOr(err, in.OriginalURL)
	}
	a, err = getArticle(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit create: %w", err)
	}
	return a, false, nil
}

// GetArticle returns one article or a NotFoundError.
func (db *DB) GetArticle(ctx context.Context, id string) (*Article, error) {
	return getArticle(ctx, db.conn, id)
}

// ListArticles returns all articles, newest first.
func (db *DB) ListArticles(ctx context.Context) ([]Article, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	articles := []Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

// UpdateArticle replaces title, content and original_url and marks the
// article as updated.
func (db *DB) UpdateArticle(ctx context.Context, id string, in ArticleUpdate) (*Article, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE articles SET title = ?, content = ?, original_url = ?, source = ?, updated_at = ? WHERE id = ?`,
		in.Title, in.Content, in.OriginalURL, SourceUpdated, formatTime(db.now()), id,
	)
	if err != nil {
		return nil, conflictOr(err, in.OriginalURL)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &errs.NotFoundError{ID: id}
	}
	return db.GetArticle(ctx, id)
}

// DeleteArticle removes an article.
func (db *DB) DeleteArticle(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errs.NotFoundError{ID: id}
	}
	return nil
}

// ArticleURLExists reports whether any article has the given original_url.
func (db *DB) ArticleURLExists(ctx context.Context, originalURL string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM articles WHERE original_url = ?`, originalURL).Scan(&n)
	return n > 0, err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getArticle(ctx context.Context, q queryer, id string) (*Article, error) {
	row := q.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &errs.NotFoundError{ID: id}
	}
	return a, err
}

func scanArticle(s scanner) (*Article, error) {
	var (
		a                    Article
		originalID           sql.NullString
		createdAt, updatedAt string
	)
	if err := s.Scan(&a.ID, &a.Title, &a.Content, &a.OriginalURL, &originalID,
		&a.Source, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if originalID.Valid {
		a.OriginalArticleID = &originalID.String
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &a, nil
}

// formatTime uses a fixed-width layout so TEXT ordering matches time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func conflictOr(err error, originalURL string) error {
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, "original_url") {
		return &errs.ConflictError{OriginalURL: originalURL}
	}
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return &errs.ConflictError{}
	}
	return err
}
