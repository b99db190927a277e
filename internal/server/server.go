package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/refresher/internal/catalog"
	"github.com/TobiSchelling/refresher/internal/database"
	"github.com/TobiSchelling/refresher/internal/errs"
	"github.com/TobiSchelling/refresher/internal/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

var md = goldmark.New()

// Seeder fills the store with original articles.
type Seeder interface {
	Seed(ctx context.Context) (*catalog.Result, error)
}

// Server is the HTTP API over the article store.
type Server struct {
	db      *database.DB
	seeder  Seeder
	log     logger.Logger
	preview *template.Template
	engine  *gin.Engine
}

// New creates a new Server. seeder may be nil, which disables POST /articles/scrape.
func New(db *database.DB, seeder Seeder, log logger.Logger) (*Server, error) {
	preview, err := template.New("preview.html").
		Funcs(template.FuncMap{"markdown": renderMarkdown}).
		ParseFS(templateFS, "templates/preview.html")
	if err != nil {
		return nil, fmt.Errorf("parsing preview template: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{db: db, seeder: seeder, log: log, preview: preview, engine: gin.New()}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	articles := s.engine.Group("/articles")
	articles.GET("", s.handleList)
	articles.POST("", s.handleCreate)
	articles.POST("/scrape", s.handleScrape)
	articles.GET("/:id", s.handleGet)
	articles.GET("/:id/preview", s.handlePreview)
	articles.PUT("/:id", s.handleUpdate)
	articles.DELETE("/:id", s.handleDelete)
}

func (s *Server) handleList(c *gin.Context) {
	list, err := s.db.ListArticles(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleGet(c *gin.Context) {
	a, err := s.db.GetArticle(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleCreate(c *gin.Context) {
	var in database.NewArticle
	if err := c.ShouldBindJSON(&in); err != nil || missing(in.Title, in.Content, in.OriginalURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}
	if in.Source != "" && in.Source != database.SourceOriginal && in.Source != database.SourceUpdated {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source must be 'original' or 'updated'"})
		return
	}
	if in.OriginalArticleID != nil && *in.OriginalArticleID == "" {
		in.OriginalArticleID = nil
	}

	a, updated, err := s.db.CreateArticle(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	if updated {
		c.JSON(http.StatusOK, gin.H{"message": "Updated existing rewritten article", "article": a})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Article created", "article": a})
}

func (s *Server) handleUpdate(c *gin.Context) {
	var in database.ArticleUpdate
	if err := c.ShouldBindJSON(&in); err != nil || missing(in.Title, in.Content, in.OriginalURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}
	a, err := s.db.UpdateArticle(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleDelete(c *gin.Context) {
	if err := s.db.DeleteArticle(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Article deleted"})
}

func (s *Server) handleScrape(c *gin.Context) {
	if s.seeder == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "catalog seeding is not configured"})
		return
	}
	res, err := s.seeder.Seed(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  fmt.Sprintf("%d articles inserted", res.Inserted),
		"inserted": res.Inserted,
		"found":    res.Found,
		"skipped":  res.Skipped,
	})
}

func (s *Server) handlePreview(c *gin.Context) {
	a, err := s.db.GetArticle(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := s.preview.Execute(&buf, a); err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// fail maps store errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
	case errors.Is(err, errs.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Article with this URL already exists"})
	default:
		s.log.Error("request failed", logger.String("path", c.FullPath()), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("took", time.Since(start)))
	}
}

func missing(fields ...string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return true
		}
	}
	return false
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve runs the API on port until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", logger.String("addr", "http://"+srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
