// Package catalog seeds the article store with the original posts of the
// operator's own blog, discovered from a listing page or a feed.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/refresher/internal/config"
	"github.com/TobiSchelling/refresher/internal/database"
	"github.com/TobiSchelling/refresher/internal/errs"
	"github.com/TobiSchelling/refresher/internal/extract"
	"github.com/TobiSchelling/refresher/internal/logger"
)

// Link is a discovered post.
type Link struct {
	URL   string
	Title string
}

// Result holds the results of a seeding run.
type Result struct {
	Found    int
	Inserted int
	Skipped  int
}

// Store is the persistence the seeder writes to.
type Store interface {
	ArticleURLExists(ctx context.Context, originalURL string) (bool, error)
	CreateArticle(ctx context.Context, in database.NewArticle) (*database.Article, bool, error)
}

// Extractor reads a single post.
type Extractor interface {
	Extract(ctx context.Context, url string) (extract.Document, error)
}

// Seeder discovers and stores original posts.
type Seeder struct {
	cfg       config.Catalog
	store     Store
	extractor Extractor
	client    *http.Client
	userAgent string
	log       logger.Logger
}

// Option customizes a Seeder.
type Option func(*Seeder)

// WithUserAgent sets the identity used for listing and feed requests.
func WithUserAgent(ua string) Option {
	return func(s *Seeder) { s.userAgent = ua }
}

// WithHTTPClient replaces the listing and feed client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Seeder) { s.client = c }
}

// New creates a Seeder.
func New(cfg config.Catalog, store Store, extractor Extractor, log logger.Logger, opts ...Option) *Seeder {
	if cfg.LinkSelector == "" {
		cfg.LinkSelector = "h2 a"
	}
	if cfg.MaxArticles <= 0 {
		cfg.MaxArticles = 5
	}
	s := &Seeder{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		client:    &http.Client{Timeout: 15 * time.Second},
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed discovers up to MaxArticles posts and stores the new ones as
// original articles. Posts that cannot be extracted are skipped.
func (s *Seeder) Seed(ctx context.Context) (*Result, error) {
	links, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}

	r := &Result{Found: len(links)}
	for _, link := range links {
		exists, err := s.store.ArticleURLExists(ctx, link.URL)
		if err != nil {
			return r, fmt.Errorf("checking %s: %w", link.URL, err)
		}
		if exists {
			r.Skipped++
			continue
		}

		doc, err := s.extractor.Extract(ctx, link.URL)
		if err != nil {
			if ctx.Err() != nil {
				return r, ctx.Err()
			}
			r.Skipped++
			if errors.Is(err, errs.ErrContainerMissing) {
				s.log.Debug("post layout not recognised", logger.String("url", link.URL))
			} else {
				s.log.Warn("post extraction failed", logger.String("url", link.URL), logger.Error(err))
			}
			continue
		}

		title := doc.Title
		if title == "" {
			title = link.Title
		}
		if title == "" {
			title = link.URL
		}

		_, _, err = s.store.CreateArticle(ctx, database.NewArticle{
			Title:       title,
			Content:     doc.Content,
			OriginalURL: link.URL,
			Source:      database.SourceOriginal,
		})
		if errors.Is(err, errs.ErrConflict) {
			r.Skipped++
			continue
		}
		if err != nil {
			return r, fmt.Errorf("storing %s: %w", link.URL, err)
		}
		r.Inserted++
		s.log.Info("seeded article", logger.String("title", title), logger.String("url", link.URL))
	}

	s.log.Info("catalog seeding complete",
		logger.Int("found", r.Found), logger.Int("inserted", r.Inserted), logger.Int("skipped", r.Skipped))
	return r, nil
}

// Discover lists post links from the feed when one is configured, otherwise
// from the listing page.
func (s *Seeder) Discover(ctx context.Context) ([]Link, error) {
	var (
		links []Link
		err   error
	)
	if s.cfg.FeedURL != "" {
		links, err = s.fromFeed(ctx)
	} else {
		links, err = s.fromListing(ctx)
	}
	if err != nil {
		return nil, err
	}
	links = limit(dedupe(links), s.cfg.MaxArticles)
	s.log.Debug("catalog links discovered",
		logger.Bool("from_feed", s.cfg.FeedURL != ""), logger.Int("links", len(links)))
	return links, nil
}

func (s *Seeder) fromFeed(ctx context.Context) ([]Link, error) {
	parser := gofeed.NewParser()
	parser.Client = s.client
	if s.userAgent != "" {
		parser.UserAgent = s.userAgent
	}

	feed, err := parser.ParseURLWithContext(s.cfg.FeedURL, ctx)
	if err != nil {
		return nil, &errs.FetchError{URL: s.cfg.FeedURL, Err: err}
	}

	var links []Link
	for _, item := range feed.Items {
		itemURL := item.Link
		if itemURL == "" {
			itemURL = item.GUID
		}
		if !strings.HasPrefix(itemURL, "http") {
			continue
		}
		links = append(links, Link{URL: itemURL, Title: strings.TrimSpace(item.Title)})
	}
	return links, nil
}

func (s *Seeder) fromListing(ctx context.Context) ([]Link, error) {
	if s.cfg.ListingURL == "" {
		return nil, &errs.EmptyInputError{What: "catalog listing_url"}
	}
	base, err := url.Parse(s.cfg.ListingURL)
	if err != nil {
		return nil, &errs.FetchError{URL: s.cfg.ListingURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.ListingURL, nil)
	if err != nil {
		return nil, &errs.FetchError{URL: s.cfg.ListingURL, Err: err}
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &errs.FetchError{URL: s.cfg.ListingURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &errs.FetchError{URL: s.cfg.ListingURL, Status: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &errs.FetchError{URL: s.cfg.ListingURL, Err: err}
	}

	var links []Link
	doc.Find(s.cfg.LinkSelector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		links = append(links, Link{URL: abs.String(), Title: strings.Join(strings.Fields(a.Text()), " ")})
	})
	return links, nil
}

func dedupe(links []Link) []Link {
	seen := make(map[string]bool, len(links))
	out := links[:0]
	for _, l := range links {
		if seen[l.URL] {
			continue
		}
		seen[l.URL] = true
		out = append(out, l)
	}
	return out
}

func limit(links []Link, n int) []Link {
	if len(links) > n {
		return links[:n]
	}
	return links
}
