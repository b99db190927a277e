// Package search turns a query into candidate reference URLs by scraping a
// keyless HTML search engine results page.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/TobiSchelling/refresher/internal/config"
	"github.com/TobiSchelling/refresher/internal/errs"
	"github.com/TobiSchelling/refresher/internal/logger"
	"github.com/TobiSchelling/refresher/internal/urlutil"
)

// Candidate is one search result worth trying as a reference.
type Candidate struct {
	Title string
	URL   string
}

// Provider returns candidates for a query in engine order.
type Provider interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
}

const redirectDomain = "duckduckgo.com"

// DuckDuckGo scrapes the DuckDuckGo HTML endpoint.
type DuckDuckGo struct {
	cfg      config.Search
	client   *http.Client
	log      logger.Logger
	excluded []string
}

// NewDuckDuckGo creates a provider from config. The endpoint host is always
// excluded from results along with the configured hosts.
func NewDuckDuckGo(cfg config.Search, log logger.Logger) *DuckDuckGo {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.Containers) == 0 {
		cfg.Containers = []string{"div.result", "div.results > div"}
	}
	excluded := append([]string{}, cfg.ExcludedHosts...)
	if h := urlutil.Host(cfg.Endpoint); h != "" {
		excluded = append(excluded, h)
	}
	return &DuckDuckGo{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		log:      log,
		excluded: excluded,
	}
}

// Search issues a single GET for query and returns at most MaxResults
// filtered candidates.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &errs.EmptyInputError{What: "search query"}
	}

	endpoint := d.cfg.Endpoint + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &errs.FetchError{URL: endpoint, Err: err}
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html")

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &errs.FetchError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &errs.FetchError{URL: endpoint, Status: resp.StatusCode}
	}

	candidates, err := d.parse(resp.Body)
	if err != nil {
		return nil, &errs.FetchError{URL: endpoint, Err: err}
	}

	d.log.Debug("search completed",
		logger.String("query", query),
		logger.Int("candidates", len(candidates)),
		logger.Duration("took", time.Since(start)))

	return checkCount(d.cfg, d.log, query, candidates)
}

// checkCount enforces the minimum pool size shared by all providers.
func checkCount(cfg config.Search, log logger.Logger, query string, candidates []Candidate) ([]Candidate, error) {
	if len(candidates) < cfg.MinResults {
		return nil, &errs.InsufficientResultsError{Query: query, Got: len(candidates), Min: cfg.MinResults}
	}
	if cfg.WarnBelow > 0 && len(candidates) < cfg.WarnBelow {
		log.Warn("fewer candidates than expected",
			logger.String("query", query), logger.Int("got", len(candidates)), logger.Int("expected", cfg.WarnBelow))
	}
	return candidates, nil
}

// New returns the provider named by cfg.Provider.
func New(cfg config.Search, log logger.Logger) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "duckduckgo":
		return NewDuckDuckGo(cfg, log), nil
	case "newsapi":
		return NewNewsAPI(cfg, log)
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.Provider)
	}
}

func (d *DuckDuckGo) parse(r io.Reader) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing results page: %w", err)
	}

	var out []Candidate
	seen := make(map[string]bool)
	doc.Find(strings.Join(d.cfg.Containers, ", ")).EachWithBreak(func(_ int, result *goquery.Selection) bool {
		if d.cfg.MaxResults > 0 && len(out) >= d.cfg.MaxResults {
			return false
		}
		c, ok := candidateFrom(result)
		if !ok || seen[c.URL] {
			return true
		}
		if urlutil.MatchesAny(urlutil.Host(c.URL), d.excluded) {
			return true
		}
		seen[c.URL] = true
		out = append(out, c)
		return true
	})
	return out, nil
}

// candidateFrom picks the first usable anchor in one result container.
func candidateFrom(result *goquery.Selection) (Candidate, bool) {
	var c Candidate
	found := false
	result.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		href = normalizeHref(href)
		if !urlutil.IsHTTP(href) && !isRedirect(href) {
			return true
		}
		// First usable anchor decides the entry; an undecodable wrapper skips it.
		found = true
		dest, ok := destination(href)
		if !ok {
			c = Candidate{}
			return false
		}
		c = Candidate{URL: dest, Title: collapse(a.Text())}
		return false
	})
	if !found || c.URL == "" {
		return Candidate{}, false
	}
	if c.Title == "" {
		c.Title = collapse(result.Text())
	}
	return c, true
}

func normalizeHref(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func isRedirect(href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	if u.Host != "" && !urlutil.MatchesDomain(u.Hostname(), redirectDomain) {
		return false
	}
	return u.Path == "/l/" && strings.Contains(u.RawQuery, "uddg=")
}

// destination unwraps redirect links via their uddg parameter.
func destination(href string) (string, bool) {
	if !isRedirect(href) {
		return href, true
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return "", false
	}
	dest := normalizeHref(q.Get("uddg"))
	if !urlutil.IsHTTP(dest) {
		return "", false
	}
	return dest, true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
