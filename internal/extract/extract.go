// Package extract fetches a page and pulls readable text out of it using an
// ordered chain of container selectors, with per-host profiles and a
// readability fallback.
package extract

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/refresher/internal/config"
	"github.com/TobiSchelling/refresher/internal/errs"
	"github.com/TobiSchelling/refresher/internal/logger"
	"github.com/TobiSchelling/refresher/internal/urlutil"
)

// minFallbackChars is the shortest readability output accepted as content.
const minFallbackChars = 100

// Document is the readable text of one page.
type Document struct {
	URL     string
	Title   string
	Content string
	// Length is the rune count of Content.
	Length int
}

// Extractor fetches pages over HTTP and extracts their readable text.
type Extractor struct {
	cfg    config.Extractor
	client *http.Client
	log    logger.Logger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithHTTPClient replaces the default client, keeping the configured timeout
// when the given client has none.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) { e.client = c }
}

// New creates an Extractor from config.
func New(cfg config.Extractor, log logger.Logger, opts ...Option) *Extractor {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5 << 20
	}
	if cfg.Blocks == "" {
		cfg.Blocks = "h1, h2, h3, p, li"
	}
	if len(cfg.Containers) == 0 {
		cfg.Containers = []string{"body"}
	}
	e := &Extractor{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		log: log,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client.Timeout == 0 {
		e.client.Timeout = cfg.Timeout
	}
	return e
}

// Extract fetches rawURL and returns its readable text. It fails with a
// FetchError on network errors, timeouts and non-2xx responses, and with a
// NoContentError when no readable block is found.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (Document, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil || !urlutil.IsHTTP(rawURL) {
		return Document{}, &errs.FetchError{URL: rawURL, Err: errors.New("invalid url")}
	}

	body, err := e.fetch(ctx, pageURL)
	if err != nil {
		return Document{}, err
	}
	return e.Parse(pageURL, body)
}

func (e *Extractor) fetch(ctx context.Context, pageURL *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, &errs.FetchError{URL: pageURL.String(), Err: err}
	}
	if e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}
	if e.cfg.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", e.cfg.AcceptLanguage)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &errs.FetchError{URL: pageURL.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &errs.FetchError{URL: pageURL.String(), Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBodyBytes))
	if err != nil {
		return nil, &errs.FetchError{URL: pageURL.String(), Err: err}
	}
	return body, nil
}

// Parse extracts a Document from already fetched HTML.
func (e *Extractor) Parse(pageURL *url.URL, body []byte) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Document{}, &errs.NoContentError{URL: pageURL.String()}
	}

	rules := e.rulesFor(pageURL.Hostname())
	if len(rules.strip) > 0 {
		doc.Find(strings.Join(rules.strip, ", ")).Remove()
	}

	d := Document{URL: pageURL.String(), Title: pageTitle(doc)}

	container := selectContainer(doc, rules.containers)
	if container == nil && rules.skipOnMissing {
		e.log.Debug("profile container missing",
			logger.String("url", d.URL), logger.Strings("containers", rules.containers))
		return Document{}, &errs.NoContentError{URL: d.URL, Missing: true}
	}

	var blocks []string
	if container != nil {
		blocks = collectBlocks(container, rules.blocks)
	}
	if len(blocks) == 0 && e.cfg.ReadabilityFallback && !rules.skipOnMissing {
		blocks = readabilityBlocks(body, pageURL)
		if len(blocks) > 0 {
			e.log.Debug("used readability fallback", logger.String("url", d.URL))
		}
	}
	if len(blocks) == 0 {
		return Document{}, &errs.NoContentError{URL: d.URL}
	}

	d.Content = strings.Join(blocks, "\n\n")
	d.Length = utf8.RuneCountInString(d.Content)
	return d, nil
}

type rules struct {
	strip         []string
	containers    []string
	blocks        string
	skipOnMissing bool
}

// rulesFor merges the profile matching host over the base config.
func (e *Extractor) rulesFor(host string) rules {
	r := rules{strip: e.cfg.Strip, containers: e.cfg.Containers, blocks: e.cfg.Blocks}
	for _, p := range e.cfg.Profiles {
		if !urlutil.MatchesDomain(host, p.Host) {
			continue
		}
		if len(p.Strip) > 0 {
			r.strip = p.Strip
		}
		if len(p.Containers) > 0 {
			r.containers = p.Containers
		}
		if p.Blocks != "" {
			r.blocks = p.Blocks
		}
		r.skipOnMissing = p.SkipOnMissing
		break
	}
	return r
}

// selectContainer returns the first selector match holding any text.
func selectContainer(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		match := doc.Find(sel).First()
		if match.Length() == 0 {
			continue
		}
		if strings.TrimSpace(match.Text()) != "" {
			return match
		}
	}
	return nil
}

func collectBlocks(container *goquery.Selection, selector string) []string {
	var blocks []string
	container.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if text := collapse(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	return blocks
}

func readabilityBlocks(body []byte, pageURL *url.URL) []string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return nil
	}
	text := strings.TrimSpace(article.TextContent)
	if utf8.RuneCountInString(text) <= minFallbackChars {
		return nil
	}
	var blocks []string
	for _, line := range strings.Split(text, "\n") {
		if line = collapse(line); line != "" {
			blocks = append(blocks, line)
		}
	}
	return blocks
}

func pageTitle(doc *goquery.Document) string {
	if h1 := collapse(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return collapse(doc.Find("title").First().Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
