package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/refresher/internal/config"
	"github.com/TobiSchelling/refresher/internal/errs"
	"github.com/TobiSchelling/refresher/internal/logger"
	"github.com/TobiSchelling/refresher/internal/urlutil"
)

// NewsAPI finds candidates through the newsapi.org everything endpoint.
type NewsAPI struct {
	cfg    config.Search
	apiKey string
	client *http.Client
	log    logger.Logger
}

// NewNewsAPI creates a NewsAPI provider. The key is read from the
// environment variable named in cfg.NewsAPI.APIKeyEnv.
func NewNewsAPI(cfg config.Search, log logger.Logger) (*NewsAPI, error) {
	key := cfg.NewsAPI.APIKey()
	if key == "" {
		return nil, errors.New("newsapi: no API key in $" + cfg.NewsAPI.APIKeyEnv)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.NewsAPI.Endpoint == "" {
		cfg.NewsAPI.Endpoint = "https://newsapi.org/v2/everything"
	}
	return &NewsAPI{
		cfg:    cfg,
		apiKey: key,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}, nil
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"articles"`
}

// Search queries NewsAPI ordered by relevancy.
func (n *NewsAPI) Search(ctx context.Context, query string) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &errs.EmptyInputError{What: "search query"}
	}

	pageSize := n.cfg.MaxResults * 2
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	params := url.Values{
		"q":        {query},
		"pageSize": {strconv.Itoa(pageSize)},
		"sortBy":   {"relevancy"},
	}
	if n.cfg.NewsAPI.Language != "" {
		params.Set("language", n.cfg.NewsAPI.Language)
	}
	endpoint := n.cfg.NewsAPI.Endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &errs.FetchError{URL: endpoint, Err: err}
	}
	req.Header.Set("X-Api-Key", n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, &errs.FetchError{URL: n.cfg.NewsAPI.Endpoint, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &errs.FetchError{URL: n.cfg.NewsAPI.Endpoint, Status: resp.StatusCode}
	}

	var result newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &errs.FetchError{URL: n.cfg.NewsAPI.Endpoint, Err: err}
	}
	if result.Status != "ok" {
		return nil, &errs.FetchError{URL: n.cfg.NewsAPI.Endpoint, Err: errors.New("newsapi status " + result.Status + ": " + result.Message)}
	}

	var out []Candidate
	seen := make(map[string]bool)
	for _, a := range result.Articles {
		if n.cfg.MaxResults > 0 && len(out) >= n.cfg.MaxResults {
			break
		}
		if a.URL == "" || a.Title == "" || a.Title == "[Removed]" || a.URL == "https://removed.com" {
			continue
		}
		if !urlutil.IsHTTP(a.URL) || seen[a.URL] {
			continue
		}
		if urlutil.MatchesAny(urlutil.Host(a.URL), n.cfg.ExcludedHosts) {
			continue
		}
		seen[a.URL] = true
		out = append(out, Candidate{Title: strings.TrimSpace(a.Title), URL: a.URL})
	}

	n.log.Debug("newsapi search completed", logger.String("query", query), logger.Int("candidates", len(out)))
	return checkCount(n.cfg, n.log, query, out)
}
