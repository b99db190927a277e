package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/refresher/internal/config"
	"github.com/TobiSchelling/refresher/internal/database"
	"github.com/TobiSchelling/refresher/internal/extract"
	"github.com/TobiSchelling/refresher/internal/logger"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func post(title, body string) string {
	return fmt.Sprintf(`<html><body><header><h1>Site name</h1></header>
<h1>%s</h1>
<div class="elementor-widget-theme-post-content"><p>%s</p><h2>Section</h2></div>
<div class="comments"><p>Great read</p></div></body></html>`, title, body)
}

// blogSite serves a listing page, an RSS feed and six posts; post-3 uses an
// unrecognised layout.
func blogSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var listing strings.Builder
	listing.WriteString(`<html><body>`)
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&listing, `<h2><a href="/blogs/post-%d/#top">Post %d</a></h2>`, i, i)
	}
	listing.WriteString(`<h2><a href="/blogs/post-1/">Post 1 again</a></h2><h2><a href="mailto:x@y.z">mail</a></h2></body></html>`)
	mux.HandleFunc("/blogs/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/blogs/":
			_, _ = w.Write([]byte(listing.String()))
		case "/blogs/post-3/":
			_, _ = w.Write([]byte(`<html><body><article><p>Generic theme</p></article></body></html>`))
		default:
			n := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/blogs/post-"), "/")
			_, _ = w.Write([]byte(post("Title "+n, "Body of post "+n)))
		}
	})
	srv := httptest.NewServer(mux)
	mux.HandleFunc("/feed/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>Blog</title>
<item><title>Feed post 2</title><link>%[1]s/blogs/post-2/</link></item>
<item><title>Feed post 4</title><link>%[1]s/blogs/post-4/</link></item>
</channel></rss>`, srv.URL)
	})
	t.Cleanup(srv.Close)
	return srv
}

func newSeeder(t *testing.T, srv *httptest.Server, db *database.DB, mutate func(*config.Catalog)) *Seeder {
	t.Helper()
	exCfg := config.Default().Extractor
	exCfg.Profiles = []config.Profile{{
		Host:          "127.0.0.1",
		Containers:    []string{".elementor-widget-theme-post-content"},
		Blocks:        "p, h2, h3, li",
		SkipOnMissing: true,
	}}
	cfg := config.Default().Catalog
	cfg.ListingURL = srv.URL + "/blogs/"
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, db, extract.New(exCfg, logger.NewNop()), logger.NewNop(),
		WithUserAgent("test-agent"), WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))
}

func TestDiscoverListing(t *testing.T) {
	srv := blogSite(t)
	links, err := newSeeder(t, srv, openTestDB(t), nil).Discover(context.Background())
	require.NoError(t, err)

	require.Len(t, links, 5)
	assert.Equal(t, Link{URL: srv.URL + "/blogs/post-1/", Title: "Post 1"}, links[0])
	assert.Equal(t, srv.URL+"/blogs/post-5/", links[4].URL)
}

func TestSeedStoresOriginals(t *testing.T) {
	srv := blogSite(t)
	db := openTestDB(t)
	ctx := context.Background()

	res, err := newSeeder(t, srv, db, nil).Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Found)
	assert.Equal(t, 4, res.Inserted)
	assert.Equal(t, 1, res.Skipped)

	all, err := db.ListArticles(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for _, a := range all {
		assert.Equal(t, database.SourceOriginal, a.Source)
		assert.NotContains(t, a.Content, "Great read")
		assert.NotEqual(t, "Site name", a.Title)
	}

	// A second run inserts nothing new.
	res, err = newSeeder(t, srv, db, nil).Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 5, res.Skipped)
}

func TestSeedFromFeed(t *testing.T) {
	srv := blogSite(t)
	db := openTestDB(t)

	res, err := newSeeder(t, srv, db, func(c *config.Catalog) { c.FeedURL = srv.URL + "/feed/" }).Seed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Found)
	assert.Equal(t, 2, res.Inserted)

	exists, err := db.ArticleURLExists(context.Background(), srv.URL+"/blogs/post-4/")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDiscoverListingFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	_, err := newSeeder(t, srv, openTestDB(t), nil).Discover(context.Background())
	assert.Error(t, err)
}

type recordingTransport struct {
	agents []string
}

func (r *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r.agents = append(r.agents, req.Header.Get("User-Agent"))
	return http.DefaultTransport.RoundTrip(req)
}

func TestDiscoverUsesInjectedClient(t *testing.T) {
	srv := blogSite(t)
	transport := &recordingTransport{}
	cfg := config.Default().Catalog
	cfg.ListingURL = srv.URL + "/blogs/"

	s := New(cfg, openTestDB(t), extract.New(config.Default().Extractor, logger.NewNop()), logger.NewNop(),
		WithUserAgent("seed-agent"), WithHTTPClient(&http.Client{Transport: transport}))
	links, err := s.Discover(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, links)
	assert.Equal(t, []string{"seed-agent"}, transport.agents)
}
