package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/refresher/internal/acquire"
	"github.com/TobiSchelling/refresher/internal/articles"
	"github.com/TobiSchelling/refresher/internal/config"
	"github.com/TobiSchelling/refresher/internal/errs"
	"github.com/TobiSchelling/refresher/internal/extract"
	"github.com/TobiSchelling/refresher/internal/logger"
	"github.com/TobiSchelling/refresher/internal/rewrite"
	"github.com/TobiSchelling/refresher/internal/search"
)

type fakeStore struct {
	source  *articles.Article
	getErr  error
	created []articles.NewArticle
	pubErr  error
}

func (f *fakeStore) Get(_ context.Context, id string) (*articles.Article, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.source == nil || f.source.ID != id {
		return nil, &errs.NotFoundError{ID: id}
	}
	return f.source, nil
}

func (f *fakeStore) Create(_ context.Context, in articles.NewArticle) (*articles.Article, error) {
	f.created = append(f.created, in)
	if f.pubErr != nil {
		return nil, f.pubErr
	}
	return &articles.Article{ID: "pub-1", Title: in.Title, Content: in.Content, OriginalURL: in.OriginalURL, Source: in.Source}, nil
}

type fakeSearch struct {
	candidates []search.Candidate
	err        error
	queries    []string
}

func (f *fakeSearch) Search(_ context.Context, q string) ([]search.Candidate, error) {
	f.queries = append(f.queries, q)
	return f.candidates, f.err
}

type fakeExtractor struct {
	failures map[string]error
	calls    []string
}

func (f *fakeExtractor) Extract(_ context.Context, url string) (extract.Document, error) {
	f.calls = append(f.calls, url)
	if err, ok := f.failures[url]; ok {
		return extract.Document{}, err
	}
	return extract.Document{URL: url, Title: "ref", Content: "Reference text for " + url, Length: 30}, nil
}

type fakeGen struct{ calls int }

func (f *fakeGen) Generate(_ context.Context, _, user string) (string, error) {
	f.calls++
	if strings.HasPrefix(user, "Rewrite the ORIGINAL ARTICLE") {
		return "A refreshed article body.", nil
	}
	return "A summary.", nil
}

func candidates(n int) []search.Candidate {
	out := make([]search.Candidate, n)
	for i := range out {
		out[i] = search.Candidate{Title: fmt.Sprintf("Result %d", i+1), URL: fmt.Sprintf("https://ref%d.example/post", i+1)}
	}
	return out
}

func source() *articles.Article {
	return &articles.Article{ID: "src-1", Title: "Chatbots for support", Content: "Original body.", OriginalURL: "https://blog.example/chatbots", Source: articles.SourceOriginal}
}

func newPipeline(store ArticleStore, sp search.Provider, ex acquire.Extractor, gen rewrite.Generator, opts Options) *Pipeline {
	log := logger.NewNop()
	return New(store, sp, acquire.New(ex, log), rewrite.New(gen, config.Default().Rewrite, log), opts, log)
}

func TestRunSkipsTimedOutCandidate(t *testing.T) {
	store := &fakeStore{source: source()}
	sp := &fakeSearch{candidates: candidates(15)}
	ex := &fakeExtractor{failures: map[string]error{
		"https://ref2.example/post": &errs.FetchError{URL: "https://ref2.example/post", Err: context.DeadlineExceeded},
	}}
	gen := &fakeGen{}

	r := newPipeline(store, sp, ex, gen, Options{Target: 2}).Run(context.Background(), "src-1")
	require.NoError(t, r.Err())

	assert.Equal(t, Done, r.State)
	assert.Equal(t, []string{"Chatbots for support"}, sp.queries)
	assert.Equal(t, []string{"https://ref1.example/post", "https://ref2.example/post", "https://ref3.example/post"}, ex.calls)
	assert.Equal(t, []string{"https://ref1.example/post", "https://ref3.example/post"}, r.Rewrite.ReferenceURLs)
	assert.Equal(t, 3, gen.calls)

	require.Len(t, store.created, 1)
	pub := store.created[0]
	assert.Equal(t, "Updated: Chatbots for support", pub.Title)
	assert.Equal(t, "https://blog.example/chatbots-rewritten", pub.OriginalURL)
	assert.Equal(t, articles.SourceUpdated, pub.Source)
	require.NotNil(t, pub.OriginalArticleID)
	assert.Equal(t, "src-1", *pub.OriginalArticleID)
	assert.Equal(t, "A refreshed article body.\n\n## References\n- https://ref1.example/post\n- https://ref3.example/post", pub.Content)
	assert.Equal(t, "pub-1", r.Published.ID)

	assert.Equal(t, []State{Idle, FetchingSource, SearchingCandidates, AcquiringReferences, Rewriting, Publishing, Done}, r.History)
}

func TestRunFailsOnSingleSearchResult(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div class="result"><a href="https://only.example/a">Only</a></div></body></html>`)
	}))
	defer engine.Close()

	cfg := config.Default().Search
	cfg.Endpoint = engine.URL + "/html/?q="
	sp := search.NewDuckDuckGo(cfg, logger.NewNop())

	store := &fakeStore{source: source()}
	ex := &fakeExtractor{}
	gen := &fakeGen{}
	r := newPipeline(store, sp, ex, gen, Options{Target: 2}).Run(context.Background(), "src-1")

	assert.ErrorIs(t, r.Err(), errs.ErrInsufficientResults)
	assert.Equal(t, Failed, r.State)
	assert.Equal(t, []State{Idle, FetchingSource, SearchingCandidates, Failed}, r.History)
	assert.Empty(t, ex.calls)
	assert.Zero(t, gen.calls)
	assert.Empty(t, store.created)
}

func TestRunFailsWhenAllReferencesBlocklisted(t *testing.T) {
	store := &fakeStore{source: source()}
	sp := &fakeSearch{candidates: []search.Candidate{
		{URL: "https://www.nature.com/articles/1"},
		{URL: "https://pmc.ncbi.nlm.nih.gov/articles/2"},
	}}
	gen := &fakeGen{}
	r := newPipeline(store, sp, &fakeExtractor{}, gen, Options{Target: 2}).Run(context.Background(), "src-1")

	assert.ErrorIs(t, r.Err(), errs.ErrNoSummarizableReferences)
	assert.Equal(t, Failed, r.State)
	assert.Nil(t, r.Rewrite)
	assert.Zero(t, gen.calls)
	assert.Empty(t, store.created)
}

func TestRunFailsWhenCandidatesExhausted(t *testing.T) {
	store := &fakeStore{source: source()}
	sp := &fakeSearch{candidates: candidates(3)}
	ex := &fakeExtractor{failures: map[string]error{
		"https://ref1.example/post": &errs.NoContentError{URL: "https://ref1.example/post"},
		"https://ref2.example/post": &errs.FetchError{URL: "https://ref2.example/post", Status: 403},
	}}
	r := newPipeline(store, sp, ex, &fakeGen{}, Options{Target: 2}).Run(context.Background(), "src-1")

	var insufficient *errs.InsufficientReferencesError
	require.ErrorAs(t, r.Err(), &insufficient)
	assert.Equal(t, 1, insufficient.Got)
	assert.Len(t, ex.calls, 3)
	assert.Empty(t, store.created)
}

func TestRunSourceNotFound(t *testing.T) {
	store := &fakeStore{source: source()}
	sp := &fakeSearch{candidates: candidates(2)}
	r := newPipeline(store, sp, &fakeExtractor{}, &fakeGen{}, Options{}).Run(context.Background(), "missing")

	assert.ErrorIs(t, r.Err(), errs.ErrNotFound)
	assert.Equal(t, []State{Idle, FetchingSource, Failed}, r.History)
	assert.Empty(t, sp.queries)
}

func TestRunPublishFailure(t *testing.T) {
	store := &fakeStore{source: source(), pubErr: &errs.ConflictError{OriginalURL: "x"}}
	sp := &fakeSearch{candidates: candidates(2)}
	r := newPipeline(store, sp, &fakeExtractor{}, &fakeGen{}, Options{Target: 2}).Run(context.Background(), "src-1")

	assert.ErrorIs(t, r.Err(), errs.ErrConflict)
	assert.Equal(t, Failed, r.State)
	assert.Len(t, store.created, 1)
	assert.Nil(t, r.Published)
}

func TestRunDryRunDoesNotPublish(t *testing.T) {
	store := &fakeStore{source: source()}
	sp := &fakeSearch{candidates: candidates(4)}
	r := newPipeline(store, sp, &fakeExtractor{}, &fakeGen{}, Options{Target: 2, DryRun: true}).Run(context.Background(), "src-1")

	require.NoError(t, r.Err())
	assert.Equal(t, Done, r.State)
	assert.True(t, r.State.Terminal())
	assert.Equal(t, []State{Idle, FetchingSource, SearchingCandidates, AcquiringReferences, Rewriting, Done}, r.History)
	assert.NotNil(t, r.Rewrite)
	assert.Nil(t, r.Published)
	assert.Empty(t, store.created)
	assert.Contains(t, r.Steps[len(r.Steps)-1].Summary, "Publishing skipped")
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &fakeStore{source: source()}
	sp := &fakeSearch{candidates: candidates(5)}
	r := newPipeline(store, sp, &fakeExtractor{}, &fakeGen{}, Options{Target: 2}).Run(ctx, "src-1")

	assert.True(t, errors.Is(r.Err(), context.Canceled))
	assert.Empty(t, store.created)
}

func TestIllegalTransitionPanics(t *testing.T) {
	r := &Result{State: Idle}
	assert.Panics(t, func() { r.enter(Rewriting) })

	r = &Result{State: Done}
	assert.Panics(t, func() { r.enter(Failed) })

	r = &Result{State: Rewriting}
	assert.Panics(t, func() { r.enter(Done) })
	r = &Result{State: Rewriting, DryRun: true}
	assert.NotPanics(t, func() { r.enter(Done) })
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "acquiring-references", AcquiringReferences.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.True(t, Failed.Terminal())
	assert.False(t, Publishing.Terminal())
}
