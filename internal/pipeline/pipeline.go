// Package pipeline runs one article refresh: fetch the source article,
// search for references, acquire them, rewrite and publish.
package pipeline

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/TobiSchelling/refresher/internal/acquire"
	"github.com/TobiSchelling/refresher/internal/articles"
	"github.com/TobiSchelling/refresher/internal/extract"
	"github.com/TobiSchelling/refresher/internal/logger"
	"github.com/TobiSchelling/refresher/internal/rewrite"
	"github.com/TobiSchelling/refresher/internal/search"
)

// State is a stage of a run.
type State int

const (
	Idle State = iota
	FetchingSource
	SearchingCandidates
	AcquiringReferences
	Rewriting
	Publishing
	Done
	Failed
)

var stateNames = [...]string{
	Idle:                "idle",
	FetchingSource:      "fetching-source",
	SearchingCandidates: "searching-candidates",
	AcquiringReferences: "acquiring-references",
	Rewriting:           "rewriting",
	Publishing:          "publishing",
	Done:                "done",
	Failed:              "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool { return s == Done || s == Failed }

// ArticleStore is the persistence collaborator.
type ArticleStore interface {
	Get(ctx context.Context, id string) (*articles.Article, error)
	Create(ctx context.Context, in articles.NewArticle) (*articles.Article, error)
}

// Acquirer turns candidates into extracted reference documents.
type Acquirer interface {
	Acquire(ctx context.Context, candidates iter.Seq[search.Candidate], target int) ([]extract.Document, acquire.Report, error)
}

// Rewriter produces the refreshed article text.
type Rewriter interface {
	Rewrite(ctx context.Context, src rewrite.Source, refs []extract.Document) (rewrite.Result, error)
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the outcome of one run.
type Result struct {
	ArticleID string
	State     State
	// History lists every state the run entered, in order.
	History   []State
	Steps     []StepResult
	Rewrite   *rewrite.Result
	Published *articles.Article
	// DryRun runs go from Rewriting straight to Done.
	DryRun bool
}

// Err returns the error that failed the run, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}

func (r *Result) enter(next State) {
	if r.State.Terminal() {
		panic(fmt.Sprintf("pipeline: transition %s -> %s after terminal state", r.State, next))
	}
	dryRunDone := r.DryRun && r.State == Rewriting && next == Done
	if next != Failed && next != r.State+1 && !dryRunDone {
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s", r.State, next))
	}
	r.State = next
	r.History = append(r.History, next)
}

// Options tune a run.
type Options struct {
	// Target is the number of references to acquire.
	Target int
	// DryRun skips publishing and ends the run in Done.
	DryRun bool
}

// Pipeline orchestrates a refresh run.
type Pipeline struct {
	store    ArticleStore
	search   search.Provider
	acquirer Acquirer
	rewriter Rewriter
	opts     Options
	log      logger.Logger
}

// New creates a new pipeline.
func New(store ArticleStore, sp search.Provider, acq Acquirer, rw Rewriter, opts Options, log logger.Logger) *Pipeline {
	if opts.Target <= 0 {
		opts.Target = 2
	}
	return &Pipeline{store: store, search: sp, acquirer: acq, rewriter: rw, opts: opts, log: log}
}

// Run refreshes the article with the given id. It never publishes a
// partial article: any failing step moves the run to Failed.
func (p *Pipeline) Run(ctx context.Context, articleID string) *Result {
	r := &Result{ArticleID: articleID, State: Idle, History: []State{Idle}, DryRun: p.opts.DryRun}
	log := p.log.With(logger.String("article_id", articleID))
	start := time.Now()

	fail := func(name string, err error) *Result {
		r.Steps = append(r.Steps, StepResult{Name: name, Err: err})
		r.enter(Failed)
		log.Error("refresh failed", logger.String("step", name), logger.Error(err))
		return r
	}

	r.enter(FetchingSource)
	log.Info("Step 1/5: Fetching source article...")
	src, err := p.store.Get(ctx, articleID)
	if err != nil {
		return fail("Fetch", err)
	}
	r.Steps = append(r.Steps, StepResult{Name: "Fetch", Summary: fmt.Sprintf("Loaded %q", src.Title)})

	r.enter(SearchingCandidates)
	log.Info("Step 2/5: Searching for reference candidates...", logger.String("query", src.Title))
	candidates, err := p.search.Search(ctx, src.Title)
	if err != nil {
		return fail("Search", err)
	}
	r.Steps = append(r.Steps, StepResult{Name: "Search", Summary: fmt.Sprintf("Found %d candidates", len(candidates))})

	r.enter(AcquiringReferences)
	log.Info("Step 3/5: Acquiring references...", logger.Int("target", p.opts.Target))
	refs, report, err := p.acquirer.Acquire(ctx, slices.Values(candidates), p.opts.Target)
	if err != nil {
		return fail("Acquire", err)
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Acquire",
		Summary: fmt.Sprintf("Acquired %d references (%d attempts, %d failed)", len(refs), len(report.Attempts), len(report.Failed())),
	})

	r.enter(Rewriting)
	log.Info("Step 4/5: Rewriting article...")
	out, err := p.rewriter.Rewrite(ctx, rewrite.Source{Title: src.Title, Content: src.Content}, refs)
	if err != nil {
		return fail("Rewrite", err)
	}
	r.Rewrite = &out
	r.Steps = append(r.Steps, StepResult{
		Name:    "Rewrite",
		Summary: fmt.Sprintf("Rewrote %d words citing %d references", len(strings.Fields(out.Content)), len(out.ReferenceURLs)),
	})

	if p.opts.DryRun {
		r.Steps = append(r.Steps, StepResult{Name: "Publish", Summary: "[dry-run] Publishing skipped for " + updatedTitle(src.Title)})
		r.enter(Done)
		return r
	}

	r.enter(Publishing)
	log.Info("Step 5/5: Publishing...")
	published, err := p.store.Create(ctx, Payload(src, out))
	if err != nil {
		return fail("Publish", err)
	}
	r.Published = published
	r.Steps = append(r.Steps, StepResult{Name: "Publish", Summary: "Published article " + published.ID})
	r.enter(Done)

	log.Info("refresh complete", logger.String("published_id", published.ID), logger.Duration("took", time.Since(start)))
	return r
}

// Payload builds the article published for a rewritten source.
func Payload(src *articles.Article, out rewrite.Result) articles.NewArticle {
	var b strings.Builder
	b.WriteString(out.Content)
	b.WriteString("\n\n## References\n")
	for _, u := range out.ReferenceURLs {
		b.WriteString("- ")
		b.WriteString(u)
		b.WriteString("\n")
	}

	id := src.ID
	return articles.NewArticle{
		Title:             updatedTitle(src.Title),
		Content:           strings.TrimRight(b.String(), "\n"),
		OriginalURL:       src.OriginalURL + "-rewritten",
		OriginalArticleID: &id,
		Source:            articles.SourceUpdated,
	}
}

func updatedTitle(title string) string { return "Updated: " + title }
