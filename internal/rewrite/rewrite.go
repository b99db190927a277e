// Package rewrite summarizes reference documents and rewrites a source
// article guided by those summaries, keeping every prompt within
// configured character budgets.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/TobiSchelling/refresher/internal/config"
	"github.com/TobiSchelling/refresher/internal/errs"
	"github.com/TobiSchelling/refresher/internal/extract"
	"github.com/TobiSchelling/refresher/internal/logger"
	"github.com/TobiSchelling/refresher/internal/urlutil"
)

const systemPrompt = "You are a careful editor who rewrites blog content in your own words."

const summaryPrompt = `Summarize the following article in under %d words.
Focus on the key ideas and practical insights.
Do not copy phrases verbatim.
The text may be truncated.

ARTICLE:
%s`

const rewritePrompt = `Rewrite the ORIGINAL ARTICLE below into a refreshed, improved version.

Rules:
- Preserve the original intent and topic.
- Naturally integrate insights from the REFERENCE SUMMARIES.
- Do NOT plagiarize or copy sentences verbatim from any source.
- Output plain readable text only, with no commentary about the rewrite.
%s
ORIGINAL TITLE:
%s

ORIGINAL ARTICLE:
%s

REFERENCE SUMMARIES:
%s`

const extendedRules = `- Write at least %d words.
- Organize the article under descriptive section headings.
`

// Fidelity modes.
const (
	Standard = "standard"
	Extended = "extended"
)

// Generator is the generation capability the engine needs.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Source is the article being refreshed.
type Source struct {
	Title   string
	Content string
}

// Summary is the paraphrase of one reference.
type Summary struct {
	URL  string
	Text string
}

// Result is the rewritten article and the references that informed it.
type Result struct {
	Content       string
	ReferenceURLs []string
	Summaries     []Summary
}

// Engine runs the summarize-then-rewrite flow.
type Engine struct {
	gen Generator
	cfg config.Rewrite
	log logger.Logger
}

// New creates an Engine.
func New(gen Generator, cfg config.Rewrite, log logger.Logger) *Engine {
	if cfg.SummaryWords <= 0 {
		cfg.SummaryWords = 150
	}
	if cfg.Fidelity == "" {
		cfg.Fidelity = Standard
	}
	cfg.Budgets = withDefaultBudgets(cfg.Budgets)
	return &Engine{gen: gen, cfg: cfg, log: log}
}

// withDefaultBudgets fills non-positive budgets so no text is ever sent unbounded.
func withDefaultBudgets(b config.Budgets) config.Budgets {
	if b.Source <= 0 {
		b.Source = 2000
	}
	if b.Reference <= 0 {
		b.Reference = 2000
	}
	if b.Summary <= 0 {
		b.Summary = 600
	}
	if b.CombinedSummary <= 0 {
		b.CombinedSummary = 1200
	}
	return b
}

// Rewrite summarizes refs and rewrites src. It fails with EmptyInputError,
// NoSummarizableReferencesError or LLMError.
func (e *Engine) Rewrite(ctx context.Context, src Source, refs []extract.Document) (Result, error) {
	if strings.TrimSpace(src.Content) == "" {
		return Result{}, &errs.EmptyInputError{What: "source article content"}
	}
	if len(refs) == 0 {
		return Result{}, &errs.EmptyInputError{What: "reference documents"}
	}

	summaries, err := e.Summarize(ctx, refs)
	if err != nil {
		return Result{}, err
	}

	content, err := e.gen.Generate(ctx, systemPrompt, e.rewritePrompt(src, summaries))
	if err != nil {
		return Result{}, asLLMError(err)
	}
	if strings.TrimSpace(content) == "" {
		return Result{}, &errs.LLMError{Provider: "rewrite", Err: errors.New("empty rewrite")}
	}

	r := Result{Content: strings.TrimSpace(content), Summaries: summaries}
	for _, s := range summaries {
		r.ReferenceURLs = append(r.ReferenceURLs, s.URL)
	}
	e.log.Info("article rewritten",
		logger.Int("references", len(r.ReferenceURLs)), logger.Int("length", utf8.RuneCountInString(r.Content)))
	return r, nil
}

// Summarize drops blocklisted references and summarizes the rest. A failed
// summary drops its reference; when none succeed it returns
// NoSummarizableReferencesError.
func (e *Engine) Summarize(ctx context.Context, refs []extract.Document) ([]Summary, error) {
	var (
		out     []Summary
		blocked int
		failed  int
	)
	for _, ref := range refs {
		if e.Blocked(ref.URL) {
			blocked++
			e.log.Info("reference blocklisted", logger.String("url", ref.URL))
			continue
		}

		prompt := fmt.Sprintf(summaryPrompt, e.cfg.SummaryWords, Truncate(ref.Content, e.cfg.Budgets.Reference))
		text, err := e.gen.Generate(ctx, systemPrompt, prompt)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errors.New("empty summary")
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			failed++
			e.log.Warn("summary failed", logger.String("url", ref.URL), logger.Error(err))
			continue
		}
		out = append(out, Summary{URL: ref.URL, Text: strings.TrimSpace(text)})
	}

	if len(out) == 0 {
		return nil, &errs.NoSummarizableReferencesError{Considered: len(refs), Blocked: blocked, Failed: failed}
	}
	return out, nil
}

// Blocked reports whether rawURL's host is on the blocklist.
func (e *Engine) Blocked(rawURL string) bool {
	return urlutil.MatchesAny(urlutil.Host(rawURL), e.cfg.Blocklist)
}

func (e *Engine) rewritePrompt(src Source, summaries []Summary) string {
	parts := make([]string, 0, len(summaries))
	for _, s := range summaries {
		parts = append(parts, Truncate(s.Text, e.cfg.Budgets.Summary))
	}
	combined := Truncate(strings.Join(parts, "\n"), e.cfg.Budgets.CombinedSummary)

	extra := ""
	if strings.EqualFold(e.cfg.Fidelity, Extended) {
		extra = fmt.Sprintf(extendedRules, e.cfg.MinWords)
	}
	return fmt.Sprintf(rewritePrompt, extra, src.Title, Truncate(src.Content, e.cfg.Budgets.Source), combined)
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func asLLMError(err error) error {
	var llmErr *errs.LLMError
	if errors.As(err, &llmErr) {
		return err
	}
	return &errs.LLMError{Provider: "rewrite", Err: err}
}
