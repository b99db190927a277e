// Package acquire collects a fixed number of readable reference documents
// from an ordered candidate stream, tolerating per-candidate failures.
package acquire

import (
	"context"
	"iter"
	"slices"

	"github.com/TobiSchelling/refresher/internal/errs"
	"github.com/TobiSchelling/refresher/internal/extract"
	"github.com/TobiSchelling/refresher/internal/logger"
	"github.com/TobiSchelling/refresher/internal/search"
)

// Extractor is the subset of extract.Extractor used here.
type Extractor interface {
	Extract(ctx context.Context, url string) (extract.Document, error)
}

// Attempt records the outcome of one candidate.
type Attempt struct {
	URL string
	Err error // nil on success
}

// Report lists every candidate that was pulled, in order.
type Report struct {
	Attempts []Attempt
}

// Failed returns the attempts that did not yield a document.
func (r Report) Failed() []Attempt {
	var out []Attempt
	for _, a := range r.Attempts {
		if a.Err != nil {
			out = append(out, a)
		}
	}
	return out
}

// Acquirer drives candidates through an Extractor.
type Acquirer struct {
	extractor Extractor
	log       logger.Logger
}

// New creates an Acquirer.
func New(extractor Extractor, log logger.Logger) *Acquirer {
	return &Acquirer{extractor: extractor, log: log}
}

// Acquire pulls candidates in order until target documents are collected.
// Candidates after the one that fills the quota are never pulled. When the
// sequence is exhausted first it returns InsufficientReferencesError.
func (a *Acquirer) Acquire(ctx context.Context, candidates iter.Seq[search.Candidate], target int) ([]extract.Document, Report, error) {
	var report Report
	if target <= 0 {
		return nil, report, &errs.EmptyInputError{What: "reference target count"}
	}

	docs := make([]extract.Document, 0, target)
	tried := make(map[string]bool)
	var ctxErr error

	for c := range candidates {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}
		if tried[c.URL] {
			continue
		}
		tried[c.URL] = true

		doc, err := a.extractor.Extract(ctx, c.URL)
		report.Attempts = append(report.Attempts, Attempt{URL: c.URL, Err: err})
		if err != nil {
			a.log.Warn("reference skipped", logger.String("url", c.URL), logger.Error(err))
			continue
		}
		a.log.Info("reference acquired",
			logger.String("url", c.URL), logger.Int("length", doc.Length),
			logger.Int("have", len(docs)+1), logger.Int("target", target))
		docs = append(docs, doc)
		if len(docs) == target {
			return docs, report, nil
		}
	}

	if ctxErr == nil {
		ctxErr = ctx.Err()
	}
	if ctxErr != nil {
		return nil, report, ctxErr
	}
	return nil, report, &errs.InsufficientReferencesError{
		Target: target,
		Got:    len(docs),
		Tried:  len(report.Attempts),
	}
}

// AcquireSlice is Acquire over a slice of candidates.
func (a *Acquirer) AcquireSlice(ctx context.Context, candidates []search.Candidate, target int) ([]extract.Document, Report, error) {
	return a.Acquire(ctx, slices.Values(candidates), target)
}
