// Package errs holds the error taxonomy shared by the refresh pipeline and
// the article service. Every type matches its sentinel under errors.Is and
// exposes its cause through Unwrap.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrFetch                    = errors.New("fetch failed")
	ErrNoContent                = errors.New("no readable content found")
	ErrContainerMissing         = errors.New("content container missing")
	ErrInsufficientResults      = errors.New("insufficient search results")
	ErrInsufficientReferences   = errors.New("insufficient references")
	ErrEmptyInput               = errors.New("empty input")
	ErrNoSummarizableReferences = errors.New("no summarizable references")
	ErrLLM                      = errors.New("generation backend failed")
	ErrConflict                 = errors.New("conflict")
	ErrNotFound                 = errors.New("not found")
)

// FetchError reports a network failure, timeout, or non-2xx response.
type FetchError struct {
	URL    string
	Status int // zero when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error        { return e.Err }
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// NoContentError reports a page that was fetched but yielded no readable blocks.
type NoContentError struct {
	URL string
	// Missing is set when a site profile demanded a container that was absent.
	Missing bool
}

func (e *NoContentError) Error() string {
	if e.Missing {
		return fmt.Sprintf("%s: %v", e.URL, ErrContainerMissing)
	}
	return fmt.Sprintf("%s: %v", e.URL, ErrNoContent)
}

func (e *NoContentError) Is(target error) bool {
	return target == ErrNoContent || (e.Missing && target == ErrContainerMissing)
}

// InsufficientResultsError is returned when search filtering leaves fewer than the minimum.
type InsufficientResultsError struct {
	Query string
	Got   int
	Min   int
}

func (e *InsufficientResultsError) Error() string {
	return fmt.Sprintf("search %q: %d valid results, need at least %d", e.Query, e.Got, e.Min)
}

func (e *InsufficientResultsError) Is(target error) bool { return target == ErrInsufficientResults }

// InsufficientReferencesError is returned when every candidate was tried and the quota was missed.
type InsufficientReferencesError struct {
	Target int
	Got    int
	Tried  int
}

func (e *InsufficientReferencesError) Error() string {
	return fmt.Sprintf("collected %d of %d references after trying %d candidates", e.Got, e.Target, e.Tried)
}

func (e *InsufficientReferencesError) Is(target error) bool {
	return target == ErrInsufficientReferences
}

// EmptyInputError names the missing input.
type EmptyInputError struct {
	What string
}

func (e *EmptyInputError) Error() string        { return fmt.Sprintf("empty input: %s", e.What) }
func (e *EmptyInputError) Is(target error) bool { return target == ErrEmptyInput }

// NoSummarizableReferencesError is returned when filtering or summary failures leave nothing to work with.
type NoSummarizableReferencesError struct {
	Considered int
	Blocked    int
	Failed     int
}

func (e *NoSummarizableReferencesError) Error() string {
	return fmt.Sprintf("no summarizable references (%d considered, %d blocklisted, %d failed)",
		e.Considered, e.Blocked, e.Failed)
}

func (e *NoSummarizableReferencesError) Is(target error) bool {
	return target == ErrNoSummarizableReferences
}

// LLMError wraps any generation backend failure, including an empty completion.
type LLMError struct {
	Provider string
	Err      error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *LLMError) Unwrap() error        { return e.Err }
func (e *LLMError) Is(target error) bool { return target == ErrLLM }

// ConflictError reports a uniqueness violation on original_url.
type ConflictError struct {
	OriginalURL string
}

func (e *ConflictError) Error() string {
	if e.OriginalURL == "" {
		return "article with this original_url already exists"
	}
	return fmt.Sprintf("article with original_url %q already exists", e.OriginalURL)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// NotFoundError reports a missing article.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string        { return fmt.Sprintf("article %s not found", e.ID) }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
