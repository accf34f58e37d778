package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDocumentUnavailable is the sentinel behind UnavailableError.
var ErrDocumentUnavailable = errors.New("document unavailable")

// ErrQueriesExhausted signals that no novel search query can be produced.
var ErrQueriesExhausted = errors.New("search queries exhausted")

// Document is the plain-text full text of a paper.
type Document struct {
	DOI         string
	Source      string
	ContentType string
	Text        string
}

// SourceAttempt records why one acquisition source did not yield a document.
type SourceAttempt struct {
	Source string
	Reason string
}

// UnavailableError reports that no source produced a document for a paper.
// It is an expected outcome (paywall, network failure, conversion failure),
// never a job failure.
type UnavailableError struct {
	DOI      string
	Attempts []SourceAttempt
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("no full text for %s", e.DOI)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Source+": "+a.Reason)
	}
	return fmt.Sprintf("no full text for %s (%s)", e.DOI, strings.Join(parts, "; "))
}

// Unwrap returns ErrDocumentUnavailable.
func (e *UnavailableError) Unwrap() error {
	return ErrDocumentUnavailable
}

// Paywalled reports whether any attempt found the paper behind a paywall.
func (e *UnavailableError) Paywalled() bool {
	for _, a := range e.Attempts {
		if strings.Contains(a.Reason, "paywall") {
			return true
		}
	}
	return false
}
