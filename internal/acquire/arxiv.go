package acquire

import (
	"context"
	"fmt"
	"strings"

	"github.com/helixir/interaction-miner/internal/domain"
)

const (
	// DefaultArxivBaseURL serves arXiv PDFs by identifier.
	DefaultArxivBaseURL = "https://arxiv.org/pdf"

	arxivDOIPrefix = "10.48550/arxiv."
)

// ArxivResolver downloads preprints registered under arXiv's DOI prefix
// straight from arXiv.
type ArxivResolver struct {
	baseURL   string
	fetcher   Fetcher
	converter Converter
}

// NewArxivResolver creates an ArxivResolver. An empty baseURL uses
// DefaultArxivBaseURL.
func NewArxivResolver(baseURL string, fetcher Fetcher, converter Converter) *ArxivResolver {
	if baseURL == "" {
		baseURL = DefaultArxivBaseURL
	}
	return &ArxivResolver{
		baseURL:   strings.TrimRight(baseURL, "/"),
		fetcher:   fetcher,
		converter: converter,
	}
}

// Name implements Resolver.
func (r *ArxivResolver) Name() string { return "arxiv" }

// Resolve implements Resolver.
func (r *ArxivResolver) Resolve(ctx context.Context, paper domain.Paper) (*domain.Document, error) {
	id, ok := ArxivID(paper.DOI)
	if !ok {
		return nil, ErrNotApplicable
	}

	result, err := r.fetcher.Download(ctx, fmt.Sprintf("%s/%s.pdf", r.baseURL, id))
	if err != nil {
		return nil, err
	}
	text, err := r.converter.Convert(ctx, result.Content)
	if err != nil {
		return nil, err
	}
	return &domain.Document{Source: r.Name(), ContentType: "application/pdf", Text: text}, nil
}

// ArxivID extracts the arXiv identifier from a DOI such as
// "10.48550/arXiv.2301.01234".
func ArxivID(doi string) (string, bool) {
	doi = strings.TrimSpace(doi)
	if len(doi) <= len(arxivDOIPrefix) || !strings.EqualFold(doi[:len(arxivDOIPrefix)], arxivDOIPrefix) {
		return "", false
	}
	return doi[len(arxivDOIPrefix):], true
}
