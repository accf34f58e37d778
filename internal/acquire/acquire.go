// Package acquire resolves papers to plain full text.
//
// An Acquirer walks an ordered list of resolvers and returns the first
// document produced. Resolvers that do not apply to a paper (an arXiv
// resolver for a journal DOI, a PMC resolver for a paper without a PMCID)
// are skipped silently; every other failure is recorded as an attempt on the
// *domain.UnavailableError returned when no resolver succeeds.
package acquire

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/observability"
	"github.com/helixir/interaction-miner/internal/pdf"
)

// ErrNotApplicable is returned by a resolver that cannot handle the paper.
var ErrNotApplicable = errors.New("resolver not applicable")

// Resolver turns a paper into a document through one source.
type Resolver interface {
	// Name labels the source in logs, metrics and attempt reasons.
	Name() string
	Resolve(ctx context.Context, paper domain.Paper) (*domain.Document, error)
}

// Fetcher is the subset of *pdf.Downloader the resolvers use.
type Fetcher interface {
	Download(ctx context.Context, rawURL string) (*pdf.DownloadResult, error)
	Fetch(ctx context.Context, rawURL, accept string) (*pdf.DownloadResult, error)
}

// Converter turns PDF bytes into text.
type Converter interface {
	Convert(ctx context.Context, content []byte) (string, error)
}

// Acquirer implements the engine's document acquisition port.
type Acquirer struct {
	resolvers []Resolver
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// New creates an Acquirer that tries resolvers in the given order.
func New(logger zerolog.Logger, metrics *observability.Metrics, resolvers ...Resolver) *Acquirer {
	return &Acquirer{
		resolvers: resolvers,
		logger:    logger.With().Str("component", "acquirer").Logger(),
		metrics:   metrics,
	}
}

// Acquire returns the first document any resolver produces. Failures are
// collected into a *domain.UnavailableError; context cancellation is
// returned as is so the caller can tell shutdown from unavailability.
func (a *Acquirer) Acquire(ctx context.Context, paper domain.Paper) (*domain.Document, error) {
	doi := domain.NormalizeDOI(paper.DOI)
	unavailable := &domain.UnavailableError{DOI: paper.DOI}
	if doi == "" {
		unavailable.Attempts = append(unavailable.Attempts, domain.SourceAttempt{Source: "acquirer", Reason: "paper has no DOI"})
		return nil, unavailable
	}

	logger := observability.WithPaperContext(observability.LoggerWithContext(ctx, a.logger), doi, paper.PMID)
	for _, r := range a.resolvers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		doc, err := r.Resolve(ctx, paper)
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		a.metrics.RecordDocumentFetch(r.Name(), err == nil, time.Since(start).Seconds())

		if err == nil && doc != nil && doc.Text != "" {
			doc.DOI = paper.DOI
			if doc.Source == "" {
				doc.Source = r.Name()
			}
			logger.Debug().Str("source", doc.Source).Int("chars", len(doc.Text)).Msg("document acquired")
			return doc, nil
		}
		if err == nil {
			err = errors.New("empty text")
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Debug().Err(err).Str("source", r.Name()).Msg("source failed")
		unavailable.Attempts = append(unavailable.Attempts, domain.SourceAttempt{Source: r.Name(), Reason: reason(err)})
	}

	if len(unavailable.Attempts) == 0 {
		unavailable.Attempts = append(unavailable.Attempts, domain.SourceAttempt{Source: "acquirer", Reason: "no source applies"})
	}
	return nil, unavailable
}

// reason renders err for the job log. Paywalls are called out by name so
// UnavailableError.Paywalled can find them.
func reason(err error) string {
	switch {
	case errors.Is(err, pdf.ErrPaywalled):
		return "paywalled (HTML returned instead of PDF)"
	case errors.Is(err, pdf.ErrNotPDF):
		return "not a PDF"
	case errors.Is(err, pdf.ErrTooLarge):
		return "file too large"
	case errors.Is(err, pdf.ErrNoText):
		return "no extractable text"
	}
	return err.Error()
}
