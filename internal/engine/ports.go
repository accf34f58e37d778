package engine

import (
	"context"
	"errors"

	"github.com/helixir/interaction-miner/internal/domain"
)

// QueryGenerator produces the next search query for a topic. It returns
// domain.ErrQueriesExhausted when it cannot produce a query outside tried.
type QueryGenerator interface {
	GenerateQuery(ctx context.Context, topic string, tried []string) (string, error)
}

// SearchProvider runs a boolean query against a literature index.
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]domain.Paper, error)
	Name() string
}

// RelevanceChecker judges whether a paper is a usable intervention study
// for the topic.
type RelevanceChecker interface {
	CheckRelevance(ctx context.Context, topic string, paper domain.Paper) (bool, error)
}

// DocumentAcquirer resolves a paper to its plain full text. A paper with no
// retrievable text yields a *domain.UnavailableError.
type DocumentAcquirer interface {
	Acquire(ctx context.Context, paper domain.Paper) (*domain.Document, error)
}

// InteractionExtractor proposes (iv, dv, effect) claims from document text.
// On error it still returns the claims captured before the failure.
type InteractionExtractor interface {
	ExtractInteractions(ctx context.Context, topic, text string) ([]domain.Claim, error)
}

// Recorder persists the progress of one job. Every call writes its log
// entry and counter deltas together.
type Recorder interface {
	// Progress appends a log entry and applies the counter deltas.
	Progress(ctx context.Context, update domain.ProgressUpdate) error

	// RecordInteraction stores the interaction and applies update in the
	// same write. It returns false, without applying update, when an
	// identical interaction is already stored for the job.
	RecordInteraction(ctx context.Context, interaction domain.Interaction, update domain.ProgressUpdate) (bool, error)
}

// StopChecker reports whether a stop was requested for the running job.
type StopChecker interface {
	StopRequested(ctx context.Context) (bool, error)
}

// StopFunc adapts a function to StopChecker.
type StopFunc func(ctx context.Context) (bool, error)

// StopRequested implements StopChecker.
func (f StopFunc) StopRequested(ctx context.Context) (bool, error) { return f(ctx) }

// IsFatal reports whether err must abort the job rather than be absorbed by
// the node that produced it. Errors opt in by implementing Fatal() bool.
func IsFatal(err error) bool {
	var f interface{ Fatal() bool }
	return errors.As(err, &f) && f.Fatal()
}
