// Package papersources holds the HTTP plumbing shared by every outbound
// literature client: a rate-limited, retrying HTTP client and the Source
// contract that search backends implement.
//
// Example usage:
//
//	src := pubmed.New(pubmed.Config{Email: "ops@example.org"})
//	papers, err := src.Search(ctx, `creatine[tiab] AND "randomized controlled trial"[pt]`, 100)
package papersources

import (
	"context"
	"errors"

	"github.com/helixir/interaction-miner/internal/domain"
)

// ErrEmptyQuery is returned when a search is attempted with a blank query.
var ErrEmptyQuery = errors.New("search query is empty")

// Source is a literature index that answers boolean queries with paper
// metadata. Implementations must respect context cancellation and must
// return papers in the index's relevance order.
type Source interface {
	// Search returns at most maxResults papers for query. A query with no
	// hits yields an empty slice and a nil error.
	Search(ctx context.Context, query string, maxResults int) ([]domain.Paper, error)

	// Name is the human-readable source name used in logs, metrics and
	// user-visible job log lines.
	Name() string
}
