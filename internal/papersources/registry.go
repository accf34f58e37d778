package papersources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/helixir/interaction-miner/internal/domain"
)

// sourceResult holds the result of a search from one source.
type sourceResult struct {
	index  int
	papers []domain.Paper
	err    error
}

// Registry fans a query out to every registered source and merges the
// results. It implements Source itself, so the engine sees one provider
// however many indexes are configured.
type Registry struct {
	mu      sync.RWMutex
	sources []Source
	logger  zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{logger: logger.With().Str("component", "source_registry").Logger()}
}

// Register appends a source. Sources earlier in registration order win
// when two return the same paper.
func (r *Registry) Register(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, source)
}

// Sources returns a snapshot of the registered sources.
func (r *Registry) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Name joins the names of the registered sources.
func (r *Registry) Name() string {
	sources := r.Sources()
	if len(sources) == 0 {
		return "none"
	}
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// Search queries every source concurrently. Results are concatenated in
// registration order and deduplicated by normalized DOI; papers without a
// DOI are kept as returned. A source that fails is logged and skipped, and
// the search only fails when every source failed.
func (r *Registry) Search(ctx context.Context, query string, maxResults int) ([]domain.Paper, error) {
	sources := r.Sources()
	if len(sources) == 0 {
		return nil, errors.New("no paper sources registered")
	}
	if len(sources) == 1 {
		return sources[0].Search(ctx, query, maxResults)
	}

	resultChan := make(chan sourceResult, len(sources))
	var wg sync.WaitGroup
	for i, source := range sources {
		wg.Add(1)
		go func(i int, s Source) {
			defer wg.Done()
			papers, err := s.Search(ctx, query, maxResults)
			resultChan <- sourceResult{index: i, papers: papers, err: err}
		}(i, source)
	}
	wg.Wait()
	close(resultChan)

	results := make([]sourceResult, len(sources))
	for res := range resultChan {
		results[res.index] = res
	}

	var (
		merged []domain.Paper
		seen   = make(map[string]struct{})
		errs   []error
	)
	for i, res := range results {
		if res.err != nil {
			r.logger.Warn().Err(res.err).Str("source", sources[i].Name()).Msg("paper source search failed")
			errs = append(errs, fmt.Errorf("%s: %w", sources[i].Name(), res.err))
			continue
		}
		for _, p := range res.papers {
			if p.HasDOI() {
				key := domain.NormalizeDOI(p.DOI)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
			}
			merged = append(merged, p)
		}
	}

	if len(errs) == len(sources) {
		return nil, errors.Join(errs...)
	}
	if maxResults > 0 && len(merged) > maxResults {
		merged = merged[:maxResults]
	}
	return merged, nil
}
