package papersources

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/interaction-miner/internal/domain"
)

type stubSource struct {
	name   string
	papers []domain.Paper
	err    error
	calls  int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Search(context.Context, string, int) ([]domain.Paper, error) {
	s.calls++
	return s.papers, s.err
}

func TestRegistry_Search(t *testing.T) {
	t.Run("no sources", func(t *testing.T) {
		_, err := NewRegistry(zerolog.Nop()).Search(context.Background(), "q", 10)
		assert.Error(t, err)
	})

	t.Run("single source passes through", func(t *testing.T) {
		src := &stubSource{name: "PubMed", papers: []domain.Paper{{DOI: "10.1/a"}}}
		r := NewRegistry(zerolog.Nop())
		r.Register(src)

		papers, err := r.Search(context.Background(), "q", 10)
		require.NoError(t, err)
		assert.Len(t, papers, 1)
		assert.Equal(t, "PubMed", r.Name())
	})

	t.Run("merges and dedups by DOI in registration order", func(t *testing.T) {
		first := &stubSource{name: "PubMed", papers: []domain.Paper{
			{Title: "A", DOI: "10.1/A"},
			{Title: "no doi"},
		}}
		second := &stubSource{name: "Other", papers: []domain.Paper{
			{Title: "A again", DOI: "https://doi.org/10.1/a"},
			{Title: "B", DOI: "10.1/b"},
			{Title: "no doi"},
		}}
		r := NewRegistry(zerolog.Nop())
		r.Register(first)
		r.Register(second)

		papers, err := r.Search(context.Background(), "q", 10)
		require.NoError(t, err)
		titles := make([]string, len(papers))
		for i, p := range papers {
			titles[i] = p.Title
		}
		assert.Equal(t, []string{"A", "no doi", "B", "no doi"}, titles)
		assert.Equal(t, "PubMed+Other", r.Name())
	})

	t.Run("truncates to max results", func(t *testing.T) {
		r := NewRegistry(zerolog.Nop())
		r.Register(&stubSource{name: "a", papers: []domain.Paper{{DOI: "10.1/a"}, {DOI: "10.1/b"}}})
		r.Register(&stubSource{name: "b", papers: []domain.Paper{{DOI: "10.1/c"}}})

		papers, err := r.Search(context.Background(), "q", 2)
		require.NoError(t, err)
		assert.Len(t, papers, 2)
	})

	t.Run("partial failure is skipped", func(t *testing.T) {
		r := NewRegistry(zerolog.Nop())
		r.Register(&stubSource{name: "down", err: errors.New("503")})
		r.Register(&stubSource{name: "up", papers: []domain.Paper{{DOI: "10.1/a"}}})

		papers, err := r.Search(context.Background(), "q", 10)
		require.NoError(t, err)
		assert.Len(t, papers, 1)
	})

	t.Run("all sources failing is an error", func(t *testing.T) {
		r := NewRegistry(zerolog.Nop())
		r.Register(&stubSource{name: "a", err: errors.New("503")})
		r.Register(&stubSource{name: "b", err: errors.New("timeout")})

		_, err := r.Search(context.Background(), "q", 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "a: 503")
		assert.Contains(t, err.Error(), "b: timeout")
	})
}
