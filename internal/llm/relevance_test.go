package llm

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/interaction-miner/internal/domain"
)

func TestRelevanceChecker_CheckRelevance(t *testing.T) {
	paper := domain.Paper{
		DOI:      "10.1000/creatine",
		Title:    "Creatine and strength",
		Abstract: "A randomized trial in 40 adults.",
	}

	t.Run("accepts yes", func(t *testing.T) {
		model := &scriptedModel{responses: []*ChatResponse{text("Yes.")}}
		c := NewRelevanceChecker(model, zerolog.Nop(), nil)

		ok, err := c.CheckRelevance(context.Background(), "creatine", paper)

		require.NoError(t, err)
		assert.True(t, ok)
		req := model.requests[0]
		assert.Contains(t, req.System, "relevant to: creatine.")
		assert.Equal(t, "Title: Creatine and strength\n\nAbstract: A randomized trial in 40 adults.", req.Messages[0].Content)
		assert.Empty(t, req.Tools)
	})

	t.Run("rejects anything else", func(t *testing.T) {
		model := &scriptedModel{responses: []*ChatResponse{text("No, it is a rodent study.")}}
		ok, err := NewRelevanceChecker(model, zerolog.Nop(), nil).CheckRelevance(context.Background(), "creatine", paper)

		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("provider error", func(t *testing.T) {
		model := &scriptedModel{errs: []error{&APIError{Provider: "openai", StatusCode: 500}}}
		ok, err := NewRelevanceChecker(model, zerolog.Nop(), nil).CheckRelevance(context.Background(), "creatine", paper)

		require.Error(t, err)
		assert.False(t, ok)
		assert.Contains(t, err.Error(), "check relevance")
	})
}

func TestIsAffirmative(t *testing.T) {
	for _, reply := range []string{"yes", "Yes", "YES", " y ", "Y", "yes.", "Yes!", "y\n"} {
		assert.True(t, IsAffirmative(reply), "%q", reply)
	}
	for _, reply := range []string{"no", "", "yes, but only partly", "maybe", "yeah", "n", "Yes it is"} {
		assert.False(t, IsAffirmative(reply), "%q", reply)
	}
}
