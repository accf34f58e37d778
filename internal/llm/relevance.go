package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/observability"
)

const relevanceSystemTemplate = "You are evaluating if this paper is relevant to: %s. " +
	"Check if it's an intervention study on human substrate and contains causal relationships. " +
	"Reply with 'yes' if relevant, 'no' if not."

// RelevanceChecker screens a paper's title and abstract.
type RelevanceChecker struct {
	client
}

// NewRelevanceChecker creates a RelevanceChecker.
func NewRelevanceChecker(model ChatModel, logger zerolog.Logger, metrics *observability.Metrics) *RelevanceChecker {
	return &RelevanceChecker{
		client: client{model: model, logger: logger.With().Str("component", "relevance_checker").Logger(), metrics: metrics},
	}
}

// CheckRelevance reports whether the model accepted the paper.
func (c *RelevanceChecker) CheckRelevance(ctx context.Context, topic string, paper domain.Paper) (bool, error) {
	resp, err := c.chat(ctx, OperationRelevance, ChatRequest{
		System: fmt.Sprintf(relevanceSystemTemplate, topic),
		Messages: []Message{{
			Role:    RoleUser,
			Content: fmt.Sprintf("Title: %s\n\nAbstract: %s", paper.Title, paper.Abstract),
		}},
	})
	if err != nil {
		return false, fmt.Errorf("check relevance: %w", err)
	}
	return IsAffirmative(resp.Content), nil
}

// IsAffirmative accepts "yes" or "y" in any case, ignoring surrounding
// whitespace and trailing punctuation. Anything else is a rejection.
func IsAffirmative(reply string) bool {
	s := strings.ToLower(strings.TrimSpace(reply))
	s = strings.TrimRight(s, ".!,;: \t\n")
	return s == "yes" || s == "y"
}
