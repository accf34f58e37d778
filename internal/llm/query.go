package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/observability"
)

const querySystemPrompt = "You are an expert at crafting PubMed search queries. " +
	"Your aim is to create queries that uncover human intervention studies about the effects of a given variable of interest. " +
	"Reply with the query only, without explanation or formatting."

const firstQueryTemplate = `Variable of interest: %s

Create a concise PubMed search query for finding intervention studies on human substrate about this variable. Include relevant keywords and filters.`

const nextQueryTemplate = `Variable of interest: %s

Previously tried queries:
%s

These queries have been exhausted. Create a NEW, CREATIVE query that approaches the topic differently to uncover papers not yet found.

Be creative:
- Use synonyms and related terms
- Try different medical terminology
- Include related conditions or mechanisms
- Use different publication types or filters
- Think laterally about the research question
- Be more broad in the query

Create a concise PubMed search query for intervention studies on human substrate.`

// QueryGenerator asks the model for the next PubMed query for a topic.
type QueryGenerator struct {
	client
	maxAttempts int
}

// NewQueryGenerator creates a QueryGenerator. maxAttempts bounds how many
// times a query that was already tried is re-requested before the generator
// reports domain.ErrQueriesExhausted.
func NewQueryGenerator(model ChatModel, maxAttempts int, logger zerolog.Logger, metrics *observability.Metrics) *QueryGenerator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &QueryGenerator{
		client:      client{model: model, logger: logger.With().Str("component", "query_generator").Logger(), metrics: metrics},
		maxAttempts: maxAttempts,
	}
}

// GenerateQuery returns a query string not present in tried.
func (g *QueryGenerator) GenerateQuery(ctx context.Context, topic string, tried []string) (string, error) {
	seen := make(map[string]struct{}, len(tried))
	for _, q := range tried {
		seen[q] = struct{}{}
	}

	messages := []Message{{Role: RoleUser, Content: buildQueryPrompt(topic, tried)}}
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		resp, err := g.chat(ctx, OperationQuery, ChatRequest{System: querySystemPrompt, Messages: messages})
		if err != nil {
			return "", fmt.Errorf("generate query: %w", err)
		}

		query := CleanQuery(resp.Content)
		if query == "" {
			g.logger.Debug().Int("attempt", attempt).Msg("model returned an empty query")
		} else if _, dup := seen[query]; !dup {
			return query, nil
		} else {
			g.logger.Debug().Int("attempt", attempt).Str("query", query).Msg("model repeated a tried query")
		}

		messages = append(messages,
			resp.Message(),
			Message{Role: RoleUser, Content: "That query was already tried or empty. Propose a different query."},
		)
	}
	return "", domain.ErrQueriesExhausted
}

func buildQueryPrompt(topic string, tried []string) string {
	if len(tried) == 0 {
		return fmt.Sprintf(firstQueryTemplate, topic)
	}
	var b strings.Builder
	for i, q := range tried {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "  %d. %s", i+1, q)
	}
	return fmt.Sprintf(nextQueryTemplate, topic, b.String())
}

// CleanQuery strips code fences, a leading "Query:" label and wrapping
// quotes from model output. Quotes inside the query are kept since PubMed
// uses them for phrase search.
func CleanQuery(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], " ()\"") {
			// Drop a language tag such as ```text.
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	s = strings.TrimSpace(s)
	for _, label := range []string{"Query:", "query:", "PubMed query:"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, label))
	}
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			inner := s[1 : len(s)-1]
			// Keep "a" AND "b": the outer quotes belong to two phrases.
			if first == '"' && strings.Contains(inner, `"`) {
				break
			}
			s = strings.TrimSpace(inner)
			continue
		}
		break
	}
	return strings.Join(strings.Fields(s), " ")
}
