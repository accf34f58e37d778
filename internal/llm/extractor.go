package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/observability"
)

// Tool names offered to the extraction model.
const (
	ToolSubmitInteractions = "submit_interactions"
	ToolFinishExtraction   = "finish_extraction"
)

// DefaultMaxExtractionRounds caps model round trips per document.
const DefaultMaxExtractionRounds = 20

const extractionSystemPrompt = "You are a scientific paper analyzer. Extract ALL causal relationships by calling submit_interactions. " +
	"When completely done, call finish_extraction."

const extractionPromptTemplate = `Analyze this paper and extract ALL intervention studies on human substrate.

Variable of interest: %s

For each experiment that shows a causal relationship:
- Identify the independent variable (IV) - what was manipulated
- Identify the dependent variable (DV) - what was measured
- Determine the effect:
  * '+' if IV increases DV, or if decreasing IV decreases DV
  * '-' if IV decreases DV, or if decreasing IV increases DV

IMPORTANT:
1. Call the submit_interactions tool with the interactions you find. Don't just provide them in the chat!
2. When you have extracted ALL interactions (or if there are none), call finish_extraction
3. You MUST call finish_extraction when done

Paper content:
%s`

const continuePrompt = "Continue extracting interactions or call finish_extraction if you are done."

var extractionTools = []Tool{
	{
		Name: ToolSubmitInteractions,
		Description: "Submit one or more extracted interactions from the paper in a single call. " +
			"Use effect '+' if the IV increases the DV (or decreasing the IV decreases the DV), " +
			"and '-' if the IV decreases the DV (or decreasing the IV increases the DV).",
		Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "interactions": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "iv": {"type": "string", "description": "The independent variable that is manipulated"},
          "dv": {"type": "string", "description": "The dependent variable that is measured"},
          "effect": {"type": "string", "enum": ["+", "-"]}
        },
        "required": ["iv", "dv", "effect"]
      }
    }
  },
  "required": ["interactions"]
}`),
	},
	{
		Name:        ToolFinishExtraction,
		Description: "Call this when you have finished extracting ALL relevant interactions from the paper, or if there are none.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
	},
}

type submitArgs struct {
	Interactions []domain.Claim `json:"interactions"`
}

// InteractionExtractor drives a multi-round tool-calling conversation over a
// document and collects the submitted claims.
type InteractionExtractor struct {
	client
	maxRounds int
}

// NewInteractionExtractor creates an InteractionExtractor. A non-positive
// maxRounds uses DefaultMaxExtractionRounds.
func NewInteractionExtractor(model ChatModel, maxRounds int, logger zerolog.Logger, metrics *observability.Metrics) *InteractionExtractor {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxExtractionRounds
	}
	return &InteractionExtractor{
		client:    client{model: model, logger: logger.With().Str("component", "interaction_extractor").Logger(), metrics: metrics},
		maxRounds: maxRounds,
	}
}

// ExtractInteractions returns every claim submitted before the model called
// finish_extraction or the round limit was hit. On a provider error the
// claims gathered so far are returned with the error.
func (e *InteractionExtractor) ExtractInteractions(ctx context.Context, topic, text string) ([]domain.Claim, error) {
	messages := []Message{{Role: RoleUser, Content: fmt.Sprintf(extractionPromptTemplate, topic, text)}}

	var claims []domain.Claim
	for round := 1; round <= e.maxRounds; round++ {
		resp, err := e.chat(ctx, OperationExtraction, ChatRequest{
			System:   extractionSystemPrompt,
			Messages: messages,
			Tools:    extractionTools,
		})
		if err != nil {
			return claims, fmt.Errorf("extraction round %d: %w", round, err)
		}
		messages = append(messages, resp.Message())

		if len(resp.ToolCalls) == 0 {
			messages = append(messages, Message{Role: RoleUser, Content: continuePrompt})
			continue
		}

		finished := false
		for _, call := range resp.ToolCalls {
			var result string
			switch call.Name {
			case ToolSubmitInteractions:
				accepted, msg := parseSubmission(call.Arguments)
				claims = append(claims, accepted...)
				result = msg
			case ToolFinishExtraction:
				finished = true
				result = "Extraction complete."
			default:
				result = fmt.Sprintf("Error: unknown tool %q", call.Name)
			}
			messages = append(messages, Message{Role: RoleTool, ToolCallID: call.ID, Content: result})
		}
		if finished {
			e.logger.Debug().Int("rounds", round).Int("claims", len(claims)).Msg("extraction finished")
			return claims, nil
		}
	}

	e.logger.Warn().Int("rounds", e.maxRounds).Int("claims", len(claims)).Msg("extraction round limit reached")
	return claims, nil
}

// parseSubmission decodes submit_interactions arguments. Entries missing a
// field are skipped and reported back to the model. Variable names are
// passed through verbatim because the topic filter matches them exactly.
func parseSubmission(raw json.RawMessage) ([]domain.Claim, string) {
	var args submitArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Sprintf("Error: invalid arguments: %v", err)
	}

	var (
		accepted []domain.Claim
		b        strings.Builder
		skipped  int
	)
	for _, c := range args.Interactions {
		if strings.TrimSpace(c.IV) == "" || strings.TrimSpace(c.DV) == "" || strings.TrimSpace(c.Effect) == "" {
			skipped++
			continue
		}
		accepted = append(accepted, c)
		fmt.Fprintf(&b, "Stored: %s -> %s (%s)\n", c.IV, c.DV, c.Effect)
	}
	if skipped > 0 {
		fmt.Fprintf(&b, "Error: %d interaction(s) missing iv, dv or effect were ignored.\n", skipped)
	}
	fmt.Fprintf(&b, "%d interaction(s) submitted successfully. Continue extracting or call finish_extraction when done.", len(accepted))
	return accepted, b.String()
}
