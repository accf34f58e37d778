package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/interaction-miner/internal/observability"
)

// FactoryConfig holds the parameters needed to create a ChatModel.
// This is defined in the llm package to avoid importing the config package,
// keeping the llm package free of infrastructure dependencies.
type FactoryConfig struct {
	// Provider is the LLM provider name ("openai" or "anthropic").
	Provider string
	// Model is the model identifier.
	Model string
	// BaseURL overrides the provider endpoint.
	BaseURL string
	// APIKey authenticates against the provider.
	APIKey string
	// Options are the shared client settings.
	Options Options
}

// NewChatModel creates a ChatModel based on the configuration.
// Supports "openai" (and any compatible endpoint) and "anthropic" providers.
// Returns an error for unsupported or empty provider values.
func NewChatModel(cfg FactoryConfig) (ChatModel, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL}, cfg.Options), nil
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL}, cfg.Options), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// Operation labels for LLM metrics.
const (
	OperationQuery      = "generate_query"
	OperationRelevance  = "check_relevance"
	OperationExtraction = "extract_interactions"
)

// client wraps a ChatModel with request metrics and debug logging.
type client struct {
	model   ChatModel
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func (c client) chat(ctx context.Context, operation string, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	resp, err := c.model.Chat(ctx, req)
	if err != nil {
		c.metrics.RecordLLMRequestFailed(operation, c.model.Model(), errorType(err))
		return nil, err
	}
	c.metrics.RecordLLMRequest(operation, c.model.Model(), time.Since(start).Seconds(), resp.InputTokens, resp.OutputTokens)
	logger := observability.LoggerWithContext(ctx, c.logger)
	logger.Debug().
		Str("operation", operation).
		Int("input_tokens", resp.InputTokens).
		Int("output_tokens", resp.OutputTokens).
		Int("tool_calls", len(resp.ToolCalls)).
		Dur("duration", time.Since(start)).
		Msg("llm request completed")
	return resp, nil
}
