package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChatModel_OpenAI(t *testing.T) {
	t.Parallel()

	model, err := NewChatModel(FactoryConfig{
		Provider: "openai",
		Model:    "moonshotai/Kimi-K2-Instruct",
		BaseURL:  "https://api.studio.nebius.com/v1",
		APIKey:   "sk-test-key",
		Options:  Options{Timeout: 30 * time.Second, MaxRetries: 3, Temperature: 0.2},
	})

	require.NoError(t, err)
	require.NotNil(t, model)
	assert.Equal(t, "openai", model.Provider())
	assert.Equal(t, "moonshotai/Kimi-K2-Instruct", model.Model())

	p, ok := model.(*OpenAIProvider)
	require.True(t, ok)
	assert.Equal(t, "https://api.studio.nebius.com/v1", p.baseURL)
	assert.Equal(t, 3, p.maxRetries)
	assert.Equal(t, 30*time.Second, p.httpClient.Timeout)
}

func TestNewChatModel_Anthropic(t *testing.T) {
	t.Parallel()

	model, err := NewChatModel(FactoryConfig{
		Provider: "anthropic",
		APIKey:   "sk-ant-test-key",
	})

	require.NoError(t, err)
	assert.Equal(t, "anthropic", model.Provider())
	assert.Equal(t, defaultAnthropicModel, model.Model())

	p, ok := model.(*AnthropicProvider)
	require.True(t, ok)
	assert.Equal(t, defaultAnthropicBaseURL, p.baseURL)
	assert.Equal(t, defaultAnthropicMaxTokens, p.maxTokens)
	assert.Equal(t, defaultRetryDelay, p.retryDelay)
}

func TestNewChatModel_Defaults(t *testing.T) {
	t.Parallel()

	model, err := NewChatModel(FactoryConfig{Provider: "openai", Options: Options{MaxRetries: -1}})
	require.NoError(t, err)

	p := model.(*OpenAIProvider)
	assert.Equal(t, defaultOpenAIBaseURL, p.baseURL)
	assert.Equal(t, defaultOpenAIModel, p.model)
	assert.Equal(t, 0, p.maxRetries)
	assert.Equal(t, 120*time.Second, p.httpClient.Timeout)
}

func TestNewChatModel_UnsupportedProvider(t *testing.T) {
	t.Parallel()

	for _, provider := range []string{"", "gemini", "OpenAI"} {
		_, err := NewChatModel(FactoryConfig{Provider: provider})
		require.Error(t, err, provider)
		assert.Contains(t, err.Error(), "unsupported LLM provider")
	}
}
