// Package llm talks to chat-completion providers and builds the three
// language-model agents the workflow engine uses: query generation,
// relevance screening and tool-driven interaction extraction.
package llm

import (
	"context"
	"encoding/json"
)

// Role is the author of a chat message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a conversation in provider-neutral form.
type Message struct {
	Role    Role
	Content string
	// ToolCalls are the calls an assistant turn requested.
	ToolCalls []ToolCall
	// ToolCallID links a tool turn to the call it answers.
	ToolCallID string
}

// Tool describes a function the model may call. Parameters is a JSON Schema
// object.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ChatRequest is a single completion request.
type ChatRequest struct {
	System   string
	Messages []Message
	Tools    []Tool
}

// ChatResponse is the assistant turn returned by a provider.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	StopReason   string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Message returns the response as an assistant turn for the next request.
func (r *ChatResponse) Message() Message {
	return Message{Role: RoleAssistant, Content: r.Content, ToolCalls: r.ToolCalls}
}

// ChatModel is implemented by every provider.
type ChatModel interface {
	// Chat sends the conversation and returns the next assistant turn.
	// Transient failures are retried inside the call.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Provider returns the provider name ("openai" or "anthropic").
	Provider() string

	// Model returns the model identifier.
	Model() string
}
