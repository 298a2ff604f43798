// Package inference abstracts a model endpoint behind the two capabilities
// the session pipeline actually needs: structured output and chat with a
// single-pass tool dispatch. Concrete providers live in anthropic.go and
// openai.go.
package inference

import (
	"context"
)

// ToolDefinition describes one callable tool offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is one tool invocation the model requested.
type ToolCall struct {
	ID         string
	Name       string
	Parameters map[string]any
}

// Message is one turn of a chat-with-tools conversation.
type Message struct {
	Role    string // "user" | "assistant" | "system"
	Content string
}

// ChatResult is the final assistant turn from a ChatWithTools call,
// including any tool calls the model made during that single pass.
type ChatResult struct {
	Content   string
	ToolCalls []ToolCall
}

// StructuredResult is the outcome of a StructuredOutput call.
type StructuredResult struct {
	// Raw holds the JSON object the model emitted for the schema passed to
	// StructuredOutput. It is not validated against that schema; callers
	// unmarshal into their own type.
	Raw []byte
}

// Client is the narrow contract every provider implementation satisfies.
// Tool dispatch is single-pass per model turn: ChatWithTools never loops
// internally to resolve tool calls, per spec.md §4.4.
type Client interface {
	// StructuredOutput asks the model for a JSON object shaped by schema and
	// returns it as emitted; the object is not checked against schema.
	// onChunk, if non-nil, receives raw text chunks as they stream in.
	StructuredOutput(ctx context.Context, prompt string, schema map[string]any, onChunk func(chunk string)) (StructuredResult, error)

	// ChatWithTools streams textual chunks to onChunk and returns the
	// final assistant turn, including any tool calls the model made.
	ChatWithTools(ctx context.Context, messages []Message, tools []ToolDefinition, onChunk func(chunk string)) (ChatResult, error)

	// ModelName identifies the concrete model backing this client, for
	// metrics labeling.
	ModelName() string
}
