package inference

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"appgen/pkg/logx"
)

// structuredOutputTool is the synthetic tool name used to coerce Claude
// into emitting JSON matching an arbitrary caller-supplied schema: the
// SDK's message API has no native "response_format", so a single tool with
// the target schema as its input schema is offered instead, using the same
// tool-call extraction path as ChatWithTools.
const structuredOutputTool = "emit_result"

// AnthropicClient implements Client against the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	model  anthropic.Model
	logger *logx.Logger
}

// NewAnthropicClient constructs a Client for the given model, using apiKey
// for authentication.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		logger: logx.NewLogger("inference.anthropic"),
	}
}

// ModelName returns the configured model identifier.
func (c *AnthropicClient) ModelName() string { return string(c.model) }

// StructuredOutput offers a single tool shaped by schema, with automatic
// tool choice, and returns that tool call's input as the result's raw JSON.
// The tool call is not forced: a reply without it is a ClassParseSchema
// error.
func (c *AnthropicClient) StructuredOutput(ctx context.Context, prompt string, schema map[string]any, onChunk func(string)) (StructuredResult, error) {
	properties, required := schemaToProperties(schema)

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 8192,
		Messages: []anthropic.MessageParam{
			{Role: anthropic.MessageParamRoleUser, Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(prompt)}},
		},
		Tools: []anthropic.ToolUnionParam{
			anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: properties,
				Required:   required,
			}, structuredOutputTool),
		},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfAuto: &anthropic.ToolChoiceAutoParam{},
		},
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return StructuredResult{}, c.classifyError(err)
	}

	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type != "tool_use" {
			continue
		}
		toolUse := block.AsToolUse()
		if toolUse.Name != structuredOutputTool {
			continue
		}
		if onChunk != nil {
			onChunk(string(toolUse.Input))
		}
		return StructuredResult{Raw: toolUse.Input}, nil
	}

	return StructuredResult{}, NewError(ClassParseSchema, "model did not emit a structured tool call")
}

// ChatWithTools streams the assistant's text output and resolves any tool
// calls made during a single model turn; it never loops to re-invoke the
// model with tool results, per spec.md §4.4.
func (c *AnthropicClient) ChatWithTools(ctx context.Context, messages []Message, tools []ToolDefinition, onChunk func(string)) (ChatResult, error) {
	// System messages have no dedicated wire slot in this path; they're
	// sent as an ordinary leading user turn, same as the rest of the
	// conversation history.
	msgParams := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		role := anthropic.MessageParamRoleUser
		if m.Role == "assistant" {
			role = anthropic.MessageParamRoleAssistant
		}
		msgParams = append(msgParams, anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 8192,
		Messages:  msgParams,
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return ChatResult{}, c.classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return ChatResult{}, NewError(ClassTransient, "received empty response from model")
	}

	var text strings.Builder
	var calls []ToolCall
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			chunk := block.AsText().Text
			text.WriteString(chunk)
			if onChunk != nil {
				onChunk(chunk)
			}
		case "tool_use":
			toolUse := block.AsToolUse()
			var params map[string]any
			if err := json.Unmarshal(toolUse.Input, &params); err != nil {
				return ChatResult{}, NewErrorWithCause(ClassParseSchema, err, "failed to parse tool input")
			}
			calls = append(calls, ToolCall{ID: toolUse.ID, Name: toolUse.Name, Parameters: params})
		}
	}

	return ChatResult{Content: text.String(), ToolCalls: calls}, nil
}

func toAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		properties, required := schemaToProperties(t.InputSchema)
		out = append(out, anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: properties,
			Required:   required,
		}, t.Name))
	}
	return out
}

func schemaToProperties(schema map[string]any) (properties any, required []string) {
	if schema == nil {
		return nil, nil
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		properties = props
	}
	if req, ok := schema["required"].([]string); ok {
		required = req
	}
	return properties, required
}

// classifyError maps Anthropic SDK errors onto the inference error
// taxonomy, the same status-code-then-text-pattern approach the teacher's
// ClaudeClient uses.
func (c *AnthropicClient) classifyError(err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewErrorWithCause(ClassTransient, err, "request canceled or timed out")
	}

	errStr := err.Error()
	if status := extractStatusCode(errStr); status != 0 {
		switch status {
		case 401, 403:
			return NewErrorWithStatus(ClassSecurity, status, "authentication failed")
		case 429:
			return NewErrorWithStatus(ClassRateLimit, status, "rate limit exceeded")
		case 400:
			return NewErrorWithStatus(ClassParseSchema, status, "bad request")
		case 500, 502, 503, 504:
			return NewErrorWithStatus(ClassTransient, status, "server error")
		}
	}

	lower := strings.ToLower(errStr)
	switch {
	case strings.Contains(lower, "rate"), strings.Contains(lower, "quota"):
		return NewErrorWithCause(ClassRateLimit, err, "rate limiting detected")
	case strings.Contains(lower, "auth"), strings.Contains(lower, "permission"):
		return NewErrorWithCause(ClassSecurity, err, "authentication or permission error")
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "connection"),
		strings.Contains(lower, "eof"), strings.Contains(lower, "reset"):
		return NewErrorWithCause(ClassTransient, err, "network or connection error")
	default:
		return NewErrorWithCause(ClassTransient, err, "unclassified inference error")
	}
}

func extractStatusCode(errStr string) int {
	for _, token := range strings.Fields(errStr) {
		if code, err := strconv.Atoi(strings.Trim(token, ":")); err == nil && code >= 100 && code < 600 {
			return code
		}
	}
	return 0
}

