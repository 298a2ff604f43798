package inference

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"appgen/pkg/logx"
)

// OpenAIClient implements Client against the OpenAI Responses API.
type OpenAIClient struct {
	client openai.Client
	model  string
	logger *logx.Logger
}

// NewOpenAIClient constructs a Client for the given model, using apiKey for
// authentication.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		logger: logx.NewLogger("inference.openai"),
	}
}

// ModelName returns the configured model identifier.
func (o *OpenAIClient) ModelName() string { return o.model }

// StructuredOutput offers a single function shaped by schema and returns
// that call's arguments as the result's raw JSON, the Responses-API analog
// of AnthropicClient's tool-use approach. No tool choice is set, so the call
// is not forced: a reply without it is a ClassParseSchema error.
func (o *OpenAIClient) StructuredOutput(ctx context.Context, prompt string, schema map[string]any, onChunk func(string)) (StructuredResult, error) {
	params := responses.ResponseNewParams{
		Model: o.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(prompt)},
		Tools: []responses.ToolUnionParam{{
			OfFunction: &responses.FunctionToolParam{
				Name:       structuredOutputTool,
				Parameters: openai.FunctionParameters(schema),
			},
		}},
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return StructuredResult{}, o.classifyError(err)
	}
	if resp == nil {
		return StructuredResult{}, NewError(ClassTransient, "empty response from model")
	}

	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		funcItem := item.AsFunctionCall()
		if funcItem.Name != structuredOutputTool {
			continue
		}
		if onChunk != nil {
			onChunk(funcItem.Arguments)
		}
		return StructuredResult{Raw: []byte(funcItem.Arguments)}, nil
	}

	return StructuredResult{}, NewError(ClassParseSchema, "model did not emit a structured function call")
}

// ChatWithTools streams the assistant's text output and resolves any tool
// calls made during a single model turn.
func (o *OpenAIClient) ChatWithTools(ctx context.Context, messages []Message, tools []ToolDefinition, onChunk func(string)) (ChatResult, error) {
	var input strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "system":
			input.WriteString("System: ")
			input.WriteString(m.Content)
			input.WriteString("\n\n")
		case "assistant":
			input.WriteString("Assistant: ")
			input.WriteString(m.Content)
			input.WriteString("\n\n")
		default:
			input.WriteString(m.Content)
			input.WriteString("\n\n")
		}
	}

	params := responses.ResponseNewParams{
		Model: o.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(input.String())},
	}
	if len(tools) > 0 {
		toolParams := make([]responses.ToolUnionParam, 0, len(tools))
		for _, t := range tools {
			toolParams = append(toolParams, responses.ToolUnionParam{
				OfFunction: &responses.FunctionToolParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  openai.FunctionParameters(t.InputSchema),
				},
			})
		}
		params.Tools = toolParams
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return ChatResult{}, o.classifyError(err)
	}
	if resp == nil {
		return ChatResult{}, NewError(ClassTransient, "empty response from model")
	}

	var calls []ToolCall
	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		funcItem := item.AsFunctionCall()
		var parameters map[string]any
		if funcItem.Arguments != "" {
			if err := json.Unmarshal([]byte(funcItem.Arguments), &parameters); err != nil {
				continue
			}
		}
		calls = append(calls, ToolCall{ID: funcItem.ID, Name: funcItem.Name, Parameters: parameters})
	}

	content := resp.OutputText()
	if onChunk != nil && content != "" {
		onChunk(content)
	}

	return ChatResult{Content: content, ToolCalls: calls}, nil
}

func (o *OpenAIClient) classifyError(err error) *Error {
	if err == nil {
		return nil
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "rate"), strings.Contains(lower, "quota"), strings.Contains(lower, "429"):
		return NewErrorWithCause(ClassRateLimit, err, "rate limiting detected")
	case strings.Contains(lower, "auth"), strings.Contains(lower, "401"), strings.Contains(lower, "403"):
		return NewErrorWithCause(ClassSecurity, err, "authentication or permission error")
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "connection"), strings.Contains(lower, "eof"):
		return NewErrorWithCause(ClassTransient, err, "network or connection error")
	default:
		return NewErrorWithCause(ClassTransient, err, "unclassified inference error")
	}
}
