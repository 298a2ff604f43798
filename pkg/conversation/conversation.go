// Package conversation implements the Conversation Processor (C4): one user
// chat turn, with a single `edit_app` tool that lets the model enqueue a
// modification request onto the owning session agent. Grounded on the
// single ToolLoop{llmClient,logger}/Config[T] shape in the teacher's
// pkg/agent/toolloop package, narrowed from its iterative, escalation-aware
// loop down to the single-pass turn spec.md §4.8 calls for.
package conversation

import (
	"context"

	"appgen/pkg/inference"
	"appgen/pkg/logx"
	"appgen/pkg/utils"
)

// ResultKind classifies how a turn concluded.
type ResultKind int

const (
	// ResultOK is a normal completed turn, with or without an edit_app call.
	ResultOK ResultKind = iota
	// ResultRateLimited surfaces an inference rate-limit error unchanged.
	ResultRateLimited
	// ResultSecurity surfaces an inference auth/security error unchanged.
	ResultSecurity
	// ResultFallback covers every other failure: a canned assistant message
	// is returned and the turn does not propagate an error.
	ResultFallback
)

// editAppToolName is the one tool the conversation turn exposes to the
// model, per spec.md §4.8.
const editAppToolName = "edit_app"

var editAppTool = inference.ToolDefinition{
	Name:        editAppToolName,
	Description: "Enqueue a modification request to apply against the generated application.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"modificationRequest": map[string]any{"type": "string"},
		},
		"required": []string{"modificationRequest"},
	},
}

// Turn is one user message to process against prior conversation history.
type Turn struct {
	UserMessage  string
	PastMessages []inference.Message
	SystemPrompt string
}

// Result is the outcome of processing one Turn.
type Result struct {
	Kind ResultKind
	// AssistantMessage is appended to conversationMessages regardless of
	// Kind; for ResultFallback it is a canned apology, not model output.
	AssistantMessage string
	// ModificationRequest is non-empty when the model called edit_app; the
	// caller (session agent) appends it to pendingUserInputs.
	ModificationRequest string
}

// fallbackMessage is returned whenever the turn fails for a reason other
// than rate-limiting or a security error.
const fallbackMessage = "Something went wrong processing that message. Please try again."

// Processor runs conversation turns against an inference client.
type Processor struct {
	client inference.Client
	logger *logx.Logger
}

// New constructs a Processor backed by client.
func New(client inference.Client) *Processor {
	return &Processor{client: client, logger: logx.NewLogger("conversation")}
}

// Process runs one turn, invoking streamCallback (if non-nil) with
// incremental assistant text as it arrives.
func (p *Processor) Process(ctx context.Context, turn Turn, streamCallback func(chunk string)) Result {
	messages := make([]inference.Message, 0, len(turn.PastMessages)+2)
	if turn.SystemPrompt != "" {
		messages = append(messages, inference.Message{Role: "system", Content: turn.SystemPrompt})
	}
	messages = append(messages, turn.PastMessages...)
	messages = append(messages, inference.Message{Role: "user", Content: turn.UserMessage})

	chatResult, err := p.client.ChatWithTools(ctx, messages, []inference.ToolDefinition{editAppTool}, streamCallback)
	if err != nil {
		return p.classifyFailure(err)
	}

	result := Result{Kind: ResultOK, AssistantMessage: chatResult.Content}
	for _, call := range chatResult.ToolCalls {
		if call.Name != editAppToolName {
			continue
		}
		if req, ok := extractModificationRequest(call.Parameters); ok {
			result.ModificationRequest = req
		}
	}
	return result
}

// SynthesizeMemo builds an internal assistant memo for a project-update
// notification (phase events, deployments): appended to history, hidden
// from UI rendering by callers that check for this marker convention.
func SynthesizeMemo(content string) inference.Message {
	return inference.Message{Role: "assistant", Content: "[internal] " + content}
}

func (p *Processor) classifyFailure(err error) Result {
	switch inference.ClassOf(err) {
	case inference.ClassRateLimit:
		p.logger.Warn("conversation turn rate limited: %v", err)
		return Result{Kind: ResultRateLimited, AssistantMessage: err.Error()}
	case inference.ClassSecurity:
		p.logger.Error("conversation turn security error: %v", err)
		return Result{Kind: ResultSecurity, AssistantMessage: err.Error()}
	default:
		p.logger.Error("conversation turn failed, returning fallback: %v", err)
		return Result{Kind: ResultFallback, AssistantMessage: fallbackMessage}
	}
}

func extractModificationRequest(params map[string]any) (string, bool) {
	s, err := utils.GetMapField[string](params, "modificationRequest")
	if err != nil || s == "" {
		return "", false
	}
	return s, true
}
