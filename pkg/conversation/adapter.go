package conversation

import (
	"context"

	"appgen/pkg/contextmgr"
	"appgen/pkg/inference"
	"appgen/pkg/logx"
	"appgen/pkg/session"
)

// maxConversationTokens bounds how much prior conversation history a turn
// carries into the model call; history beyond this is compacted (oldest
// first) the same way the teacher's coder driver trims its own tool-result
// history before it overruns the model's context window.
const maxConversationTokens = 100_000

// SessionAdapter satisfies session.ConversationProcessor against a
// Processor, translating between session's narrow ConversationTurn/Result
// shapes and this package's Turn/Result so pkg/session never needs to
// import pkg/inference directly. It also runs PastMessages through a
// contextmgr.Manager so a long-running conversation never grows the prompt
// past budget.
type SessionAdapter struct {
	processor *Processor
	model     string
	logger    *logx.Logger
}

// NewSessionAdapter wraps processor for use as an Agent's Deps.Conversation.
// model selects the tokenizer contextmgr uses to budget PastMessages.
func NewSessionAdapter(processor *Processor, model string) *SessionAdapter {
	return &SessionAdapter{processor: processor, model: model, logger: logx.NewLogger("conversation.adapter")}
}

// ProcessTurn implements session.ConversationProcessor.
func (a *SessionAdapter) ProcessTurn(ctx context.Context, turn session.ConversationTurn, streamCallback func(chunk string)) session.ConversationResult {
	past := a.boundedHistory(turn.PastMessages)

	result := a.processor.Process(ctx, Turn{UserMessage: turn.UserMessage, PastMessages: past}, streamCallback)

	return session.ConversationResult{
		RateLimited:         result.Kind == ResultRateLimited,
		AssistantMessage:    result.AssistantMessage,
		ModificationRequest: result.ModificationRequest,
	}
}

// boundedHistory runs msgs through a contextmgr.Manager and compacts until
// the total fits maxConversationTokens, falling back to the uncompacted
// history if no tokenizer mapping is available for this model.
func (a *SessionAdapter) boundedHistory(msgs []session.ConversationMessage) []inference.Message {
	mgr, err := contextmgr.New(a.model)
	if err != nil {
		a.logger.Warn("no tokenizer mapping for model %s, skipping compaction: %v", a.model, err)
		out := make([]inference.Message, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, inference.Message{Role: m.Role, Content: m.Content})
		}
		return out
	}

	for _, m := range msgs {
		mgr.Append(contextmgr.Message{Role: m.Role, Content: m.Content, ConversationID: m.ConversationID})
	}
	if dropped := mgr.Compact(maxConversationTokens); dropped > 0 {
		a.logger.Info("compacted %d conversation message(s) to stay within token budget", dropped)
	}

	compacted := mgr.Messages()
	out := make([]inference.Message, 0, len(compacted))
	for _, m := range compacted {
		out = append(out, inference.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
