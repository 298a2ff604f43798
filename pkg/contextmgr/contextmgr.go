// Package contextmgr tracks token budgets for the prompts the phase
// executor and conversation processor send to the inference client, and
// compacts the rolling conversation window when it grows past budget.
package contextmgr

import (
	"fmt"
	"sync"

	"appgen/pkg/utils"
)

// Message mirrors AgentState.conversationMessages: role, content, and the
// conversationId used to correlate streamed responses back to a UI turn.
type Message struct {
	Role           string // "user" | "assistant" | "system"
	Content        string
	ConversationID string
}

// Manager accumulates messages for one agent and reports/enforces a token
// budget, compacting the oldest non-system messages first when exceeded.
type Manager struct {
	mu      sync.Mutex
	counter *utils.TokenCounter
	system  *Message
	history []Message
}

// New creates a Manager that counts tokens using model's tokenizer mapping.
func New(model string) (*Manager, error) {
	counter, err := utils.NewTokenCounter(model)
	if err != nil {
		return nil, fmt.Errorf("create token counter: %w", err)
	}
	return &Manager{counter: counter}, nil
}

// SetSystemPrompt installs the system message, always excluded from compaction.
func (m *Manager) SetSystemPrompt(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.system = &Message{Role: "system", Content: content}
}

// Append adds a message to the rolling conversation window.
func (m *Manager) Append(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, msg)
}

// Messages returns the system prompt (if set) followed by the conversation
// history, in order — the same ordering `conversationMessages` requires.
func (m *Manager) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Message, 0, len(m.history)+1)
	if m.system != nil {
		out = append(out, *m.system)
	}
	out = append(out, m.history...)
	return out
}

// CountTokens returns the total token count across system prompt + history.
func (m *Manager) CountTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countTokensLocked()
}

func (m *Manager) countTokensLocked() int {
	total := 0
	if m.system != nil {
		total += m.counter.CountTokens(m.system.Content)
	}
	for _, msg := range m.history {
		total += m.counter.CountTokens(msg.Content)
	}
	return total
}

// Compact drops the oldest history messages (system prompt is never
// dropped) until the total token count is at or below maxTokens, or only
// one history message remains. Returns the number of messages dropped.
func (m *Manager) Compact(maxTokens int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for m.countTokensLocked() > maxTokens && len(m.history) > 1 {
		m.history = m.history[1:]
		dropped++
	}
	return dropped
}

// Clear removes all history but keeps the system prompt.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
}
