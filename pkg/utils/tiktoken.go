// Package utils provides tiktoken-based token counting utilities.
package utils

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"

	"appgen/pkg/config"
)

// TokenCounter provides accurate token counting for different models.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a new token counter for the specified model.
// Supported models are defined as constants in the config package. Claude
// models don't have a published tiktoken vocabulary, so they're approximated
// with the GPT-4 encoding, which is close enough for budget accounting.
func NewTokenCounter(model string) (*TokenCounter, error) {
	// Every known model is approximated with the GPT-4 encoding: Claude has
	// no published tiktoken vocabulary, and GPT-4o's differs too little to
	// matter for budget accounting.
	_ = model
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("create tokenizer codec for model %s: %w", model, err)
	}

	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc.codec == nil {
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}

	return count
}

// CountTokensSimple provides token counting without a TokenCounter instance,
// using GPT-4 encoding.
func CountTokensSimple(text string) int {
	counter, err := NewTokenCounter(config.ModelOpenAIGPT4o)
	if err != nil {
		return len(text) / 4
	}
	return counter.CountTokens(text)
}

// ValidateTokenLimit reports whether text fits within limit tokens.
func (tc *TokenCounter) ValidateTokenLimit(text string, limit int) bool {
	return tc.CountTokens(text) <= limit
}

// TruncateToTokenLimit truncates text to approximately fit within limit
// tokens. This is a rough approximation: it truncates by characters
// proportional to the token/char ratio, not at an exact token boundary.
func (tc *TokenCounter) TruncateToTokenLimit(text string, limit int) string {
	currentTokens := tc.CountTokens(text)
	if currentTokens <= limit {
		return text
	}

	ratio := float64(limit) / float64(currentTokens)
	charLimit := int(float64(len(text)) * ratio * 0.9)

	if charLimit >= len(text) {
		return text
	}

	return text[:charLimit] + "..."
}
