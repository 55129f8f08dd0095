package gemini

import (
	"context"
	"fmt"

	"github.com/foofork/tidepool"
	"google.golang.org/genai"
	"google.golang.org/genai/tokenizer"
)

var _ tidepool.TokenCounter = (*TokenCounter)(nil)

// TokenCounter counts prompt tokens with the Gemini local tokenizer.
// Counting itself makes no API calls. Construction loads the model's
// vocabulary, downloading it into a local cache on first use, and fails
// for models the local tokenizer does not support.
type TokenCounter struct {
	model string
	tok   *tokenizer.LocalTokenizer
}

// NewTokenCounter creates a TokenCounter for the given model.
func NewTokenCounter(model string) (*TokenCounter, error) {
	tok, err := tokenizer.NewLocalTokenizer(model)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer for %s: %w", model, err)
	}
	return &TokenCounter{model: model, tok: tok}, nil
}

// CountTokens returns the number of tokens text occupies in the model's
// vocabulary. Empty text counts as zero.
func (tc *TokenCounter) CountTokens(ctx context.Context, text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	result, err := tc.tok.CountTokens([]*genai.Content{genai.NewContentFromText(text, "user")}, nil)
	if err != nil {
		return 0, tidepool.Errorf(tidepool.EINTERNAL, "counting tokens for %s: %v", tc.model, err)
	}
	return int(result.TotalTokens), nil
}
