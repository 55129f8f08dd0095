package tidepool

import "context"

// TokenCounter counts model tokens in text. Used to budget how much
// extracted content fits into an LLM context window.
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}
