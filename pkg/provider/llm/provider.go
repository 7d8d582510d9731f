// Package llm defines the completion contract the reply engine is built on.
//
// earshot only needs short, single-shot answers, so the contract is a single
// blocking Complete call. Implementations wrap a concrete backend (OpenAI,
// any-llm-go) and must be safe for concurrent use.
package llm

import (
	"context"

	"github.com/MrWong99/earshot/pkg/types"
)

// CompletionRequest is one chat completion call.
type CompletionRequest struct {
	// SystemPrompt is sent first, ahead of Messages. Optional.
	SystemPrompt string

	// Messages is the conversation, oldest first. The last entry is the
	// user turn being answered.
	Messages []types.Message

	// Temperature controls randomness. Nil leaves the backend default.
	Temperature *float64

	// MaxTokens caps the reply length. Zero leaves the backend default.
	MaxTokens int
}

// CompletionResponse is the backend's answer.
type CompletionResponse struct {
	Content string
	Usage   types.Usage
}

// Provider produces chat completions.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
