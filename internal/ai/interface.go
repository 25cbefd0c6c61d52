package ai

import "context"

// Ranker is the contract for the external ranking provider. Implementations
// send a system instruction plus a free-text prompt and return the provider's
// raw text reply; callers own prompt construction and response parsing.
//
// The interface allows swapping providers (Gemini, OpenAI, ...) without
// touching the matching pipeline.
type Ranker interface {
	RankOrder(ctx context.Context, systemInstruction, prompt string) (string, error)
}
