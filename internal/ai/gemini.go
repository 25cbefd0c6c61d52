package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const geminiModel = "gemini-2.0-flash"

// GeminiRanker implements Ranker using Google's Gemini models.
type GeminiRanker struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiRanker initializes a new Gemini client. apiKey should come from
// the environment.
func NewGeminiRanker(ctx context.Context, apiKey string) (*GeminiRanker, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: missing api key")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(geminiModel)
	// Ranking should be reproducible, so keep the temperature low.
	model.SetTemperature(0.1)

	return &GeminiRanker{client: client, model: model}, nil
}

// Close cleans up the Gemini client resources.
func (r *GeminiRanker) Close() {
	r.client.Close()
}

// RankOrder sends the instruction and prompt in a single combined message and
// returns the raw reply text. Failures are classified so the caller's retry
// policy can distinguish transient provider trouble from unusable output.
func (r *GeminiRanker) RankOrder(ctx context.Context, systemInstruction, prompt string) (string, error) {
	fullPrompt := fmt.Sprintf("%s\n\n%s", systemInstruction, prompt)

	resp, err := r.model.GenerateContent(ctx, genai.Text(fullPrompt))
	if err != nil {
		return "", classifyCallError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", permanentErr("generate", fmt.Errorf("no response candidates"))
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", permanentErr("generate", fmt.Errorf("response blocked by safety filter"))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", permanentErr("generate", fmt.Errorf("empty text parts"))
	}
	return text, nil
}

func classifyCallError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code >= http.StatusInternalServerError || gerr.Code == http.StatusTooManyRequests {
			return retryableErr("generate", err)
		}
		return permanentErr("generate", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retryableErr("generate", err)
	}
	if errors.Is(err, context.Canceled) {
		return permanentErr("generate", err)
	}
	// Connection resets and other transport errors land here.
	return retryableErr("generate", err)
}
