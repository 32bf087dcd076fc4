package summary

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/acme/voice-sales-agent/internal/config"
)

const maxTranscriptChars = 12000

// OpenAI summarizes transcripts with a chat completion call.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(cfg config.SummaryConfig) *OpenAI {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClient(cfg.APIKey), model: model}
}

func (s *OpenAI) Summarize(ctx context.Context, transcript, language string) (string, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", nil
	}
	if len(transcript) > maxTranscriptChars {
		transcript = transcript[:maxTranscriptChars]
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(
					"Summarize this sales call transcript in 2-3 sentences in language %q. Note the customer's interest level and any agreed next step.",
					language),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: transcript,
			},
		},
		MaxTokens:   200,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("summarize transcript: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
