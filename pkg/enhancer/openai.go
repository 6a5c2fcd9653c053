package enhancer

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vimo-ai/vhisper-core/pkg/config"
)

const openaiDefaultModel = openai.GPT4oMini

// openaiProvider talks to OpenAI's chat completions API through
// sashabaranov/go-openai — the teacher's second OpenAI client (used
// elsewhere for Whisper transcription), exercised here for chat
// completion so both teacher SDKs see use.
type openaiProvider struct {
	client *openai.Client
	model  string
}

func newOpenAIProvider(params config.ProviderParams) (Provider, error) {
	if params.APIKey == "" {
		return nil, fmt.Errorf("enhancer: openai api_key is required")
	}
	clientConfig := openai.DefaultConfig(params.APIKey)
	if params.Endpoint != "" {
		clientConfig.BaseURL = params.Endpoint
	}
	model := params.Model
	if model == "" {
		model = openaiDefaultModel
	}
	return &openaiProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

func (p *openaiProvider) Enhance(ctx context.Context, text string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: enhancePromptSystem},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: float32(enhanceTemperature),
	})
	if err != nil {
		return "", fmt.Errorf("enhancer: openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("enhancer: openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
