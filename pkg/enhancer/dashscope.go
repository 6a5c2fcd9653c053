package enhancer

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/vimo-ai/vhisper-core/pkg/config"
)

const (
	dashscopeCompatibleBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	dashscopeDefaultModel      = "qwen-plus"
)

// dashscopeProvider talks to DashScope's OpenAI-compatible chat
// completions endpoint through openai-go, the same SDK the teacher's
// Realtime API client already depends on — reused here against a
// different base URL rather than adding a second client for the job.
type dashscopeProvider struct {
	client openai.Client
	model  string
}

func newDashScopeProvider(params config.ProviderParams) (Provider, error) {
	if params.APIKey == "" {
		return nil, fmt.Errorf("enhancer: dashscope api_key is required")
	}
	baseURL := params.Endpoint
	if baseURL == "" {
		baseURL = dashscopeCompatibleBaseURL
	}
	model := params.Model
	if model == "" {
		model = dashscopeDefaultModel
	}

	client := openai.NewClient(
		option.WithAPIKey(params.APIKey),
		option.WithBaseURL(baseURL),
	)
	return &dashscopeProvider{client: client, model: model}, nil
}

func (p *dashscopeProvider) Enhance(ctx context.Context, text string) (string, error) {
	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(enhancePromptSystem),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(enhanceTemperature),
	})
	if err != nil {
		return "", fmt.Errorf("enhancer: dashscope completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("enhancer: dashscope returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
