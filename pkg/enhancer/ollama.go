package enhancer

import (
	"context"
	"fmt"

	anyllm "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"

	"github.com/vimo-ai/vhisper-core/pkg/config"
)

const ollamaDefaultModel = "llama3"

// ollamaProvider talks to a local Ollama instance via
// github.com/mozilla-ai/any-llm-go, following the wrapper pattern the
// pack's anyllm package uses to front multiple LLM backends behind one
// Completion call. Ollama needs no credential; only an endpoint.
type ollamaProvider struct {
	backend anyllm.Provider
	model   string
}

func newOllamaProvider(params config.ProviderParams) (Provider, error) {
	model := params.Model
	if model == "" {
		model = ollamaDefaultModel
	}

	var opts []anyllm.Option
	if params.Endpoint != "" {
		opts = append(opts, anyllm.WithBaseURL(params.Endpoint))
	}
	if params.APIKey != "" {
		opts = append(opts, anyllm.WithAPIKey(params.APIKey))
	}

	backend, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("enhancer: ollama backend: %w", err)
	}
	return &ollamaProvider{backend: backend, model: model}, nil
}

func (p *ollamaProvider) Enhance(ctx context.Context, text string) (string, error) {
	temp := enhanceTemperature
	resp, err := p.backend.Completion(ctx, anyllm.CompletionParams{
		Model: p.model,
		Messages: []anyllm.Message{
			{Role: "system", Content: enhancePromptSystem},
			{Role: "user", Content: text},
		},
		Temperature: &temp,
	})
	if err != nil {
		return "", fmt.Errorf("enhancer: ollama completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("enhancer: ollama returned no choices")
	}
	return resp.Choices[0].Message.ContentString(), nil
}
