// Package enhancer implements the optional post-processing stage that
// cleans up Final transcript text (punctuation, casing, disfluency
// removal) through a language model before it reaches the host.
package enhancer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vimo-ai/vhisper-core/pkg/config"
)

// Provider is a single language-model backend capable of rewriting one
// piece of transcript text.
type Provider interface {
	Enhance(ctx context.Context, text string) (string, error)
}

// Enhancer wraps a Provider with the fallback contract the pipeline
// relies on: a failed or unparseable rewrite never blocks output, it
// just returns the original text. Grounded on the pack's llmcorrect
// corrector, which applies the same never-fatal fallback to its own
// entity-correction rewrite.
type Enhancer struct {
	provider Provider
}

// New wraps provider in the never-fatal fallback contract.
func New(provider Provider) *Enhancer {
	return &Enhancer{provider: provider}
}

// Enhance rewrites text. On any provider failure it logs a warning and
// returns the original text with fellBack=true so the caller can surface
// a non-fatal WarningEvent without interrupting the stream.
func (e *Enhancer) Enhance(ctx context.Context, text string) (result string, fellBack bool) {
	if text == "" {
		return text, false
	}
	out, err := e.provider.Enhance(ctx, text)
	if err != nil {
		slog.Warn("enhancer: falling back to original text", "error", err)
		return text, true
	}
	if out == "" {
		return text, true
	}
	return out, false
}

// Dial constructs the Enhancer named by cfg.Provider. Callers must check
// cfg.Enabled themselves; Dial does not consult it.
func Dial(cfg config.LLMConfig) (*Enhancer, error) {
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}

	var provider Provider
	switch cfg.Provider {
	case config.LLMDashScope:
		provider, err = newDashScopeProvider(params)
	case config.LLMOpenAI:
		provider, err = newOpenAIProvider(params)
	case config.LLMOllama:
		provider, err = newOllamaProvider(params)
	default:
		return nil, fmt.Errorf("enhancer: unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return New(provider), nil
}
