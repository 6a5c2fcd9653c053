package enhancer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vimo-ai/vhisper-core/pkg/config"
	"github.com/vimo-ai/vhisper-core/pkg/enhancer"
)

type fakeProvider struct {
	out string
	err error
}

func (f *fakeProvider) Enhance(_ context.Context, _ string) (string, error) {
	return f.out, f.err
}

func TestEnhancerReturnsRewrittenText(t *testing.T) {
	e := enhancer.New(&fakeProvider{out: "Hello, world."})
	got, fellBack := e.Enhance(context.Background(), "hello world")
	if fellBack {
		t.Fatal("expected no fallback")
	}
	if got != "Hello, world." {
		t.Fatalf("got %q", got)
	}
}

func TestEnhancerFallsBackOnError(t *testing.T) {
	e := enhancer.New(&fakeProvider{err: errors.New("rate limited")})
	got, fellBack := e.Enhance(context.Background(), "hello world")
	if !fellBack {
		t.Fatal("expected fallback")
	}
	if got != "hello world" {
		t.Fatalf("expected original text preserved, got %q", got)
	}
}

func TestEnhancerSkipsEmptyText(t *testing.T) {
	e := enhancer.New(&fakeProvider{out: "should not be used"})
	got, fellBack := e.Enhance(context.Background(), "")
	if fellBack || got != "" {
		t.Fatalf("expected empty passthrough, got %q fellBack=%v", got, fellBack)
	}
}

func TestDialUnsupportedProvider(t *testing.T) {
	if _, err := enhancer.Dial(config.LLMConfig{Provider: "bogus"}); err == nil {
		t.Fatal("expected error for unsupported llm provider")
	}
}

func TestDialOllamaNeedsNoAPIKey(t *testing.T) {
	_, err := enhancer.Dial(config.LLMConfig{
		Provider: config.LLMOllama,
		Ollama:   config.ProviderParams{Endpoint: "http://localhost:11434", Model: "llama3"},
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
}
