package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	data := []byte(`{"asr":{"provider":"Qwen","qwen":{"api_key":"sk-test","model":"qwen3-asr-flash-realtime"}}}`)

	cfg, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ASR.Provider != ASRQwen {
		t.Fatalf("provider = %q, want Qwen", cfg.ASR.Provider)
	}
	if cfg.Output.PasteDelayMs != 10 || !cfg.Output.RestoreClipboard {
		t.Fatalf("output defaults not applied: %+v", cfg.Output)
	}
	if cfg.LLM.Enabled {
		t.Fatalf("llm.enabled default should be false")
	}
}

func TestLoadUnknownKeysIgnored(t *testing.T) {
	data := []byte(`{"asr":{"provider":"Qwen","qwen":{"api_key":"sk-test"}},"unknown_top_level":{"x":1}}`)
	if _, err := Load(data); err != nil {
		t.Fatalf("Load should ignore unknown keys: %v", err)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	if _, err := Load([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoadMissingAPIKey(t *testing.T) {
	data := []byte(`{"asr":{"provider":"Qwen","qwen":{"model":"x"}}}`)
	if _, err := Load(data); err == nil {
		t.Fatal("expected validation error for missing api_key")
	}
}

func TestLoadFunAsrRequiresEndpoint(t *testing.T) {
	data := []byte(`{"asr":{"provider":"FunAsr","funasr":{"model":"paraformer"}}}`)
	if _, err := Load(data); err == nil {
		t.Fatal("expected validation error for missing funasr endpoint")
	}

	data = []byte(`{"asr":{"provider":"FunAsr","funasr":{"endpoint":"ws://localhost:10095"}}}`)
	if _, err := Load(data); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadLLMEnabledRequiresProvider(t *testing.T) {
	data := []byte(`{
		"asr":{"provider":"Qwen","qwen":{"api_key":"sk-test"}},
		"llm":{"enabled":true,"provider":"OpenAI","openai":{"api_key":"sk-llm"}}
	}`)
	cfg, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != LLMOpenAI {
		t.Fatalf("llm provider = %q", cfg.LLM.Provider)
	}

	data = []byte(`{"asr":{"provider":"Qwen","qwen":{"api_key":"sk-test"}},"llm":{"enabled":true}}`)
	if _, err := Load(data); err == nil {
		t.Fatal("expected validation error for enabled llm without provider")
	}
}

func TestLoadLLMEnabledMissingAPIKey(t *testing.T) {
	data := []byte(`{
		"asr":{"provider":"Qwen","qwen":{"api_key":"sk-test"}},
		"llm":{"enabled":true,"provider":"OpenAI"}
	}`)
	if _, err := Load(data); err == nil {
		t.Fatal("expected validation error for missing llm api_key")
	}
}

func TestLoadOllamaNoAPIKeyRequired(t *testing.T) {
	data := []byte(`{
		"asr":{"provider":"Qwen","qwen":{"api_key":"sk-test"}},
		"llm":{"enabled":true,"provider":"Ollama","ollama":{"endpoint":"http://localhost:11434","model":"llama3"}}
	}`)
	if _, err := Load(data); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestDiffConfigs(t *testing.T) {
	a := &Config{ASR: ASRConfig{Provider: ASRQwen}}
	b := &Config{ASR: ASRConfig{Provider: ASRDashScope}, LLM: LLMConfig{Enabled: true, Provider: LLMOllama}}

	d := DiffConfigs(a, b)
	if !d.ASRProviderChanged || d.NewASRProvider != ASRDashScope {
		t.Fatalf("expected ASR provider change detected, got %+v", d)
	}
	if !d.LLMEnabledChanged || !d.LLMProviderChanged {
		t.Fatalf("expected llm changes detected, got %+v", d)
	}
}
