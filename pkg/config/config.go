// Package config holds the parsed configuration tree for a Vhisper core
// pipeline: the ASR provider selection, the optional text enhancer, and
// opaque presentation hints for the host shell.
//
// A Config is immutable once a Pipeline is constructed from it; replacing
// it is only permitted through Pipeline.UpdateConfig while the pipeline is
// Idle (see package pipeline).
package config

import "fmt"

// ASRProvider selects which streaming/one-shot speech recognizer backs a
// pipeline.
type ASRProvider string

const (
	ASRQwen          ASRProvider = "Qwen"
	ASRDashScope     ASRProvider = "DashScope"
	ASROpenAIWhisper ASRProvider = "OpenAIWhisper"
	ASRFunAsr        ASRProvider = "FunAsr"
)

// LLMProvider selects which language model backs the optional Enhancer.
type LLMProvider string

const (
	LLMDashScope LLMProvider = "DashScope"
	LLMOpenAI    LLMProvider = "OpenAI"
	LLMOllama    LLMProvider = "Ollama"
)

// ProviderParams carries the provider-specific parameters shared by every
// ASR and LLM variant. Not every field is meaningful for every provider;
// unused fields are simply left zero.
type ProviderParams struct {
	APIKey   string `json:"api_key,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
}

// ASRConfig is the `asr` branch of the configuration tree: exactly one
// provider is selected, and only that provider's parameter block is read.
type ASRConfig struct {
	Provider ASRProvider `json:"provider"`

	Qwen          ProviderParams `json:"qwen"`
	DashScope     ProviderParams `json:"dashscope"`
	OpenAIWhisper ProviderParams `json:"openaiwhisper"`
	FunAsr        ProviderParams `json:"funasr"`
}

// Params returns the parameter block selected by Provider.
func (c ASRConfig) Params() (ProviderParams, error) {
	switch c.Provider {
	case ASRQwen:
		return c.Qwen, nil
	case ASRDashScope:
		return c.DashScope, nil
	case ASROpenAIWhisper:
		return c.OpenAIWhisper, nil
	case ASRFunAsr:
		return c.FunAsr, nil
	default:
		return ProviderParams{}, fmt.Errorf("config: unknown asr provider %q", c.Provider)
	}
}

// LLMConfig is the optional `llm` branch used by the Enhancer. When
// Enabled is false the core never constructs an enhancer and Final text
// is passed through unchanged.
type LLMConfig struct {
	Enabled  bool        `json:"enabled"`
	Provider LLMProvider `json:"provider"`

	DashScope ProviderParams `json:"dashscope"`
	OpenAI    ProviderParams `json:"openai"`
	Ollama    ProviderParams `json:"ollama"`
}

// Params returns the parameter block selected by Provider.
func (c LLMConfig) Params() (ProviderParams, error) {
	switch c.Provider {
	case LLMDashScope:
		return c.DashScope, nil
	case LLMOpenAI:
		return c.OpenAI, nil
	case LLMOllama:
		return c.Ollama, nil
	default:
		return ProviderParams{}, fmt.Errorf("config: unknown llm provider %q", c.Provider)
	}
}

// OutputConfig carries presentation hints for the host shell (clipboard
// restore, paste pacing). The core never reads these fields itself.
type OutputConfig struct {
	RestoreClipboard bool `json:"restore_clipboard"`
	PasteDelayMs     int  `json:"paste_delay_ms"`
}

// Config is the root of the configuration tree described by spec §6.
type Config struct {
	ASR    ASRConfig    `json:"asr"`
	LLM    LLMConfig    `json:"llm"`
	Output OutputConfig `json:"output"`
}

// DefaultOutput returns the documented defaults for the `output` branch,
// used when the section is missing entirely from the source JSON.
func DefaultOutput() OutputConfig {
	return OutputConfig{
		RestoreClipboard: true,
		PasteDelayMs:     10,
	}
}

var validASRProviders = map[ASRProvider]bool{
	ASRQwen: true, ASRDashScope: true, ASROpenAIWhisper: true, ASRFunAsr: true,
}

var validLLMProviders = map[LLMProvider]bool{
	LLMDashScope: true, LLMOpenAI: true, LLMOllama: true,
}

// Validate checks that the config names a supported ASR provider (and,
// when the enhancer is enabled, a supported LLM provider) and that the
// selected provider's parameter block is non-empty where a credential or
// endpoint is mandatory.
func Validate(cfg *Config) error {
	if !validASRProviders[cfg.ASR.Provider] {
		return fmt.Errorf("config: asr.provider %q is not one of Qwen, DashScope, OpenAIWhisper, FunAsr", cfg.ASR.Provider)
	}
	params, _ := cfg.ASR.Params()
	if cfg.ASR.Provider != ASRFunAsr && params.APIKey == "" {
		return fmt.Errorf("config: asr.%s.api_key is required", providerKey(cfg.ASR.Provider))
	}
	if cfg.ASR.Provider == ASRFunAsr && params.Endpoint == "" {
		return fmt.Errorf("config: asr.funasr.endpoint is required")
	}

	if !cfg.LLM.Enabled {
		return nil
	}
	if !validLLMProviders[cfg.LLM.Provider] {
		return fmt.Errorf("config: llm.provider %q is not one of DashScope, OpenAI, Ollama", cfg.LLM.Provider)
	}
	lparams, _ := cfg.LLM.Params()
	if cfg.LLM.Provider != LLMOllama && lparams.APIKey == "" {
		return fmt.Errorf("config: llm.%s.api_key is required", providerKeyLLM(cfg.LLM.Provider))
	}
	return nil
}

func providerKey(p ASRProvider) string {
	switch p {
	case ASRQwen:
		return "qwen"
	case ASRDashScope:
		return "dashscope"
	case ASROpenAIWhisper:
		return "openaiwhisper"
	case ASRFunAsr:
		return "funasr"
	default:
		return string(p)
	}
}

func providerKeyLLM(p LLMProvider) string {
	switch p {
	case LLMDashScope:
		return "dashscope"
	case LLMOpenAI:
		return "openai"
	case LLMOllama:
		return "ollama"
	default:
		return string(p)
	}
}
