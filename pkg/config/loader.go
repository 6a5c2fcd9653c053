package config

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Load parses the canonical configuration JSON described by spec §6,
// applies documented defaults for missing optional sections, and
// validates the result.
//
// A lenient pre-flight pass with gjson checks that `asr.provider`, when
// present, is a JSON string before the strict typed decode runs, so a
// malformed selector produces a clear error. Whether the ASR and LLM
// providers name supported backends is checked afterwards by Validate.
func Load(data []byte) (*Config, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("config: invalid JSON")
	}

	if provider := gjson.GetBytes(data, "asr.provider"); provider.Exists() && provider.Type != gjson.String {
		return nil, fmt.Errorf("config: asr.provider must be a string")
	}

	cfg := &Config{
		Output: DefaultOutput(),
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: decode json: %w", err)
	}

	if !gjson.GetBytes(data, "output").Exists() {
		cfg.Output = DefaultOutput()
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadString is a convenience wrapper around Load for callers (the FFI
// shim, tests) that already hold the config as a string.
func LoadString(s string) (*Config, error) {
	return Load([]byte(s))
}
