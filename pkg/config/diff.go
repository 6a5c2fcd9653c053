package config

// Diff describes what changed between two configs across an
// UpdateConfig call. It exists purely for logging — the pipeline always
// replaces the whole config atomically, never a field at a time.
type Diff struct {
	ASRProviderChanged bool
	OldASRProvider     ASRProvider
	NewASRProvider     ASRProvider

	LLMEnabledChanged  bool
	LLMProviderChanged bool
	OutputChanged      bool
}

// DiffConfigs compares old and new and reports which top-level facets
// changed, for inclusion in a structured log line.
func DiffConfigs(old, new *Config) Diff {
	var d Diff
	if old.ASR.Provider != new.ASR.Provider {
		d.ASRProviderChanged = true
		d.OldASRProvider = old.ASR.Provider
		d.NewASRProvider = new.ASR.Provider
	}
	if old.LLM.Enabled != new.LLM.Enabled {
		d.LLMEnabledChanged = true
	}
	if old.LLM.Provider != new.LLM.Provider {
		d.LLMProviderChanged = true
	}
	if old.Output != new.Output {
		d.OutputChanged = true
	}
	return d
}
