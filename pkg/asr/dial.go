package asr

import (
	"context"

	"github.com/vimo-ai/vhisper-core/pkg/config"
)

// Dial connects one recognizer session for the provider named by cfg.
// Each call performs a single connection attempt; the pipeline owns
// retrying across calls when a session drops mid-utterance.
func Dial(ctx context.Context, cfg config.ASRConfig) (Recognizer, error) {
	params, err := cfg.Params()
	if err != nil {
		return nil, &Error{Code: ErrCodeInvalidConfig, Message: err.Error(), Err: err}
	}

	switch cfg.Provider {
	case config.ASRQwen:
		return dialQwen(ctx, params)
	case config.ASRDashScope:
		return dialParaformer(ctx, params)
	case config.ASROpenAIWhisper:
		return dialWhisper(params)
	case config.ASRFunAsr:
		return dialFunASR(ctx, params)
	default:
		return nil, &Error{Code: ErrCodeInvalidConfig, Message: "asr: unsupported provider " + string(cfg.Provider)}
	}
}
