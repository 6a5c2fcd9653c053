package asr

import (
	"context"
	"time"

	"github.com/vimo-ai/vhisper-core/pkg/config"
)

// DialWithRetry wraps Dial with the bounded retry policy every provider
// shares: up to maxAttempts consecutive dial failures are tolerated
// before giving up, with a short fixed pause between attempts so a
// flapping network doesn't spin hot. It never retries an auth failure —
// a bad credential will not start working on the next attempt.
func DialWithRetry(ctx context.Context, cfg config.ASRConfig, maxAttempts int, pause time.Duration) (Recognizer, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		r, err := Dial(ctx, cfg)
		if err == nil {
			return r, nil
		}
		lastErr = err

		if asrErr, ok := err.(*Error); ok && asrErr.Code == ErrCodeAuthError {
			return nil, err
		}
		if attempt < maxAttempts-1 {
			select {
			case <-time.After(pause):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}
