package download

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/pezzottify/catalog-engine/internal/config"
)

// computeBackoff returns the delay before the (retryCount+1)-th attempt,
// following cfg's initial/multiplier/max settings. The curve itself comes
// from backoff.ExponentialBackOff rather than a hand-rolled pow() so it
// matches the growth/jitter behavior the rest of the ecosystem expects;
// randomization is disabled so the delay is deterministic and testable.
func computeBackoff(cfg *config.Config, retryCount int64) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.ParsedInitialBackoff,
		MaxInterval:         cfg.ParsedMaxBackoff,
		Multiplier:          cfg.BackoffMultiplier,
		RandomizationFactor: 0,
	}
	b.Reset()

	var delay time.Duration
	for i := int64(0); i <= retryCount; i++ {
		delay = b.NextBackOff()
	}

	return delay
}
