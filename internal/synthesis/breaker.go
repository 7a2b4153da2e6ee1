package synthesis

import (
	"context"
	"errors"

	"github.com/kvn8888/AzureGoogleTTS/internal/observability"
	"github.com/kvn8888/AzureGoogleTTS/internal/resilience"
)

// BreakerClient wraps a Client with a circuit breaker. When the circuit
// is open, calls fail fast as terminal synthesis failures so the
// scheduler's failure-ratio accounting still applies.
type BreakerClient struct {
	inner   Client
	breaker *resilience.CircuitBreaker
}

// NewBreakerClient wraps inner with breaker protection.
func NewBreakerClient(inner Client, breaker *resilience.CircuitBreaker) *BreakerClient {
	return &BreakerClient{inner: inner, breaker: breaker}
}

// Name returns the wrapped provider's identifier.
func (c *BreakerClient) Name() string {
	return c.inner.Name()
}

// Synthesize delegates to the wrapped client under breaker protection.
func (c *BreakerClient) Synthesize(ctx context.Context, text string, voice VoiceConfig) ([]byte, error) {
	var audio []byte
	err := c.breaker.Call(func() error {
		var callErr error
		audio, callErr = c.inner.Synthesize(ctx, text, voice)
		return callErr
	})

	observability.UpdateCircuitBreakerState(c.inner.Name(), int(c.breaker.State()))

	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, NewFailed(c.inner.Name(), err)
	}
	return audio, err
}
