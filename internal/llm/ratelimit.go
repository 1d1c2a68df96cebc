package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimitConfig configures request rate limiting for model providers.
// Free-tier generative APIs enforce low per-minute request quotas; staying
// under them locally avoids burning the retry budget on 429s.
type RateLimitConfig struct {
	// RequestsPerMinute limits the number of API calls per minute (0 = unlimited)
	RequestsPerMinute int
	// BurstSize allows temporary burst above the rate limit
	BurstSize int
}

// DefaultRateLimitConfig returns conservative defaults for free-tier APIs.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 25,
		BurstSize:         3,
	}
}

// RateLimitProvider wraps a provider with request rate limiting on both the
// completion and embedding paths.
type RateLimitProvider struct {
	inner  Provider
	config *RateLimitConfig

	mu            sync.Mutex
	requestTokens int
	lastRefill    time.Time
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	burstSize := config.BurstSize
	if burstSize <= 0 {
		burstSize = 1
	}

	return &RateLimitProvider{
		inner:         inner,
		config:        config,
		requestTokens: burstSize,
		lastRefill:    time.Now(),
	}
}

// Name returns the underlying provider name.
func (r *RateLimitProvider) Name() string {
	return r.inner.Name()
}

// Complete rate-limits and delegates to the inner provider.
func (r *RateLimitProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Complete(ctx, prompt, opts)
}

// Embed rate-limits and delegates to the inner provider.
func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

// wait blocks until a request token is available or ctx is done.
func (r *RateLimitProvider) wait(ctx context.Context) error {
	if r.config.RequestsPerMinute <= 0 {
		return nil
	}

	for {
		r.mu.Lock()
		r.refill()
		if r.requestTokens > 0 {
			r.requestTokens--
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Minute / time.Duration(r.config.RequestsPerMinute)):
		}
	}
}

// refill adds tokens accrued since the last refill. Caller holds r.mu.
func (r *RateLimitProvider) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill)

	accrued := int(elapsed * time.Duration(r.config.RequestsPerMinute) / time.Minute)
	if accrued <= 0 {
		return
	}

	burst := r.config.BurstSize
	if burst <= 0 {
		burst = 1
	}

	r.requestTokens += accrued
	if r.requestTokens > burst {
		r.requestTokens = burst
	}
	r.lastRefill = now
}
