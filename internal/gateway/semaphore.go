package gateway

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/JanDamek/jervis-sub011/internal/config"
	"github.com/JanDamek/jervis-sub011/internal/observability"
)

// defaultProviderConcurrency applies when no candidate declares a cap for
// its provider.
const defaultProviderConcurrency = 2

// providerLimiter holds one counting semaphore per provider tag. Acquisition
// suspends when the provider is at capacity; permits are released on every
// exit path including cancellation.
type providerLimiter struct {
	semaphores map[string]*semaphore.Weighted
	metrics    *observability.Metrics
}

// newProviderLimiter sizes each provider's semaphore from the largest
// max_concurrent_requests declared across its candidates.
func newProviderLimiter(candidates []config.ModelCandidate, metrics *observability.Metrics) *providerLimiter {
	capacities := make(map[string]int)
	for _, c := range candidates {
		cap := c.MaxConcurrentRequests
		if cap <= 0 {
			cap = defaultProviderConcurrency
		}
		if cap > capacities[c.Provider] {
			capacities[c.Provider] = cap
		}
	}
	semaphores := make(map[string]*semaphore.Weighted, len(capacities))
	for provider, cap := range capacities {
		semaphores[provider] = semaphore.NewWeighted(int64(cap))
	}
	return &providerLimiter{semaphores: semaphores, metrics: metrics}
}

// Acquire blocks until a permit for provider is available or ctx is done.
// The returned release function is idempotent.
func (l *providerLimiter) Acquire(ctx context.Context, provider string) (func(), error) {
	sem, ok := l.semaphores[provider]
	if !ok {
		// Unconfigured providers (tests, dynamic candidates) are uncapped.
		return func() {}, nil
	}
	start := time.Now()
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if l.metrics != nil {
		l.metrics.SemaphoreWait.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}
	released := false
	return func() {
		if !released {
			released = true
			sem.Release(1)
		}
	}, nil
}
