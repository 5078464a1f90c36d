package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/JanDamek/jervis-sub011/internal/config"
	"github.com/JanDamek/jervis-sub011/internal/observability"
)

// warmSafetyFactor shrinks the refresh interval below the model's
// advertised keep-alive so the model never unloads between refreshes.
const (
	warmSafetyFactor  = 0.8
	warmMinInterval   = 30 * time.Second
	warmerJoinTimeout = 3 * time.Second
)

// WarmTarget is the provider surface the warmer needs: locally hosted
// backends that can pull a model and keep it loaded.
type WarmTarget interface {
	Warm(ctx context.Context, model string, keepAlive time.Duration) error
	Pull(ctx context.Context, model string) error
}

// Warmer keeps warm-eligible local models loaded. Candidates with a
// keep_alive duration get a periodic no-op generate; candidates tagged
// with a pool are pulled and warmed once on startup. Failures are logged
// and ignored.
type Warmer struct {
	target     WarmTarget
	candidates []config.ModelCandidate
	logger     *observability.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWarmer selects the warm-eligible candidates served by target's
// provider tag.
func NewWarmer(target WarmTarget, providerTag string, candidates []config.ModelCandidate, logger *observability.Logger) *Warmer {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	eligible := make([]config.ModelCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Provider == providerTag && (c.KeepAlive > 0 || c.Pool != "") {
			eligible = append(eligible, c)
		}
	}
	return &Warmer{target: target, candidates: eligible, logger: logger}
}

// Start launches the preloader and the per-model warm loops. Idempotent
// start is not supported; call once.
func (w *Warmer) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.preload(ctx)
	}()

	for _, candidate := range w.candidates {
		if candidate.KeepAlive <= 0 {
			continue
		}
		candidate := candidate
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.warmLoop(ctx, candidate)
		}()
	}
}

// Stop cancels all loops and waits up to the join timeout.
func (w *Warmer) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(warmerJoinTimeout):
	}
}

// preload pulls and warms the pool-tagged models once.
func (w *Warmer) preload(ctx context.Context) {
	for _, candidate := range w.candidates {
		if candidate.Pool == "" {
			continue
		}
		if err := w.target.Pull(ctx, candidate.Model); err != nil {
			w.logger.Warn(ctx, "model preload pull failed",
				"model", candidate.Model, "pool", candidate.Pool, "error", err)
			continue
		}
		keepAlive := candidate.KeepAlive
		if keepAlive <= 0 {
			keepAlive = warmMinInterval
		}
		if err := w.target.Warm(ctx, candidate.Model, keepAlive); err != nil {
			w.logger.Warn(ctx, "model preload warm failed",
				"model", candidate.Model, "error", err)
		}
	}
}

func (w *Warmer) warmLoop(ctx context.Context, candidate config.ModelCandidate) {
	interval := time.Duration(float64(candidate.KeepAlive) * warmSafetyFactor)
	if interval < warmMinInterval {
		interval = warmMinInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.target.Warm(ctx, candidate.Model, candidate.KeepAlive); err != nil {
				w.logger.Warn(ctx, "model warm-keeping failed",
					"model", candidate.Model, "error", err)
			}
		}
	}
}
