// Package gateway is the single entry point to language models. It selects
// among ranked candidates per usage tag, enforces per-provider concurrency
// caps, streams tokens, and parses responses against a declared shape.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/JanDamek/jervis-sub011/internal/config"
	"github.com/JanDamek/jervis-sub011/internal/embeddings"
	"github.com/JanDamek/jervis-sub011/internal/gateway/providers"
	"github.com/JanDamek/jervis-sub011/internal/observability"
	"github.com/JanDamek/jervis-sub011/internal/prompts"
	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// ErrNoCandidates means no configured candidate serves the requested usage
// tag after token filtering. This is a configuration error, not a transient
// one.
var ErrNoCandidates = errors.New("no model candidate available for usage tag")

// Options tune one gateway call.
type Options struct {
	// Quick prefers low-latency candidates; the full list is reused when no
	// quick candidate fits.
	Quick bool

	// OutputLanguage appends a language hint to the system prompt.
	OutputLanguage string
}

// Result carries the full response text of a completed call together with
// the serving candidate and token usage.
type Result struct {
	Text     string
	Provider string
	Model    string
	Usage    *models.TokenUsage
}

// Gateway routes prompt-typed calls to model providers.
type Gateway struct {
	providers map[string]providers.Provider
	embedders map[string]embeddings.Provider
	pool      *candidatePool
	limiter   *providerLimiter
	prompts   *prompts.Store
	logger    *observability.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
}

// New builds a gateway over the given provider implementations, keyed by
// provider tag. Candidates referencing an unregistered provider fail at
// call time, not at startup, so partial provider sets work in tests.
func New(
	providerImpls map[string]providers.Provider,
	candidates []config.ModelCandidate,
	promptStore *prompts.Store,
	logger *observability.Logger,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
) *Gateway {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Gateway{
		providers: providerImpls,
		pool:      newCandidatePool(candidates),
		limiter:   newProviderLimiter(candidates, metrics),
		prompts:   promptStore,
		logger:    logger,
		metrics:   metrics,
		tracer:    tracer,
	}
}

// Complete runs the prompt type to completion and returns the full text.
func (g *Gateway) Complete(ctx context.Context, promptType string, vars map[string]string, opts Options) (*Result, error) {
	return g.complete(ctx, promptType, vars, opts, "")
}

// CompleteInto runs the prompt type with a schema directive reflected from
// out and decodes the response into it. out must be a non-nil pointer.
func (g *Gateway) CompleteInto(ctx context.Context, promptType string, vars map[string]string, opts Options, out any) (*Result, error) {
	directive, err := SchemaDirective(out)
	if err != nil {
		return nil, err
	}
	result, err := g.complete(ctx, promptType, vars, opts, directive)
	if err != nil {
		return nil, err
	}
	if err := ParseInto(result.Text, out); err != nil {
		return result, err
	}
	return result, nil
}

// Stream opens a streaming call and returns the chunk channel. Candidate
// fallback applies while opening the stream; once chunks flow, failures
// surface on the channel.
func (g *Gateway) Stream(ctx context.Context, promptType string, vars map[string]string, opts Options) (<-chan *models.StreamChunk, error) {
	call, err := g.prepare(promptType, vars, opts, "")
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, candidate := range call.candidates {
		chunks, release, err := g.open(ctx, candidate, call)
		if err != nil {
			lastErr = err
			g.recordFailure(ctx, candidate, err)
			continue
		}
		out := make(chan *models.StreamChunk)
		go func() {
			defer close(out)
			defer release()
			for chunk := range chunks {
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	}
	return nil, g.exhausted(call, lastErr)
}

// preparedCall is one assembled request before candidate selection.
type preparedCall struct {
	promptType string
	system     string
	prompt     string
	params     prompts.ModelParams
	candidates []config.ModelCandidate
}

func (g *Gateway) prepare(promptType string, vars map[string]string, opts Options, schemaDirective string) (*preparedCall, error) {
	tmpl, err := g.prompts.Get(promptType)
	if err != nil {
		return nil, err
	}

	system := prompts.Interpolate(tmpl.SystemPrompt, vars)
	prompt := prompts.Interpolate(tmpl.UserPrompt, vars)
	if schemaDirective != "" {
		system += schemaDirective
	}
	if lang := strings.TrimSpace(opts.OutputLanguage); lang != "" {
		system += fmt.Sprintf("\n\nAnswer in language: %s.", lang)
	}

	estimated := EstimateTokens(system + prompt)
	candidates := g.pool.selectCandidates(tmpl.ModelParams.ModelType, opts.Quick, estimated)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %q (estimated %d tokens)", ErrNoCandidates, tmpl.ModelParams.ModelType, estimated)
	}
	return &preparedCall{
		promptType: promptType,
		system:     system,
		prompt:     prompt,
		params:     tmpl.ModelParams,
		candidates: candidates,
	}, nil
}

func (g *Gateway) complete(ctx context.Context, promptType string, vars map[string]string, opts Options, schemaDirective string) (*Result, error) {
	call, err := g.prepare(promptType, vars, opts, schemaDirective)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, candidate := range call.candidates {
		result, err := g.tryCandidate(ctx, candidate, call)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			lastErr = err
			g.recordFailure(ctx, candidate, err)
			continue
		}
		return result, nil
	}
	return nil, g.exhausted(call, lastErr)
}

func (g *Gateway) tryCandidate(ctx context.Context, candidate config.ModelCandidate, call *preparedCall) (result *Result, err error) {
	if g.tracer != nil {
		var span trace.Span
		ctx, span = g.tracer.Start(ctx, "gateway.call",
			attribute.String("provider", candidate.Provider),
			attribute.String("model", candidate.Model),
			attribute.String("prompt_type", call.promptType),
		)
		defer func() { observability.End(span, err) }()
	}

	chunks, release, err := g.open(ctx, candidate, call)
	if err != nil {
		return nil, err
	}
	defer release()

	var text strings.Builder
	var usage *models.TokenUsage
	start := time.Now()
	for chunk := range chunks {
		if chunk.Error != nil {
			g.observe(candidate, "error", start, nil)
			return nil, chunk.Error
		}
		text.WriteString(chunk.Text)
		if chunk.Done {
			usage = chunk.Usage
		}
	}
	if text.Len() == 0 {
		g.observe(candidate, "error", start, nil)
		return nil, providers.NewError(candidate.Provider, candidate.Model, errors.New("empty response body"))
	}
	g.observe(candidate, "success", start, usage)
	g.logger.Debug(ctx, "gateway call complete",
		"provider", candidate.Provider,
		"model", candidate.Model,
		"prompt_type", call.promptType,
		"duration", time.Since(start),
	)
	return &Result{
		Text:     text.String(),
		Provider: candidate.Provider,
		Model:    candidate.Model,
		Usage:    usage,
	}, nil
}

// open acquires the provider permit and starts the stream. The returned
// release func must be called exactly when the stream is finished with.
func (g *Gateway) open(ctx context.Context, candidate config.ModelCandidate, call *preparedCall) (<-chan *models.StreamChunk, func(), error) {
	provider, ok := g.providers[candidate.Provider]
	if !ok {
		return nil, nil, providers.NewError(candidate.Provider, candidate.Model,
			fmt.Errorf("provider %q is not registered", candidate.Provider))
	}

	release, err := g.limiter.Acquire(ctx, candidate.Provider)
	if err != nil {
		return nil, nil, err
	}

	callCtx := ctx
	cancel := func() {}
	if timeout := candidate.Timeout(); timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	chunks, err := provider.Stream(callCtx, &providers.Request{
		Model:       candidate.Model,
		System:      call.system,
		Prompt:      call.prompt,
		MaxTokens:   candidate.MaxOutputTokens,
		Temperature: call.params.CreativityLevel,
		JSONMode:    call.params.JSONMode,
	})
	if err != nil {
		cancel()
		release()
		return nil, nil, err
	}
	return chunks, func() {
		cancel()
		release()
	}, nil
}

func (g *Gateway) observe(candidate config.ModelCandidate, status string, start time.Time, usage *models.TokenUsage) {
	if g.metrics == nil {
		return
	}
	g.metrics.GatewayRequests.WithLabelValues(candidate.Provider, candidate.Model, status).Inc()
	g.metrics.GatewayDuration.WithLabelValues(candidate.Provider, candidate.Model).Observe(time.Since(start).Seconds())
	if usage != nil {
		g.metrics.GatewayTokens.WithLabelValues(candidate.Provider, candidate.Model, "prompt").Add(float64(usage.PromptTokens))
		g.metrics.GatewayTokens.WithLabelValues(candidate.Provider, candidate.Model, "completion").Add(float64(usage.CompletionTokens))
	}
}

func (g *Gateway) recordFailure(ctx context.Context, candidate config.ModelCandidate, err error) {
	g.logger.Warn(ctx, "model candidate failed, trying next",
		"provider", candidate.Provider,
		"model", candidate.Model,
		"error", err,
	)
}

func (g *Gateway) exhausted(call *preparedCall, lastErr error) error {
	if lastErr == nil {
		return fmt.Errorf("%w: %q", ErrNoCandidates, call.params.ModelType)
	}
	return fmt.Errorf("all %d candidates failed for prompt type %q: %w", len(call.candidates), call.promptType, lastErr)
}
