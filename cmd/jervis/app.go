package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/JanDamek/jervis-sub011/internal/config"
	"github.com/JanDamek/jervis-sub011/internal/embeddings"
	embollama "github.com/JanDamek/jervis-sub011/internal/embeddings/ollama"
	embopenai "github.com/JanDamek/jervis-sub011/internal/embeddings/openai"
	"github.com/JanDamek/jervis-sub011/internal/events"
	"github.com/JanDamek/jervis-sub011/internal/executor"
	"github.com/JanDamek/jervis-sub011/internal/gateway"
	"github.com/JanDamek/jervis-sub011/internal/gateway/providers"
	"github.com/JanDamek/jervis-sub011/internal/ingest"
	"github.com/JanDamek/jervis-sub011/internal/knowledge"
	"github.com/JanDamek/jervis-sub011/internal/observability"
	"github.com/JanDamek/jervis-sub011/internal/planner"
	"github.com/JanDamek/jervis-sub011/internal/prompts"
	"github.com/JanDamek/jervis-sub011/internal/retrieval"
	"github.com/JanDamek/jervis-sub011/internal/runner"
	"github.com/JanDamek/jervis-sub011/internal/tools"
	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// app holds the wired service graph.
type app struct {
	cfg     *config.Config
	logger  *observability.Logger
	metrics *observability.Metrics

	prompts    *prompts.Store
	gateway    *gateway.Gateway
	warmer     *gateway.Warmer
	store      knowledge.DocumentStore
	vectors    knowledge.VectorStore
	retrieval  *retrieval.Service
	bus        *events.Bus
	service    *runner.Service
	supervisor *ingest.Supervisor

	shutdownTracer func(context.Context) error
	closeStore     func() error
}

// buildApp wires every component from the loaded configuration.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	metrics := observability.NewMetrics(nil)

	tracer, shutdownTracer, err := observability.NewTracer(ctx, observability.TraceConfig{
		ServiceName:  "jervis",
		Endpoint:     cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Insecure:     cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	promptStore, err := prompts.NewStore()
	if err != nil {
		return nil, fmt.Errorf("prompts: %w", err)
	}
	if cfg.Prompts.Dir != "" {
		if err := promptStore.LoadDir(cfg.Prompts.Dir); err != nil {
			return nil, fmt.Errorf("prompts dir %s: %w", cfg.Prompts.Dir, err)
		}
	}

	providerImpls, err := buildProviders(ctx, cfg.Models)
	if err != nil {
		return nil, err
	}
	gw := gateway.New(providerImpls, cfg.Models, promptStore, logger, metrics, tracer)
	registerEmbedders(gw, cfg.Models)

	var warmer *gateway.Warmer
	if target, ok := providerImpls["ollama"].(gateway.WarmTarget); ok {
		warmer = gateway.NewWarmer(target, "ollama", cfg.Models, logger)
	}

	store, closeStore, err := buildDocumentStore(cfg.Knowledge)
	if err != nil {
		return nil, err
	}
	vectors, err := knowledge.NewChromemStore(cfg.Knowledge.VectorDir)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}

	retrievalSvc := retrieval.NewService(gw, vectors, logger)

	registry, err := tools.NewRegistry(
		&tools.ListFilesTool{Root: cfg.Workspace},
		&tools.ReadFileTool{Root: cfg.Workspace},
		&tools.KnowledgeSearchTool{Searcher: retrievalSvc},
		&tools.LLMAnswerTool{Gateway: gw},
		&tools.AskUserTool{},
		&tools.StopTool{},
	)
	if err != nil {
		return nil, fmt.Errorf("tool registry: %w", err)
	}

	bus := events.NewBus()
	plannerSvc := planner.New(gw, registry, logger)
	executorSvc := executor.New(registry, bus, logger, metrics)
	run := runner.New(plannerSvc, executorSvc, gw, discoverer{retrievalSvc}, bus, logger)
	service := runner.NewService(run, plannerSvc, gw, discoverer{retrievalSvc}, store, logger)

	supervisor := ingest.NewSupervisor(store, vectors, gw,
		sourceFactories(cfg.Ingest),
		ingest.Options{StartupDelay: cfg.Ingest.StartupDelay, SweepSchedule: cfg.Ingest.SweepSchedule},
		logger, metrics)

	return &app{
		cfg:            cfg,
		logger:         logger,
		metrics:        metrics,
		prompts:        promptStore,
		gateway:        gw,
		warmer:         warmer,
		store:          store,
		vectors:        vectors,
		retrieval:      retrievalSvc,
		bus:            bus,
		service:        service,
		supervisor:     supervisor,
		shutdownTracer: shutdownTracer,
		closeStore:     closeStore,
	}, nil
}

// close releases resources in reverse dependency order.
func (a *app) close(ctx context.Context) {
	a.bus.Close()
	if a.closeStore != nil {
		if err := a.closeStore(); err != nil {
			a.logger.Warn(ctx, "closing document store failed", "error", err)
		}
	}
	if a.shutdownTracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownTracer(shutdownCtx); err != nil {
			a.logger.Warn(ctx, "tracer shutdown failed", "error", err)
		}
	}
}

// buildProviders constructs one provider implementation per distinct
// provider tag in the candidate list.
func buildProviders(ctx context.Context, candidates []config.ModelCandidate) (map[string]providers.Provider, error) {
	impls := make(map[string]providers.Provider)
	for _, candidate := range candidates {
		if _, done := impls[candidate.Provider]; done {
			continue
		}
		apiKey := ""
		if candidate.APIKeyEnv != "" {
			apiKey = os.Getenv(candidate.APIKeyEnv)
		}
		timeout := candidate.Timeout()

		switch candidate.Provider {
		case "openai":
			impls["openai"] = providers.NewOpenAIProvider(providers.OpenAIConfig{
				APIKey: apiKey, BaseURL: candidate.BaseURL, Timeout: timeout,
			})
		case "anthropic":
			impls["anthropic"] = providers.NewAnthropicProvider(providers.AnthropicConfig{
				APIKey: apiKey, BaseURL: candidate.BaseURL,
			})
		case "google":
			p, err := providers.NewGoogleProvider(ctx, providers.GoogleConfig{APIKey: apiKey})
			if err != nil {
				return nil, fmt.Errorf("google provider: %w", err)
			}
			impls["google"] = p
		case "ollama":
			impls["ollama"] = providers.NewOllamaProvider(providers.OllamaConfig{
				BaseURL: candidate.BaseURL, Timeout: timeout,
			})
		default:
			return nil, fmt.Errorf("unknown provider tag %q", candidate.Provider)
		}
	}
	return impls, nil
}

// registerEmbedders attaches an embedding backend for every embedding
// candidate's provider tag.
func registerEmbedders(gw *gateway.Gateway, candidates []config.ModelCandidate) {
	for _, candidate := range candidates {
		if candidate.Usage != config.UsageEmbedding {
			continue
		}
		var provider embeddings.Provider
		switch candidate.Provider {
		case "openai":
			p, err := embopenai.New(embopenai.Config{
				APIKey:  os.Getenv(candidate.APIKeyEnv),
				BaseURL: candidate.BaseURL,
				Model:   candidate.Model,
			})
			if err != nil {
				continue
			}
			provider = p
		case "ollama":
			provider = embollama.New(embollama.Config{
				BaseURL: candidate.BaseURL,
				Model:   candidate.Model,
				Timeout: candidate.Timeout(),
			})
		default:
			continue
		}
		gw.RegisterEmbedder(candidate.Provider, provider)
	}
}

func buildDocumentStore(cfg config.KnowledgeConfig) (knowledge.DocumentStore, func() error, error) {
	if cfg.SQLitePath == "" {
		return knowledge.NewMemoryStore(), nil, nil
	}
	store, err := knowledge.NewSQLiteStore(cfg.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("document store: %w", err)
	}
	return store, store.Close, nil
}

// seedConnections materializes configured connections in the store so the
// ingestion engine can pick them up.
func seedConnections(ctx context.Context, store knowledge.DocumentStore, cfg config.IngestConfig) error {
	for _, conn := range cfg.Connections {
		_, err := store.GetConnection(ctx, conn.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, knowledge.ErrNotFound) {
			return err
		}
		if err := store.SaveConnection(ctx, &models.Connection{
			ID:         conn.ID,
			ClientID:   conn.ClientID,
			ProjectID:  conn.ProjectID,
			Kind:       models.SourceKind(conn.Kind),
			BaseURL:    conn.BaseURL,
			Scopes:     conn.Scopes,
			AuthStatus: models.AuthStatusValid,
		}); err != nil {
			return err
		}
	}
	return nil
}

// sourceFactories binds each source kind to its HTTP implementation, with
// tokens resolved from the per-connection environment variables.
func sourceFactories(cfg config.IngestConfig) map[models.SourceKind]ingest.SourceFactory {
	tokens := make(map[string]string, len(cfg.Connections))
	for _, conn := range cfg.Connections {
		if conn.TokenEnv != "" {
			tokens[conn.ID] = os.Getenv(conn.TokenEnv)
		}
	}
	return map[models.SourceKind]ingest.SourceFactory{
		models.SourceKindWiki: func(conn *models.Connection) (ingest.Source, error) {
			return ingest.NewWikiSource(conn.BaseURL, tokens[conn.ID]), nil
		},
		models.SourceKindTracker: func(conn *models.Connection) (ingest.Source, error) {
			return ingest.NewTrackerSource(conn.BaseURL, tokens[conn.ID]), nil
		},
		models.SourceKindEmail: func(conn *models.Connection) (ingest.Source, error) {
			return ingest.NewEmailSource(conn.BaseURL, tokens[conn.ID]), nil
		},
	}
}

// discoverer adapts the retrieval service to the runner's interface.
type discoverer struct {
	svc *retrieval.Service
}

func (d discoverer) Discover(ctx context.Context, query, clientID, projectID string) string {
	return d.svc.Discover(ctx, retrieval.Query{Text: query, ClientID: clientID, ProjectID: projectID})
}
