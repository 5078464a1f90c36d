package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JanDamek/jervis-sub011/internal/knowledge"
	"github.com/JanDamek/jervis-sub011/internal/observability"
	"github.com/JanDamek/jervis-sub011/pkg/models"
)

const (
	defaultRestartDelay = time.Minute
	supervisorJoin      = 5 * time.Second
)

// Options tunes the supervisor.
type Options struct {
	// StartupDelay postpones the first poll cycle of every poller.
	StartupDelay time.Duration

	// SweepSchedule is the cron expression for the REMOVED sweep.
	SweepSchedule string
}

// Supervisor owns the ingestion goroutines: one poller per source kind,
// one indexer per VALID connection, and the scheduled sweep. Crashed loops
// restart after a delay; Stop cancels everything with a bounded join.
type Supervisor struct {
	store     knowledge.DocumentStore
	vectors   knowledge.VectorStore
	embedder  Embedder
	factories map[models.SourceKind]SourceFactory
	logger    *observability.Logger
	metrics   *observability.Metrics
	opts      Options

	// RestartDelay is how long a crashed loop waits before restarting;
	// tests shorten it.
	RestartDelay time.Duration

	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSupervisor creates a supervisor over the configured source factories.
func NewSupervisor(store knowledge.DocumentStore, vectors knowledge.VectorStore, embedder Embedder, factories map[models.SourceKind]SourceFactory, opts Options, logger *observability.Logger, metrics *observability.Metrics) *Supervisor {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Supervisor{
		store:        store,
		vectors:      vectors,
		embedder:     embedder,
		factories:    factories,
		logger:       logger,
		metrics:      metrics,
		opts:         opts,
		RestartDelay: defaultRestartDelay,
	}
}

// Start launches pollers, indexers, and the sweep schedule for the
// connections currently in the store.
func (s *Supervisor) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	connections, err := s.store.ListConnections(ctx)
	if err != nil {
		return fmt.Errorf("list connections: %w", err)
	}

	kinds := make(map[models.SourceKind]bool)
	for _, conn := range connections {
		if conn.AuthStatus != models.AuthStatusValid {
			continue
		}
		factory, ok := s.factories[conn.Kind]
		if !ok {
			s.logger.Warn(ctx, "no source factory for connection",
				"connection_id", conn.ID, "kind", conn.Kind)
			continue
		}
		kinds[conn.Kind] = true

		source, err := factory(conn)
		if err != nil {
			s.logger.Warn(ctx, "building source failed", "connection_id", conn.ID, "error", err)
			continue
		}
		indexer := NewIndexer(conn, source, s.store, s.vectors, s.embedder, s.logger, s.metrics)
		s.supervise(ctx, fmt.Sprintf("indexer/%s/%s", conn.Kind, conn.ID), indexer.Run)
	}

	for kind := range kinds {
		poller := NewPoller(kind, s.store, s.factories[kind], s.logger, s.metrics)
		if s.opts.StartupDelay > 0 {
			poller.StartupDelay = s.opts.StartupDelay
		}
		s.supervise(ctx, fmt.Sprintf("poller/%s", kind), poller.Run)
	}

	if s.opts.SweepSchedule != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(s.opts.SweepSchedule, func() { s.sweepAll(ctx) }); err != nil {
			return fmt.Errorf("sweep schedule %q: %w", s.opts.SweepSchedule, err)
		}
		s.cron.Start()
	}

	s.logger.Info(ctx, "ingestion supervisor started",
		"connections", len(connections), "kinds", len(kinds))
	return nil
}

// Stop cancels every loop and waits up to 5s for them to exit.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		s.cron.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(supervisorJoin):
		s.logger.Warn(context.Background(), "ingestion loops did not stop in time")
	}
}

// supervise keeps one loop alive: a crash is logged and the loop restarts
// after RestartDelay.
func (s *Supervisor) supervise(ctx context.Context, name string, run func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			err := s.runSafely(ctx, name, run)
			if ctx.Err() != nil {
				return
			}
			s.logger.Error(ctx, "ingestion loop crashed, restarting",
				"loop", name, "error", err, "restart_in", s.RestartDelay)
			if sleepCtx(ctx, s.RestartDelay) != nil {
				return
			}
		}
	}()
}

func (s *Supervisor) runSafely(ctx context.Context, name string, run func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loop %s panicked: %v", name, r)
		}
	}()
	return run(ctx)
}

func (s *Supervisor) sweepAll(ctx context.Context) {
	connections, err := s.store.ListConnections(ctx)
	if err != nil {
		s.logger.Warn(ctx, "sweep could not list connections", "error", err)
		return
	}
	for _, conn := range connections {
		if conn.AuthStatus != models.AuthStatusValid {
			continue
		}
		if err := s.Sweep(ctx, conn); err != nil {
			s.logger.Warn(ctx, "sweep failed", "connection_id", conn.ID, "error", err)
		}
	}
}

func (s *Supervisor) recordTransition(from, to models.ItemState) {
	if s.metrics != nil {
		s.metrics.ItemTransitions.WithLabelValues(string(from), string(to)).Inc()
	}
}
