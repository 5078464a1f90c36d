package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JanDamek/jervis-sub011/internal/config"
	"github.com/JanDamek/jervis-sub011/internal/runner"
	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// runServe starts the long-running service and blocks until a signal.
func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close(ctx)

	if err := seedConnections(ctx, app.store, cfg.Ingest); err != nil {
		return fmt.Errorf("seed connections: %w", err)
	}

	if cfg.Prompts.Watch && cfg.Prompts.Dir != "" {
		go func() {
			if err := app.prompts.Watch(ctx, cfg.Prompts.Dir, app.logger); err != nil {
				app.logger.Warn(ctx, "prompt watcher stopped", "error", err)
			}
		}()
	}

	if app.warmer != nil {
		app.warmer.Start(ctx)
		defer app.warmer.Stop()
	}

	if cfg.Ingest.Enabled {
		if err := app.supervisor.Start(ctx); err != nil {
			return fmt.Errorf("ingestion: %w", err)
		}
		defer app.supervisor.Stop()
	}

	server := &http.Server{Addr: cfg.Server.Addr, Handler: serveMux()}
	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "http server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Warn(ctx, "http shutdown failed", "error", err)
	}
	app.logger.Info(ctx, "shutdown complete")
	return nil
}

func serveMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

type askParams struct {
	ClientID  string
	ProjectID string
	Quick     bool
	Text      string
}

// runAsk submits one request, waits for the final answer, and prints it.
func runAsk(ctx context.Context, configPath string, params askParams) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close(ctx)

	ch, cancel := app.bus.Subscribe()
	defer cancel()

	tc, err := app.service.Submit(ctx, runner.Request{
		ClientID:  params.ClientID,
		ProjectID: params.ProjectID,
		Quick:     params.Quick,
		Text:      params.Text,
	})
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-ch:
			if !ok {
				return fmt.Errorf("event stream closed before the final answer")
			}
			if event.ContextID != tc.ID {
				continue
			}
			switch event.Type {
			case models.EventStepCompleted:
				if event.Step != nil {
					fmt.Fprintf(os.Stderr, "step %d %s [%s]\n",
						event.Step.Order, event.Step.ToolName, event.Step.Status)
				}
			case models.EventFinalAnswer:
				fmt.Println(event.Answer)
				if event.NeedsInput {
					fmt.Fprintln(os.Stderr, "(more input needed to continue)")
				}
				return nil
			}
		}
	}
}
