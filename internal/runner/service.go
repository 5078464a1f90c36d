package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JanDamek/jervis-sub011/internal/gateway"
	"github.com/JanDamek/jervis-sub011/internal/knowledge"
	"github.com/JanDamek/jervis-sub011/internal/observability"
	"github.com/JanDamek/jervis-sub011/internal/planner"
	"github.com/JanDamek/jervis-sub011/internal/prompts"
	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// Request is an incoming user request.
type Request struct {
	ClientID  string
	ProjectID string
	Text      string
	Quick     bool
}

// qualification is the qualifier model output: inferred language, the
// English rendering of the request, and the answer checklist.
type qualification struct {
	LanguageCode      string   `json:"languageCode"`
	EnglishText       string   `json:"englishText"`
	QuestionChecklist []string `json:"questionChecklist"`
}

// Service is the request entry point: it qualifies the text, builds the
// initial plan, and drives the runner in the background.
type Service struct {
	runner     *Runner
	planner    *planner.Planner
	gateway    Gateway
	discoverer Discoverer
	store      knowledge.DocumentStore
	logger     *observability.Logger
}

// NewService creates a request service. store may be nil for transient use.
func NewService(r *Runner, p *planner.Planner, gw Gateway, discoverer Discoverer, store knowledge.DocumentStore, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Service{runner: r, planner: p, gateway: gw, discoverer: discoverer, store: store, logger: logger}
}

// Submit qualifies the request, builds the initial plan, and starts the
// run in the background. The returned context is live while the run
// mutates it; callers observe progress through the event bus.
func (s *Service) Submit(ctx context.Context, req Request) (*models.TaskContext, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("empty request text")
	}

	tc, checklist, err := s.qualify(ctx, req)
	if err != nil {
		return nil, err
	}

	plan := planner.NewPlan(tc, tc.EnglishText, checklist, "")
	discovery := ""
	if s.discoverer != nil {
		discovery = s.discoverer.Discover(ctx, tc.EnglishText, tc.ClientID, tc.ProjectID)
	}
	if err := s.planner.CreatePlan(ctx, tc, plan, discovery); err != nil {
		// The executor fails the empty plan; the runner then re-plans or
		// reports the failure as the final answer.
		s.logger.Warn(ctx, "initial planning failed", "context_id", tc.ID, "error", err)
	}
	tc.Plans = append(tc.Plans, plan)
	s.persist(ctx, tc)

	// The run outlives the submitting call.
	runCtx := context.WithoutCancel(ctx)
	go s.run(runCtx, tc)
	return tc, nil
}

// qualify runs the qualifier prompt and materializes the task context.
// The checklist belongs to the first plan, so it is returned separately.
func (s *Service) qualify(ctx context.Context, req Request) (*models.TaskContext, []string, error) {
	var qual qualification
	vars := map[string]string{"originalText": req.Text}
	if _, err := s.gateway.CompleteInto(ctx, prompts.TypeQualifier, vars, gateway.Options{Quick: true}, &qual); err != nil {
		return nil, nil, fmt.Errorf("qualify request: %w", err)
	}
	if qual.EnglishText == "" {
		qual.EnglishText = req.Text
	}

	now := time.Now()
	tc := &models.TaskContext{
		ID:           uuid.NewString(),
		ClientID:     req.ClientID,
		ProjectID:    req.ProjectID,
		OriginalText: req.Text,
		LanguageCode: qual.LanguageCode,
		EnglishText:  qual.EnglishText,
		Quick:        req.Quick,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return tc, qual.QuestionChecklist, nil
}

func (s *Service) run(ctx context.Context, tc *models.TaskContext) {
	complete, err := s.runner.Run(ctx, tc)
	if err != nil {
		s.logger.Error(ctx, "run aborted", "context_id", tc.ID, "error", err)
	} else {
		s.logger.Info(ctx, "run finished", "context_id", tc.ID, "complete", complete)
	}
	tc.UpdatedAt = time.Now()
	s.persist(ctx, tc)
}

func (s *Service) persist(ctx context.Context, tc *models.TaskContext) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveTaskContext(ctx, tc); err != nil {
		s.logger.Warn(ctx, "persisting task context failed", "context_id", tc.ID, "error", err)
	}
	for _, plan := range tc.Plans {
		if err := s.store.SavePlan(ctx, plan); err != nil {
			s.logger.Warn(ctx, "persisting plan failed", "plan_id", plan.ID, "error", err)
		}
	}
}
