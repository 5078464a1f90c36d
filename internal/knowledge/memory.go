package knowledge

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// MemoryStore is an in-memory DocumentStore for tests and single-process
// deployments without durability requirements.
type MemoryStore struct {
	mu          sync.RWMutex
	contexts    map[string]*models.TaskContext
	plans       map[string]*models.Plan
	connections map[string]*models.Connection
	items       map[string]*models.IngestItem
}

var _ DocumentStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contexts:    make(map[string]*models.TaskContext),
		plans:       make(map[string]*models.Plan),
		connections: make(map[string]*models.Connection),
		items:       make(map[string]*models.IngestItem),
	}
}

// SaveTaskContext stores a copy of tc.
func (s *MemoryStore) SaveTaskContext(_ context.Context, tc *models.TaskContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *tc
	s.contexts[tc.ID] = &copied
	return nil
}

// GetTaskContext returns the stored context or ErrNotFound.
func (s *MemoryStore) GetTaskContext(_ context.Context, id string) (*models.TaskContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tc, ok := s.contexts[id]
	if !ok {
		return nil, fmt.Errorf("task context %s: %w", id, ErrNotFound)
	}
	copied := *tc
	return &copied, nil
}

// SavePlan stores a copy of plan.
func (s *MemoryStore) SavePlan(_ context.Context, plan *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *plan
	s.plans[plan.ID] = &copied
	return nil
}

// GetPlan returns the stored plan or ErrNotFound.
func (s *MemoryStore) GetPlan(_ context.Context, id string) (*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	copied := *plan
	return &copied, nil
}

// PlansForContext returns the context's plans in creation order.
func (s *MemoryStore) PlansForContext(_ context.Context, contextID string) ([]*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var plans []*models.Plan
	for _, plan := range s.plans {
		if plan.ContextID == contextID {
			copied := *plan
			plans = append(plans, &copied)
		}
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].CreatedAt.Before(plans[j].CreatedAt) })
	return plans, nil
}

// SaveConnection stores a copy of conn.
func (s *MemoryStore) SaveConnection(_ context.Context, conn *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *conn
	s.connections[conn.ID] = &copied
	return nil
}

// GetConnection returns the stored connection or ErrNotFound.
func (s *MemoryStore) GetConnection(_ context.Context, id string) (*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.connections[id]
	if !ok {
		return nil, fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	copied := *conn
	return &copied, nil
}

// ListConnections returns all connections sorted by id.
func (s *MemoryStore) ListConnections(_ context.Context) ([]*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conns := make([]*models.Connection, 0, len(s.connections))
	for _, conn := range s.connections {
		copied := *conn
		conns = append(conns, &copied)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].ID < conns[j].ID })
	return conns, nil
}

// SaveItem stores a copy of item, stamping timestamps.
func (s *MemoryStore) SaveItem(_ context.Context, item *models.IngestItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	copied := *item
	if existing, ok := s.items[item.ID]; ok {
		copied.CreatedAt = existing.CreatedAt
	} else if copied.CreatedAt.IsZero() {
		copied.CreatedAt = now
	}
	copied.UpdatedAt = now
	s.items[item.ID] = &copied
	item.CreatedAt = copied.CreatedAt
	item.UpdatedAt = copied.UpdatedAt
	return nil
}

// GetItem returns the item tracked for (connection, external id).
func (s *MemoryStore) GetItem(_ context.Context, connectionID, externalID string) (*models.IngestItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.ConnectionID == connectionID && item.ExternalID == externalID {
			copied := *item
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("item %s/%s: %w", connectionID, externalID, ErrNotFound)
}

// ItemsByState returns matching items oldest first.
func (s *MemoryStore) ItemsByState(_ context.Context, connectionID string, state models.ItemState, limit int) ([]*models.IngestItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.IngestItem
	for _, item := range s.items {
		if item.ConnectionID == connectionID && item.State == state {
			copied := *item
			matched = append(matched, &copied)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// ListItems returns every item for the connection.
func (s *MemoryStore) ListItems(_ context.Context, connectionID string) ([]*models.IngestItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.IngestItem
	for _, item := range s.items {
		if item.ConnectionID == connectionID {
			copied := *item
			matched = append(matched, &copied)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	return matched, nil
}

// TransitionItem performs the compare-and-set state change.
func (s *MemoryStore) TransitionItem(_ context.Context, id string, expected, next models.ItemState) (*models.IngestItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if item.State != expected {
		return nil, fmt.Errorf("item %s is %s, expected %s: %w", id, item.State, expected, ErrConflict)
	}
	if !expected.CanTransition(next) {
		return nil, fmt.Errorf("item %s: illegal transition %s -> %s", id, expected, next)
	}
	item.State = next
	item.UpdatedAt = time.Now()
	copied := *item
	return &copied, nil
}
