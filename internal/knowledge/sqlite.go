package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// SQLiteStore is a durable DocumentStore backed by an embedded sqlite
// database. Entities are stored as JSON payloads next to the columns the
// queries filter on; the CAS transition is a conditional UPDATE.
type SQLiteStore struct {
	db *sql.DB
}

var _ DocumentStore = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS task_contexts (
	id      TEXT PRIMARY KEY,
	payload TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS plans (
	id         TEXT PRIMARY KEY,
	context_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plans_context ON plans(context_id, created_at);
CREATE TABLE IF NOT EXISTS connections (
	id      TEXT PRIMARY KEY,
	payload TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ingest_items (
	id            TEXT PRIMARY KEY,
	connection_id TEXT NOT NULL,
	external_id   TEXT NOT NULL,
	state         TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	payload       TEXT NOT NULL,
	UNIQUE(connection_id, external_id)
);
CREATE INDEX IF NOT EXISTS idx_items_state ON ingest_items(connection_id, state, created_at);
`

// NewSQLiteStore opens (and migrates) the database at path. Use ":memory:"
// for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// The driver is in-process; a single writer avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveTaskContext upserts tc.
func (s *SQLiteStore) SaveTaskContext(ctx context.Context, tc *models.TaskContext) error {
	payload, err := json.Marshal(tc)
	if err != nil {
		return fmt.Errorf("marshal task context: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO task_contexts (id, payload) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`,
		tc.ID, string(payload))
	return err
}

// GetTaskContext loads the context or returns ErrNotFound.
func (s *SQLiteStore) GetTaskContext(ctx context.Context, id string) (*models.TaskContext, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM task_contexts WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task context %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var tc models.TaskContext
	if err := json.Unmarshal([]byte(payload), &tc); err != nil {
		return nil, fmt.Errorf("unmarshal task context %s: %w", id, err)
	}
	return &tc, nil
}

// SavePlan upserts plan.
func (s *SQLiteStore) SavePlan(ctx context.Context, plan *models.Plan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO plans (id, context_id, created_at, payload) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`,
		plan.ID, plan.ContextID, plan.CreatedAt, string(payload))
	return err
}

// GetPlan loads the plan or returns ErrNotFound.
func (s *SQLiteStore) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM plans WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var plan models.Plan
	if err := json.Unmarshal([]byte(payload), &plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan %s: %w", id, err)
	}
	return &plan, nil
}

// PlansForContext loads the context's plans in creation order.
func (s *SQLiteStore) PlansForContext(ctx context.Context, contextID string) ([]*models.Plan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM plans WHERE context_id = ? ORDER BY created_at`, contextID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var plan models.Plan
		if err := json.Unmarshal([]byte(payload), &plan); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
		plans = append(plans, &plan)
	}
	return plans, rows.Err()
}

// SaveConnection upserts conn.
func (s *SQLiteStore) SaveConnection(ctx context.Context, conn *models.Connection) error {
	payload, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("marshal connection: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO connections (id, payload) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`,
		conn.ID, string(payload))
	return err
}

// GetConnection loads the connection or returns ErrNotFound.
func (s *SQLiteStore) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM connections WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var conn models.Connection
	if err := json.Unmarshal([]byte(payload), &conn); err != nil {
		return nil, fmt.Errorf("unmarshal connection %s: %w", id, err)
	}
	return &conn, nil
}

// ListConnections loads every connection ordered by id.
func (s *SQLiteStore) ListConnections(ctx context.Context) ([]*models.Connection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM connections ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []*models.Connection
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var conn models.Connection
		if err := json.Unmarshal([]byte(payload), &conn); err != nil {
			return nil, fmt.Errorf("unmarshal connection: %w", err)
		}
		conns = append(conns, &conn)
	}
	return conns, rows.Err()
}

// SaveItem upserts item, stamping timestamps.
func (s *SQLiteStore) SaveItem(ctx context.Context, item *models.IngestItem) error {
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal ingest item: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingest_items (id, connection_id, external_id, state, created_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(connection_id, external_id) DO UPDATE SET
		   state = excluded.state, payload = excluded.payload`,
		item.ID, item.ConnectionID, item.ExternalID, string(item.State), item.CreatedAt, string(payload))
	return err
}

// GetItem loads the item tracked for (connection, external id).
func (s *SQLiteStore) GetItem(ctx context.Context, connectionID, externalID string) (*models.IngestItem, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM ingest_items WHERE connection_id = ? AND external_id = ?`,
		connectionID, externalID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s/%s: %w", connectionID, externalID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return unmarshalItem(payload)
}

// ItemsByState loads matching items oldest first.
func (s *SQLiteStore) ItemsByState(ctx context.Context, connectionID string, state models.ItemState, limit int) ([]*models.IngestItem, error) {
	query := `SELECT payload FROM ingest_items WHERE connection_id = ? AND state = ? ORDER BY created_at`
	args := []any{connectionID, string(state)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryItems(ctx, query, args...)
}

// ListItems loads every item for the connection.
func (s *SQLiteStore) ListItems(ctx context.Context, connectionID string) ([]*models.IngestItem, error) {
	return s.queryItems(ctx,
		`SELECT payload FROM ingest_items WHERE connection_id = ? ORDER BY created_at`, connectionID)
}

func (s *SQLiteStore) queryItems(ctx context.Context, query string, args ...any) ([]*models.IngestItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.IngestItem
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		item, err := unmarshalItem(payload)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// TransitionItem performs the compare-and-set state change as a
// conditional UPDATE; zero affected rows means the expectation failed.
func (s *SQLiteStore) TransitionItem(ctx context.Context, id string, expected, next models.ItemState) (*models.IngestItem, error) {
	if !expected.CanTransition(next) {
		return nil, fmt.Errorf("item %s: illegal transition %s -> %s", id, expected, next)
	}

	now := time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE ingest_items
		 SET state = ?,
		     payload = json_set(payload, '$.state', ?, '$.updated_at', ?)
		 WHERE id = ? AND state = ?`,
		string(next), string(next), now.Format(time.RFC3339Nano), id, string(expected))
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM ingest_items WHERE id = ?`, id).Scan(&exists); err == nil && exists == 0 {
			return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("item %s: expected %s: %w", id, expected, ErrConflict)
	}

	var payload string
	if err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM ingest_items WHERE id = ?`, id).Scan(&payload); err != nil {
		return nil, err
	}
	return unmarshalItem(payload)
}

func unmarshalItem(payload string) (*models.IngestItem, error) {
	var item models.IngestItem
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		return nil, fmt.Errorf("unmarshal ingest item: %w", err)
	}
	return &item, nil
}
