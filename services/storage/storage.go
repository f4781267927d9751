package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saclot/flowengine/pkg/engine/model"
)

// DB abstracts the database operations used by the storage layer.
// Satisfied by *pgxpool.Pool in production and pgxmock in tests.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// pgStorage implements the Storage interface using PostgreSQL.
type pgStorage struct {
	DB DB
}

// Storage defines the interface for workflow definition access. This
// abstraction keeps the HTTP layer decoupled from persistence, making it
// testable and swappable.
type Storage interface {
	GetWorkflow(ctx context.Context, id uuid.UUID) (*Workflow, error)
	UpsertWorkflow(ctx context.Context, wf *Workflow) error
	DeleteWorkflow(ctx context.Context, id uuid.UUID) error
	PublishWorkflow(ctx context.Context, id uuid.UUID) (*WorkflowSnapshot, error)
	GetActiveSnapshot(ctx context.Context, workflowID uuid.UUID) (*WorkflowSnapshot, error)
}

// NewInstance creates a new PostgreSQL-backed Storage implementation.
func NewInstance(db *pgxpool.Pool) (Storage, error) {
	if db == nil {
		return nil, fmt.Errorf("repository: db connection cannot be nil")
	}
	return &pgStorage{DB: db}, nil
}

// graphDoc is the JSONB shape a workflow's graph column (or a snapshot's
// dag_data column) is stored as.
type graphDoc struct {
	Variables map[string]any `json:"variables"`
	Config    model.Config   `json:"config"`
	Nodes     []model.Node   `json:"nodes"`
	Edges     []model.Edge   `json:"edges"`
}

func marshalGraph(vars map[string]any, cfg model.Config, nodes []model.Node, edges []model.Edge) ([]byte, error) {
	doc := graphDoc{Variables: vars, Config: cfg, Nodes: nodes, Edges: edges}
	if doc.Nodes == nil {
		doc.Nodes = []model.Node{}
	}
	if doc.Edges == nil {
		doc.Edges = []model.Edge{}
	}
	return json.Marshal(doc)
}

func unmarshalGraph(data []byte) (graphDoc, error) {
	var doc graphDoc
	err := json.Unmarshal(data, &doc)
	return doc, err
}

// GetWorkflow retrieves a draft workflow by ID, respecting soft-deletion.
// The graph body (variables, config, nodes, edges) is stored as a single
// JSONB column and unmarshaled in one shot.
func (r *pgStorage) GetWorkflow(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	wf := &Workflow{ID: id}
	var graphJSON []byte

	err := r.DB.QueryRow(timeoutCtx, `
        SELECT name, version, status, active_snapshot_id, graph, created_at, modified_at
        FROM workflows
        WHERE id = $1 AND deleted_at IS NULL`,
		id).Scan(&wf.Name, &wf.Version, &wf.Status, &wf.ActiveSnapshotID, &graphJSON, &wf.CreatedAt, &wf.ModifiedAt)
	if err != nil {
		return nil, err // pgx.ErrNoRows if not found
	}

	doc, err := unmarshalGraph(graphJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow graph: %w", err)
	}
	wf.Variables, wf.Config, wf.Nodes, wf.Edges = doc.Variables, doc.Config, doc.Nodes, doc.Edges

	return wf, nil
}

// UpsertWorkflow saves a workflow's header and full graph body in a single
// READ COMMITTED transaction, clearing deleted_at on re-save. Saving over an
// existing row resets its status to "draft"; a new row is inserted with
// wf.Status, which defaults to "draft" when empty. Publishing is a separate
// operation.
func (r *pgStorage) UpsertWorkflow(ctx context.Context, wf *Workflow) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.DB.BeginTx(timeoutCtx, pgx.TxOptions{
		IsoLevel: pgx.ReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("begin transaction for upsert: %w", err)
	}
	defer tx.Rollback(timeoutCtx)

	now := time.Now()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.ModifiedAt = now
	if wf.Status == "" {
		wf.Status = "draft"
	}

	graphJSON, err := marshalGraph(wf.Variables, wf.Config, wf.Nodes, wf.Edges)
	if err != nil {
		return fmt.Errorf("marshal workflow graph: %w", err)
	}

	_, err = tx.Exec(timeoutCtx, `
        INSERT INTO workflows (id, name, version, status, graph, created_at, modified_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            version = EXCLUDED.version,
            status = 'draft',
            graph = EXCLUDED.graph,
            modified_at = EXCLUDED.modified_at,
            deleted_at = NULL;`,
		wf.ID, wf.Name, wf.Version, wf.Status, graphJSON, wf.CreatedAt, wf.ModifiedAt)
	if err != nil {
		return fmt.Errorf("upsert workflow: %w", err)
	}

	return tx.Commit(timeoutCtx)
}

// DeleteWorkflow soft-deletes a workflow (sets deleted_at and modified_at).
// Returns pgx.ErrNoRows if the workflow does not exist.
func (r *pgStorage) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.DB.BeginTx(timeoutCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction for delete: %w", err)
	}
	defer tx.Rollback(timeoutCtx)

	tag, err := tx.Exec(timeoutCtx, `
        UPDATE workflows
        SET deleted_at = $1, modified_at = $1
        WHERE id = $2 AND deleted_at IS NULL;`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("soft delete workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	return tx.Commit(timeoutCtx)
}

// PublishWorkflow creates an immutable snapshot of the workflow's current DAG
// within a REPEATABLE READ transaction. The snapshot freezes the graph so
// that future execution is decoupled from subsequent draft edits.
func (r *pgStorage) PublishWorkflow(ctx context.Context, id uuid.UUID) (*WorkflowSnapshot, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.DB.BeginTx(timeoutCtx, pgx.TxOptions{
		IsoLevel: pgx.RepeatableRead,
	})
	if err != nil {
		return nil, fmt.Errorf("begin transaction for publish: %w", err)
	}
	defer tx.Rollback(timeoutCtx)

	// 1. Read the current draft graph.
	var graphJSON []byte
	err = tx.QueryRow(timeoutCtx, `
        SELECT graph FROM workflows
        WHERE id = $1 AND deleted_at IS NULL`,
		id).Scan(&graphJSON)
	if err != nil {
		return nil, err
	}

	doc, err := unmarshalGraph(graphJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal draft graph for publish: %w", err)
	}
	dag := DagData{Variables: doc.Variables, Config: doc.Config, Nodes: doc.Nodes, Edges: doc.Edges}
	dagJSON, err := json.Marshal(dag)
	if err != nil {
		return nil, fmt.Errorf("marshal dag data: %w", err)
	}

	// 2. Determine next version number.
	var nextVersion int
	err = tx.QueryRow(timeoutCtx, `
        SELECT COALESCE(MAX(version_number), 0) + 1
        FROM workflow_snapshots
        WHERE workflow_id = $1`,
		id).Scan(&nextVersion)
	if err != nil {
		return nil, fmt.Errorf("get next version: %w", err)
	}

	// 3. Insert the snapshot.
	snap := &WorkflowSnapshot{
		WorkflowID:    id,
		VersionNumber: nextVersion,
		DagData:       dag,
	}
	err = tx.QueryRow(timeoutCtx, `
        INSERT INTO workflow_snapshots (workflow_id, version_number, dag_data)
        VALUES ($1, $2, $3)
        RETURNING id, published_at`,
		id, nextVersion, dagJSON).Scan(&snap.ID, &snap.PublishedAt)
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}

	// 4. Flip the workflow to published and point it at the new snapshot.
	_, err = tx.Exec(timeoutCtx, `
        UPDATE workflows
        SET status = 'published', active_snapshot_id = $1
        WHERE id = $2`,
		snap.ID, id)
	if err != nil {
		return nil, fmt.Errorf("update workflow status: %w", err)
	}

	if err := tx.Commit(timeoutCtx); err != nil {
		return nil, fmt.Errorf("commit publish: %w", err)
	}

	return snap, nil
}

// GetActiveSnapshot retrieves the currently active snapshot for a workflow.
// Returns pgx.ErrNoRows if the workflow has no active snapshot (i.e. is a draft).
func (r *pgStorage) GetActiveSnapshot(ctx context.Context, workflowID uuid.UUID) (*WorkflowSnapshot, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	snap := &WorkflowSnapshot{}
	var dagJSON []byte

	err := r.DB.QueryRow(timeoutCtx, `
        SELECT s.id, s.workflow_id, s.version_number, s.dag_data, s.published_at
        FROM workflow_snapshots s
        JOIN workflows w ON w.active_snapshot_id = s.id
        WHERE w.id = $1 AND w.deleted_at IS NULL`,
		workflowID).Scan(&snap.ID, &snap.WorkflowID, &snap.VersionNumber, &dagJSON, &snap.PublishedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(dagJSON, &snap.DagData); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot dag_data: %w", err)
	}

	return snap, nil
}
