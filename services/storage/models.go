package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/saclot/flowengine/pkg/engine/model"
)

// Workflow is the persisted, mutable draft of a workflow definition. Nodes
// and edges are stored as a single JSONB document rather than normalized
// per-node rows: a generic DAG engine has no shared node library or canvas
// layout to join against, so a workflow's graph is only ever read or
// written as a whole.
type Workflow struct {
	ID               uuid.UUID      `json:"id" db:"id"`
	Name             string         `json:"name" db:"name"`
	Version          string         `json:"version" db:"version"`
	Status           string         `json:"status" db:"status"` // draft, published
	ActiveSnapshotID *uuid.UUID     `json:"activeSnapshotId,omitempty" db:"active_snapshot_id"`
	Variables        map[string]any `json:"variables" db:"-"`
	Config           model.Config   `json:"config" db:"-"`
	Nodes            []model.Node   `json:"nodes" db:"-"`
	Edges            []model.Edge   `json:"edges" db:"-"`
	CreatedAt        time.Time      `json:"createdAt" db:"created_at"`
	ModifiedAt       time.Time      `json:"modifiedAt" db:"modified_at"`
	DeletedAt        *time.Time     `json:"deletedAt,omitempty" db:"deleted_at"`
}

// Definition converts a persisted draft into the shape the engine consumes.
func (w *Workflow) Definition() *model.Definition {
	return &model.Definition{
		ID:        w.ID.String(),
		Name:      w.Name,
		Version:   w.Version,
		Variables: w.Variables,
		Nodes:     w.Nodes,
		Edges:     w.Edges,
		Config:    w.Config,
	}
}

// DagData is the frozen graph body of a published snapshot: nodes, edges,
// and the variables/config in effect at publish time.
type DagData struct {
	Variables map[string]any `json:"variables"`
	Config    model.Config   `json:"config"`
	Nodes     []model.Node   `json:"nodes"`
	Edges     []model.Edge   `json:"edges"`
}

// WorkflowSnapshot is an immutable, versioned copy of a workflow's DAG taken
// at publish time. Execution against a published workflow runs against its
// active snapshot, decoupling runs from in-progress draft edits.
type WorkflowSnapshot struct {
	ID            uuid.UUID `json:"id" db:"id"`
	WorkflowID    uuid.UUID `json:"workflowId" db:"workflow_id"`
	VersionNumber int       `json:"versionNumber" db:"version_number"`
	DagData       DagData   `json:"dagData" db:"dag_data"`
	PublishedAt   time.Time `json:"publishedAt" db:"published_at"`
}

// Definition converts a published snapshot into the shape the engine consumes.
func (s *WorkflowSnapshot) Definition(workflowName string) *model.Definition {
	return &model.Definition{
		ID:        s.WorkflowID.String(),
		Name:      workflowName,
		Variables: s.DagData.Variables,
		Nodes:     s.DagData.Nodes,
		Edges:     s.DagData.Edges,
		Config:    s.DagData.Config,
	}
}
