package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/saclot/flowengine/pkg/engine/model"
)

var (
	testWfID   = uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	testSnapID = uuid.MustParse("660e8400-e29b-41d4-a716-446655440000")
	testNow    = time.Now()
)

func sampleGraphJSON(t *testing.T) []byte {
	t.Helper()
	doc := graphDoc{
		Variables: map[string]any{"city": "Lisbon"},
		Nodes: []model.Node{
			{ID: "start", Type: "start"},
			{ID: "check", Type: "condition", Config: map[string]any{"expression": "true"}},
		},
		Edges: []model.Edge{
			{ID: "e1", Source: "start", Target: "check"},
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal sample graph: %v", err)
	}
	return b
}

func TestGetWorkflow(t *testing.T) {
	graphJSON := sampleGraphJSON(t)

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		checkWf   func(t *testing.T, wf *Workflow)
	}{
		{
			name: "success returns draft workflow",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT name, version, status").
					WithArgs(testWfID).
					WillReturnRows(
						pgxmock.NewRows([]string{"name", "version", "status", "active_snapshot_id", "graph", "created_at", "modified_at"}).
							AddRow("Weather Check", "v1", "draft", nil, graphJSON, testNow, testNow),
					)
			},
			checkWf: func(t *testing.T, wf *Workflow) {
				t.Helper()
				if wf.Name != "Weather Check" {
					t.Errorf("expected name 'Weather Check', got %q", wf.Name)
				}
				if wf.Status != "draft" {
					t.Errorf("expected status 'draft', got %q", wf.Status)
				}
				if len(wf.Nodes) != 2 {
					t.Fatalf("expected 2 nodes, got %d", len(wf.Nodes))
				}
				if wf.Nodes[0].ID != "start" || wf.Nodes[0].Type != "start" {
					t.Errorf("unexpected first node: %+v", wf.Nodes[0])
				}
				if len(wf.Edges) != 1 || wf.Edges[0].Source != "start" || wf.Edges[0].Target != "check" {
					t.Errorf("unexpected edges: %+v", wf.Edges)
				}
				if wf.Variables["city"] != "Lisbon" {
					t.Errorf("expected variable city=Lisbon, got %v", wf.Variables)
				}
			},
		},
		{
			name: "workflow not found returns ErrNoRows",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT name, version, status").
					WithArgs(testWfID).
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: pgx.ErrNoRows,
		},
		{
			name: "query failure propagates",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT name, version, status").
					WithArgs(testWfID).
					WillReturnError(errors.New("connection lost"))
			},
			wantErr: errors.New("connection lost"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatalf("failed to create mock pool: %v", err)
			}
			defer mock.Close()

			tt.setupMock(mock)

			store := &pgStorage{DB: mock}
			wf, err := store.GetWorkflow(context.Background(), testWfID)

			if tt.wantErr != nil {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if err.Error() != tt.wantErr.Error() {
					t.Errorf("expected error %q, got %q", tt.wantErr, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.checkWf != nil {
				tt.checkWf(t, wf)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet mock expectations: %v", err)
			}
		})
	}
}

func TestGetActiveSnapshot(t *testing.T) {
	graphJSON := sampleGraphJSON(t)

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT s.id, s.workflow_id").
		WithArgs(testWfID).
		WillReturnRows(
			pgxmock.NewRows([]string{"id", "workflow_id", "version_number", "dag_data", "published_at"}).
				AddRow(testSnapID, testWfID, 1, graphJSON, testNow),
		)

	store := &pgStorage{DB: mock}
	snap, err := store.GetActiveSnapshot(context.Background(), testWfID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.VersionNumber != 1 {
		t.Errorf("expected version 1, got %d", snap.VersionNumber)
	}
	if len(snap.DagData.Nodes) != 2 {
		t.Errorf("expected 2 nodes in snapshot, got %d", len(snap.DagData.Nodes))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestGetActiveSnapshot_NoActiveSnapshot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT s.id, s.workflow_id").
		WithArgs(testWfID).
		WillReturnError(pgx.ErrNoRows)

	store := &pgStorage{DB: mock}
	_, err = store.GetActiveSnapshot(context.Background(), testWfID)
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("expected ErrNoRows, got %v", err)
	}
}
