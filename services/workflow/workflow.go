package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"

	"github.com/saclot/flowengine/pkg/engine/model"
	"github.com/saclot/flowengine/pkg/engine/orchestrator"
	"github.com/saclot/flowengine/services/storage"
)

// maxRequestBody limits the size of the upsert/execute request bodies to prevent abuse.
const maxRequestBody = 1 << 20 // 1MB

// HandleGetWorkflow loads a workflow draft definition by ID and returns it
// as JSON.
func (s *Service) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	id := mux.Vars(r)["id"]
	slog.Debug("returning workflow definition", "id", id, "requestId", rid)

	wfUUID, err := uuid.Parse(id)
	if err != nil {
		slog.Warn("invalid workflow id", "id", id, "requestId", rid, "error", err)
		writeErrorJSON(w, "INVALID_ID", "invalid workflow id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	wf, err := s.storage.GetWorkflow(ctx, wfUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			slog.Warn("workflow not found", "id", wfUUID, "requestId", rid)
			writeErrorJSON(w, "NOT_FOUND", "workflow not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to get workflow", "id", wfUUID, "requestId", rid, "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, wf)
}

// HandleUpsertWorkflow saves the request body as the workflow's draft
// definition, creating it if it doesn't already exist.
func (s *Service) HandleUpsertWorkflow(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	id := mux.Vars(r)["id"]
	slog.Debug("upserting workflow", "id", id, "requestId", rid)

	wfUUID, err := uuid.Parse(id)
	if err != nil {
		slog.Warn("invalid workflow id", "id", id, "requestId", rid, "error", err)
		writeErrorJSON(w, "INVALID_ID", "invalid workflow id", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	wf := &storage.Workflow{ID: wfUUID}
	if err := json.NewDecoder(r.Body).Decode(wf); err != nil {
		slog.Warn("failed to decode workflow body", "id", wfUUID, "requestId", rid, "error", err)
		writeErrorJSON(w, "INVALID_BODY", "invalid request body", http.StatusBadRequest)
		return
	}
	wf.ID = wfUUID

	ctx := r.Context()
	if err := s.storage.UpsertWorkflow(ctx, wf); err != nil {
		slog.Error("failed to upsert workflow", "id", wfUUID, "requestId", rid, "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, wf)
}

// HandlePublishWorkflow creates an immutable snapshot of the workflow's
// current draft. Subsequent executions run against this frozen snapshot
// rather than the mutable draft.
func (s *Service) HandlePublishWorkflow(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	id := mux.Vars(r)["id"]
	slog.Debug("publishing workflow", "id", id, "requestId", rid)

	wfUUID, err := uuid.Parse(id)
	if err != nil {
		slog.Warn("invalid workflow id", "id", id, "requestId", rid, "error", err)
		writeErrorJSON(w, "INVALID_ID", "invalid workflow id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	snap, err := s.storage.PublishWorkflow(ctx, wfUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			slog.Warn("workflow not found for publish", "id", wfUUID, "requestId", rid)
			writeErrorJSON(w, "NOT_FOUND", "workflow not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to publish workflow", "id", wfUUID, "requestId", rid, "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"snapshotId":    snap.ID,
		"versionNumber": snap.VersionNumber,
		"publishedAt":   snap.PublishedAt,
	})
}

// HandleExecuteWorkflow runs a workflow end-to-end through the orchestrator
// and returns the run result synchronously. If the workflow has a published
// snapshot, execution runs against the frozen snapshot; otherwise it falls
// back to the live draft. Run-time execution failures (node errors, cycles)
// are returned as 200 with status "failed" — they are business-level
// outcomes, not server errors.
func (s *Service) HandleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	id := mux.Vars(r)["id"]
	slog.Debug("handling workflow execution", "id", id, "requestId", rid)

	wfUUID, err := uuid.Parse(id)
	if err != nil {
		slog.Warn("invalid workflow id", "id", id, "requestId", rid, "error", err)
		writeErrorJSON(w, "INVALID_ID", "invalid workflow id", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var body struct {
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		slog.Warn("failed to decode request body", "id", wfUUID, "requestId", rid, "error", err)
		writeErrorJSON(w, "INVALID_BODY", "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	def, err := s.loadExecutableDefinition(ctx, wfUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			slog.Warn("workflow not found", "id", wfUUID, "requestId", rid)
			writeErrorJSON(w, "NOT_FOUND", "workflow not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to load workflow for execution", "id", wfUUID, "requestId", rid, "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}

	for k, v := range body.Variables {
		if def.Variables == nil {
			def.Variables = map[string]any{}
		}
		def.Variables[k] = v
	}

	result, err := orchestrator.Execute(ctx, def)
	if err != nil {
		slog.Error("workflow execution failed", "id", wfUUID, "requestId", rid, "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}

	if result.Status == "failed" {
		slog.Warn("workflow completed with failure", "id", wfUUID, "requestId", rid, "error", result.Error)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"executedAt": time.Now().UTC().Format(time.RFC3339),
		"result":     result,
	})
}

// loadExecutableDefinition prefers executing from a published snapshot if
// one exists, decoupling execution from in-progress draft edits.
func (s *Service) loadExecutableDefinition(ctx context.Context, wfUUID uuid.UUID) (*model.Definition, error) {
	snap, err := s.storage.GetActiveSnapshot(ctx, wfUUID)
	if err == nil {
		return snap.Definition(wfUUID.String()), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	wf, err := s.storage.GetWorkflow(ctx, wfUUID)
	if err != nil {
		return nil, err
	}
	return wf.Definition(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// writeErrorJSON writes a structured JSON error response with a machine-readable
// code and a human-readable message. The code allows clients to programmatically
// distinguish between error types (e.g. retry on INTERNAL_ERROR, don't retry on NOT_FOUND).
func writeErrorJSON(w http.ResponseWriter, errCode, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"code": errCode, "message": message})
}

// reqID extracts the request ID from context (set by requestIDMiddleware).
func reqID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}
