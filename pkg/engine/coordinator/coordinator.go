// Package coordinator implements the mediator between the orchestrator and
// node executors: the skip registry, event log, per-node state map and
// workflow-halt flag, all safe under concurrent invocation.
package coordinator

import (
	"sync"
	"time"

	"github.com/saclot/flowengine/pkg/engine/context"
)

// NodeState is one of pending, running, success, failed.
type NodeState string

const (
	StatePending NodeState = "pending"
	StateRunning NodeState = "running"
	StateSuccess NodeState = "success"
	StateFailed  NodeState = "failed"
)

// SkipEntry records why a node was marked not to execute.
type SkipEntry struct {
	Reason  string
	Details map[string]any
}

// Event is an append-only record of something that happened during a run.
type Event struct {
	Timestamp time.Time
	EventType string
	NodeID    string
	Data      map[string]any
}

// Coordinator owns all run-scoped metadata. It holds a reference to the
// context but its own lock is independent of the context's lock; lock
// order when both are needed is context -> coordinator, never reversed.
type Coordinator struct {
	mu sync.Mutex

	runID   string
	context *context.Manager

	skipped   map[string]SkipEntry
	states    map[string]NodeState
	events    []Event
	haltFlag  bool
	haltWhy   string
}

// New constructs a Coordinator bound to ctx for the given run id.
func New(runID string, ctx *context.Manager) *Coordinator {
	return &Coordinator{
		runID:   runID,
		context: ctx,
		skipped: map[string]SkipEntry{},
		states:  map[string]NodeState{},
	}
}

// Context returns the bound evaluation context.
func (c *Coordinator) Context() *context.Manager { return c.context }

// MarkNodeSkipped appends a skip entry for nodeID. Skip entries are never
// removed once set, matching the append-only side channel the design
// calls for.
func (c *Coordinator) MarkNodeSkipped(nodeID, reason string, details map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, already := c.skipped[nodeID]; already {
		return
	}
	c.skipped[nodeID] = SkipEntry{Reason: reason, Details: details}
}

// IsNodeSkipped reports whether nodeID was marked skipped and, if so, its
// entry.
func (c *Coordinator) IsNodeSkipped(nodeID string) (bool, SkipEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.skipped[nodeID]
	return ok, entry
}

// AllSkippedNodes returns a snapshot of the skip registry.
func (c *Coordinator) AllSkippedNodes() map[string]SkipEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]SkipEntry, len(c.skipped))
	for k, v := range c.skipped {
		out[k] = v
	}
	return out
}

func (c *Coordinator) SetNodeState(nodeID string, state NodeState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[nodeID] = state
}

func (c *Coordinator) GetNodeState(nodeID string) (NodeState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[nodeID]
	return s, ok
}

// RecordEvent appends an event to the log, stamped with the current UTC
// wall-clock time.
func (c *Coordinator) RecordEvent(eventType, nodeID string, data map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		NodeID:    nodeID,
		Data:      data,
	})
}

// GetEvents returns a snapshot of the event log, optionally filtered by
// event type.
func (c *Coordinator) GetEvents(eventType string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if eventType == "" {
		out := make([]Event, len(c.events))
		copy(out, c.events)
		return out
	}
	var out []Event
	for _, e := range c.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// HaltWorkflow sets the halt flag, observed by the orchestrator between
// levels. It does not preempt work already running.
func (c *Coordinator) HaltWorkflow(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.haltFlag = true
	c.haltWhy = reason
	c.events = append(c.events, Event{
		Timestamp: time.Now().UTC(),
		EventType: "workflow_halt_requested",
		Data:      map[string]any{"reason": reason},
	})
}

func (c *Coordinator) ShouldHalt() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.haltFlag, c.haltWhy
}

// SetNodeOutput / GetNodeOutput delegate to the context's step records.
func (c *Coordinator) SetNodeOutput(nodeID string, outputs map[string]any) {
	c.context.UpdateStepOutputs(nodeID, outputs)
}

func (c *Coordinator) GetNodeOutput(nodeID string) (map[string]any, bool) {
	rec, ok := c.context.GetStep(nodeID)
	if !ok {
		return nil, false
	}
	return rec.Outputs, true
}

func (c *Coordinator) SetNodeInput(nodeID string, inputs map[string]any) {
	rec, _ := c.context.GetStep(nodeID)
	rec.Inputs = inputs
	c.context.SetStep(nodeID, rec)
}

func (c *Coordinator) GetNodeInput(nodeID string) (map[string]any, bool) {
	rec, ok := c.context.GetStep(nodeID)
	if !ok {
		return nil, false
	}
	return rec.Inputs, true
}

// LastFailedNodeEvent returns the node id of the most recent node_failed
// event in the log, if any. The orchestrator falls back to it for a failed
// run's error response when the run error itself carries no node id.
func (c *Coordinator) LastFailedNodeEvent() (nodeID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].EventType == "node_failed" {
			return c.events[i].NodeID, true
		}
	}
	return "", false
}
