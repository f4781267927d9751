// Package context implements the hierarchical, concurrency-safe state
// store nodes read and write through during a run: nine named sections
// plus a private internal area, all reads returned as deep copies.
package context

import (
	"fmt"
	"sync"

	"github.com/saclot/flowengine/pkg/engine/errs"
	"github.com/saclot/flowengine/pkg/engine/template"
)

// StepRecord is the per-node entry written on completion.
type StepRecord struct {
	Inputs  map[string]any
	Outputs map[string]any
	Options map[string]any
}

// Manager is the run-scoped evaluation context. It is created once per
// orchestrator run and dropped when the run terminates.
type Manager struct {
	mu sync.Mutex

	variables map[string]any
	steps     map[string]StepRecord
	lookup    map[string]any
	inputs    map[string]any
	loop      map[string]any
	outputs   map[string]any
	metadata  map[string]any
	current   map[string]any
	system    map[string]any

	// internal is never exposed via State(); it is reachable only through
	// SetInternal/GetInternal, and the orchestrator stores nothing in it.
	internal map[string]any

	engine *template.Engine
}

// New constructs an empty Manager with every section initialized.
func New() *Manager {
	return &Manager{
		variables: map[string]any{},
		steps:     map[string]StepRecord{},
		lookup:    map[string]any{},
		inputs:    map[string]any{},
		loop:      map[string]any{},
		outputs:   map[string]any{},
		metadata:  map[string]any{},
		current:   map[string]any{},
		system:    map[string]any{},
		internal:  map[string]any{},
		engine:    template.New(),
	}
}

// deepCopy clones the closed value shape (map[string]any / []any / scalar)
// this store is built from.
func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	return deepCopy(m).(map[string]any)
}

// --- variables ---

func (m *Manager) SetVariables(vars map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.variables = deepCopyMap(vars)
}

func (m *Manager) GetVariables() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return deepCopyMap(m.variables)
}

func (m *Manager) UpdateVariables(updates map[string]any) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range updates {
		m.variables[k] = deepCopy(v)
	}
	return deepCopyMap(m.variables)
}

// --- generic section helpers for inputs/loop/outputs/metadata/current/system ---

func (m *Manager) section(name string) *map[string]any {
	switch name {
	case "inputs":
		return &m.inputs
	case "loop":
		return &m.loop
	case "outputs":
		return &m.outputs
	case "metadata":
		return &m.metadata
	case "current":
		return &m.current
	case "system":
		return &m.system
	case "lookup":
		return &m.lookup
	default:
		return nil
	}
}

func (m *Manager) SetSection(name string, value map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := m.section(name)
	if ref == nil {
		return
	}
	*ref = deepCopyMap(value)
}

func (m *Manager) GetSection(name string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := m.section(name)
	if ref == nil {
		return nil
	}
	return deepCopyMap(*ref)
}

func (m *Manager) UpdateSection(name string, updates map[string]any) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := m.section(name)
	if ref == nil {
		return nil
	}
	for k, v := range updates {
		(*ref)[k] = deepCopy(v)
	}
	return deepCopyMap(*ref)
}

func (m *Manager) ClearSection(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := m.section(name)
	if ref == nil {
		return
	}
	*ref = map[string]any{}
}

func (m *Manager) DeleteFromSection(name, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := m.section(name)
	if ref == nil {
		return
	}
	delete(*ref, key)
}

// SetLookup / GetLookup provide indexed access into the lookup section.
func (m *Manager) SetLookup(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookup[key] = deepCopy(value)
}

func (m *Manager) GetLookup(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.lookup[key]
	return deepCopy(v), ok
}

func (m *Manager) GetLookups() map[string]any {
	return m.GetSection("lookup")
}

// --- loop convenience: install/clear a transient loop frame ---

// SetLoopFrame replaces the loop section with frame. The loop executor
// passes {item, <alias>, index, len, is_first, is_last}, so the current
// frame is reachable as loop.<field> and loop.<alias>.
func (m *Manager) SetLoopFrame(frame map[string]any) {
	m.SetSection("loop", frame)
}

func (m *Manager) ClearLoop() {
	m.ClearSection("loop")
}

// --- steps ---

func (m *Manager) SetStep(nodeID string, rec StepRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[nodeID] = StepRecord{
		Inputs:  deepCopyMap(rec.Inputs),
		Outputs: deepCopyMap(rec.Outputs),
		Options: deepCopyMap(rec.Options),
	}
}

func (m *Manager) GetStep(nodeID string) (StepRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.steps[nodeID]
	if !ok {
		return StepRecord{}, false
	}
	return StepRecord{
		Inputs:  deepCopyMap(rec.Inputs),
		Outputs: deepCopyMap(rec.Outputs),
		Options: deepCopyMap(rec.Options),
	}, true
}

func (m *Manager) UpdateStepOutputs(nodeID string, outputs map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.steps[nodeID]
	if rec.Outputs == nil {
		rec.Outputs = map[string]any{}
	}
	for k, v := range outputs {
		rec.Outputs[k] = deepCopy(v)
	}
	m.steps[nodeID] = rec
}

func (m *Manager) HasStep(nodeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.steps[nodeID]
	return ok
}

func (m *Manager) DeleteStep(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.steps, nodeID)
}

func (m *Manager) ClearSteps() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = map[string]StepRecord{}
}

func (m *Manager) stepsAsMap() map[string]any {
	out := make(map[string]any, len(m.steps))
	for id, rec := range m.steps {
		out[id] = map[string]any{
			"inputs":  deepCopyMap(rec.Inputs),
			"outputs": deepCopyMap(rec.Outputs),
			"options": deepCopyMap(rec.Options),
		}
	}
	return out
}

// --- internal / back-reference ---

func (m *Manager) SetInternal(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.internal[key] = value
}

func (m *Manager) GetInternal(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.internal[key]
	return v, ok
}

// --- full state snapshot, used as the template rendering environment ---

// State returns a deep-copied snapshot of the nine public sections,
// suitable as a template rendering environment.
func (m *Manager) State() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{
		"variables": deepCopyMap(m.variables),
		"steps":     m.stepsAsMap(),
		"lookup":    deepCopyMap(m.lookup),
		"inputs":    deepCopyMap(m.inputs),
		"loop":      deepCopyMap(m.loop),
		"outputs":   deepCopyMap(m.outputs),
		"metadata":  deepCopyMap(m.metadata),
		"current":   deepCopyMap(m.current),
		"system":    deepCopyMap(m.system),
	}
}

// EvaluateExpression recursively walks value, rendering every string
// through the template engine with the current full state as the
// rendering environment. Scalars pass through unchanged.
func (m *Manager) EvaluateExpression(value any) (any, error) {
	state := m.State()
	rendered, err := m.engine.RenderDataStructure(value, state)
	if err != nil {
		return nil, &errs.TemplateError{Template: fmt.Sprint(value), Cause: err}
	}
	return rendered, nil
}
