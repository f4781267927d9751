// Package executors implements the node-executor lifecycle state machine
// and the full control-flow and leaf executor family. A new executor
// registers itself at package init with Register, mirroring the registry
// pattern the teacher's node factory groups into a single switch — this
// registry is instead a true open map so adding a type never touches a
// central dispatcher.
package executors

import (
	"sort"
	"sync"

	"github.com/saclot/flowengine/pkg/engine/errs"
	"github.com/saclot/flowengine/pkg/engine/model"
)

// Inputs is assembled by the lifecycle base before Execute is called:
// node fields, evaluated config, node_id, node_type, plus whatever
// AdditionalInputs contributes.
type Inputs map[string]any

// Outputs is whatever Execute returns; it becomes the node's step record.
type Outputs map[string]any

// Executor is the pure-function contract every node type implements.
// Everything Execute needs arrives via in, and its return value is the
// node's outputs. The join and loop executors are the exceptions that touch
// run state: their AdditionalInputs put the *Runtime itself under
// in["__runtime__"], join reads the coordinator through it, and loop
// installs loop frames and runs its child nodes through it.
type Executor interface {
	Execute(in Inputs) (Outputs, error)
}

// Factory constructs an Executor for a node instance.
type Factory func(node model.Node) (Executor, error)

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// Register adds a factory for typeTag. Called from each executor file's
// init(); the registry is immutable after process start, so reads never
// take a lock.
func Register(typeTag string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[typeTag] = factory
}

// Create looks up typeTag's factory and constructs an executor for node.
func Create(node model.Node) (Executor, error) {
	factory, ok := registry[node.Type]
	if !ok {
		return nil, &errs.UnknownNodeType{Type: node.Type}
	}
	return factory(node)
}

// IsRegistered reports whether typeTag has a registered factory.
func IsRegistered(typeTag string) bool {
	_, ok := registry[typeTag]
	return ok
}

// AllTypes returns every registered type tag, sorted.
func AllTypes() []string {
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
