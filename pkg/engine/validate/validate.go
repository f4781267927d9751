// Package validate implements the structural and semantic checks run
// against a workflow definition before the orchestrator schedules anything.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/saclot/flowengine/pkg/engine/errs"
	"github.com/saclot/flowengine/pkg/engine/graph"
	"github.com/saclot/flowengine/pkg/engine/model"
)

// Result accumulates errors and warnings separately — a missing `config`
// on a node is a warning, never an error.
type Result struct {
	Errors   []string
	Warnings []string
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate runs every check against def, returning a Result. It never
// mutates def.
func Validate(def *model.Definition) *Result {
	r := &Result{}

	if def.ID == "" {
		r.addError("missing required field: id")
	}
	if def.Name == "" {
		r.addError("missing required field: name")
	}
	if len(def.Nodes) == 0 {
		r.addError("workflow has no nodes")
		return r
	}

	seen := map[string]bool{}
	var startCandidates []string
	for i, n := range def.Nodes {
		if n.ID == "" {
			r.addError("node[%d]: missing id", i)
			continue
		}
		if seen[n.ID] {
			r.addError("duplicate node id: %s", n.ID)
		}
		seen[n.ID] = true

		if n.Type == "" {
			r.addError("node %s: missing type", n.ID)
		} else if !model.ValidNodeTypes[n.Type] {
			r.addError("node %s: invalid type %q", n.ID, n.Type)
		}
		if n.Name == "" {
			r.addWarning("node %s: missing name", n.ID)
		}
		if n.Config == nil {
			r.addWarning("node %s: missing config", n.ID)
		}
		if n.Type == "start" || n.Type == "trigger" {
			startCandidates = append(startCandidates, n.ID)
		}
	}

	nodeIDs := make([]string, 0, len(def.Nodes))
	for _, n := range def.Nodes {
		nodeIDs = append(nodeIDs, n.ID)
	}

	for i, e := range def.Edges {
		if e.Source == "" || e.Target == "" {
			r.addError("edge[%d]: missing source or target", i)
			continue
		}
		if !seen[e.Source] {
			r.addError("edge[%d]: source %q does not resolve to a node", i, e.Source)
		}
		if !seen[e.Target] {
			r.addError("edge[%d]: target %q does not resolve to a node", i, e.Target)
		}
		if e.Source == e.Target {
			r.addError("self-loop edge on node %q", e.Source)
		}
	}

	graphEdges := make([]graph.Edge, 0, len(def.Edges))
	for _, e := range def.Edges {
		graphEdges = append(graphEdges, graph.Edge{Source: e.Source, Target: e.Target})
	}

	if has, cyclePath := graph.HasCycle(nodeIDs, graphEdges); has {
		r.addError("workflow graph contains a cycle: %s", strings.Join(cyclePath, " -> "))
	}

	sort.Strings(startCandidates)
	switch len(startCandidates) {
	case 0:
		r.addError("workflow has no start/trigger node")
	case 1:
		start := startCandidates[0]
		for _, e := range def.Edges {
			if e.Target == start {
				r.addError("start node %q has an incoming edge from %q", start, e.Source)
			}
		}
		unreachable := graph.UnreachableFrom(nodeIDs, graphEdges, start)
		if len(unreachable) > 0 {
			r.addError("nodes unreachable from start: %s", strings.Join(unreachable, ", "))
		}
	default:
		r.addError("workflow has more than one start/trigger node: %s", strings.Join(startCandidates, ", "))
	}

	return r
}

// IsValid reports whether def passes validation and, if not, returns a
// *errs.ValidationFailed carrying the error list.
func IsValid(def *model.Definition) (bool, *errs.ValidationFailed) {
	r := Validate(def)
	if len(r.Errors) == 0 {
		return true, nil
	}
	return false, &errs.ValidationFailed{Errors: r.Errors, Warnings: r.Warnings}
}
