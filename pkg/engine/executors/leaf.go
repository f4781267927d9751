package executors

import "github.com/saclot/flowengine/pkg/engine/model"

// sentinelExecutor is a no-op used for start/end/trigger nodes: the graph
// boundary markers. Grounded on the teacher's SentinelNode.
type sentinelExecutor struct{}

func (sentinelExecutor) Execute(Inputs) (Outputs, error) {
	return Outputs{}, nil
}

func init() {
	Register("start", func(model.Node) (Executor, error) { return sentinelExecutor{}, nil })
	Register("end", func(model.Node) (Executor, error) { return sentinelExecutor{}, nil })
	Register("trigger", func(model.Node) (Executor, error) { return sentinelExecutor{}, nil })
}
