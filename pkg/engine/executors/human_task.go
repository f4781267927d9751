package executors

import (
	"time"

	"github.com/saclot/flowengine/pkg/engine/model"
)

// humanTaskExecutor pauses the workflow at a manual checkpoint. No durable
// suspension or resume exists in this core; the pause is a terminal state
// for the current invocation.
type humanTaskExecutor struct{}

func init() {
	Register("human_task", func(model.Node) (Executor, error) { return humanTaskExecutor{}, nil })
}

func (humanTaskExecutor) Execute(in Inputs) (Outputs, error) {
	cfg, _ := in["config"].(map[string]any)

	timeoutHours := 72.0
	if t, ok := cfg["timeout_hours"].(float64); ok && t > 0 {
		timeoutHours = t
	}
	expiresAt := time.Now().UTC().Add(time.Duration(timeoutHours * float64(time.Hour)))

	out := Outputs{
		"status":          "pending",
		"expires_at":      expiresAt.Format(time.RFC3339),
		"paused_workflow": true,
	}
	for k, v := range cfg {
		if _, exists := out[k]; !exists {
			out[k] = v
		}
	}
	return out, nil
}
