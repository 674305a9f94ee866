package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rahul/stride/internal/observability"
	"github.com/rahul/stride/internal/tools"
)

// Invoker executes authorized tool calls. It carries no retry logic of its
// own; retrying is the analyzer's call, expressed as another tool turn.
type Invoker struct {
	Registry *tools.Registry
	Log      *observability.Logger
}

func NewInvoker(registry *tools.Registry, log *observability.Logger) *Invoker {
	return &Invoker{Registry: registry, Log: log}
}

// InvokeBatch dispatches the calls of one authorized batch concurrently.
// Calls in a batch share no mutable state, so they may run in parallel;
// results are recorded at the index of their originating call, which keeps
// the downstream model context deterministic even when execution finishes
// out of order.
func (inv *Invoker) InvokeBatch(ctx context.Context, taskID string, batch CallBatch) []ToolResult {
	results := make([]ToolResult, len(batch.Calls))
	var wg sync.WaitGroup
	for i, call := range batch.Calls {
		wg.Add(1)
		go func(i int, call ToolCall) {
			defer wg.Done()
			results[i] = inv.invoke(ctx, taskID, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (inv *Invoker) invoke(ctx context.Context, taskID string, call ToolCall) ToolResult {
	if inv.Log != nil {
		inv.Log.LogToolCall(taskID, call.ID, call.Name, call.Arguments)
	}

	result := ToolResult{CallID: call.ID, Name: call.Name}

	if tool := inv.Registry.Get(call.Name); tool == nil {
		result.Kind = ResultError
		result.Content = fmt.Sprintf("Error: tool %s not found", call.Name)
	} else if content, err := tool.Execute(ctx, call.Arguments); err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			result.Kind = ResultCancelled
			result.Content = "Tool call cancelled during execution"
		} else {
			// Tool failure is a normal result the model can react to, never
			// fatal to the task.
			result.Kind = ResultError
			result.Content = fmt.Sprintf("Error executing tool %s: %v", call.Name, err)
		}
	} else {
		result.Kind = ResultOK
		result.Content = content
	}

	// Every outcome emits a result event, not just success.
	if inv.Log != nil {
		inv.Log.LogToolResult(taskID, call.ID, call.Name, string(result.Kind))
	}
	return result
}
