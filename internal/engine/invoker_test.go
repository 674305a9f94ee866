package engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rahul/stride/internal/observability"
	"github.com/rahul/stride/internal/tools"
)

func TestInvokeBatchPreservesCallOrder(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(&echoTool{name: "slow", execute: func(ctx context.Context, input string) (string, error) {
		time.Sleep(30 * time.Millisecond)
		return "slow done", nil
	}})
	registry.Register(&echoTool{name: "fast", execute: func(ctx context.Context, input string) (string, error) {
		return "fast done", nil
	}})

	inv := NewInvoker(registry, nil)
	batch := NewCallBatch(0, []ToolCall{
		{ID: "c1", Name: "slow"},
		{ID: "c2", Name: "fast"},
	})

	results := inv.InvokeBatch(context.Background(), "task_1", batch)
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	// The fast call finishes first but must be recorded second.
	if results[0].CallID != "c1" || results[0].Content != "slow done" {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].CallID != "c2" || results[1].Content != "fast done" {
		t.Errorf("results[1] = %+v", results[1])
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	inv := NewInvoker(tools.NewRegistry(), nil)
	batch := NewCallBatch(0, []ToolCall{{ID: "c1", Name: "nonexistent"}})

	results := inv.InvokeBatch(context.Background(), "task_1", batch)
	if results[0].Kind != ResultError {
		t.Fatalf("kind = %s, want error", results[0].Kind)
	}
	if !strings.Contains(results[0].Content, "not found") {
		t.Errorf("content = %q", results[0].Content)
	}
}

func TestInvokeToolErrorIsResult(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(&echoTool{name: "broken", execute: func(ctx context.Context, input string) (string, error) {
		return "", fmt.Errorf("exit status 1")
	}})
	inv := NewInvoker(registry, nil)
	batch := NewCallBatch(0, []ToolCall{{ID: "c1", Name: "broken"}})

	results := inv.InvokeBatch(context.Background(), "task_1", batch)
	if results[0].Kind != ResultError {
		t.Fatalf("kind = %s, want error", results[0].Kind)
	}
	if !strings.Contains(results[0].Content, "exit status 1") {
		t.Errorf("content = %q", results[0].Content)
	}
}

func TestInvokeCancelled(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(&echoTool{name: "hang", execute: func(ctx context.Context, input string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}})
	inv := NewInvoker(registry, nil)
	batch := NewCallBatch(0, []ToolCall{{ID: "c1", Name: "hang"}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	results := inv.InvokeBatch(ctx, "task_1", batch)
	if results[0].Kind != ResultCancelled {
		t.Fatalf("kind = %s, want cancelled", results[0].Kind)
	}
}

func TestInvokeLogsResultForEveryOutcome(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(&echoTool{name: "ok"})
	registry.Register(&echoTool{name: "broken", execute: func(ctx context.Context, input string) (string, error) {
		return "", fmt.Errorf("boom")
	}})

	var buf bytes.Buffer
	logger := observability.NewLogger()
	logger.Out = &buf
	inv := NewInvoker(registry, logger)

	cases := []struct {
		call ToolCall
		kind string
	}{
		{ToolCall{ID: "c1", Name: "ok"}, `"kind":"ok"`},
		{ToolCall{ID: "c2", Name: "broken"}, `"kind":"error"`},
		{ToolCall{ID: "c3", Name: "missing"}, `"kind":"error"`},
	}
	for _, tc := range cases {
		buf.Reset()
		inv.InvokeBatch(context.Background(), "task_1", NewCallBatch(0, []ToolCall{tc.call}))
		if !strings.Contains(buf.String(), `"type":"tool_result"`) {
			t.Errorf("%s: no tool_result event emitted", tc.call.Name)
		}
		if !strings.Contains(buf.String(), tc.kind) {
			t.Errorf("%s: missing %s in %s", tc.call.Name, tc.kind, buf.String())
		}
	}
}
