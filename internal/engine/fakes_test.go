package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// fakeModel replays a script of responses, one per GenerateContent call.
// A nil entry produces an error, simulating an unreachable provider.
type fakeModel struct {
	mu     sync.Mutex
	script []*llms.ContentResponse
	calls  int
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls >= len(m.script) {
		return nil, fmt.Errorf("fake model script exhausted at call %d", m.calls)
	}
	resp := m.script[m.calls]
	m.calls++
	if resp == nil {
		return nil, fmt.Errorf("simulated provider outage")
	}
	return resp, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
	}
}

func toolCallResponse(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{ToolCalls: calls}},
	}
}

func fnCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

// verdictResponse is a report_verdict tool reply, the analyzer's happy
// path.
func verdictResponse(outcome, analysis string) *llms.ContentResponse {
	args := fmt.Sprintf(`{"outcome":%q,"analysis":%q}`, outcome, analysis)
	return toolCallResponse(fnCall("call_v", "report_verdict", args))
}

// planResponse is a propose_plan tool reply for the model planner.
func planResponse(goals ...string) *llms.ContentResponse {
	steps := ""
	for i, g := range goals {
		if i > 0 {
			steps += ","
		}
		steps += fmt.Sprintf(`{"name":"step %d","goal":%q}`, i+1, g)
	}
	return toolCallResponse(fnCall("call_p", "propose_plan", `{"steps":[`+steps+`]}`))
}

// scriptedAuthorizer resolves every request with a fixed decision.
type scriptedAuthorizer struct {
	decision Decision
	requests []CallBatch
	mu       sync.Mutex
}

func (a *scriptedAuthorizer) RequestAuthorization(ctx context.Context, batch CallBatch) (<-chan Decision, error) {
	a.mu.Lock()
	a.requests = append(a.requests, batch)
	a.mu.Unlock()
	ch := make(chan Decision, 1)
	ch <- a.decision
	return ch, nil
}

// blockingAuthorizer never resolves, for cancellation tests.
type blockingAuthorizer struct{}

func (blockingAuthorizer) RequestAuthorization(ctx context.Context, batch CallBatch) (<-chan Decision, error) {
	return make(chan Decision), nil
}

// memorySink records global-history appends.
type memorySink struct {
	mu      sync.Mutex
	records []Message
}

func (s *memorySink) AppendGlobal(taskID string, msg Message) error {
	s.mu.Lock()
	s.records = append(s.records, msg)
	s.mu.Unlock()
	return nil
}

// memoryCheckpoints records saves and clears.
type memoryCheckpoints struct {
	mu      sync.Mutex
	saved   []Checkpoint
	cleared []string
}

func (c *memoryCheckpoints) SaveCheckpoint(cp Checkpoint) error {
	c.mu.Lock()
	c.saved = append(c.saved, cp)
	c.mu.Unlock()
	return nil
}

func (c *memoryCheckpoints) ClearCheckpoint(taskID string) error {
	c.mu.Lock()
	c.cleared = append(c.cleared, taskID)
	c.mu.Unlock()
	return nil
}

// echoTool returns its input, optionally after a gate.
type echoTool struct {
	name    string
	execute func(ctx context.Context, input string) (string, error)
}

func (t *echoTool) Name() string               { return t.name }
func (t *echoTool) Description() string        { return "test tool " + t.name }
func (t *echoTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (t *echoTool) Execute(ctx context.Context, input string) (string, error) {
	if t.execute != nil {
		return t.execute(ctx, input)
	}
	return "echo: " + input, nil
}
