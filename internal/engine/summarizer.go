package engine

import (
	"fmt"
	"strings"
)

// HistorySink mirrors global-history appends to durable storage. Optional.
type HistorySink interface {
	AppendGlobal(taskID string, msg Message) error
}

// Summarizer is the sole bridge from step-local to global context: it
// condenses a concluded step into one report, appends it to the global
// history, and destroys the step history. The report is built only from
// records present in the step history, never invented.
type Summarizer struct {
	Sink HistorySink

	// MaxSnippet bounds how much of a message is quoted in the report.
	MaxSnippet int
}

func NewSummarizer(sink HistorySink) *Summarizer {
	return &Summarizer{Sink: sink, MaxSnippet: 160}
}

// Conclude produces the report for a terminal step, appends it to the
// global history, and destroys the step history. Destruction is
// unconditional: it is what keeps the global context bounded regardless of
// how noisy the step was.
func (s *Summarizer) Conclude(state *GlobalState, step *Step) (Message, error) {
	if !step.Status.Terminal() {
		return Message{}, fmt.Errorf("%w: summarize non-terminal step %d (%s)", ErrInternal, step.ID, step.Status)
	}
	if step.History == nil || step.History.Destroyed() {
		return Message{}, fmt.Errorf("%w: step %d history already destroyed", ErrInternal, step.ID)
	}

	report := s.buildReport(step)
	msg := AssistantMessage(report)
	state.History.Append(msg)
	if s.Sink != nil {
		if err := s.Sink.AppendGlobal(state.TaskID, msg); err != nil {
			// Storage trouble must not lose the in-memory report.
			return msg, fmt.Errorf("persist step report: %w", err)
		}
	}

	step.History.Destroy()
	return msg, nil
}

func (s *Summarizer) buildReport(step *Step) string {
	marker := "✅"
	if step.Status == StatusFailed {
		marker = "❌"
	}

	var bits []string
	if step.Analysis != "" {
		bits = append(bits, s.snippet(step.Analysis))
	}
	if last, ok := step.History.Last(RoleAssistant); ok && last.Content != "" && last.Content != step.Analysis {
		bits = append(bits, s.snippet(last.Content))
	}
	for _, res := range s.salientResults(step) {
		bits = append(bits, fmt.Sprintf("%s: %s", res.Name, s.snippet(res.Content)))
	}
	if step.Status == StatusFailed && step.FailReason != "" {
		bits = append(bits, "reason: "+step.FailReason)
	}
	if len(bits) == 0 {
		bits = append(bits, "no significant output captured")
	}

	return fmt.Sprintf("%s Step %d %s: %s", marker, step.ID+1, step.Status, strings.Join(bits, " | "))
}

// salientResults picks the last successful result plus any denial, so a
// denied batch is visible in the report.
func (s *Summarizer) salientResults(step *Step) []ToolResult {
	results := step.ToolResults()
	var out []ToolResult
	var lastOK *ToolResult
	for i := range results {
		switch results[i].Kind {
		case ResultOK:
			lastOK = &results[i]
		case ResultDenied:
			if len(out) == 0 {
				out = append(out, results[i])
			}
		}
	}
	if lastOK != nil {
		out = append(out, *lastOK)
	}
	return out
}

func (s *Summarizer) snippet(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	max := s.MaxSnippet
	if max <= 0 {
		max = 160
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
