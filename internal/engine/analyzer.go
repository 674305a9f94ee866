package engine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// VerdictOutcome is the analyzer's three-way classification of the latest
// tool-call turn.
type VerdictOutcome string

const (
	VerdictContinue VerdictOutcome = "continue"
	VerdictComplete VerdictOutcome = "complete"
	VerdictFail     VerdictOutcome = "fail"
)

// Verdict always carries an analysis on a terminal outcome.
type Verdict struct {
	Outcome  VerdictOutcome
	Analysis string
}

// Analyzer classifies the outcome of the active step's latest turn from its
// step-local history.
type Analyzer interface {
	Analyze(ctx context.Context, step *Step) (Verdict, error)
}

// ModelAnalyzer asks the model for the verdict through a forced tool
// schema, the same trick the planner uses: offer exactly one tool and parse
// its arguments. A response that carries neither the tool call nor usable
// text falls back to a deterministic heuristic.
type ModelAnalyzer struct {
	Model   llms.Model
	Prompts *PromptManager
}

func NewModelAnalyzer(model llms.Model, prompts *PromptManager) *ModelAnalyzer {
	return &ModelAnalyzer{Model: model, Prompts: prompts}
}

type verdictArgs struct {
	Outcome  string `json:"outcome"`
	Analysis string `json:"analysis"`
}

func (a *ModelAnalyzer) Analyze(ctx context.Context, step *Step) (Verdict, error) {
	messages := step.History.ToLLM()
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(a.Prompts.AnalyzerPrompt())},
	})

	resp, err := a.Model.GenerateContent(ctx, messages, llms.WithTools(verdictTools()))
	if err != nil {
		// The analyzer shares the model collaborator's failure modes;
		// the runtime owns retry policy, so surface the error.
		return Verdict{}, err
	}
	if len(resp.Choices) == 0 {
		return heuristicVerdict(step), nil
	}

	choice := resp.Choices[0]
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != "report_verdict" {
			continue
		}
		var args verdictArgs
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
			continue
		}
		if v, ok := parseVerdict(args); ok {
			return v, nil
		}
	}

	if text := strings.TrimSpace(choice.Content); text != "" {
		if v, ok := verdictFromText(text); ok {
			return v, nil
		}
	}
	return heuristicVerdict(step), nil
}

func parseVerdict(args verdictArgs) (Verdict, bool) {
	outcome := VerdictOutcome(strings.ToLower(strings.TrimSpace(args.Outcome)))
	switch outcome {
	case VerdictContinue, VerdictComplete, VerdictFail:
		analysis := strings.TrimSpace(args.Analysis)
		if analysis == "" && outcome != VerdictContinue {
			analysis = "no analysis provided"
		}
		return Verdict{Outcome: outcome, Analysis: analysis}, true
	}
	return Verdict{}, false
}

// verdictFromText salvages a verdict from a free-text reply whose first
// word names the outcome.
func verdictFromText(text string) (Verdict, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Verdict{}, false
	}
	head := strings.ToLower(strings.Trim(fields[0], ".:,"))
	rest := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
	if rest == "" {
		rest = text
	}
	switch head {
	case "continue":
		return Verdict{Outcome: VerdictContinue, Analysis: rest}, true
	case "complete", "completed", "done":
		return Verdict{Outcome: VerdictComplete, Analysis: rest}, true
	case "fail", "failed":
		return Verdict{Outcome: VerdictFail, Analysis: rest}, true
	}
	return Verdict{}, false
}

// heuristicVerdict mirrors the denial-handling and last-message rules the
// verdict schema encodes, for when the model response is unusable: a fully
// denied or cancelled last batch fails the step, a substantive assistant
// answer completes it, anything else warrants another turn.
func heuristicVerdict(step *Step) Verdict {
	results := step.ToolResults()
	if n := len(results); n > 0 {
		last, ok := step.History.Last(RoleAssistant)
		if ok && len(last.ToolCalls) > 0 && n >= len(last.ToolCalls) {
			denied := 0
			for _, res := range results[n-len(last.ToolCalls):] {
				if res.Kind == ResultDenied || res.Kind == ResultCancelled {
					denied++
				}
			}
			if denied == len(last.ToolCalls) {
				return Verdict{Outcome: VerdictFail, Analysis: "tool calls were not authorized"}
			}
		}
		return Verdict{Outcome: VerdictContinue}
	}
	if last, ok := step.History.Last(RoleAssistant); ok && strings.TrimSpace(last.Content) != "" {
		return Verdict{Outcome: VerdictComplete, Analysis: strings.TrimSpace(last.Content)}
	}
	return Verdict{Outcome: VerdictFail, Analysis: "no usable output produced"}
}

func verdictTools() []llms.Tool {
	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "report_verdict",
				Description: "Report whether the sub-task is complete, failed, or needs another tool turn.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"outcome": map[string]any{
							"type": "string",
							"enum": []string{"continue", "complete", "fail"},
						},
						"analysis": map[string]any{
							"type":        "string",
							"description": "One-sentence justification of the outcome.",
						},
					},
					"required": []string{"outcome", "analysis"},
				},
			},
		},
	}
}
