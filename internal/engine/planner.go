package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rahul/stride/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

// Planner produces the ordered list of steps for a goal.
type Planner interface {
	Plan(ctx context.Context, goal string) ([]*Step, error)
}

// ModelPlanner decomposes a goal with one model call. The plan is requested
// through a propose_plan tool schema so the decomposition comes back
// structured; a free-text numbered list is accepted as a fallback.
type ModelPlanner struct {
	Model    llms.Model
	Prompts  *PromptManager
	Registry *tools.Registry
}

func NewModelPlanner(model llms.Model, prompts *PromptManager, registry *tools.Registry) *ModelPlanner {
	return &ModelPlanner{Model: model, Prompts: prompts, Registry: registry}
}

type proposedPlan struct {
	Steps []struct {
		Name string `json:"name"`
		Goal string `json:"goal"`
		Hint string `json:"hint"`
	} `json:"steps"`
}

func (p *ModelPlanner) Plan(ctx context.Context, goal string) ([]*Step, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, fmt.Errorf("plan: empty goal")
	}

	system := p.Prompts.PlannerPrompt()
	if p.Registry != nil {
		var lines []string
		for _, t := range p.Registry.All() {
			lines = append(lines, fmt.Sprintf("- %s: %s", t.Name(), t.Description()))
		}
		if len(lines) > 0 {
			system += "\n\n## Available Tools:\n" + strings.Join(lines, "\n")
		}
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart("Break down this goal into steps: " + goal)},
		},
	}

	resp, err := p.Model.GenerateContent(ctx, messages, llms.WithTools(proposePlanTools()))
	if err != nil {
		return nil, fmt.Errorf("planning call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("planner returned no choices")
	}
	choice := resp.Choices[0]

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != "propose_plan" {
			continue
		}
		var plan proposedPlan
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &plan); err != nil {
			return nil, fmt.Errorf("parse propose_plan arguments: %w", err)
		}
		var steps []*Step
		for _, ps := range plan.Steps {
			desc := strings.TrimSpace(ps.Goal)
			if desc == "" {
				continue
			}
			steps = append(steps, NewStep(len(steps), strings.TrimSpace(ps.Name), desc, strings.TrimSpace(ps.Hint)))
		}
		if len(steps) == 0 {
			return nil, fmt.Errorf("planner proposed an empty plan")
		}
		return steps, nil
	}

	if steps := parseNumberedSteps(choice.Content); len(steps) > 0 {
		return steps, nil
	}
	return nil, fmt.Errorf("planner provided neither a plan nor a step list")
}

// parseNumberedSteps extracts steps from a numbered or bulleted list.
func parseNumberedSteps(text string) []*Step {
	var steps []*Step
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		desc := ""
		switch {
		case line[0] >= '0' && line[0] <= '9':
			if idx := strings.IndexAny(line, ".)"); idx > 0 && idx < 4 {
				desc = strings.TrimSpace(line[idx+1:])
			}
		case strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*"):
			desc = strings.TrimSpace(line[1:])
		}
		if desc != "" {
			steps = append(steps, NewStep(len(steps), "", desc, ""))
		}
	}
	return steps
}

func proposePlanTools() []llms.Tool {
	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "propose_plan",
				Description: "Submit a structured plan consisting of ordered steps.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"steps": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"name": map[string]any{
										"type":        "string",
										"description": "Short name of the step.",
									},
									"goal": map[string]any{
										"type":        "string",
										"description": "What this step aims to achieve.",
									},
									"hint": map[string]any{
										"type":        "string",
										"description": "Instructions on how to accomplish this step.",
									},
								},
								"required": []string{"name", "goal"},
							},
						},
					},
					"required": []string{"steps"},
				},
			},
		},
	}
}

// TemplatePlanner skips model decomposition and plans from a pre-defined
// template.
type TemplatePlanner struct {
	Template *Template
}

func (p *TemplatePlanner) Plan(ctx context.Context, goal string) ([]*Step, error) {
	if p.Template == nil || len(p.Template.Steps) == 0 {
		return nil, fmt.Errorf("plan template has no steps")
	}
	steps := make([]*Step, 0, len(p.Template.Steps))
	for i, ts := range p.Template.Steps {
		if strings.TrimSpace(ts.Goal) == "" {
			return nil, fmt.Errorf("template step %d has no goal", i+1)
		}
		steps = append(steps, NewStep(i, ts.Name, ts.Goal, ts.Hint))
	}
	return steps, nil
}
