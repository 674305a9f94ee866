package engine

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultPlannerPrompt = `You are a planning assistant. Break the user's goal into 3-5 concrete,
actionable steps. Each step must be a specific task a sub-agent can complete
independently with the available tools, using actual values rather than
placeholders, and building sequentially toward the overall goal.
Submit the plan with the propose_plan tool. If the goal needs no plan,
answer with a numbered list of steps instead.`

const defaultStepPrompt = `You are a sub-agent focused on a single task. Use the available tools to
achieve it. Use actual results from earlier context, not placeholder values.
When the task is done, state the outcome plainly.`

const defaultAnalyzerPrompt = `You judge whether the sub-task above has been achieved, based only on the
conversation so far. Report your verdict with the report_verdict tool:
outcome must be one of "continue" (another tool turn is warranted),
"complete" (the goal is satisfied) or "fail" (the goal is not attainable in
this step), with a one-sentence analysis.`

// PromptManager loads prompt text from a directory of markdown files,
// falling back to built-in defaults when a file is missing. The directory
// is optional; an empty path means defaults only.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

func (pm *PromptManager) PlannerPrompt() string {
	return pm.load("planner.md", defaultPlannerPrompt)
}

func (pm *PromptManager) StepPrompt() string {
	return pm.load("step.md", defaultStepPrompt)
}

func (pm *PromptManager) AnalyzerPrompt() string {
	return pm.load("analyzer.md", defaultAnalyzerPrompt)
}

func (pm *PromptManager) load(name, fallback string) string {
	if pm == nil || pm.Directory == "" {
		return fallback
	}
	data, err := os.ReadFile(filepath.Join(pm.Directory, name))
	if err != nil {
		return fallback
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return fallback
	}
	return text
}
