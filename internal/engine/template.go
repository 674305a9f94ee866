package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TemplateStep is one pre-defined step of a saved workflow template. The
// hint is folded into the step's initial system record.
type TemplateStep struct {
	Name string `yaml:"name"`
	Goal string `yaml:"goal"`
	Hint string `yaml:"hint,omitempty"`
}

// Template is a saved workflow: a goal plus an ordered list of steps that
// bypasses the model planner.
type Template struct {
	Name  string         `yaml:"name"`
	Goal  string         `yaml:"goal,omitempty"`
	Steps []TemplateStep `yaml:"steps"`
}

// LoadTemplate reads a plan template from a YAML file.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	var tpl Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", path, err)
	}
	if len(tpl.Steps) == 0 {
		return nil, fmt.Errorf("template %s defines no steps", path)
	}
	return &tpl, nil
}
