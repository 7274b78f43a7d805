package extract

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// Prompt is one system/user template pair with its token budget.
type Prompt struct {
	System    string `yaml:"system"`
	User      string `yaml:"user"`
	MaxTokens int    `yaml:"max_tokens"`

	tmpl *template.Template
}

// Prompts holds the per-field extraction prompts and the DOB prompt.
type Prompts struct {
	Fields map[string]*Prompt `yaml:"fields"`
	DOB    *Prompt            `yaml:"dob"`
}

// ParsePrompts decodes a prompt set and compiles every user template.
func ParsePrompts(data []byte) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode prompts: %w", err)
	}
	if p.DOB == nil {
		return nil, fmt.Errorf("prompts: dob prompt missing")
	}
	all := map[string]*Prompt{"dob": p.DOB}
	for field, prompt := range p.Fields {
		if prompt == nil {
			return nil, fmt.Errorf("prompts: field %s is empty", field)
		}
		all[field] = prompt
	}
	for name, prompt := range all {
		tmpl, err := template.New(name).Option("missingkey=error").Parse(prompt.User)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s prompt: %w", name, err)
		}
		prompt.tmpl = tmpl
	}
	return &p, nil
}

// DefaultPrompts returns the embedded prompt set.
func DefaultPrompts() *Prompts {
	p, err := ParsePrompts(defaultPromptsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded prompts are invalid: %v", err))
	}
	return p
}

// Render executes the user template with data.
func (p *Prompt) Render(data any) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}
