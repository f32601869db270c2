package openai

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// PromptConfig holds the prompt text and sampling parameters used by the analyzer
type PromptConfig struct {
	InvoiceAdjudication struct {
		Temperature     float32 `yaml:"temperature"`
		MaxTokens       int     `yaml:"max_tokens"`
		System          string  `yaml:"system"`
		Acknowledgement string  `yaml:"acknowledgement"`
		UserTemplate    string  `yaml:"user_template"`
	} `yaml:"invoice_adjudication"`
}

// adjudicationInput is the data rendered into the user template
type adjudicationInput struct {
	PolicyText      string
	InvoiceFilename string
	InvoiceText     string
}

// LoadPrompts loads prompts from a YAML file, or the built-in set when path is empty
func LoadPrompts(path string) (*PromptConfig, error) {
	data := defaultPrompts
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompts file: %w", err)
		}
	}

	var prompts PromptConfig
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}
	if prompts.InvoiceAdjudication.System == "" || prompts.InvoiceAdjudication.UserTemplate == "" {
		return nil, fmt.Errorf("prompts file must define invoice_adjudication.system and user_template")
	}

	// fail fast on template syntax errors instead of on the first request
	if _, err := template.New("prompt").Parse(prompts.InvoiceAdjudication.UserTemplate); err != nil {
		return nil, fmt.Errorf("failed to parse user template: %w", err)
	}

	return &prompts, nil
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
