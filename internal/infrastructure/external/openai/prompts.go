package openai

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptConfig holds the prompts and model parameters used for receipt extraction
type PromptConfig struct {
	ReceiptExtraction struct {
		Temperature  float32 `yaml:"temperature"`
		MaxTokens    int     `yaml:"max_tokens"`
		System       string  `yaml:"system"`
		UserTemplate string  `yaml:"user_template"`
	} `yaml:"receipt_extraction"`
}

const defaultPromptsYAML = `
receipt_extraction:
  temperature: 0.1
  max_tokens: 1024
  system: >-
    You read receipts and invoices for a corporate expense system.
    Extract exactly what is printed. Always respond with a single JSON object.
  user_template: |-
    Extract the following fields from the attached {{.Pages}}-page {{.MediaType}} document:
    - vendor: merchant or supplier name
    - amount: grand total as a plain number, no currency symbol
    - currency: ISO 4217 code, e.g. USD
    - date: transaction date as YYYY-MM-DD
    - invoice_number: receipt or invoice number
    - category: one of {{range $i, $c := .Categories}}{{if $i}}, {{end}}{{$c}}{{end}}
    - confidence: your certainty in the extraction between 0.0 and 1.0

    Respond with:
    {"vendor": "", "amount": 0, "currency": "", "date": "", "invoice_number": "", "category": "", "confidence": 0}

    Use "" or 0 for anything not visible. Do not guess.
`

// DefaultPrompts returns the built-in prompt configuration
func DefaultPrompts() *PromptConfig {
	var prompts PromptConfig
	if err := yaml.Unmarshal([]byte(defaultPromptsYAML), &prompts); err != nil {
		panic(fmt.Sprintf("invalid built-in prompts: %v", err))
	}
	return &prompts
}

// LoadPrompts loads prompt configuration from a YAML file. Missing fields keep their defaults.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	prompts := DefaultPrompts()
	if err := yaml.Unmarshal(data, prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	if _, err := template.New("prompt").Parse(prompts.ReceiptExtraction.UserTemplate); err != nil {
		return nil, fmt.Errorf("invalid user_template: %w", err)
	}
	return prompts, nil
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
