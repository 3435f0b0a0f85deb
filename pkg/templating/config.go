package templating

// TemplateConfig holds all configuration options for the form engine.
type TemplateConfig struct {
	// MaxLength caps the length of a single generated line, in the line's metric.
	MaxLength int `json:"max_length" yaml:"max_length"`

	// MaxLines caps the number of lines a single "lines" call may produce.
	MaxLines int `json:"max_lines" yaml:"max_lines"`

	// MaxAttempts and MaxSteps bound generation for every line of a form.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
	MaxSteps    int `json:"max_steps" yaml:"max_steps"`

	// DefaultMetric is used when the form data does not name one.
	DefaultMetric string `json:"default_metric" yaml:"default_metric"`
}

// DefaultConfig returns a TemplateConfig with safe default values.
func DefaultConfig() TemplateConfig {
	return TemplateConfig{
		MaxLength:     64,
		MaxLines:      32,
		MaxAttempts:   64,
		MaxSteps:      64,
		DefaultMetric: "mora",
	}
}
