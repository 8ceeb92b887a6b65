// Package config implements the pipeline YAML loader (C6): decoding the
// external document shape spec.md §6 describes into validated
// pipeline.Pipeline and pattern.* values, struct-tagged the way the
// corpus's own config types are (e.g. akatz-ai-meow's internal/types.Step).
package config

// VariableDoc is a raw decoded "variables" entry. YAML lets a mapping
// value be either a bare scalar (literal) or a nested mapping (file
// reference); yaml.v3 decodes scalars into VariableDoc.Literal via
// UnmarshalYAML below rather than forcing the author to always write the
// long form.
type VariableDoc struct {
	Literal        string
	IsFile         bool
	Path           string `yaml:"path"`
	ValidateExists bool   `yaml:"validate_exists"`
}

// UnmarshalYAML accepts either a bare string or a {path, validate_exists}
// mapping for one variables entry (spec.md §6).
func (v *VariableDoc) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var literal string
	if err := unmarshal(&literal); err == nil {
		v.Literal = literal
		v.IsFile = false
		return nil
	}
	var file struct {
		Path           string `yaml:"path"`
		ValidateExists bool   `yaml:"validate_exists"`
	}
	if err := unmarshal(&file); err != nil {
		return err
	}
	v.IsFile = true
	v.Path = file.Path
	v.ValidateExists = file.ValidateExists
	return nil
}

// TerminationDoc decodes a step's "termination" block.
type TerminationDoc struct {
	SuccessPattern string `yaml:"success_pattern"`
	OnSuccess      string `yaml:"on_success"`
	OnFailure      string `yaml:"on_failure"`
	UseRegex       bool   `yaml:"use_regex"`
}

// ContinuationDoc decodes a step's "continuation" block.
type ContinuationDoc struct {
	Pattern  string `yaml:"pattern"`
	Action   string `yaml:"action"` // "retry" | "route"
	Target   string `yaml:"target"`
	UseRegex bool   `yaml:"use_regex"`
}

// StepDoc decodes one entry of the "steps" list.
type StepDoc struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Prompt      string           `yaml:"prompt"`
	DependsOn   []string         `yaml:"depends_on"`
	Termination *TerminationDoc  `yaml:"termination"`
	Continuation *ContinuationDoc `yaml:"continuation"`
	MaxRetries  *int             `yaml:"max_retries"`
	TimeoutSecs *int             `yaml:"timeout_secs"`
}

// PipelineDocument is the YAML root (spec.md §6, SPEC_FULL.md §3).
type PipelineDocument struct {
	Name               string                 `yaml:"name"`
	Version            string                 `yaml:"version"`
	Variables          map[string]VariableDoc `yaml:"variables"`
	Steps              []StepDoc              `yaml:"steps"`
	MaxRetries         *int                   `yaml:"max_retries"`
	DefaultTimeoutSecs *int                   `yaml:"default_timeout_secs"`
}
