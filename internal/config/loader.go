package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"pipectl/internal/pattern"
	"pipectl/internal/pipeline"
)

const defaultSuccessSentinel = "✓ DONE"

// ValidationError aggregates every violation found while loading a
// pipeline document, rather than stopping at the first (spec.md §6,
// SPEC_FULL.md §4.6): a pipeline author sees every problem in one pass.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %d validation issue(s): %s", len(e.Issues), strings.Join(e.Issues, "; "))
}

func (e *ValidationError) add(format string, args ...interface{}) {
	e.Issues = append(e.Issues, fmt.Sprintf(format, args...))
}

// Load parses raw YAML bytes into a validated pipeline.Pipeline.
func Load(data []byte) (*pipeline.Pipeline, error) {
	var doc PipelineDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing yaml: %w", err)
	}
	return build(&doc)
}

func build(doc *PipelineDocument) (*pipeline.Pipeline, error) {
	verr := &ValidationError{}

	ids := make(map[string]bool, len(doc.Steps))
	for _, sd := range doc.Steps {
		if sd.ID == "" {
			verr.add("step with empty id")
			continue
		}
		if ids[sd.ID] {
			verr.add("duplicate step id %q", sd.ID)
			continue
		}
		ids[sd.ID] = true
	}

	defaultMaxRetries := 0
	if doc.MaxRetries != nil {
		defaultMaxRetries = *doc.MaxRetries
	}
	defaultTimeout := 0
	if doc.DefaultTimeoutSecs != nil {
		defaultTimeout = *doc.DefaultTimeoutSecs
	}

	steps := make(map[string]*pipeline.Step, len(doc.Steps))
	for _, sd := range doc.Steps {
		if sd.ID == "" {
			continue // already reported above
		}

		for _, dep := range sd.DependsOn {
			if dep != "" && !stepIDExists(doc.Steps, dep) {
				verr.add("step %q depends_on unknown step %q", sd.ID, dep)
			}
		}

		var termination *pattern.TerminationCondition
		if sd.Termination != nil {
			if sd.Termination.SuccessPattern == "" {
				verr.add("step %q termination.success_pattern is required", sd.ID)
			}
			if sd.Termination.OnSuccess != "" && !stepIDExists(doc.Steps, sd.Termination.OnSuccess) {
				verr.add("step %q termination.on_success references unknown step %q", sd.ID, sd.Termination.OnSuccess)
			}
			if sd.Termination.OnFailure != "" && !stepIDExists(doc.Steps, sd.Termination.OnFailure) {
				verr.add("step %q termination.on_failure references unknown step %q", sd.ID, sd.Termination.OnFailure)
			}
			termination = &pattern.TerminationCondition{
				SuccessPattern: buildPattern(sd.Termination.SuccessPattern, sd.Termination.UseRegex),
				OnSuccess:      sd.Termination.OnSuccess,
				OnFailure:      sd.Termination.OnFailure,
			}
		}

		var continuation *pattern.ContinuationCondition
		if sd.Continuation != nil {
			action, err := parseAction(sd.Continuation.Action)
			if err != nil {
				verr.add("step %q continuation.action: %v", sd.ID, err)
			}
			if action == pattern.ActionRoute {
				if sd.Continuation.Target == "" {
					verr.add("step %q continuation action \"route\" requires a target", sd.ID)
				} else if !stepIDExists(doc.Steps, sd.Continuation.Target) {
					verr.add("step %q continuation target references unknown step %q", sd.ID, sd.Continuation.Target)
				}
			}
			continuation = &pattern.ContinuationCondition{
				Pattern: buildPattern(sd.Continuation.Pattern, sd.Continuation.UseRegex),
				Action:  action,
				Target:  sd.Continuation.Target,
			}
		}

		if termination == nil && continuation == nil {
			termination = &pattern.TerminationCondition{SuccessPattern: pattern.NewLiteral(defaultSuccessSentinel)}
		}

		maxRetries := defaultMaxRetries
		if sd.MaxRetries != nil {
			maxRetries = *sd.MaxRetries
		}
		timeoutSecs := defaultTimeout
		if sd.TimeoutSecs != nil {
			timeoutSecs = *sd.TimeoutSecs
		}

		steps[sd.ID] = &pipeline.Step{
			ID:           sd.ID,
			Prompt:       sd.Prompt,
			DependsOn:    sd.DependsOn,
			Termination:  termination,
			Continuation: continuation,
			MaxRetries:   maxRetries,
			TimeoutSecs:  timeoutSecs,
		}
	}

	variables := make(map[string]pipeline.VariableValue, len(doc.Variables))
	for name, v := range doc.Variables {
		if v.IsFile {
			if v.ValidateExists {
				if _, err := os.Stat(v.Path); err != nil {
					verr.add("variable %q: file %q does not exist", name, v.Path)
				}
			}
			variables[name] = pipeline.VariableValue{IsFile: true, Path: v.Path, ValidateExists: v.ValidateExists}
		} else {
			variables[name] = pipeline.VariableValue{Literal: v.Literal}
		}
	}

	if len(verr.Issues) > 0 {
		return nil, verr
	}

	p, err := pipeline.New(doc.Name, steps, variables)
	if err != nil {
		// pipeline.New only returns an error here for a depends_on cycle,
		// since every reference was already validated above.
		return nil, &ValidationError{Issues: []string{err.Error()}}
	}
	return p, nil
}

func stepIDExists(steps []StepDoc, id string) bool {
	for _, sd := range steps {
		if sd.ID == id {
			return true
		}
	}
	return false
}

func buildPattern(source string, useRegex bool) pattern.Pattern {
	if useRegex {
		return pattern.NewRegex(source)
	}
	return pattern.NewLiteral(source)
}

func parseAction(s string) (pattern.Action, error) {
	switch s {
	case "", "retry":
		return pattern.ActionRetry, nil
	case "route":
		return pattern.ActionRoute, nil
	default:
		return pattern.ActionRetry, fmt.Errorf("unknown action %q, want \"retry\" or \"route\"", s)
	}
}
