// Package pipeline holds the core data model (spec.md §3): the Pipeline
// and Step definitions, their mutable execution state, and the pipeline
// as a whole's aggregate state.
package pipeline

import (
	"fmt"
	"time"

	"pipectl/internal/pattern"
)

// VariableValue is either a literal string or a file reference rendered
// as "@<path>" (spec.md §3). The "@" prefix is a signal to the agent, not
// interpreted here.
type VariableValue struct {
	Literal        string
	IsFile         bool
	Path           string
	ValidateExists bool
}

// Render produces the string substituted into a prompt template.
func (v VariableValue) Render() string {
	if v.IsFile {
		return "@" + v.Path
	}
	return v.Literal
}

// StateKind enumerates the tagged StepState variants (spec.md §3).
type StateKind int

const (
	StatePending StateKind = iota
	StateRetrying
	StateRunning
	StateCompleted
	StateFailed
	StateSkipped
	StateBlocked
)

func (k StateKind) String() string {
	switch k {
	case StatePending:
		return "pending"
	case StateRetrying:
		return "retrying"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	case StateBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// StepState is a tagged union over the seven variants spec.md §3 names.
// Only the fields relevant to Kind are meaningful at any one time.
type StepState struct {
	Kind StateKind

	Attempt int // Retrying, Running

	Output      string // Completed
	Attempts    int    // Completed, Failed
	StartedAt   time.Time
	CompletedAt time.Time // Completed

	Error         string // Failed
	LastStartedAt time.Time
	FailedAt      time.Time

	Reason    string // Skipped, Blocked
	BlockedAt time.Time
}

// IsTerminal reports whether this state is Completed, Failed, or Skipped
// (spec.md §3).
func (s StepState) IsTerminal() bool {
	switch s.Kind {
	case StateCompleted, StateFailed, StateSkipped:
		return true
	default:
		return false
	}
}

// PriorAttempts returns the attempts recorded by a terminal state, used
// to compute the next attempt number when routing re-enters a step
// (spec.md §4.5 "Routing and attempt reset").
func (s StepState) PriorAttempts() int {
	switch s.Kind {
	case StateCompleted, StateFailed:
		return s.Attempts
	default:
		return 0
	}
}

// Step is one prompt-execution unit (spec.md §3).
type Step struct {
	ID           string
	Prompt       string
	DependsOn    []string
	Termination  *pattern.TerminationCondition
	Continuation *pattern.ContinuationCondition
	MaxRetries   int
	TimeoutSecs  int

	State StepState
}

// Pipeline is an immutable-after-load set of steps plus the variable map
// and dependency order computed at construction (spec.md §3).
type Pipeline struct {
	Name      string
	Steps     map[string]*Step
	Variables map[string]VariableValue

	// order is the topological order over the depends_on subgraph,
	// computed once (spec.md §9 "Topological order + intentional cycles").
	order []string
}

// New validates and constructs a Pipeline from its steps and variables.
// Validation covers: every depends_on/on_success/on_failure/target
// references an existing step id, and the depends_on subgraph is acyclic.
// Cycles expressed through on_success/on_failure/continuation targets are
// permitted and expected (spec.md §3, §9).
func New(name string, steps map[string]*Step, variables map[string]VariableValue) (*Pipeline, error) {
	for id, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := steps[dep]; !ok {
				return nil, fmt.Errorf("pipeline: step %q depends_on unknown step %q", id, dep)
			}
		}
		if step.Termination != nil {
			if step.Termination.OnSuccess != "" {
				if _, ok := steps[step.Termination.OnSuccess]; !ok {
					return nil, fmt.Errorf("pipeline: step %q on_success references unknown step %q", id, step.Termination.OnSuccess)
				}
			}
			if step.Termination.OnFailure != "" {
				if _, ok := steps[step.Termination.OnFailure]; !ok {
					return nil, fmt.Errorf("pipeline: step %q on_failure references unknown step %q", id, step.Termination.OnFailure)
				}
			}
		}
		if step.Continuation != nil && step.Continuation.Action == pattern.ActionRoute {
			if _, ok := steps[step.Continuation.Target]; !ok {
				return nil, fmt.Errorf("pipeline: step %q continuation target references unknown step %q", id, step.Continuation.Target)
			}
		}
	}

	order, err := topoOrder(steps)
	if err != nil {
		return nil, err
	}

	return &Pipeline{Name: name, Steps: steps, Variables: variables, order: order}, nil
}

// Order returns the topological order over the depends_on subgraph.
func (p *Pipeline) Order() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// topoOrder computes a deterministic topological order over depends_on
// edges only (never on_success/on_failure/continuation target), detecting
// cycles restricted to that subgraph (spec.md §3, §9).
func topoOrder(steps map[string]*Step) ([]string, error) {
	ids := make([]string, 0, len(steps))
	for id := range steps {
		ids = append(ids, id)
	}
	sortStrings(ids)

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	mark := make(map[string]int, len(steps))
	order := make([]string, 0, len(steps))

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch mark[id] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("pipeline: cycle in depends_on involving step %q", id)
		}
		mark[id] = visiting
		deps := append([]string(nil), steps[id].DependsOn...)
		sortStrings(deps)
		for _, dep := range deps {
			if err := visit(dep, append(path, id)); err != nil {
				return err
			}
		}
		mark[id] = visited
		order = append(order, id)
		return nil
	}

	for _, id := range ids {
		if err := visit(id, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// BuildContext constructs the merged variable map for rendering the
// prompt of currentStepID: globals, every currently-completed step's
// output under "steps.<id>.output", and "current_step" (spec.md §3
// PipelineContext).
func (p *Pipeline) BuildContext(currentStepID string) map[string]string {
	ctx := make(map[string]string, len(p.Variables)+len(p.Steps)+1)
	for name, v := range p.Variables {
		ctx[name] = v.Render()
	}
	for id, step := range p.Steps {
		if step.State.Kind == StateCompleted {
			ctx[fmt.Sprintf("steps.%s.output", id)] = step.State.Output
		}
	}
	ctx["current_step"] = currentStepID
	return ctx
}

// Status is the overall pipeline status (spec.md §3).
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusCancelled
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// State is the aggregate PipelineState (spec.md §3).
type State struct {
	ExecutionID string
	Status      Status
	StartedAt   time.Time
	CompletedAt *time.Time

	Completed int
	Failed    int
	Running   int
	Total     int
}

// Progress returns (completed + failed) / total, or 0 if there are no steps.
func (s State) Progress() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed+s.Failed) / float64(s.Total)
}
