// Package step implements the step executor (C4): prompt rendering,
// invoking the subprocess driver, and translating the pattern matcher's
// verdict into an ExecutionOutcome for the engine to act on.
package step

import (
	"context"
	"time"

	"pipectl/internal/agent"
	"pipectl/internal/pattern"
	"pipectl/internal/pipeline"
)

// Runner is the subset of *agent.Driver the executor depends on. Tests
// substitute a fake, the same seam the teacher's ClaudeFunc type gives
// its own executor (src/cluster/executor.go).
type Runner interface {
	Run(ctx context.Context, prompt string, timeout time.Duration, observer agent.Observer) (agent.Response, error)
}

// OutcomeKind enumerates the ExecutionOutcome variants (spec.md §4.4).
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeContinue
	OutcomeFailedWithRoute
	OutcomeFailed
	OutcomeInterrupted
)

// Outcome is the tagged result of executing one step once.
type Outcome struct {
	Kind OutcomeKind

	// OutcomeSuccess
	Output  string
	Next    string
	HasNext bool

	// OutcomeContinue
	Action pattern.Action
	Target string

	// OutcomeFailedWithRoute, OutcomeFailed
	Error string

	// OutcomeInterrupted
	StepID             string
	PartialOutput      string
	RecentContextLines []string
	OriginalPrompt     string
}

// Executor is the step executor (C4).
type Executor struct {
	Runner Runner
}

// New builds an Executor over the given Runner (typically *agent.Driver).
func New(r Runner) *Executor {
	return &Executor{Runner: r}
}

// InterruptChecker is consulted after the driver call returns an error, to
// distinguish a cooperative interruption from a genuine failure (spec.md
// §4.4, §5 "Cancellation and partial output"). A nil checker means
// interruption is never reported.
type InterruptChecker func() bool

// Execute renders step's effective prompt, invokes the driver, and
// classifies the reply. observer receives every streamed event; it may be
// nil. interrupted, if non-nil, is consulted only when the driver call
// fails, to decide between Failed and Interrupted.
func (e *Executor) Execute(ctx context.Context, s *pipeline.Step, vars map[string]string, observer agent.Observer, interrupted InterruptChecker) Outcome {
	successSentinel := ""
	if s.Termination != nil {
		successSentinel = s.Termination.SuccessPattern.Source()
	}
	continuationSentinel := ""
	if s.Continuation != nil {
		continuationSentinel = s.Continuation.Pattern.Source()
	}

	prompt := effectivePrompt(s.Prompt, vars, successSentinel, continuationSentinel, s.Termination != nil, s.Continuation != nil)

	timeout := time.Duration(s.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	resp, err := e.Runner.Run(ctx, prompt, timeout, observer)
	if err != nil {
		if interrupted != nil && interrupted() {
			return Outcome{
				Kind:               OutcomeInterrupted,
				StepID:             s.ID,
				PartialOutput:      resp.Content,
				RecentContextLines: nil,
				OriginalPrompt:     prompt,
			}
		}
		return Outcome{Kind: OutcomeFailed, Error: err.Error()}
	}

	verdict := pattern.Classify(resp.Content, s.Continuation, s.Termination)
	switch verdict.Kind {
	case pattern.VerdictSuccess:
		return Outcome{Kind: OutcomeSuccess, Output: resp.Content, Next: verdict.Next, HasNext: verdict.Next != ""}
	case pattern.VerdictContinue:
		return Outcome{Kind: OutcomeContinue, Action: verdict.Action, Target: verdict.Next}
	case pattern.VerdictFailedWithRoute:
		return Outcome{Kind: OutcomeFailedWithRoute, Error: "pattern unmatched", Next: verdict.Next}
	default: // VerdictRetry
		return Outcome{Kind: OutcomeContinue, Action: pattern.ActionRetry}
	}
}
