package step

import (
	"context"
	"errors"
	"testing"
	"time"

	"pipectl/internal/agent"
	"pipectl/internal/pattern"
	"pipectl/internal/pipeline"
)

type fakeRunner struct {
	replies []string
	errs    []error
	calls   int
	lastPrompt string
}

func (f *fakeRunner) Run(_ context.Context, prompt string, _ time.Duration, _ agent.Observer) (agent.Response, error) {
	f.lastPrompt = prompt
	idx := f.calls
	f.calls++
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	content := ""
	if idx < len(f.replies) {
		content = f.replies[idx]
	}
	if err != nil {
		return agent.Response{}, err
	}
	return agent.Response{Content: content, Done: true}, nil
}

func TestExecuteSuccessWithNext(t *testing.T) {
	s := &pipeline.Step{
		ID:     "plan",
		Prompt: "write a plan for {{ topic }}",
		Termination: &pattern.TerminationCondition{
			SuccessPattern: pattern.NewLiteral("✅ DONE"), OnSuccess: "implement",
		},
	}
	r := &fakeRunner{replies: []string{"here is the plan ✅ DONE"}}
	e := New(r)
	out := e.Execute(context.Background(), s, map[string]string{"topic": "widgets"}, nil, nil)
	if out.Kind != OutcomeSuccess || !out.HasNext || out.Next != "implement" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if !contains(r.lastPrompt, "widgets") {
		t.Fatalf("expected rendered prompt to contain the substituted variable, got %q", r.lastPrompt)
	}
	if !contains(r.lastPrompt, "✅ DONE") {
		t.Fatalf("expected the success sentinel to appear in the effective prompt, got %q", r.lastPrompt)
	}
}

func TestExecuteUnknownVariableLeftLiteral(t *testing.T) {
	s := &pipeline.Step{ID: "a", Prompt: "use {{ missing }} here"}
	r := &fakeRunner{replies: []string{"✓ DONE"}}
	e := New(r)
	e.Execute(context.Background(), s, map[string]string{}, nil, nil)
	if !contains(r.lastPrompt, "{{ missing }}") {
		t.Fatalf("unknown variables must be left literally, got %q", r.lastPrompt)
	}
}

func TestExecuteDefaultSentinelWhenUnconfigured(t *testing.T) {
	s := &pipeline.Step{ID: "a", Prompt: "do a thing"}
	r := &fakeRunner{replies: []string{"✓ DONE"}}
	e := New(r)
	e.Execute(context.Background(), s, nil, nil, nil)
	if !contains(r.lastPrompt, "✓ DONE") {
		t.Fatalf("expected default DONE sentinel tail, got %q", r.lastPrompt)
	}
}

func TestExecuteContinuationBeatsSuccess(t *testing.T) {
	s := &pipeline.Step{
		ID:          "a",
		Prompt:      "go",
		Termination: &pattern.TerminationCondition{SuccessPattern: pattern.NewLiteral("✅ DONE")},
		Continuation: &pattern.ContinuationCondition{
			Pattern: pattern.NewLiteral("🔄 RETRY"), Action: pattern.ActionRetry,
		},
	}
	r := &fakeRunner{replies: []string{"✅ DONE 🔄 RETRY"}}
	e := New(r)
	out := e.Execute(context.Background(), s, nil, nil, nil)
	if out.Kind != OutcomeContinue || out.Action != pattern.ActionRetry {
		t.Fatalf("expected Continue(Retry) to win, got %+v", out)
	}
}

func TestExecuteDriverErrorBecomesFailed(t *testing.T) {
	s := &pipeline.Step{ID: "a", Prompt: "go"}
	r := &fakeRunner{errs: []error{errors.New("boom")}}
	e := New(r)
	out := e.Execute(context.Background(), s, nil, nil, nil)
	if out.Kind != OutcomeFailed || out.Error == "" {
		t.Fatalf("expected Failed outcome, got %+v", out)
	}
}

func TestExecuteDriverErrorWithInterruptFlagBecomesInterrupted(t *testing.T) {
	s := &pipeline.Step{ID: "a", Prompt: "go"}
	r := &fakeRunner{errs: []error{errors.New("cancelled")}}
	e := New(r)
	out := e.Execute(context.Background(), s, nil, nil, func() bool { return true })
	if out.Kind != OutcomeInterrupted || out.StepID != "a" {
		t.Fatalf("expected Interrupted outcome, got %+v", out)
	}
}

func TestExecuteUnmatchedRoutesOnFailure(t *testing.T) {
	s := &pipeline.Step{
		ID:          "risky",
		Prompt:      "go",
		Termination: &pattern.TerminationCondition{SuccessPattern: pattern.NewLiteral("✅ DONE"), OnFailure: "fallback"},
	}
	r := &fakeRunner{replies: []string{"nope, failed"}}
	e := New(r)
	out := e.Execute(context.Background(), s, nil, nil, nil)
	if out.Kind != OutcomeFailedWithRoute || out.Next != "fallback" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func contains(s, sub string) bool {
	if sub == "" {
		return true
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
