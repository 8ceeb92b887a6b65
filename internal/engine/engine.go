// Package engine implements the engine and scheduler (C5): the pipeline
// state machine that advances steps through Pending -> Running ->
// Completed/Failed, honours retry counts, and re-enqueues steps when
// routing creates intentional loops.
//
// The fan-out/wait/mutate-after-join shape for concurrent scheduling
// strategies follows the teacher's own map-step handling
// (src/cluster/executor.go's runPipeline, src/runtime/runtime.go's
// StepMap branch): a sync.WaitGroup collects results from disjoint
// subprocess executions, and the shared pipeline is only ever mutated
// back on the engine's own goroutine once every concurrent call in the
// batch has returned (spec.md §5 "mutated only after each concurrent
// execution completes").
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pipectl/internal/agent"
	"pipectl/internal/event"
	"pipectl/internal/pattern"
	"pipectl/internal/pipeline"
	"pipectl/internal/step"
)

const pollInterval = 100 * time.Millisecond

// Executor is the subset of *step.Executor the engine depends on.
type Executor interface {
	Execute(ctx context.Context, s *pipeline.Step, vars map[string]string, observer agent.Observer, interrupted step.InterruptChecker) step.Outcome
}

// Engine drives a single pipeline to completion (C5).
type Engine struct {
	pipeline    *pipeline.Pipeline
	scheduler   Scheduler
	executor    Executor
	executionID string

	mu        sync.Mutex
	queue     []string
	observers []LifecycleObserver

	interruptRequested atomic.Bool
	unrecovered        atomic.Bool
}

// New builds an Engine for one run of p using sched as the scheduling
// strategy and exec to execute individual steps.
func New(p *pipeline.Pipeline, sched Scheduler, exec Executor, executionID string) *Engine {
	return &Engine{pipeline: p, scheduler: sched, executor: exec, executionID: executionID}
}

// RegisterObserver adds obs to the set notified of every lifecycle event.
func (e *Engine) RegisterObserver(obs LifecycleObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, obs)
}

// RequestInterrupt sets a flag that the executor consults when a step's
// driver call fails: a step whose call fails after the flag is set is
// reported as Interrupted (and left Blocked) instead of Failed. The flag
// does not stop an in-flight step or keep further steps from starting.
func (e *Engine) RequestInterrupt() {
	e.interruptRequested.Store(true)
}

func (e *Engine) emit(ev LifecycleEvent) {
	ev.ExecutionID = e.executionID
	e.mu.Lock()
	observers := make([]LifecycleObserver, len(e.observers))
	copy(observers, e.observers)
	e.mu.Unlock()
	for _, obs := range observers {
		obs.ObserveLifecycle(ev)
	}
}

func (e *Engine) enqueue(id string) {
	if id == "" {
		return
	}
	e.queue = append(e.queue, id)
}

// resetToRetrying transitions id back to Retrying if it is currently
// terminal, incrementing its attempt counter from its prior attempts
// (spec.md §4.5 "Routing and attempt reset"). A non-terminal target
// (e.g. still Pending on its first pass through the pipeline) is left
// untouched — it will become ready on its own once its dependencies are
// satisfied.
func (e *Engine) resetToRetrying(id string) {
	if id == "" {
		return
	}
	s := e.pipeline.Steps[id]
	if s.State.IsTerminal() {
		s.State = pipeline.StepState{Kind: pipeline.StateRetrying, Attempt: s.State.PriorAttempts() + 1}
	}
}

func deriveAttempt(s *pipeline.Step) int {
	switch s.State.Kind {
	case pipeline.StatePending:
		return 1
	case pipeline.StateRetrying:
		return s.State.Attempt
	case pipeline.StateRunning:
		return s.State.Attempt + 1
	default:
		return s.State.PriorAttempts() + 1
	}
}

// Run drives the pipeline to completion (spec.md §4.5 "Main loop").
func (e *Engine) Run(ctx context.Context) (*pipeline.State, error) {
	state := &pipeline.State{
		ExecutionID: e.executionID,
		Status:      pipeline.StatusRunning,
		StartedAt:   time.Now(),
		Total:       len(e.pipeline.Steps),
	}
	e.emit(LifecycleEvent{Kind: EventPipelineStarted, PipelineStatus: state.Status})

	for {
		if ctx.Err() != nil {
			state.Status = pipeline.StatusCancelled
			return state, ctx.Err()
		}

		runningCount := countRunning(e.pipeline)
		batch := e.nextBatch(runningCount)

		if len(batch) == 0 {
			if allTerminal(e.pipeline) {
				break
			}
			if runningCount == 0 {
				state.Status = pipeline.StatusFailed
				e.emit(LifecycleEvent{Kind: EventPipelineCompleted, PipelineStatus: state.Status, Error: "stuck pipeline: no runnable and no running steps"})
				return state, fmt.Errorf("engine: stuck pipeline: no runnable and no running steps")
			}
			time.Sleep(pollInterval)
			continue
		}

		e.executeBatch(ctx, batch, state)
		e.updateCounts(state)
	}

	e.updateCounts(state)
	now := time.Now()
	state.CompletedAt = &now
	if e.unrecovered.Load() {
		state.Status = pipeline.StatusFailed
	} else {
		state.Status = pipeline.StatusCompleted
	}
	e.emit(LifecycleEvent{Kind: EventPipelineCompleted, PipelineStatus: state.Status})
	return state, nil
}

// nextBatch consults the explicit queue first, then the ready set, and
// asks the scheduler to pick a capacity-respecting subset (spec.md §4.5,
// §9 "Scheduler explicit queue").
func (e *Engine) nextBatch(runningCount int) []string {
	ready := readySteps(e.pipeline)
	readySet := make(map[string]bool, len(ready))
	for _, id := range ready {
		readySet[id] = true
	}

	fromQueue := make(map[string]bool, len(e.queue))
	var candidates []string
	var stillQueued []string
	for _, id := range e.queue {
		if readySet[id] && !fromQueue[id] {
			candidates = append(candidates, id)
			fromQueue[id] = true
		} else if !fromQueue[id] {
			stillQueued = append(stillQueued, id)
		}
	}
	for _, id := range ready {
		if !fromQueue[id] {
			candidates = append(candidates, id)
		}
	}

	batch := e.scheduler.Select(candidates, runningCount)
	chosen := make(map[string]bool, len(batch))
	for _, id := range batch {
		chosen[id] = true
	}

	e.queue = stillQueued
	for _, id := range candidates {
		if fromQueue[id] && !chosen[id] {
			e.queue = append(e.queue, id)
		}
	}
	return batch
}

type batchResult struct {
	id      string
	outcome step.Outcome
}

func (e *Engine) executeBatch(ctx context.Context, batch []string, state *pipeline.State) {
	results := make([]batchResult, len(batch))
	var wg sync.WaitGroup

	for i, id := range batch {
		s := e.pipeline.Steps[id]
		attempt := deriveAttempt(s)

		if attempt-1 > s.MaxRetries {
			// Never ran: attempt is the try that would have started, so the
			// count of attempts actually executed is attempt-1.
			s.State.Attempt = attempt - 1
			results[i] = batchResult{id, step.Outcome{
				Kind:  step.OutcomeFailed,
				Error: fmt.Sprintf("exceeded retry limit of %d", s.MaxRetries),
			}}
			continue
		}

		s.State = pipeline.StepState{Kind: pipeline.StateRunning, Attempt: attempt, StartedAt: time.Now()}
		e.emit(LifecycleEvent{Kind: EventStepStarted, StepID: id, Attempt: attempt})
		if attempt > 1 {
			e.emit(LifecycleEvent{Kind: EventStepRetrying, StepID: id, Attempt: attempt, MaxRetries: s.MaxRetries})
		}

		wg.Add(1)
		go func(i int, id string, s *pipeline.Step) {
			defer wg.Done()
			vars := e.pipeline.BuildContext(id)
			observer := stepObserver{engine: e, stepID: id}
			interrupted := func() bool { return e.interruptRequested.Load() }
			outcome := e.executor.Execute(ctx, s, vars, observer, interrupted)
			results[i] = batchResult{id, outcome}
		}(i, id, s)
	}

	wg.Wait()

	for _, r := range results {
		e.applyOutcome(r.id, r.outcome, state)
	}
}

func (e *Engine) applyOutcome(id string, outcome step.Outcome, state *pipeline.State) {
	s := e.pipeline.Steps[id]
	attempt := s.State.Attempt
	startedAt := s.State.StartedAt

	switch outcome.Kind {
	case step.OutcomeSuccess:
		s.State = pipeline.StepState{Kind: pipeline.StateCompleted, Output: outcome.Output, Attempts: attempt, StartedAt: startedAt, CompletedAt: time.Now()}
		e.emit(LifecycleEvent{Kind: EventStepCompleted, StepID: id, NextStep: outcome.Next})
		if outcome.HasNext {
			e.resetToRetrying(outcome.Next)
			e.enqueue(outcome.Next)
		}

	case step.OutcomeContinue:
		if outcome.Action == pattern.ActionRoute {
			s.State = pipeline.StepState{Kind: pipeline.StateCompleted, Output: "", Attempts: attempt, StartedAt: startedAt, CompletedAt: time.Now()}
			e.emit(LifecycleEvent{Kind: EventStepContinued, StepID: id, Action: pattern.ActionRoute, NextStep: outcome.Target})
			e.resetToRetrying(outcome.Target)
			e.enqueue(outcome.Target)
			e.emit(LifecycleEvent{Kind: EventStepRerouted, StepID: id, NextStep: outcome.Target})
		} else {
			s.State = pipeline.StepState{Kind: pipeline.StateRetrying, Attempt: attempt + 1}
			e.emit(LifecycleEvent{Kind: EventStepContinued, StepID: id, Action: pattern.ActionRetry})
			e.enqueue(id)
		}

	case step.OutcomeFailedWithRoute:
		s.State = pipeline.StepState{Kind: pipeline.StateFailed, Error: outcome.Error, Attempts: attempt, LastStartedAt: startedAt, FailedAt: time.Now()}
		e.emit(LifecycleEvent{Kind: EventStepFailed, StepID: id, Error: outcome.Error})
		e.resetToRetrying(outcome.Next)
		e.enqueue(outcome.Next)
		e.emit(LifecycleEvent{Kind: EventStepRerouted, StepID: id, NextStep: outcome.Next})

	case step.OutcomeFailed:
		s.State = pipeline.StepState{Kind: pipeline.StateFailed, Error: outcome.Error, Attempts: attempt, LastStartedAt: startedAt, FailedAt: time.Now()}
		e.unrecovered.Store(true)
		e.emit(LifecycleEvent{Kind: EventStepFailed, StepID: id, Error: outcome.Error})

	case step.OutcomeInterrupted:
		s.State = pipeline.StepState{Kind: pipeline.StateBlocked, Reason: "interrupted", BlockedAt: time.Now()}
		e.emit(LifecycleEvent{Kind: EventStepFailed, StepID: id, Error: "interrupted"})
	}
}

func (e *Engine) updateCounts(state *pipeline.State) {
	var completed, failed, running int
	for _, s := range e.pipeline.Steps {
		switch s.State.Kind {
		case pipeline.StateCompleted:
			completed++
		case pipeline.StateFailed:
			failed++
		case pipeline.StateRunning:
			running++
		}
	}
	state.Completed = completed
	state.Failed = failed
	state.Running = running
}

// stepObserver adapts one step's driver events into the engine's
// StepOutput lifecycle stream.
type stepObserver struct {
	engine *Engine
	stepID string
}

func (o stepObserver) Observe(e event.Event) {
	o.engine.emit(LifecycleEvent{Kind: EventStepOutput, StepID: o.stepID, RawEvent: e})
}
