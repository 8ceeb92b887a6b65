package engine

import "pipectl/internal/pipeline"

// Scheduler selects which ready step ids to run on one tick, given the
// full candidate list (explicit-queue entries first, FIFO, followed by
// the rest of the ready set in topological order) and how many steps are
// currently Running (spec.md §4.5).
type Scheduler interface {
	Select(candidates []string, runningCount int) []string
}

// Sequential returns at most one step per tick: the first candidate.
type Sequential struct{}

func (Sequential) Select(candidates []string, _ int) []string {
	if len(candidates) == 0 {
		return nil
	}
	return candidates[:1]
}

// Parallel returns every ready candidate.
type Parallel struct{}

func (Parallel) Select(candidates []string, _ int) []string {
	return candidates
}

// LimitedParallel caps the number of steps running at once at N.
type LimitedParallel struct {
	N int
}

func (s LimitedParallel) Select(candidates []string, runningCount int) []string {
	capacity := s.N - runningCount
	if capacity <= 0 {
		return nil
	}
	if capacity > len(candidates) {
		capacity = len(candidates)
	}
	return candidates[:capacity]
}

// readySteps returns, in topological order, every step whose own state is
// Pending or Retrying and whose dependencies are all terminal (spec.md
// §4.5; dependency satisfaction counts both Completed and Failed).
func readySteps(p *pipeline.Pipeline) []string {
	var ready []string
	for _, id := range p.Order() {
		s := p.Steps[id]
		if s.State.Kind != pipeline.StatePending && s.State.Kind != pipeline.StateRetrying {
			continue
		}
		ok := true
		for _, dep := range s.DependsOn {
			if !p.Steps[dep].State.IsTerminal() {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	return ready
}

func countRunning(p *pipeline.Pipeline) int {
	n := 0
	for _, s := range p.Steps {
		if s.State.Kind == pipeline.StateRunning {
			n++
		}
	}
	return n
}

func allTerminal(p *pipeline.Pipeline) bool {
	for _, s := range p.Steps {
		if !s.State.IsTerminal() {
			return false
		}
	}
	return true
}
