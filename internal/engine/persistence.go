package engine

import (
	"time"

	"pipectl/internal/pipeline"
)

// PersistenceSummary is the exact record shape spec.md §6 names, written
// to the external history store at pipeline start and end.
type PersistenceSummary struct {
	ExecutionID    string
	PipelineName   string
	Status         string
	StartedAt      time.Time
	CompletedAt    *time.Time
	Progress       float64
	CompletedSteps int
	TotalSteps     int
}

// Summarize builds the PersistenceSummary for the current state of state.
func Summarize(pipelineName string, state *pipeline.State) PersistenceSummary {
	return PersistenceSummary{
		ExecutionID:    state.ExecutionID,
		PipelineName:   pipelineName,
		Status:         state.Status.String(),
		StartedAt:      state.StartedAt,
		CompletedAt:    state.CompletedAt,
		Progress:       state.Progress(),
		CompletedSteps: state.Completed,
		TotalSteps:     state.Total,
	}
}
