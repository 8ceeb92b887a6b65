package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"pipectl/internal/engine"
)

// Observer adapts the engine's synchronous LifecycleObserver interface to
// the bubbletea program's channel-driven Update loop (spec.md §6
// "Observer interface"; §9 "Observer dispatch" — minimal work per event,
// offload the rest). ObserveLifecycle must never block the engine's
// reader goroutine, so the channel is buffered generously and a full
// channel drops the event rather than stalling pipeline execution.
type Observer struct {
	events chan engine.LifecycleEvent
}

// NewObserver builds an Observer ready to register with an engine.Engine.
func NewObserver() *Observer {
	return &Observer{events: make(chan engine.LifecycleEvent, 256)}
}

// ObserveLifecycle implements engine.LifecycleObserver.
func (o *Observer) ObserveLifecycle(ev engine.LifecycleEvent) {
	select {
	case o.events <- ev:
	default:
		// Channel full: the renderer fell behind. Drop rather than block
		// the engine, matching spec.md §9's "minimal work per event" rule.
	}
}

// Close signals the TUI program that no more events are coming, letting
// its event-reading Cmd return and the program exit Run() cleanly once
// the user is done browsing the final state.
func (o *Observer) Close() {
	close(o.events)
}

// RunTUI starts the bubbletea program reading from obs and returns when
// the user quits (q / ctrl+c); closing the event channel stops event
// reading but does not end the program. Mirrors the teacher's own RunTUI entry point
// (src/cluster/tui/app.go) but wires bubbletea instead of tooey, matching
// the Model in this package.
func RunTUI(obs *Observer) error {
	p := tea.NewProgram(NewModel(obs.events))
	_, err := p.Run()
	return err
}
