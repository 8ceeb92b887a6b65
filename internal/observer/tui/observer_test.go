package tui

import (
	"testing"

	"pipectl/internal/engine"
)

func TestObserverDeliversEventsToChannel(t *testing.T) {
	obs := NewObserver()
	obs.ObserveLifecycle(engine.LifecycleEvent{Kind: engine.EventStepStarted, StepID: "plan"})

	select {
	case ev := <-obs.events:
		if ev.StepID != "plan" {
			t.Fatalf("expected step id %q, got %q", "plan", ev.StepID)
		}
	default:
		t.Fatal("expected event to be delivered without blocking")
	}
}

func TestObserverDropsWhenChannelFull(t *testing.T) {
	obs := &Observer{events: make(chan engine.LifecycleEvent, 1)}
	obs.ObserveLifecycle(engine.LifecycleEvent{Kind: engine.EventStepStarted, StepID: "first"})
	obs.ObserveLifecycle(engine.LifecycleEvent{Kind: engine.EventStepStarted, StepID: "second"})

	ev := <-obs.events
	if ev.StepID != "first" {
		t.Fatalf("expected first event to survive, got %q", ev.StepID)
	}
	select {
	case <-obs.events:
		t.Fatal("expected second event to have been dropped, not queued")
	default:
	}
}

func TestObserverCloseEndsChannel(t *testing.T) {
	obs := NewObserver()
	obs.Close()
	if _, ok := <-obs.events; ok {
		t.Fatal("expected channel to be closed")
	}
}
