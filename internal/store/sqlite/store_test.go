package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"pipectl/internal/engine"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestInitIdempotent(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "init.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestSaveThenGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	started := time.Now().Truncate(time.Second)
	summary := engine.PersistenceSummary{
		ExecutionID:    "exec-1",
		PipelineName:   "release",
		Status:         "running",
		StartedAt:      started,
		Progress:       0,
		CompletedSteps: 0,
		TotalSteps:     3,
	}
	if err := s.Save(ctx, summary); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := s.Get(ctx, "exec-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected a row for exec-1")
	}
	if got.Status != "running" || got.TotalSteps != 3 || got.CompletedAt != nil {
		t.Fatalf("unexpected summary: %+v", got)
	}
}

func TestSaveUpsertsOnSecondCall(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	started := time.Now().Truncate(time.Second)

	if err := s.Save(ctx, engine.PersistenceSummary{
		ExecutionID: "exec-2", PipelineName: "release", Status: "running",
		StartedAt: started, TotalSteps: 2,
	}); err != nil {
		t.Fatalf("first Save: %v", err)
	}

	completed := started.Add(5 * time.Second)
	if err := s.Save(ctx, engine.PersistenceSummary{
		ExecutionID: "exec-2", PipelineName: "release", Status: "completed",
		StartedAt: started, CompletedAt: &completed, Progress: 1, CompletedSteps: 2, TotalSteps: 2,
	}); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, ok, err := s.Get(ctx, "exec-2")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Status != "completed" || got.CompletedAt == nil || got.Progress != 1 {
		t.Fatalf("expected the upsert to overwrite the row, got %+v", got)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one row after upsert, got %d", len(all))
	}
}

func TestGetMissingReturnsNotOK(t *testing.T) {
	s := testStore(t)
	_, ok, err := s.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for a missing execution id")
	}
}

func TestListOrdersByStartedAtDescending(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Second)

	for i, id := range []string{"a", "b", "c"} {
		if err := s.Save(ctx, engine.PersistenceSummary{
			ExecutionID: id, PipelineName: "p", Status: "completed",
			StartedAt: base.Add(time.Duration(i) * time.Minute), TotalSteps: 1,
		}); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ExecutionID != "c" || all[2].ExecutionID != "a" {
		t.Fatalf("expected most-recently-started first, got %+v", all)
	}
}
