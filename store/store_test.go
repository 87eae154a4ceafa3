package store_test

import (
	"errors"
	"testing"
	"time"

	"github.com/go-kettle/kettle/store"
)

func TestMemoryStore_RoundTripRollout(t *testing.T) {
	s := store.NewMemory()
	id := store.NewID()

	if err := s.SaveRollout(&store.Rollout{ID: id, Config: map[string]any{"k": "v"}}); err != nil {
		t.Fatalf("SaveRollout: %v", err)
	}

	got, err := s.LoadRollout(id)
	if err != nil {
		t.Fatalf("LoadRollout: %v", err)
	}
	if got.ID != id || got.Config["k"] != "v" {
		t.Fatalf("unexpected rollout: %+v", got)
	}
}

func TestMemoryStore_LoadRolloutNotFound(t *testing.T) {
	s := store.NewMemory()
	if _, err := s.LoadRollout("nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_RootTask(t *testing.T) {
	s := store.NewMemory()
	root := &store.Task{ID: "root", RolloutID: "r1"}
	child := &store.Task{ID: "child", RolloutID: "r1", ParentID: "root"}

	s.SaveTask(root)
	s.SaveTask(child)

	got, err := s.RootTask("r1")
	if err != nil {
		t.Fatalf("RootTask: %v", err)
	}
	if got.ID != "root" {
		t.Fatalf("expected root task, got %+v", got)
	}
}

func TestMemoryStore_RootTaskMissing(t *testing.T) {
	s := store.NewMemory()
	if _, err := s.RootTask("r1"); !errors.Is(err, store.ErrNoRoot) {
		t.Fatalf("expected ErrNoRoot, got %v", err)
	}
}

func TestMemoryStore_RootTaskMultiple(t *testing.T) {
	s := store.NewMemory()
	s.SaveTask(&store.Task{ID: "a", RolloutID: "r1"})
	s.SaveTask(&store.Task{ID: "b", RolloutID: "r1"})

	if _, err := s.RootTask("r1"); !errors.Is(err, store.ErrMultipleRoots) {
		t.Fatalf("expected ErrMultipleRoots, got %v", err)
	}
}

func TestMemoryStore_Children(t *testing.T) {
	s := store.NewMemory()
	s.SaveTask(&store.Task{ID: "root", RolloutID: "r1"})
	s.SaveTask(&store.Task{ID: "c1", RolloutID: "r1", ParentID: "root"})
	s.SaveTask(&store.Task{ID: "c2", RolloutID: "r1", ParentID: "root"})

	children, err := s.Children("root")
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
}

func TestMemoryStore_DeleteTasksForRollout(t *testing.T) {
	s := store.NewMemory()
	s.SaveTask(&store.Task{ID: "root", RolloutID: "r1"})
	s.SaveTask(&store.Task{ID: "other", RolloutID: "r2"})

	if err := s.DeleteTasksForRollout("r1"); err != nil {
		t.Fatalf("DeleteTasksForRollout: %v", err)
	}

	if _, err := s.LoadTask("root"); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("expected root task to be deleted")
	}
	if _, err := s.LoadTask("other"); err != nil {
		t.Fatal("task belonging to a different rollout should survive")
	}
}

func TestTask_Status(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		task store.Task
		want string
	}{
		{"not started", store.Task{}, "not_started"},
		{"started", store.Task{Run: store.ActionRecord{StartDt: &now}}, "started"},
		{
			"finished",
			store.Task{Run: store.ActionRecord{StartDt: &now, ReturnDt: &now}},
			"finished",
		},
		{
			"rolling back",
			store.Task{
				Run:    store.ActionRecord{StartDt: &now, ReturnDt: &now},
				Revert: store.ActionRecord{StartDt: &now},
			},
			"rolling_back",
		},
		{
			"rolled back",
			store.Task{
				Run:    store.ActionRecord{StartDt: &now, ReturnDt: &now},
				Revert: store.ActionRecord{StartDt: &now, ReturnDt: &now},
			},
			"rolled_back",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.Status(); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActionRecord_SetErrorTruncates(t *testing.T) {
	a := &store.ActionRecord{}
	longMsg := make([]byte, 1200)
	for i := range longMsg {
		longMsg[i] = 'x'
	}

	a.SetError(time.Now(), errors.New(string(longMsg)), string(longMsg))

	if len(a.Error) != 500 {
		t.Errorf("Error len = %d, want 500", len(a.Error))
	}
	if len(a.Traceback) != 1000 {
		t.Errorf("Traceback len = %d, want 1000", len(a.Traceback))
	}
}
