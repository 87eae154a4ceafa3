package task_test

import (
	"context"
	"errors"
	"testing"

	"github.com/go-kettle/kettle/observability"
	"github.com/go-kettle/kettle/signalbus"
	"github.com/go-kettle/kettle/store"
	"github.com/go-kettle/kettle/task"
)

const rolloutID = "r1"

func newExecutor(t *testing.T) (*task.Executor, store.Store, *signalbus.Bus) {
	t.Helper()
	s := store.NewMemory()
	bus := signalbus.New()
	bus.Make(rolloutID, signalbus.AbortRollout)
	bus.Make(rolloutID, signalbus.TermRollout)
	bus.Make(rolloutID, signalbus.AbortRollback)
	bus.Make(rolloutID, signalbus.TermRollback)

	return &task.Executor{
		Store:     s,
		Bus:       bus,
		Observer:  observability.NoOpObserver{},
		RolloutID: rolloutID,
	}, s, bus
}

func registerNoopLeaf(t *testing.T, name string) {
	t.Helper()
	task.RegisterType(name, task.RunnerFunc{
		RunFn: func(ctx context.Context, rc task.RunContext) (string, error) {
			return "ok", nil
		},
		RevertFn: func(ctx context.Context, rc task.RunContext) (string, error) {
			return "ok", nil
		},
	})
}

func TestExecutor_RunRecordsTimestampsAndReturn(t *testing.T) {
	e, s, _ := newExecutor(t)
	registerNoopLeaf(t, "test.noop.run")

	leaf, err := task.NewTask(s, rolloutID, "", "test.noop.run", nil)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}

	if err := e.Run(context.Background(), leaf); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if leaf.Run.StartDt == nil || leaf.Run.ReturnDt == nil {
		t.Fatal("expected run start/return timestamps to be set")
	}
	if leaf.Run.Return != "ok" {
		t.Fatalf("Return = %q, want %q", leaf.Run.Return, "ok")
	}
}

func TestExecutor_RunTwiceFails(t *testing.T) {
	e, s, _ := newExecutor(t)
	registerNoopLeaf(t, "test.noop.runtwice")

	leaf, _ := task.NewTask(s, rolloutID, "", "test.noop.runtwice", nil)
	if err := e.Run(context.Background(), leaf); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	if err := e.Run(context.Background(), leaf); !errors.Is(err, task.ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestExecutor_RevertBeforeRunFails(t *testing.T) {
	e, s, _ := newExecutor(t)
	registerNoopLeaf(t, "test.noop.revertfirst")

	leaf, _ := task.NewTask(s, rolloutID, "", "test.noop.revertfirst", nil)

	if err := e.Revert(context.Background(), leaf); !errors.Is(err, task.ErrNotRun) {
		t.Fatalf("expected ErrNotRun, got %v", err)
	}
}

func TestExecutor_RunCapturesActionError(t *testing.T) {
	e, s, _ := newExecutor(t)
	wantErr := errors.New("deploy failed")
	task.RegisterType("test.noop.failing", task.RunnerFunc{
		RunFn: func(ctx context.Context, rc task.RunContext) (string, error) {
			return "", wantErr
		},
	})

	leaf, _ := task.NewTask(s, rolloutID, "", "test.noop.failing", nil)

	err := e.Run(context.Background(), leaf)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
	if leaf.Run.Error == "" {
		t.Fatal("expected Run.Error to be populated")
	}
	if leaf.Run.ErrorDt == nil {
		t.Fatal("expected Run.ErrorDt to be set")
	}
}

func TestExecutor_MissingSignalsFails(t *testing.T) {
	s := store.NewMemory()
	bus := signalbus.New() // no signals created
	e := &task.Executor{Store: s, Bus: bus, Observer: observability.NoOpObserver{}, RolloutID: rolloutID}
	registerNoopLeaf(t, "test.noop.missingsignals")

	leaf, _ := task.NewTask(s, rolloutID, "", "test.noop.missingsignals", nil)

	if err := e.Run(context.Background(), leaf); !errors.Is(err, task.ErrMissingSignals) {
		t.Fatalf("expected ErrMissingSignals, got %v", err)
	}
}

func TestExecutor_UnknownTypeFails(t *testing.T) {
	e, s, _ := newExecutor(t)
	leaf, _ := task.NewTask(s, rolloutID, "", "test.noop.doesnotexist", nil)

	if err := e.Run(context.Background(), leaf); err == nil {
		t.Fatal("expected error for unregistered task type")
	}
}
