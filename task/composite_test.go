package task_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-kettle/kettle/signalbus"
	"github.com/go-kettle/kettle/store"
	"github.com/go-kettle/kettle/task"
)

func TestSequentialExec_RunsInOrder(t *testing.T) {
	e, s, _ := newExecutor(t)

	var mu sync.Mutex
	var order []string
	makeStep := func(name string) task.Runner {
		return task.RunnerFunc{
			RunFn: func(ctx context.Context, rc task.RunContext) (string, error) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return "", nil
			},
		}
	}
	task.RegisterType("test.seq.a", makeStep("a"))
	task.RegisterType("test.seq.b", makeStep("b"))
	task.RegisterType("test.seq.c", makeStep("c"))

	root, err := task.NewSequentialExec(s, rolloutID, "", []task.ChildBuilder{
		func(p string) (*store.Task, error) { return task.NewTask(s, rolloutID, p, "test.seq.a", nil) },
		func(p string) (*store.Task, error) { return task.NewTask(s, rolloutID, p, "test.seq.b", nil) },
		func(p string) (*store.Task, error) { return task.NewTask(s, rolloutID, p, "test.seq.c", nil) },
	})
	if err != nil {
		t.Fatalf("NewSequentialExec: %v", err)
	}

	if err := e.Run(context.Background(), root); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestSequentialExec_MidFailureStopsRemainingAndRevertsRan(t *testing.T) {
	e, s, _ := newExecutor(t)

	var ran []string
	var reverted []string
	var mu sync.Mutex

	makeLeaf := func(name string, fail bool) task.Runner {
		return task.RunnerFunc{
			RunFn: func(ctx context.Context, rc task.RunContext) (string, error) {
				mu.Lock()
				ran = append(ran, name)
				mu.Unlock()
				if fail {
					return "", errors.New(name + " failed")
				}
				return "", nil
			},
			RevertFn: func(ctx context.Context, rc task.RunContext) (string, error) {
				mu.Lock()
				reverted = append(reverted, name)
				mu.Unlock()
				return "", nil
			},
		}
	}
	task.RegisterType("test.seq.t1", makeLeaf("t1", false))
	task.RegisterType("test.seq.tfail", makeLeaf("tfail", true))
	task.RegisterType("test.seq.t3", makeLeaf("t3", false))

	root, err := task.NewSequentialExec(s, rolloutID, "", []task.ChildBuilder{
		func(p string) (*store.Task, error) { return task.NewTask(s, rolloutID, p, "test.seq.t1", nil) },
		func(p string) (*store.Task, error) { return task.NewTask(s, rolloutID, p, "test.seq.tfail", nil) },
		func(p string) (*store.Task, error) { return task.NewTask(s, rolloutID, p, "test.seq.t3", nil) },
	})
	if err != nil {
		t.Fatalf("NewSequentialExec: %v", err)
	}

	runErr := e.Run(context.Background(), root)
	if runErr == nil {
		t.Fatal("expected run to fail")
	}
	if len(ran) != 2 || ran[0] != "t1" || ran[1] != "tfail" {
		t.Fatalf("expected t1 and tfail to run, got %v", ran)
	}

	root, err = s.LoadTask(root.ID)
	if err != nil {
		t.Fatalf("reload root: %v", err)
	}
	if err := e.Revert(context.Background(), root); err != nil {
		t.Fatalf("Revert: %v", err)
	}
	// revert walks task_order reversed: tfail then t1
	if len(reverted) != 2 || reverted[0] != "tfail" || reverted[1] != "t1" {
		t.Fatalf("expected reverse order [tfail t1], got %v", reverted)
	}
}

func TestParallelExec_AllChildrenRun(t *testing.T) {
	e, s, _ := newExecutor(t)

	var count int
	var mu sync.Mutex
	leaf := task.RunnerFunc{
		RunFn: func(ctx context.Context, rc task.RunContext) (string, error) {
			mu.Lock()
			count++
			mu.Unlock()
			return "", nil
		},
	}
	task.RegisterType("test.par.leaf", leaf)

	builders := make([]task.ChildBuilder, 4)
	for i := range builders {
		builders[i] = func(p string) (*store.Task, error) {
			return task.NewTask(s, rolloutID, p, "test.par.leaf", nil)
		}
	}

	root, err := task.NewParallelExec(s, rolloutID, "", builders)
	if err != nil {
		t.Fatalf("NewParallelExec: %v", err)
	}

	if err := e.Run(context.Background(), root); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 children to run, got %d", count)
	}
}

func TestDelayTask_CancellableByAbort(t *testing.T) {
	e, s, bus := newExecutor(t)
	leaf, _ := task.NewDelayTask(s, rolloutID, "", 1, 0, false)

	start := time.Now()
	go func() {
		time.Sleep(200 * time.Millisecond)
		bus.Set(rolloutID, signalbus.AbortRollout)
	}()

	if err := e.Run(context.Background(), leaf); err != nil {
		t.Fatalf("Run: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed > 2*time.Second {
		t.Fatalf("delay did not cancel promptly: took %v", elapsed)
	}
}

func TestDelayTask_RevertNoOpWhenNotReversible(t *testing.T) {
	e, s, _ := newExecutor(t)
	leaf, _ := task.NewDelayTask(s, rolloutID, "", 0, 5, false)

	if err := e.Run(context.Background(), leaf); err != nil {
		t.Fatalf("Run: %v", err)
	}
	leaf, _ = s.LoadTask(leaf.ID)

	start := time.Now()
	if err := e.Revert(context.Background(), leaf); err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("non-reversible delay should revert immediately")
	}
}

func TestDelayTask_RevertWaitsWhenReversible(t *testing.T) {
	e, s, _ := newExecutor(t)
	leaf, _ := task.NewDelayTask(s, rolloutID, "", 0, 1, true)

	if err := e.Run(context.Background(), leaf); err != nil {
		t.Fatalf("Run: %v", err)
	}
	leaf, _ = s.LoadTask(leaf.ID)

	start := time.Now()
	if err := e.Revert(context.Background(), leaf); err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if time.Since(start) < 900*time.Millisecond {
		t.Fatal("reversible delay should wait on revert too")
	}
}
