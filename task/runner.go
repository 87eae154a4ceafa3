// Package task implements the engine's Task state machine and its
// composite executors: SequentialExec, ParallelExec, and DelayTask.
//
// Dynamic polymorphism of task behavior is replaced with a
// discriminator-to-implementation registry: a Task's `Type`
// field names a Runner registered under that name, resolved at execution
// time rather than via a class hierarchy. This mirrors
// orchestrate/state/node.go's StateNode interface and FunctionNode
// adapter, generalized to the run/revert pair the rollout engine needs.
package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-kettle/kettle/harness"
	"github.com/go-kettle/kettle/signalbus"
	"github.com/go-kettle/kettle/store"
)

// Dispatcher lets a Runner launch and join child tasks without owning a
// Store or signal bus itself. The Executor is the only implementation;
// composite Runners receive it through RunContext so they stay testable
// against fakes.
type Dispatcher interface {
	LaunchRun(ctx context.Context, childID string, abort, term *signalbus.Signal) *harness.Handle
	LaunchRevert(ctx context.Context, childID string, abort, term *signalbus.Signal) *harness.Handle
	Join(h *harness.Handle) error
}

// RunContext carries everything a Runner's Run/Revert implementation
// needs: the task's own state bag, its already-resolved children, the two
// phase signals, and a Dispatcher for composite executors that need to
// run or revert those children.
type RunContext struct {
	State    map[string]any
	Children []*store.Task
	Abort    *signalbus.Signal
	Term     *signalbus.Signal
	Dispatch Dispatcher
}

// Runner implements one task type's behavior. Run and Revert receive the
// same shape of arguments the original's `_run(state, children, abort,
// term)` classmethods did; the string they return becomes the task's
// persisted action return value.
type Runner interface {
	Run(ctx context.Context, rc RunContext) (string, error)
	Revert(ctx context.Context, rc RunContext) (string, error)
}

// RunnerFunc adapts a pair of plain functions into a Runner, the same
// role FunctionNode plays for StateNode.
type RunnerFunc struct {
	RunFn    func(ctx context.Context, rc RunContext) (string, error)
	RevertFn func(ctx context.Context, rc RunContext) (string, error)
}

func (f RunnerFunc) Run(ctx context.Context, rc RunContext) (string, error) {
	if f.RunFn == nil {
		return "", nil
	}
	return f.RunFn(ctx, rc)
}

func (f RunnerFunc) Revert(ctx context.Context, rc RunContext) (string, error) {
	if f.RevertFn == nil {
		return "", nil
	}
	return f.RevertFn(ctx, rc)
}

// registry is the global discriminator-to-Runner map, mirroring
// orchestrate/state/checkpoint.go's checkpointStores registry idiom.
var (
	registryMu sync.RWMutex
	registry   = map[string]Runner{
		"sequential_exec": SequentialExec{},
		"parallel_exec":   ParallelExec{},
		"delay_task":      DelayTask{},
	}
)

// RegisterType adds or replaces a named Runner implementation. Leaf task
// authors call this once at startup to make their task type resolvable
// by Task.Type.
func RegisterType(name string, r Runner) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry[name] = r
}

// GetType resolves a task type name to its Runner.
func GetType(name string) (Runner, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	r, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("task: unknown type %q", name)
	}
	return r, nil
}
