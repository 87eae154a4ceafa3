package task

import (
	"context"
	"fmt"

	"github.com/go-kettle/kettle/harness"
	"github.com/go-kettle/kettle/signalbus"
	"github.com/go-kettle/kettle/store"
)

// taskOrderOf reads the state["task_order"] list a SequentialExec records
// at tree-build time, converting from the []any JSON-decoded shape back
// to a string slice.
func taskOrderOf(state map[string]any) ([]string, error) {
	raw, ok := state["task_order"]
	if !ok {
		return nil, fmt.Errorf("sequential exec: state missing task_order")
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		order := make([]string, len(v))
		for i, id := range v {
			s, ok := id.(string)
			if !ok {
				return nil, fmt.Errorf("sequential exec: task_order[%d] is not a string", i)
			}
			order[i] = s
		}
		return order, nil
	default:
		return nil, fmt.Errorf("sequential exec: task_order has unexpected type %T", raw)
	}
}

func indexByID(children []*store.Task) map[string]*store.Task {
	byID := make(map[string]*store.Task, len(children))
	for _, c := range children {
		byID[c.ID] = c
	}
	return byID
}

// SequentialExec runs its children one at a time, in task_order, waiting
// for each before starting the next. Reverting walks task_order in
// reverse, filtered to children that actually ran.
type SequentialExec struct{}

func (SequentialExec) Run(ctx context.Context, rc RunContext) (string, error) {
	taskOrder, err := taskOrderOf(rc.State)
	if err != nil {
		return "", err
	}
	remaining := indexByID(rc.Children)

	interrupted := false
	for _, id := range taskOrder {
		if rc.Abort.IsSet() || rc.Term.IsSet() {
			interrupted = true
			break
		}
		if _, ok := remaining[id]; !ok {
			return "", fmt.Errorf("sequential exec: task_order references unknown child %s", id)
		}
		delete(remaining, id)

		h := rc.Dispatch.LaunchRun(ctx, id, rc.Abort, rc.Term)
		if err := rc.Dispatch.Join(h); err != nil {
			return "", fmt.Errorf("sequential exec: child %s: %w", id, err)
		}
	}

	if !interrupted && len(remaining) != 0 {
		return "", fmt.Errorf("sequential exec: children not present in task_order: %d orphan(s)", len(remaining))
	}

	return "", nil
}

func (SequentialExec) Revert(ctx context.Context, rc RunContext) (string, error) {
	taskOrder, err := taskOrderOf(rc.State)
	if err != nil {
		return "", err
	}

	ran := make(map[string]bool)
	for _, c := range rc.Children {
		if c.Run.StartDt != nil {
			ran[c.ID] = true
		}
	}

	// Reverse task_order filtered to ids that actually ran.
	var reverseOrder []string
	for i := len(taskOrder) - 1; i >= 0; i-- {
		if ran[taskOrder[i]] {
			reverseOrder = append(reverseOrder, taskOrder[i])
		}
	}

	for _, id := range reverseOrder {
		// Unlike Run, abort does not short-circuit a revert in progress;
		// rollback must complete even under abort_rollback; only
		// term_rollback halts it.
		if rc.Term.IsSet() {
			break
		}

		h := rc.Dispatch.LaunchRevert(ctx, id, rc.Abort, rc.Term)
		if err := rc.Dispatch.Join(h); err != nil {
			return "", fmt.Errorf("sequential exec: reverting child %s: %w", id, err)
		}
	}

	return "", nil
}

// ParallelExec fans all children out as worker goroutines before waiting
// on any, checking abort/term before each launch, then joins every
// launched child in launch order and raises the first failure found.
type ParallelExec struct{}

func (ParallelExec) Run(ctx context.Context, rc RunContext) (string, error) {
	return execParallel(ctx, rc, rc.Children, rc.Dispatch.LaunchRun)
}

func (ParallelExec) Revert(ctx context.Context, rc RunContext) (string, error) {
	var ran []*store.Task
	for _, c := range rc.Children {
		if c.Run.StartDt != nil {
			ran = append(ran, c)
		}
	}
	return execParallel(ctx, rc, ran, rc.Dispatch.LaunchRevert)
}

type dispatchLaunch func(ctx context.Context, childID string, abort, term *signalbus.Signal) *harness.Handle

func execParallel(ctx context.Context, rc RunContext, children []*store.Task, launch dispatchLaunch) (string, error) {
	type pending struct {
		id string
		h  *harness.Handle
	}

	var launched []pending
	for _, c := range children {
		if rc.Abort.IsSet() || rc.Term.IsSet() {
			break
		}
		launched = append(launched, pending{id: c.ID, h: launch(ctx, c.ID, rc.Abort, rc.Term)})
	}

	var firstErr error
	for _, p := range launched {
		if err := rc.Dispatch.Join(p.h); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("parallel exec: child %s: %w", p.id, err)
		}
	}

	return "", firstErr
}
