package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/go-kettle/kettle/harness"
	"github.com/go-kettle/kettle/observability"
	"github.com/go-kettle/kettle/signalbus"
	"github.com/go-kettle/kettle/store"
)

const (
	phaseRollout  = "rollout"
	phaseRollback = "rollback"
)

var (
	// ErrAlreadyStarted is the precondition violation for running (or
	// reverting) an action that already has a start timestamp.
	ErrAlreadyStarted = fmt.Errorf("task: action already started")
	// ErrNotRun is the precondition violation for reverting a task that
	// never ran.
	ErrNotRun = fmt.Errorf("task: cannot revert before running")
	// ErrMissingSignals is raised when the signal bus doesn't have both
	// the abort and term signal for the requested phase.
	ErrMissingSignals = fmt.Errorf("task: one or more phase signals don't exist")
)

// Executor is the engine's per-rollout task state machine: it owns the
// run/revert contracts, the two phase signal lookups, and
// the Dispatcher the composite executors use to recurse into children.
// One Executor instance is scoped to a single rollout.
type Executor struct {
	Store     store.Store
	Bus       *signalbus.Bus
	Observer  observability.Observer
	RolloutID string
}

// phaseSignals resolves the abort/term pair for the given phase
// ("rollout" for run, "rollback" for revert), failing if either is
// missing, matching get_signals' own precondition check.
func (e *Executor) phaseSignals(action string) (abort, term *signalbus.Signal, err error) {
	phase := phaseRollout
	if action == "revert" {
		phase = phaseRollback
	}

	abortName := signalbus.Name(fmt.Sprintf("abort_%s", phase))
	termName := signalbus.Name(fmt.Sprintf("term_%s", phase))

	abort = e.Bus.Get(e.RolloutID, abortName)
	term = e.Bus.Get(e.RolloutID, termName)
	if abort == nil || term == nil {
		return nil, nil, ErrMissingSignals
	}
	return abort, term, nil
}

// Run implements the `run` contract: fails if already started, persists
// a start timestamp, invokes the task's Runner, and persists the return
// value or the captured error on every exit path.
func (e *Executor) Run(ctx context.Context, t *store.Task) error {
	return e.callAndRecordAction(ctx, t, "run", &t.Run)
}

// Revert implements the `revert` contract: identical shape to Run, but
// fails if the task never ran.
func (e *Executor) Revert(ctx context.Context, t *store.Task) error {
	if t.Run.StartDt == nil {
		return ErrNotRun
	}
	return e.callAndRecordAction(ctx, t, "revert", &t.Revert)
}

func (e *Executor) callAndRecordAction(ctx context.Context, t *store.Task, action string, rec *store.ActionRecord) (err error) {
	if rec.StartDt != nil {
		return fmt.Errorf("%s: %w", action, ErrAlreadyStarted)
	}

	now := time.Now()
	rec.StartDt = &now
	if saveErr := e.Store.SaveTask(t); saveErr != nil {
		e.emit(ctx, EventTaskSaveFailed, t, action, saveErr)
	}

	abort, term, err := e.phaseSignals(action)
	if err != nil {
		rec.SetError(time.Now(), err, string(debug.Stack()))
		if saveErr := e.Store.SaveTask(t); saveErr != nil {
			e.emit(ctx, EventTaskSaveFailed, t, action, saveErr)
		}
		return err
	}

	e.emit(ctx, eventStart(action), t, action, nil)

	defer func() {
		if saveErr := e.Store.SaveTask(t); saveErr != nil {
			e.emit(ctx, EventTaskSaveFailed, t, action, saveErr)
		}
	}()

	result, runErr := e.invoke(ctx, t, action, abort, term)
	if runErr != nil {
		traceback := string(debug.Stack())
		rec.SetError(time.Now(), runErr, traceback)
		e.emit(ctx, eventComplete(action), t, action, runErr)
		return runErr
	}

	returnDt := time.Now()
	rec.Return = result
	rec.ReturnDt = &returnDt
	e.emit(ctx, eventComplete(action), t, action, nil)
	return nil
}

func (e *Executor) invoke(ctx context.Context, t *store.Task, action string, abort, term *signalbus.Signal) (string, error) {
	runner, err := GetType(t.Type)
	if err != nil {
		return "", err
	}

	children, err := e.Store.Children(t.ID)
	if err != nil {
		return "", fmt.Errorf("%s: resolving children: %w", action, err)
	}

	rc := RunContext{
		State:    t.State,
		Children: children,
		Abort:    abort,
		Term:     term,
		Dispatch: e,
	}

	if action == "run" {
		return runner.Run(ctx, rc)
	}
	return runner.Revert(ctx, rc)
}

// LaunchRun spawns a goroutine that reloads childID from the store and
// runs it, latching abort if the child fails, matching run_threaded's
// "reload by id, run, propagate failure as abort" contract.
func (e *Executor) LaunchRun(ctx context.Context, childID string, abort, term *signalbus.Signal) *harness.Handle {
	return harness.Run(ctx, e.Observer, childID, func(ctx context.Context) error {
		child, err := e.Store.LoadTask(childID)
		if err != nil {
			abort.Set()
			return err
		}
		if err := e.Run(ctx, child); err != nil {
			abort.Set()
			return err
		}
		return nil
	})
}

// LaunchRevert is LaunchRun's mirror for the revert action.
func (e *Executor) LaunchRevert(ctx context.Context, childID string, abort, term *signalbus.Signal) *harness.Handle {
	return harness.Run(ctx, e.Observer, childID, func(ctx context.Context) error {
		child, err := e.Store.LoadTask(childID)
		if err != nil {
			abort.Set()
			return err
		}
		if err := e.Revert(ctx, child); err != nil {
			abort.Set()
			return err
		}
		return nil
	})
}

// Join waits for h to finish and surfaces its captured error, matching
// thread_wait followed by an exc_info check.
func (e *Executor) Join(h *harness.Handle) error {
	harness.Wait(h, nil)
	return h.Err()
}

func eventStart(action string) observability.EventType {
	if action == "run" {
		return EventTaskRunStart
	}
	return EventTaskRevertStart
}

func eventComplete(action string) observability.EventType {
	if action == "run" {
		return EventTaskRunComplete
	}
	return EventTaskRevertComplete
}

func (e *Executor) emit(ctx context.Context, eventType observability.EventType, t *store.Task, action string, err error) {
	e.Observer.OnEvent(ctx, observability.Event{
		Type:      eventType,
		Level:     levelFor(err),
		Timestamp: time.Now(),
		Source:    "task.Executor",
		Data: map[string]any{
			"task_id": t.ID,
			"type":    t.Type,
			"action":  action,
			"error":   err != nil,
		},
	})
}

func levelFor(err error) observability.Level {
	if err != nil {
		return observability.LevelError
	}
	return observability.LevelInfo
}
