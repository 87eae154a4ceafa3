// Package rollout implements the engine's top-level orchestrator: the
// lifecycle that turns a generated task tree into a running
// deployment attempt, watches it for failure, and drives rollback when
// one occurs.
//
// Grounded on original_source/kettle/rollout.py's Rollout class: the four
// lifecycle timestamps, the rollout-phase and rollback-phase signal pairs,
// and the monitor-registry start/stop dance translate directly. Structure
// (an Engine holding the collaborators instead of a base-class mixin, an
// observer event at every lifecycle boundary) follows
// orchestrate/workflows/chain.go's idiom.
package rollout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kettle/kettle/harness"
	"github.com/go-kettle/kettle/monitor"
	"github.com/go-kettle/kettle/observability"
	"github.com/go-kettle/kettle/signalbus"
	"github.com/go-kettle/kettle/store"
	"github.com/go-kettle/kettle/task"
)

// defaultFreshnessWindow is how stale generate_tasks_dt may be before
// RolloutAsync refuses to start, matching the "5 minutes since
// generate_tasks_dt" default.
const defaultFreshnessWindow = 5 * time.Minute

var (
	// ErrAlreadyStarted is returned by Rollout when rollout_start_dt is
	// already set.
	ErrAlreadyStarted = fmt.Errorf("rollout: already started")
	// ErrGenerateAfterStart is returned by GenerateTasks once the rollout
	// has begun.
	ErrGenerateAfterStart = fmt.Errorf("rollout: cannot generate tasks after rollout has started")
	// ErrStaleGeneration is returned by RolloutAsync when generate_tasks_dt
	// is missing or older than the configured freshness window.
	ErrStaleGeneration = fmt.Errorf("rollout: task tree is not freshly generated")
)

// Engine ties together the collaborators a rollout needs: persistence, the
// signal bus, observability, the task executor, and the monitor registry's
// configured names. One Engine serves every rollout in the process; each
// method call is scoped to a rollout by id, matching Executor's own
// reload-by-id discipline.
type Engine struct {
	Store    store.Store
	Bus      *signalbus.Bus
	Observer observability.Observer

	// Monitors lists the monitor names (from the class-level registry)
	// this engine's rollouts should start, mirroring config["monitors"].
	Monitors []string

	// FreshnessWindow bounds how old generate_tasks_dt may be for
	// RolloutAsync to proceed. Zero means defaultFreshnessWindow.
	FreshnessWindow time.Duration
}

func (e *Engine) freshnessWindow() time.Duration {
	if e.FreshnessWindow <= 0 {
		return defaultFreshnessWindow
	}
	return e.FreshnessWindow
}

func (e *Engine) executor(rolloutID string) *task.Executor {
	return &task.Executor{
		Store:     e.Store,
		Bus:       e.Bus,
		Observer:  e.Observer,
		RolloutID: rolloutID,
	}
}

// GenerateTasks fails if the rollout has already started, deletes any
// existing tasks for it, invokes the caller-supplied generator (which
// populates the tree via task.NewTask/NewSequentialExec/etc.), and records
// generate_tasks_dt.
func (e *Engine) GenerateTasks(rolloutID string, generate func(rolloutID string) error) error {
	r, err := e.Store.LoadRollout(rolloutID)
	if err != nil {
		return err
	}
	if r.RolloutStartDt != nil {
		return ErrGenerateAfterStart
	}

	if err := e.Store.DeleteTasksForRollout(rolloutID); err != nil {
		return err
	}
	if err := generate(rolloutID); err != nil {
		return err
	}

	now := time.Now()
	r.GenerateTasksDt = &now
	if err := e.Store.SaveRollout(r); err != nil {
		return err
	}

	e.Observer.OnEvent(context.Background(), observability.Event{
		Type:      EventGenerateTasks,
		Level:     observability.LevelInfo,
		Timestamp: now,
		Source:    "rollout.Engine",
		Data:      map[string]any{"rollout_id": rolloutID},
	})
	return nil
}

// RolloutAsync detaches from the caller's context and spawns Rollout on a
// background goroutine, matching rollout_async's "remove session, spawn
// thread" shape. It refuses to start if the task tree isn't freshly
// generated.
func (e *Engine) RolloutAsync(rolloutID string) error {
	r, err := e.Store.LoadRollout(rolloutID)
	if err != nil {
		return err
	}
	if r.GenerateTasksDt == nil || time.Since(*r.GenerateTasksDt) > e.freshnessWindow() {
		return ErrStaleGeneration
	}

	go func() {
		_ = e.Rollout(context.Background(), rolloutID)
	}()
	return nil
}

// Rollout implements the forward pass, failure
// detection, and failure-triggered rollback. Precondition violations (no
// root, multiple roots, already started) are returned directly; a failed
// root task is not an error from Rollout's point of view; it is handled
// by invoking rollback.
func (e *Engine) Rollout(ctx context.Context, rolloutID string) error {
	r, err := e.Store.LoadRollout(rolloutID)
	if err != nil {
		return err
	}

	root, err := e.Store.RootTask(rolloutID)
	if err != nil {
		return err
	}
	if r.RolloutStartDt != nil {
		return fmt.Errorf("%w at %s", ErrAlreadyStarted, r.RolloutStartDt.Format(time.RFC3339))
	}

	now := time.Now()
	r.RolloutStartDt = &now
	if err := e.Store.SaveRollout(r); err != nil {
		return err
	}

	abort, _ := e.Bus.Make(rolloutID, signalbus.AbortRollout)
	term, _ := e.Bus.Make(rolloutID, signalbus.TermRollout)
	monitoring, _ := e.Bus.Make(rolloutID, signalbus.Monitoring)
	skip, _ := e.Bus.Make(rolloutID, signalbus.SkipRollback)

	defer func() {
		r, err := e.Store.LoadRollout(rolloutID)
		if err == nil && r.RolloutFinishDt == nil {
			finish := time.Now()
			r.RolloutFinishDt = &finish
			_ = e.Store.SaveRollout(r)
		}
		e.Bus.DestroyAll(rolloutID,
			signalbus.AbortRollout, signalbus.TermRollout,
			signalbus.Monitoring, signalbus.SkipRollback)
	}()

	monitorCtx, stopMonitors := context.WithCancel(ctx)
	defer stopMonitors()
	monitor.StartAll(monitorCtx, e.Observer, monitoring, abort, e.Monitors)

	e.emit(ctx, EventRolloutStart, rolloutID, nil)

	exec := e.executor(rolloutID)
	h := exec.LaunchRun(ctx, root.ID, abort, term)
	harness.Wait(h, abort)

	failure := abort.IsSet() || term.IsSet()
	e.emit(ctx, EventRolloutComplete, rolloutID, h.Err())

	if failure && !skip.IsSet() {
		r, err := e.Store.LoadRollout(rolloutID)
		if err == nil && r.RolloutFinishDt == nil {
			finish := time.Now()
			r.RolloutFinishDt = &finish
			_ = e.Store.SaveRollout(r)
		}
		_ = e.rollback(ctx, rolloutID)
	}

	return nil
}

// rollback implements rollback(id): revert the root task
// (which recursively reverts its children in reverse recorded order) under
// its own abort/term signal pair.
func (e *Engine) rollback(ctx context.Context, rolloutID string) error {
	r, err := e.Store.LoadRollout(rolloutID)
	if err != nil {
		return err
	}

	now := time.Now()
	r.RollbackStartDt = &now
	if err := e.Store.SaveRollout(r); err != nil {
		return err
	}

	abort, _ := e.Bus.Make(rolloutID, signalbus.AbortRollback)
	term, _ := e.Bus.Make(rolloutID, signalbus.TermRollback)
	defer e.Bus.DestroyAll(rolloutID, signalbus.AbortRollback, signalbus.TermRollback)

	root, err := e.Store.RootTask(rolloutID)
	if err != nil {
		return err
	}

	e.emit(ctx, EventRollbackStart, rolloutID, nil)

	exec := e.executor(rolloutID)
	h := exec.LaunchRevert(ctx, root.ID, abort, term)
	harness.Wait(h, abort)
	revertErr := h.Err()

	e.emit(ctx, EventRollbackComplete, rolloutID, revertErr)

	r, err = e.Store.LoadRollout(rolloutID)
	if err != nil {
		return err
	}
	finish := time.Now()
	r.RollbackFinishDt = &finish
	if err := e.Store.SaveRollout(r); err != nil {
		return err
	}

	return revertErr
}

// Status derives one of the nine lifecycle states from timestamps and
// live signal state.
func (e *Engine) Status(rolloutID string) (string, error) {
	r, err := e.Store.LoadRollout(rolloutID)
	if err != nil {
		return "", err
	}

	if r.RolloutStartDt == nil {
		return "not_started", nil
	}

	if r.RollbackStartDt == nil {
		switch {
		case e.Bus.IsSet(rolloutID, signalbus.TermRollout):
			return "terminating_rollout", nil
		case e.Bus.IsSet(rolloutID, signalbus.AbortRollout):
			return "aborting_rollout", nil
		case r.RolloutFinishDt == nil:
			return "started", nil
		default:
			return "finished", nil
		}
	}

	switch {
	case e.Bus.IsSet(rolloutID, signalbus.TermRollback):
		return "terminating_rollback", nil
	case e.Bus.IsSet(rolloutID, signalbus.AbortRollback):
		return "aborting_rollback", nil
	case r.RollbackFinishDt == nil:
		return "rolling_back", nil
	default:
		return "rolled_back", nil
	}
}

// Signal latches the named signal for rolloutID. The bool result is
// "succeeded" (true) iff the signal existed and this call is the one that
// transitioned it from unset to set.
func (e *Engine) Signal(rolloutID string, name signalbus.Name) bool {
	ok := e.Bus.Set(rolloutID, name)
	e.Observer.OnEvent(context.Background(), observability.Event{
		Type:      EventSignal,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "rollout.Engine",
		Data:      map[string]any{"rollout_id": rolloutID, "name": string(name), "succeeded": ok},
	})
	return ok
}

// CanSignal reports whether name exists and is still unset for rolloutID.
func (e *Engine) CanSignal(rolloutID string, name signalbus.Name) bool {
	return e.Bus.CanSignal(rolloutID, name)
}

// Hide sets hidden=true; a listing filter with no effect on execution.
func (e *Engine) Hide(rolloutID string) error {
	r, err := e.Store.LoadRollout(rolloutID)
	if err != nil {
		return err
	}
	r.Hidden = true
	if err := e.Store.SaveRollout(r); err != nil {
		return err
	}

	e.Observer.OnEvent(context.Background(), observability.Event{
		Type:      EventHide,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "rollout.Engine",
		Data:      map[string]any{"rollout_id": rolloutID},
	})
	return nil
}

func (e *Engine) emit(ctx context.Context, eventType observability.EventType, rolloutID string, err error) {
	level := observability.LevelInfo
	if err != nil {
		level = observability.LevelError
	}
	e.Observer.OnEvent(ctx, observability.Event{
		Type:      eventType,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "rollout.Engine",
		Data:      map[string]any{"rollout_id": rolloutID, "error": err != nil},
	})
}
