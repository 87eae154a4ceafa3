package task

import (
	"github.com/go-kettle/kettle/store"
)

// ChildBuilder is a not-yet-persisted child: a function that builds and
// persists the child once its parent's id is known. NewSequentialExec and
// NewParallelExec both take a slice of these so callers can describe a
// whole tree before any node exists in the store.
type ChildBuilder func(parentID string) (*store.Task, error)

// NewTask creates and persists a leaf task of the given type under
// parentID (empty for a root), mirroring Task.__init__ + save from the
// original.
func NewTask(s store.Store, rolloutID, parentID, taskType string, state map[string]any) (*store.Task, error) {
	if state == nil {
		state = map[string]any{}
	}
	t := &store.Task{
		ID:        store.NewID(),
		Type:      taskType,
		RolloutID: rolloutID,
		ParentID:  parentID,
		State:     state,
	}
	if err := s.SaveTask(t); err != nil {
		return nil, err
	}
	return t, nil
}

// NewSequentialExec builds a SequentialExec composite over childBuilders,
// each invoked with the new task's id as parentID, recording task_order
// from the order childBuilders are given, matching
// SequentialExecTask._init's `state['task_order'] = [child.id ...]`.
func NewSequentialExec(s store.Store, rolloutID, parentID string, childBuilders []ChildBuilder) (*store.Task, error) {
	t, err := NewTask(s, rolloutID, parentID, "sequential_exec", nil)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0, len(childBuilders))
	for _, build := range childBuilders {
		child, err := build(t.ID)
		if err != nil {
			return nil, err
		}
		order = append(order, child.ID)
	}

	t.State["task_order"] = order
	if err := s.SaveTask(t); err != nil {
		return nil, err
	}
	return t, nil
}

// NewParallelExec builds a ParallelExec composite over childBuilders. No
// task_order is recorded; ParallelExec makes no sibling ordering
// guarantee.
func NewParallelExec(s store.Store, rolloutID, parentID string, childBuilders []ChildBuilder) (*store.Task, error) {
	t, err := NewTask(s, rolloutID, parentID, "parallel_exec", nil)
	if err != nil {
		return nil, err
	}

	for _, build := range childBuilders {
		if _, err := build(t.ID); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// NewDelayTask builds a DelayTask leaf. minutes/seconds are normalized
// (see normalizeMinSec) before being folded into the persisted state bag.
func NewDelayTask(s store.Store, rolloutID, parentID string, minutes, seconds int, reversible bool) (*store.Task, error) {
	minutes, seconds = normalizeMinSec(minutes, seconds)
	return NewTask(s, rolloutID, parentID, "delay_task", map[string]any{
		"minutes":    minutes,
		"seconds":    seconds,
		"reversible": reversible,
	})
}
