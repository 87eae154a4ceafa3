// Package store implements the engine's persistence adapter: durable
// Rollout and Task rows plus the query surface the execution engine needs
// (root lookup, children-by-parent). It is
// transactional-in-memory only; a real deployment would back Store with a
// database, but the engine itself treats persistence as an opaque
// CRUD+query layer.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Size caps for action subrecord string fields. Truncation policy is
// "store truncated"; never fail a save because a message was too long.
const (
	maxErrorLen     = 500
	maxTracebackLen = 1000
)

// Rollout is one durable record per deployment attempt.
type Rollout struct {
	ID       string
	Config   map[string]any
	Hidden   bool
	Stages   []string

	GenerateTasksDt *time.Time

	RolloutStartDt  *time.Time
	RolloutFinishDt *time.Time
	RollbackStartDt *time.Time
	RollbackFinishDt *time.Time
}

// ActionRecord is the per-action (run or revert) subrecord carried by a
// Task: its own start/return/error timestamps and size-capped message
// fields.
type ActionRecord struct {
	StartDt    *time.Time
	Return     string
	ReturnDt   *time.Time
	Error      string
	ErrorDt    *time.Time
	Traceback  string
}

// SetError records a captured failure, truncating Error and Traceback to
// their storage caps rather than rejecting the save.
func (a *ActionRecord) SetError(now time.Time, err error, traceback string) {
	a.Error = truncate(err.Error(), maxErrorLen)
	a.Traceback = truncate(traceback, maxTracebackLen)
	a.ErrorDt = &now
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Task is one durable record per node in a rollout's tree.
type Task struct {
	ID        string
	Type      string
	RolloutID string
	ParentID  string // empty for root
	State     map[string]any

	Run    ActionRecord
	Revert ActionRecord
}

// Status derives the task's lifecycle state from its four timestamps,
// derived as: not_started -> started -> {finished, rolling_back ->
// rolled_back}.
func (t *Task) Status() string {
	if t.Run.StartDt == nil {
		return "not_started"
	}
	if t.Revert.StartDt == nil {
		if t.Run.ReturnDt == nil {
			return "started"
		}
		return "finished"
	}
	if t.Revert.ReturnDt == nil {
		return "rolling_back"
	}
	return "rolled_back"
}

// FriendlyStatus renders the run action's start/return pair in the same
// four human-readable shapes the original's friendly_str uses for a
// single action. The revert action is not rendered.
func (t *Task) FriendlyStatus() string {
	return t.friendlyActionStatus(&t.Run)
}

func (t *Task) friendlyActionStatus(a *ActionRecord) string {
	switch {
	case a.StartDt != nil && a.ReturnDt == nil:
		return fmt.Sprintf("Started at %s", a.StartDt.Format(time.RFC3339))
	case a.StartDt != nil:
		return fmt.Sprintf("%s - %s", a.StartDt.Format(time.RFC3339), a.ReturnDt.Format(time.RFC3339))
	case a.ReturnDt != nil:
		return fmt.Sprintf("Error: no start time, finished %s", a.ReturnDt.Format(time.RFC3339))
	default:
		return "Not started"
	}
}

// Store is the CRUD + query surface the engine uses for Rollout and Task
// rows. Implementations must be safe for concurrent use by multiple
// worker goroutines, each of which reloads entities by id rather than
// sharing in-memory objects, mirroring the "no ORM objects across
// threads" discipline the engine relies on.
type Store interface {
	SaveRollout(r *Rollout) error
	LoadRollout(id string) (*Rollout, error)

	SaveTask(t *Task) error
	LoadTask(id string) (*Task, error)
	DeleteTasksForRollout(rolloutID string) error

	// RootTask returns the task with no parent for rolloutID. It
	// distinguishes "no root" from "multiple roots" with a sentinel error
	// for each, set once at task-tree generation time.
	RootTask(rolloutID string) (*Task, error)

	// Children returns the direct children of parentID in undefined order;
	// callers that need a deterministic order re-sort using the parent's
	// recorded task_order.
	Children(parentID string) ([]*Task, error)
}

// ErrNoRoot and ErrMultipleRoots are the two distinct failures
// RootTask can report.
var (
	ErrNoRoot        = fmt.Errorf("store: no root task for rollout")
	ErrMultipleRoots = fmt.Errorf("store: multiple root tasks for rollout")
)

// ErrNotFound is returned by LoadRollout/LoadTask for an unknown id.
var ErrNotFound = fmt.Errorf("store: not found")

// memoryStore is an in-memory Store backed by a mutex-guarded map,
// grounded on orchestrate/state/checkpoint.go's memoryCheckpointStore
// shape. Task-tree queries (RootTask, Children) scan the whole task map
// on every call; no adjacency map is built or kept.
type memoryStore struct {
	mu       sync.RWMutex
	rollouts map[string]*Rollout
	tasks    map[string]*Task
}

// NewMemory returns a Store backed entirely by process memory.
func NewMemory() Store {
	return &memoryStore{
		rollouts: make(map[string]*Rollout),
		tasks:    make(map[string]*Task),
	}
}

func (m *memoryStore) SaveRollout(r *Rollout) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.rollouts[r.ID] = &cp
	return nil
}

func (m *memoryStore) LoadRollout(id string) (*Rollout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rollouts[id]
	if !ok {
		return nil, fmt.Errorf("rollout %s: %w", id, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *memoryStore) SaveTask(t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memoryStore) LoadTask(id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (m *memoryStore) DeleteTasksForRollout(rolloutID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, t := range m.tasks {
		if t.RolloutID == rolloutID {
			delete(m.tasks, id)
		}
	}
	return nil
}

func (m *memoryStore) RootTask(rolloutID string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var roots []*Task
	for _, t := range m.tasks {
		if t.RolloutID == rolloutID && t.ParentID == "" {
			roots = append(roots, t)
		}
	}
	switch len(roots) {
	case 0:
		return nil, ErrNoRoot
	case 1:
		cp := *roots[0]
		return &cp, nil
	default:
		return nil, ErrMultipleRoots
	}
}

func (m *memoryStore) Children(parentID string) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var children []*Task
	for _, t := range m.tasks {
		if t.ParentID == parentID {
			cp := *t
			children = append(children, &cp)
		}
	}
	return children, nil
}

// NewID returns a fresh opaque identifier for a Rollout or Task row,
// mirroring orchestrate/state/state.go's use of uuid.New().String() for
// State.RunID.
func NewID() string {
	return uuid.New().String()
}

// ProtoTimestamp converts a nullable Go time into the wire-safe
// timestamppb representation used when an action timestamp crosses a
// process boundary (e.g. kettlectl's status output), or nil if unset.
func ProtoTimestamp(t *time.Time) *timestamppb.Timestamp {
	if t == nil {
		return nil
	}
	return timestamppb.New(*t)
}
