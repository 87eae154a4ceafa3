// Package signalbus implements the rollout engine's cooperative cancellation
// primitive: a process-wide mapping of (rollout_id, signal_name) to a
// one-way latching flag.
//
// Signals are the only cancellation channel the engine has. A long-running
// task polls IsSet at safe points; nothing in the bus preempts a goroutine
// that refuses to check.
package signalbus

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Name identifies one of the six signals the engine recognizes.
type Name string

const (
	AbortRollout Name = "abort_rollout"
	TermRollout  Name = "term_rollout"
	Monitoring   Name = "monitoring"
	SkipRollback Name = "skip_rollback"
	AbortRollback Name = "abort_rollback"
	TermRollback  Name = "term_rollback"
)

var validNames = map[Name]bool{
	AbortRollout:  true,
	TermRollout:   true,
	Monitoring:    true,
	SkipRollback:  true,
	AbortRollback: true,
	TermRollback:  true,
}

// Signal is a process-memory, one-way latch: unset -> set. Once set it
// stays set until its entry is destroyed. IsSet never takes the bus lock,
// so readers never block on a concurrent create/destroy.
type Signal struct {
	set atomic.Bool
}

// Set latches the signal. Returns true iff this call transitioned it from
// unset to set; a second call (or a racing concurrent call) reports false.
func (s *Signal) Set() bool {
	return s.set.CompareAndSwap(false, true)
}

// IsSet reports whether the signal has been latched.
func (s *Signal) IsSet() bool {
	return s.set.Load()
}

type key struct {
	rolloutID string
	name      Name
}

// Bus is the process-wide registry of live signals, keyed by rollout id.
// Only the owning rollout's goroutine creates or destroys its entries;
// concurrent readers see a consistent missing/unset/set view because Get
// returns a snapshot pointer and the Signal's own latch is atomic.
type Bus struct {
	mu      sync.RWMutex
	signals map[key]*Signal
}

// New returns an empty signal bus.
func New() *Bus {
	return &Bus{signals: make(map[key]*Signal)}
}

// Make creates a fresh, unset signal for (rolloutID, name). It fails if
// name is outside the closed set. Creating an already-existing signal
// replaces it with a new, unset one.
func (b *Bus) Make(rolloutID string, name Name) (*Signal, error) {
	if !validNames[name] {
		return nil, fmt.Errorf("signalbus: unknown signal name %q", name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sig := &Signal{}
	b.signals[key{rolloutID, name}] = sig
	return sig, nil
}

// Get returns the signal for (rolloutID, name), or nil if it does not
// exist. It never errors for a missing signal.
func (b *Bus) Get(rolloutID string, name Name) *Signal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.signals[key{rolloutID, name}]
}

// Set latches the named signal. Returns true iff the signal exists and
// this call is the one that transitioned it from unset to set; returns
// false for a missing signal or one already set.
func (b *Bus) Set(rolloutID string, name Name) bool {
	sig := b.Get(rolloutID, name)
	if sig == nil {
		return false
	}
	return sig.Set()
}

// IsSet reports whether the named signal exists and is latched. A missing
// signal is reported as unset.
func (b *Bus) IsSet(rolloutID string, name Name) bool {
	sig := b.Get(rolloutID, name)
	return sig != nil && sig.IsSet()
}

// CanSignal reports whether the named signal exists and is still unset,
// i.e. whether the control surface should offer it as an available action.
func (b *Bus) CanSignal(rolloutID string, name Name) bool {
	sig := b.Get(rolloutID, name)
	return sig != nil && !sig.IsSet()
}

// Destroy removes the entry for (rolloutID, name). After Destroy, IsSet
// reports false and Get returns nil, same as if it had never been made.
func (b *Bus) Destroy(rolloutID string, name Name) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.signals, key{rolloutID, name})
}

// DestroyAll removes the named signals for rolloutID; signals of the
// rollout not listed in names are left in place. Used when a rollout
// phase (rollout or rollback) tears down its signal set.
func (b *Bus) DestroyAll(rolloutID string, names ...Name) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, name := range names {
		delete(b.signals, key{rolloutID, name})
	}
}
