// Package monitor implements the monitor runtime: a named registry of
// background callables that run for the lifetime of a rollout and may
// set abort_rollout to trigger an early rollback.
//
// Grounded on orchestrate/hub/hub.go's daemon messageLoop goroutine: a
// monitor is spawned once, runs until its context or signal says stop,
// and is never joined; the rollout does not wait for it.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kettle/kettle/observability"
	"github.com/go-kettle/kettle/signalbus"
)

// Func is a monitor: it runs on its own goroutine until ctx is done,
// observing abort so it can latch it on trouble. monitoring is a one-way
// latch and stays set for the monitor's whole life; Engine.Rollout
// cancels ctx when the rollout phase ends.
type Func func(ctx context.Context, monitoring, abort *signalbus.Signal)

var (
	registryMu sync.RWMutex
	registry   = map[string]Func{}
)

// Register adds a named monitor to the global registry. Rollout configs
// reference monitors by these names in their `monitors` list.
func Register(name string, fn Func) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry[name] = fn
}

// Get resolves a monitor by name.
func Get(name string) (Func, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("monitor: unknown monitor %q", name)
	}
	return fn, nil
}

// StartAll latches monitoring exactly once (a second call on an
// already-monitoring rollout is a no-op) and spawns a daemon goroutine
// for each requested name found in the registry. Names absent from the
// registry are skipped with an EventMonitorSkipped warning event rather
// than failing, matching the original's
// `[v for k, v in monitors if k in config.monitors]` filter.
func StartAll(ctx context.Context, observer observability.Observer, monitoring, abort *signalbus.Signal, names []string) {
	if !monitoring.Set() {
		return
	}

	for _, name := range names {
		fn, err := Get(name)
		if err != nil {
			observer.OnEvent(ctx, observability.Event{
				Type:      EventMonitorSkipped,
				Level:     observability.LevelWarning,
				Timestamp: time.Now(),
				Source:    "monitor.StartAll",
				Data:      map[string]any{"name": name},
			})
			continue
		}

		observer.OnEvent(ctx, observability.Event{
			Type:      EventMonitorStart,
			Level:     observability.LevelInfo,
			Timestamp: time.Now(),
			Source:    "monitor.StartAll",
			Data:      map[string]any{"name": name},
		})

		go fn(ctx, monitoring, abort)
	}
}
