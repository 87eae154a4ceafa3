// Package harness implements the engine's thread harness: run a callable on
// its own goroutine, capture any error (or panic) into an inspectable field
// instead of re-raising it on the worker, and let the caller cooperatively
// wait for completion by polling once a second.
//
// Cancellation here is cooperative only; the harness never interrupts a
// running worker. It exists to give the caller a safe join point and a
// place to observe failure, mirroring the ambient poll-and-check discipline
// the rest of the engine uses for signals.
package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kettle/kettle/observability"
	"github.com/go-kettle/kettle/signalbus"
)

// pollInterval is how often Wait checks for worker completion, matching
// the one-second granularity used for every cooperative poll in the
// engine.
const pollInterval = time.Second

// Handle represents a worker goroutine in flight. The zero value is not
// usable; obtain one from Run.
type Handle struct {
	name string
	done chan struct{}
	err  error
}

// Err returns the error captured from the worker, or nil if it exited
// cleanly. Valid only after the handle's done channel has closed (i.e.
// after Wait returns, or after a direct read of Done()).
func (h *Handle) Err() error {
	return h.err
}

// Done returns a channel that closes when the worker exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Run spawns fn on a new goroutine and returns immediately with a Handle
// that can be waited on. A panic inside fn is recovered and surfaced the
// same way as a returned error, matching ExcRecordingThread's behavior of
// never propagating the failure onto the caller directly.
func Run(ctx context.Context, observer observability.Observer, name string, fn func(ctx context.Context) error) *Handle {
	h := &Handle{name: name, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				h.err = fmt.Errorf("harness: worker %s panicked: %v", name, r)
				observer.OnEvent(ctx, observability.Event{
					Type:      EventWorkerPanic,
					Level:     observability.LevelError,
					Timestamp: time.Now(),
					Source:    "harness.Run",
					Data: map[string]any{
						"worker": name,
						"panic":  fmt.Sprint(r),
					},
				})
			}
		}()

		observer.OnEvent(ctx, observability.Event{
			Type:      EventWorkerStart,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "harness.Run",
			Data:      map[string]any{"worker": name},
		})

		h.err = fn(ctx)

		observer.OnEvent(ctx, observability.Event{
			Type:      EventWorkerComplete,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "harness.Run",
			Data: map[string]any{
				"worker": name,
				"error":  h.err != nil,
			},
		})
	}()

	return h
}

// Wait blocks until h's worker exits, polling its done channel once a
// second; it does not itself check abort or term, since wait must not
// short-circuit before a dispatched child actually finishes. abort is
// accepted but never read or set: waiting on the done channel has no
// failure path of its own, so there is nothing for Wait to report through
// it. A nil abort is fine.
func Wait(h *Handle, abort *signalbus.Signal) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			// cooperative poll; nothing to check here but loop again.
		}
	}
}
