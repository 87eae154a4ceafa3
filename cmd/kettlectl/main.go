// Command kettlectl drives the engine's control surface: generate_tasks,
// rollout_async, signal, can_signal, status, hide. It is a
// single-process demonstration harness rather than a server; each
// invocation owns a fresh in-memory store, the same shape cmd/kernel/main.go
// uses for a one-shot run. config.StoreConfig is not consulted; rollout
// state never outlives the process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/go-kettle/kettle/config"
	"github.com/go-kettle/kettle/observability"
	"github.com/go-kettle/kettle/rollout"
	"github.com/go-kettle/kettle/signalbus"
	"github.com/go-kettle/kettle/store"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to kettle config JSON file")
		stagesFlag = flag.String("stages", "canary,full", "Comma-separated deployment stage names")
		monitors   = flag.String("monitors", "", "Comma-separated monitor names (overrides config)")
		async      = flag.Bool("async", false, "Run rollout_async and poll status instead of blocking inline")
		signalName = flag.String("signal", "", "Signal to raise partway through an async rollout (e.g. abort_rollout)")
		signalWait = flag.Duration("signal-delay", time.Second, "How long to wait before raising -signal")
		hide       = flag.Bool("hide", false, "Hide the rollout once it reaches a terminal state")
		verbose    = flag.Bool("verbose", false, "Enable debug-level logging")
	)
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = *loaded
	}
	if *monitors != "" {
		cfg.Rollout.Monitors = splitNonEmpty(*monitors)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	registerBuiltinTaskTypes()

	observer, err := observability.GetObserver(cfg.Rollout.Observer)
	if err != nil {
		log.Fatalf("failed to resolve observer %q: %v", cfg.Rollout.Observer, err)
	}

	s := store.NewMemory()
	bus := signalbus.New()
	engine := &rollout.Engine{
		Store:           s,
		Bus:             bus,
		Observer:        observer,
		Monitors:        cfg.Rollout.Monitors,
		FreshnessWindow: cfg.Rollout.FreshnessWindow(),
	}

	rolloutID := uuid.New().String()
	stages := splitNonEmpty(*stagesFlag)
	if err := s.SaveRollout(&store.Rollout{ID: rolloutID, Stages: stages}); err != nil {
		log.Fatalf("failed to seed rollout: %v", err)
	}

	if err := engine.GenerateTasks(rolloutID, func(id string) error {
		return generateStageTree(s, id, stages)
	}); err != nil {
		log.Fatalf("generate_tasks failed: %v", err)
	}
	fmt.Printf("rollout %s: generated %d stage(s): %s\n", rolloutID, len(stages), strings.Join(stages, ", "))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *async {
		runAsync(engine, rolloutID, *signalName, *signalWait)
	} else {
		if err := engine.Rollout(ctx, rolloutID); err != nil {
			log.Fatalf("rollout failed: %v", err)
		}
	}

	printStatus(engine, rolloutID)

	if *hide {
		if err := engine.Hide(rolloutID); err != nil {
			log.Fatalf("hide failed: %v", err)
		}
		fmt.Println("rollout hidden")
	}
}

// runAsync exercises rollout_async/signal/can_signal/status the way a
// long-lived controller process would, within this single invocation.
func runAsync(engine *rollout.Engine, rolloutID, signalName string, signalDelay time.Duration) {
	if err := engine.RolloutAsync(rolloutID); err != nil {
		log.Fatalf("rollout_async failed: %v", err)
	}

	if signalName != "" {
		go func() {
			time.Sleep(signalDelay)
			name := signalbus.Name(signalName)
			if !engine.CanSignal(rolloutID, name) {
				fmt.Printf("signal %s: not available (already set or rollout phase over)\n", signalName)
				return
			}
			ok := engine.Signal(rolloutID, name)
			fmt.Printf("signal %s: succeeded=%v\n", signalName, ok)
		}()
	}

	const pollInterval = 250 * time.Millisecond
	const pollTimeout = 30 * time.Second
	deadline := time.Now().Add(pollTimeout)
	last := ""
	for time.Now().Before(deadline) {
		status, err := engine.Status(rolloutID)
		if err != nil {
			log.Fatalf("status failed: %v", err)
		}
		if status != last {
			fmt.Printf("status: %s\n", status)
			last = status
		}
		if status == "finished" || status == "rolled_back" {
			return
		}
		time.Sleep(pollInterval)
	}
	fmt.Println("timed out waiting for a terminal status")
}

func printStatus(engine *rollout.Engine, rolloutID string) {
	status, err := engine.Status(rolloutID)
	if err != nil {
		log.Fatalf("status failed: %v", err)
	}
	friendly, err := engine.FriendlyStatus(rolloutID)
	if err != nil {
		log.Fatalf("friendly status failed: %v", err)
	}
	fmt.Printf("final status: %s (%s)\n", status, friendly)
	printTimestamps(engine, rolloutID)
}

// printTimestamps renders the rollout's four lifecycle timestamps through
// store.ProtoTimestamp, the wire-safe form used once a row crosses the
// process boundary into the control surface's output.
func printTimestamps(engine *rollout.Engine, rolloutID string) {
	r, err := engine.Store.LoadRollout(rolloutID)
	if err != nil {
		log.Fatalf("loading rollout for timestamp output: %v", err)
	}

	for _, field := range []struct {
		name string
		t    *time.Time
	}{
		{"rollout_start_dt", r.RolloutStartDt},
		{"rollout_finish_dt", r.RolloutFinishDt},
		{"rollback_start_dt", r.RollbackStartDt},
		{"rollback_finish_dt", r.RollbackFinishDt},
	} {
		pb := store.ProtoTimestamp(field.t)
		if pb == nil {
			fmt.Printf("  %s: (unset)\n", field.name)
			continue
		}
		fmt.Printf("  %s: %s\n", field.name, pb.AsTime().Format(time.RFC3339))
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
