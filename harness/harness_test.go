package harness_test

import (
	"context"
	"errors"
	"testing"

	"github.com/go-kettle/kettle/harness"
	"github.com/go-kettle/kettle/observability"
	"github.com/go-kettle/kettle/signalbus"
)

func TestRun_CapturesSuccessWithoutError(t *testing.T) {
	h := harness.Run(context.Background(), observability.NoOpObserver{}, "ok", func(ctx context.Context) error {
		return nil
	})
	harness.Wait(h, nil)

	if h.Err() != nil {
		t.Fatalf("expected nil error, got %v", h.Err())
	}
}

func TestRun_CapturesReturnedError(t *testing.T) {
	wantErr := errors.New("boom")
	h := harness.Run(context.Background(), observability.NoOpObserver{}, "failing", func(ctx context.Context) error {
		return wantErr
	})
	harness.Wait(h, nil)

	if !errors.Is(h.Err(), wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, h.Err())
	}
}

func TestRun_CapturesPanicInsteadOfCrashing(t *testing.T) {
	h := harness.Run(context.Background(), observability.NoOpObserver{}, "panicking", func(ctx context.Context) error {
		panic("unexpected failure")
	})
	harness.Wait(h, nil)

	if h.Err() == nil {
		t.Fatal("expected panic to be captured as an error, got nil")
	}
}

func TestRun_DoesNotBlockCaller(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	h := harness.Run(context.Background(), observability.NoOpObserver{}, "slow", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})

	<-started
	select {
	case <-h.Done():
		t.Fatal("worker reported done before release")
	default:
	}
	close(release)
	harness.Wait(h, nil)
}

func TestWait_AcceptsAbortSignal(t *testing.T) {
	bus := signalbus.New()
	bus.Make("r1", signalbus.AbortRollout)
	abort := bus.Get("r1", signalbus.AbortRollout)

	h := harness.Run(context.Background(), observability.NoOpObserver{}, "ok", func(ctx context.Context) error {
		return nil
	})
	harness.Wait(h, abort)

	if h.Err() != nil {
		t.Fatalf("expected nil error, got %v", h.Err())
	}
}
