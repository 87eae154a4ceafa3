package task

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/durationpb"
)

// DelayTask implements an interruptible sleep, optionally reversible.
// Its state bag holds {minutes, seconds, reversible}; Run sleeps
// minutes*60+seconds seconds in 1-second increments, checking abort and
// term on every tick. Revert performs the same wait iff reversible,
// otherwise returns immediately.
type DelayTask struct{}

// normalizeMinSec expresses a minutes/seconds pair as a durationpb.Duration
// and reads it back as a canonical (minutes, seconds) pair with seconds in
// [0, 60), the same wire-safe round-trip store.ProtoTimestamp performs for
// timestamps. NewDelayTask uses it so the persisted state bag always holds
// the normalized form rather than whatever split the caller happened to pass
// (e.g. minutes=1, seconds=90 becomes minutes=2, seconds=30).
func normalizeMinSec(minutes, seconds int) (int, int) {
	total := durationpb.New(time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second).AsDuration()
	return int(total / time.Minute), int((total % time.Minute) / time.Second)
}

func secondsOf(state map[string]any) int {
	minutes := numberOf(state["minutes"])
	seconds := numberOf(state["seconds"])
	return minutes*60 + seconds
}

func numberOf(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func reversibleOf(state map[string]any) bool {
	b, _ := state["reversible"].(bool)
	return b
}

func (DelayTask) Run(ctx context.Context, rc RunContext) (string, error) {
	wait(secondsOf(rc.State), rc.Abort, rc.Term)
	return "", nil
}

func (DelayTask) Revert(ctx context.Context, rc RunContext) (string, error) {
	if reversibleOf(rc.State) {
		wait(secondsOf(rc.State), rc.Abort, rc.Term)
	}
	return "", nil
}

func wait(secs int, abort, term interface{ IsSet() bool }) {
	for i := 0; i < secs; i++ {
		if abort.IsSet() || term.IsSet() {
			return
		}
		time.Sleep(time.Second)
	}
}

// MinSecStr renders a second count as "M:SS mins" or "N secs", matching
// the original's min_sec_str used in friendly status rendering.
func MinSecStr(secs int) string {
	mins := secs / 60
	rem := secs % 60
	if mins > 0 {
		return fmt.Sprintf("%d:%02d mins", mins, rem)
	}
	return fmt.Sprintf("%d secs", rem)
}
