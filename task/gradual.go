package task

import (
	"math/rand"

	"github.com/go-kettle/kettle/store"
)

type compositeBuilder func(s store.Store, rolloutID, parentID string, children []ChildBuilder) (*store.Task, error)

// GradualExec builds a canary rollout tree: roll out to one item, wait,
// then half, wait, then the rest; each non-singleton stage running its
// items sequentially. Grounded on original_source/kettle/config.py's
// gradual_exec/gradual_exec_generic, with delay_gen's pluggable delay
// generator simplified to a fixed minutes/seconds DelayTask between
// stages (the original's itertools-based generator has no equivalent
// need here since every stage uses the same wait).
func GradualExec(s store.Store, rolloutID, parentID string, items []ChildBuilder, delayMinutes, delaySeconds int) (*store.Task, error) {
	return gradualExecGeneric(s, rolloutID, parentID, items, delayMinutes, delaySeconds, NewSequentialExec)
}

// GradualExecParallel is GradualExec with each stage's items run in
// parallel rather than sequentially.
func GradualExecParallel(s store.Store, rolloutID, parentID string, items []ChildBuilder, delayMinutes, delaySeconds int) (*store.Task, error) {
	return gradualExecGeneric(s, rolloutID, parentID, items, delayMinutes, delaySeconds, NewParallelExec)
}

func gradualExecGeneric(s store.Store, rolloutID, parentID string, items []ChildBuilder, delayMinutes, delaySeconds int, composite compositeBuilder) (*store.Task, error) {
	unpicked := append([]ChildBuilder{}, items...)
	var picked []ChildBuilder

	pickRandomly := func(num int) []ChildBuilder {
		toPick := num - len(picked)
		if toPick < 0 {
			toPick = 0
		}
		if toPick > len(unpicked) {
			toPick = len(unpicked)
		}

		idx := rand.Perm(len(unpicked))[:toPick]
		picks := make([]ChildBuilder, len(idx))
		keep := make([]ChildBuilder, 0, len(unpicked)-toPick)
		chosen := make(map[int]bool, len(idx))
		for i, u := range idx {
			picks[i] = unpicked[u]
			chosen[u] = true
		}
		for i, b := range unpicked {
			if !chosen[i] {
				keep = append(keep, b)
			}
		}
		unpicked = keep
		picked = append(picked, picks...)
		return picks
	}

	var steps []ChildBuilder
	for _, stage := range []string{"one", "half", "all"} {
		total := len(picked) + len(unpicked)
		var num int
		switch stage {
		case "one":
			num = 1
		case "half":
			num = total / 2
		case "all":
			num = total
		}

		picks := pickRandomly(num)
		if len(picks) == 0 {
			continue
		}

		if len(picks) == 1 {
			steps = append(steps, picks[0])
		} else {
			batch := picks
			steps = append(steps, func(parentID string) (*store.Task, error) {
				return composite(s, rolloutID, parentID, batch)
			})
		}

		if stage != "all" {
			steps = append(steps, func(parentID string) (*store.Task, error) {
				return NewDelayTask(s, rolloutID, parentID, delayMinutes, delaySeconds, false)
			})
		}
	}

	return NewSequentialExec(s, rolloutID, parentID, steps)
}
