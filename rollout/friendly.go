package rollout

import (
	"fmt"
	"time"
)

// FriendlyStatus renders Status as a short human-readable sentence,
// matching original_source/kettle/rollout.py's friendly_status dict
// extended to the two extra terminating/aborting pairs the rollback phase adds
// to the derived state machine.
func (e *Engine) FriendlyStatus(rolloutID string) (string, error) {
	r, err := e.Store.LoadRollout(rolloutID)
	if err != nil {
		return "", err
	}
	status, err := e.Status(rolloutID)
	if err != nil {
		return "", err
	}

	switch status {
	case "not_started":
		return "Not started", nil
	case "started":
		return "Started at " + r.RolloutStartDt.Format(time.RFC3339), nil
	case "terminating_rollout":
		return "Terminating rollout", nil
	case "aborting_rollout":
		return "Aborting rollout", nil
	case "finished":
		return "Finished", nil
	case "rolling_back":
		return "Rolling back at " + r.RollbackStartDt.Format(time.RFC3339), nil
	case "terminating_rollback":
		return "Terminating rollback", nil
	case "aborting_rollback":
		return "Aborting rollback", nil
	case "rolled_back":
		return "Rolled back", nil
	default:
		return status, nil
	}
}

// RolloutFriendlyStatus renders the rollout action's own start/finish pair.
func (e *Engine) RolloutFriendlyStatus(rolloutID string) (string, error) {
	r, err := e.Store.LoadRollout(rolloutID)
	if err != nil {
		return "", err
	}
	return friendlyActionStatus(r.RolloutStartDt, r.RolloutFinishDt), nil
}

// RollbackFriendlyStatus renders the rollback action's own start/finish pair.
func (e *Engine) RollbackFriendlyStatus(rolloutID string) (string, error) {
	r, err := e.Store.LoadRollout(rolloutID)
	if err != nil {
		return "", err
	}
	return friendlyActionStatus(r.RollbackStartDt, r.RollbackFinishDt), nil
}

// ExecFriendlyStatus renders the named action's ("rollout" or "rollback")
// start/finish pair, matching exec_friendly_status's generic accessor.
func (e *Engine) ExecFriendlyStatus(rolloutID, action string) (string, error) {
	switch action {
	case "rollout":
		return e.RolloutFriendlyStatus(rolloutID)
	case "rollback":
		return e.RollbackFriendlyStatus(rolloutID)
	default:
		return "", fmt.Errorf("rollout: unknown action %q", action)
	}
}

// friendlyActionStatus mirrors store.Task's own friendlyActionStatus: the
// same four shapes apply to a rollout's rollout/rollback action pair as to
// a task's run/revert action pair.
func friendlyActionStatus(start, finish *time.Time) string {
	switch {
	case start != nil && finish == nil:
		return "Started at " + start.Format(time.RFC3339)
	case start != nil:
		return start.Format(time.RFC3339) + " - " + finish.Format(time.RFC3339)
	case finish != nil:
		return "Error: no start time, finished " + finish.Format(time.RFC3339)
	default:
		return "Not started"
	}
}
