package rollout

import "github.com/go-kettle/kettle/observability"

const (
	EventRolloutStart    observability.EventType = "rollout.start"
	EventRolloutComplete observability.EventType = "rollout.complete"
	EventRollbackStart   observability.EventType = "rollout.rollback.start"
	EventRollbackComplete observability.EventType = "rollout.rollback.complete"
	EventGenerateTasks   observability.EventType = "rollout.generate_tasks"
	EventSignal          observability.EventType = "rollout.signal"
	EventHide            observability.EventType = "rollout.hide"
)
