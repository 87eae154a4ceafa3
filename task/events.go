package task

import "github.com/go-kettle/kettle/observability"

const (
	EventTaskRunStart       observability.EventType = "task.run.start"
	EventTaskRunComplete    observability.EventType = "task.run.complete"
	EventTaskRevertStart    observability.EventType = "task.revert.start"
	EventTaskRevertComplete observability.EventType = "task.revert.complete"
	EventTaskSaveFailed     observability.EventType = "task.save.failed"
)
