package harness

import "github.com/go-kettle/kettle/observability"

const (
	EventWorkerStart    observability.EventType = "harness.worker.start"
	EventWorkerComplete observability.EventType = "harness.worker.complete"
	EventWorkerPanic    observability.EventType = "harness.worker.panic"
)
