package monitor

import "github.com/go-kettle/kettle/observability"

const (
	EventMonitorStart   observability.EventType = "monitor.start"
	EventMonitorSkipped observability.EventType = "monitor.skipped"
)
