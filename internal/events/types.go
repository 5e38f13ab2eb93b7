// Package events provides the run lifecycle event bus.
package events

// EventType represents different event types
type EventType string

const (
	RunStarted    EventType = "RUN_STARTED"
	RunCompleted  EventType = "RUN_COMPLETED"
	RunFailed     EventType = "RUN_FAILED"
	StepCompleted EventType = "STEP_COMPLETED"
	StepFailed    EventType = "STEP_FAILED"
	StepCacheHit  EventType = "STEP_CACHE_HIT"
	ErrorOccurred EventType = "ERROR_OCCURRED"
)
