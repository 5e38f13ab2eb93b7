package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RunStartedData contains data for RunStarted events
type RunStartedData struct {
	RunID     string `json:"run_id"`
	PatternID string `json:"pattern_id"`
	Version   string `json:"version"`
	Steps     int    `json:"steps"`
}

// EventType returns the event type for RunStartedData
func (d *RunStartedData) EventType() EventType {
	return RunStarted
}

// RunCompletedData contains data for RunCompleted events
type RunCompletedData struct {
	RunID      string `json:"run_id"`
	PatternID  string `json:"pattern_id"`
	DurationMs int64  `json:"duration_ms"`
	CacheHits  int    `json:"cache_hits"`
}

// EventType returns the event type for RunCompletedData
func (d *RunCompletedData) EventType() EventType {
	return RunCompleted
}

// RunFailedData contains data for RunFailed events
type RunFailedData struct {
	RunID      string `json:"run_id"`
	PatternID  string `json:"pattern_id"`
	StepID     string `json:"step_id,omitempty"`
	Capability string `json:"capability,omitempty"`
	Kind       string `json:"kind"`
	Error      string `json:"error"`
}

// EventType returns the event type for RunFailedData
func (d *RunFailedData) EventType() EventType {
	return RunFailed
}

// StepData contains data for step events
type StepData struct {
	Type       EventType `json:"-"`
	RunID      string    `json:"run_id"`
	StepID     string    `json:"step_id"`
	Capability string    `json:"capability"`
	DurationMs int64     `json:"duration_ms"`
	Kind       string    `json:"kind,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// EventType returns the event type for StepData
func (d *StepData) EventType() EventType {
	return d.Type
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// Event represents an emitted event with typed data
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// MarshalJSON customizes JSON serialization for Event
func (e *Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for Event
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		e.Data = nil
		return nil
	}

	var eventData EventData
	switch aux.Type {
	case RunStarted:
		eventData = &RunStartedData{}
	case RunCompleted:
		eventData = &RunCompletedData{}
	case RunFailed:
		eventData = &RunFailedData{}
	case StepCompleted, StepFailed, StepCacheHit:
		eventData = &StepData{Type: aux.Type}
	case ErrorOccurred:
		eventData = &ErrorEventData{}
	default:
		var raw map[string]interface{}
		if err := json.Unmarshal(aux.Data, &raw); err != nil {
			return err
		}
		e.Data = &GenericEventData{Type: aux.Type, Data: raw}
		return nil
	}

	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return err
	}
	e.Data = eventData
	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}
