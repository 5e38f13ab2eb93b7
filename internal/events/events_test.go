package events

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var started, all []Event
	bus.Subscribe(RunStarted, func(e Event) { started = append(started, e) })
	unsubscribe := bus.SubscribeAll(func(e Event) { all = append(all, e) })

	bus.Publish(Event{Type: RunStarted, Data: &RunStartedData{RunID: "r1"}})
	bus.Publish(Event{Type: RunCompleted, Data: &RunCompletedData{RunID: "r1"}})

	require.Len(t, started, 1)
	assert.False(t, started[0].Timestamp.IsZero())
	assert.Len(t, all, 2)

	unsubscribe()
	bus.Publish(Event{Type: RunStarted})
	assert.Len(t, started, 2)
	assert.Len(t, all, 2)
}

func TestBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	delivered := false
	bus.Subscribe(RunFailed, func(e Event) { panic("boom") })
	bus.Subscribe(RunFailed, func(e Event) { delivered = true })

	assert.NotPanics(t, func() { bus.Publish(Event{Type: RunFailed}) })
	assert.True(t, delivered)
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var mu sync.Mutex
	count := 0
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(Event{Type: StepCompleted})
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, count)
}

func TestManager_EmitTyped(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var received []Event
	bus.SubscribeAll(func(e Event) { received = append(received, e) })

	manager.EmitTyped("orchestrator", &StepData{Type: StepFailed, RunID: "r1", StepID: "dar", Capability: "risk.dar", Kind: "not_found"})
	manager.EmitError("orchestrator", errors.New("store unavailable"), map[string]interface{}{"step_id": "dar"})

	require.Len(t, received, 2)
	assert.Equal(t, StepFailed, received[0].Type)
	assert.Equal(t, "orchestrator", received[0].Module)
	assert.Equal(t, ErrorOccurred, received[1].Type)
	assert.Equal(t, "store unavailable", received[1].Data.(*ErrorEventData).Error)
}

func TestEvent_JSONRoundTrip(t *testing.T) {
	tests := []EventData{
		&RunStartedData{RunID: "r1", PatternID: "p", Version: "1", Steps: 3},
		&RunCompletedData{RunID: "r1", PatternID: "p", DurationMs: 12, CacheHits: 1},
		&RunFailedData{RunID: "r1", PatternID: "p", StepID: "s", Capability: "risk.dar", Kind: "not_found", Error: "x"},
		&StepData{Type: StepCacheHit, RunID: "r1", StepID: "s", Capability: "risk.factor_exposure"},
	}

	for _, data := range tests {
		event := Event{Type: data.EventType(), Module: "orchestrator", Data: data}
		encoded, err := json.Marshal(&event)
		require.NoError(t, err)

		var decoded Event
		require.NoError(t, json.Unmarshal(encoded, &decoded))
		assert.Equal(t, data, decoded.Data)
		assert.Equal(t, event.Type, decoded.Type)
	}
}

func TestEvent_UnknownTypeDecodesGeneric(t *testing.T) {
	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(`{"type":"CUSTOM","module":"m","data":{"a":1}}`), &decoded))

	generic, ok := decoded.Data.(*GenericEventData)
	require.True(t, ok)
	assert.Equal(t, EventType("CUSTOM"), generic.EventType())
	assert.Equal(t, float64(1), generic.Data["a"])
}
