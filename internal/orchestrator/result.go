package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/aristath/riskflow/internal/patterns"
)

// Entry is one output value in logical order. Name is the mapping name, the panel id or,
// for lists, the output key.
type Entry struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Result is the output of a completed run
type Result struct {
	RunID     string         `json:"run_id"`
	PatternID string         `json:"pattern_id"`
	Version   string         `json:"version"`
	Shape     patterns.Shape `json:"shape"`
	Entries   []Entry        `json:"-"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration_ns"`
	CacheHits int            `json:"cache_hits"`
}

// Values returns the output values in logical order, whatever the declared shape
func (r *Result) Values() []any {
	values := make([]any, len(r.Entries))
	for i, e := range r.Entries {
		values[i] = e.Value
	}
	return values
}

// Ordered returns the output as an ordered sequence
func (r *Result) Ordered() []any {
	return r.Values()
}

// Mapping returns the output values by entry name
func (r *Result) Mapping() map[string]any {
	m := make(map[string]any, len(r.Entries))
	for _, e := range r.Entries {
		m[e.Name] = e.Value
	}
	return m
}

// Panels returns the entries in display order
func (r *Result) Panels() []Entry {
	return append([]Entry(nil), r.Entries...)
}

// Body returns the output in its declared shape: a list, a mapping or a panel list
func (r *Result) Body() any {
	switch r.Shape {
	case patterns.ShapeMapping:
		return r.Mapping()
	case patterns.ShapePanels:
		return r.Panels()
	default:
		return r.Ordered()
	}
}

// extract assembles the declared output. All three shapes go through the same walk over
// Output.Keys, so equivalent patterns yield the same values in the same order.
func extract(output patterns.Output, outputs map[string]any) ([]Entry, error) {
	shape := output.Shape()
	keys := output.Keys()
	if shape == "" {
		return nil, errors.New("pattern output declares no single shape")
	}

	entries := make([]Entry, len(keys))
	for i, key := range keys {
		value, ok := outputs[key]
		if !ok {
			return nil, fmt.Errorf("output key %q was not produced", key)
		}
		entry := Entry{Name: key, Key: key, Value: value}
		switch shape {
		case patterns.ShapeMapping:
			entry.Name = output.Mapping[i].Name
		case patterns.ShapePanels:
			entry.Name = output.Panels[i].ID
			entry.Title = output.Panels[i].Title
		}
		entries[i] = entry
	}
	return entries, nil
}
