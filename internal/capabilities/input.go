package capabilities

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aristath/riskflow/internal/domain"
)

// Input is the set of named values bound to one step
type Input map[string]any

// Names returns the bound input names, sorted
func (in Input) Names() []string {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is bound
func (in Input) Has(name string) bool {
	_, ok := in[name]
	return ok
}

// String returns a required string input
func (in Input) String(name string) (string, error) {
	v, ok := in[name]
	if !ok {
		return "", missingInput(name)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", &domain.ValidationError{Field: name, Reason: fmt.Sprintf("must be a non-empty string, got %T", v)}
	}
	return s, nil
}

// StringOr returns a string input or def when it is not bound
func (in Input) StringOr(name, def string) (string, error) {
	if !in.Has(name) {
		return def, nil
	}
	return in.String(name)
}

// Float returns a required numeric input. Integers are accepted.
func (in Input) Float(name string) (float64, error) {
	v, ok := in[name]
	if !ok {
		return 0, missingInput(name)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, &domain.ValidationError{Field: name, Reason: fmt.Sprintf("must be a number, got %T", v)}
	}
}

// FloatOr returns a numeric input or def when it is not bound
func (in Input) FloatOr(name string, def float64) (float64, error) {
	if !in.Has(name) {
		return def, nil
	}
	return in.Float(name)
}

// Decode converts an input into target through a JSON round trip, so prior step outputs
// and literals from pattern documents both decode into typed values.
func (in Input) Decode(name string, target any) error {
	v, ok := in[name]
	if !ok {
		return missingInput(name)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return &domain.ValidationError{Field: name, Reason: fmt.Sprintf("cannot encode value: %v", err)}
	}
	if err := json.Unmarshal(data, target); err != nil {
		return &domain.ValidationError{Field: name, Reason: fmt.Sprintf("cannot decode value: %v", err)}
	}
	return nil
}

// PackID returns a pack identifier bound either as a string or as a resolved pack
// object carrying an "id" field
func (in Input) PackID(name string) (string, error) {
	v, ok := in[name]
	if !ok {
		return "", missingInput(name)
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return "", &domain.ValidationError{Field: name, Reason: "pack id is empty"}
		}
		return s, nil
	}

	var ref struct {
		ID string `json:"id"`
	}
	if err := in.Decode(name, &ref); err != nil {
		return "", err
	}
	if ref.ID == "" {
		return "", &domain.ValidationError{Field: name, Reason: fmt.Sprintf("expected a pack id or a pack, got %T", v)}
	}
	return ref.ID, nil
}

func missingInput(name string) error {
	return &domain.ValidationError{Field: name, Reason: "input is not bound"}
}
