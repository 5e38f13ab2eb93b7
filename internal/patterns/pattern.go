// Package patterns provides declarative pattern definitions: a named workflow of steps,
// each bound to a capability, with inputs wired from literals, the query context or
// earlier step outputs, and a declared output shape.
package patterns

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// BindingKind is the source of a step input
type BindingKind string

const (
	// BindValue is a literal from the pattern document
	BindValue BindingKind = "value"
	// BindContext reads a field of the caller's query context
	BindContext BindingKind = "ctx"
	// BindStep reads the output stored under another step's output key
	BindStep BindingKind = "step"
)

// Binding is one step input. Exactly one source is set.
//
// A context binding may carry a default literal, used when the query lacks the field, or
// be marked optional, in which case the input is left unset and the capability applies its
// own default.
type Binding struct {
	Kind     BindingKind
	Value    any    // BindValue
	Ref      string // context field for BindContext, output key for BindStep
	Default  any    // BindContext only
	Optional bool   // BindContext only
}

// Value returns a literal binding
func Value(v any) Binding { return Binding{Kind: BindValue, Value: v} }

// Ctx returns a query-context binding
func Ctx(field string) Binding { return Binding{Kind: BindContext, Ref: field} }

// CtxOr returns a query-context binding that falls back to a literal
func CtxOr(field string, def any) Binding {
	return Binding{Kind: BindContext, Ref: field, Default: def}
}

// OptionalCtx returns a query-context binding that is left unset when the field is absent
func OptionalCtx(field string) Binding {
	return Binding{Kind: BindContext, Ref: field, Optional: true}
}

// StepOutput returns a binding to another step's output key
func StepOutput(key string) Binding { return Binding{Kind: BindStep, Ref: key} }

// Guaranteed reports whether the binding always yields a value when the run reaches the step
func (b Binding) Guaranteed() bool {
	return !b.Optional
}

// UnmarshalYAML implements yaml.Unmarshaler
func (b *Binding) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) == 0 {
		return fmt.Errorf("line %d: binding must have exactly one of value, ctx or step", node.Line)
	}

	var (
		source        *yaml.Node
		sourceKind    BindingKind
		def, optional *yaml.Node
	)
	for i := 0; i < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		switch k := BindingKind(key.Value); k {
		case BindValue, BindContext, BindStep:
			if source != nil {
				return fmt.Errorf("line %d: binding must have exactly one of value, ctx or step", node.Line)
			}
			source, sourceKind = val, k
		case "default":
			def = val
		case "optional":
			optional = val
		default:
			return fmt.Errorf("line %d: unknown binding source %q", key.Line, key.Value)
		}
	}
	if source == nil {
		return fmt.Errorf("line %d: binding must have exactly one of value, ctx or step", node.Line)
	}
	if (def != nil || optional != nil) && sourceKind != BindContext {
		return fmt.Errorf("line %d: default and optional apply to ctx bindings only", node.Line)
	}
	if def != nil && optional != nil {
		return fmt.Errorf("line %d: a binding cannot have both a default and be optional", node.Line)
	}

	switch sourceKind {
	case BindValue:
		var v any
		if err := source.Decode(&v); err != nil {
			return fmt.Errorf("line %d: invalid literal: %w", source.Line, err)
		}
		*b = Value(v)
	case BindContext, BindStep:
		if source.Kind != yaml.ScalarNode || source.Value == "" {
			return fmt.Errorf("line %d: %s binding must name a field", source.Line, sourceKind)
		}
		*b = Binding{Kind: sourceKind, Ref: source.Value}
	}

	if def != nil {
		var v any
		if err := def.Decode(&v); err != nil {
			return fmt.Errorf("line %d: invalid default: %w", def.Line, err)
		}
		if v == nil {
			return fmt.Errorf("line %d: default must not be null", def.Line)
		}
		b.Default = v
	}
	if optional != nil {
		if err := optional.Decode(&b.Optional); err != nil {
			return fmt.Errorf("line %d: optional must be a boolean: %w", optional.Line, err)
		}
	}
	return nil
}

// Step is a single unit of work bound to one capability
type Step struct {
	ID         string             `yaml:"id,omitempty" validate:"required"`
	Capability string             `yaml:"capability" validate:"required,capability_name"`
	Inputs     map[string]Binding `yaml:"inputs,omitempty"`
	As         string             `yaml:"as" validate:"required"`
}

// InputNames returns the bound input names
func (s Step) InputNames() []string {
	names := make([]string, 0, len(s.Inputs))
	for name := range s.Inputs {
		names = append(names, name)
	}
	return names
}

// GuaranteedInputNames returns the inputs that always carry a value when the step runs.
// Optional context bindings are excluded, so they never satisfy a required input.
func (s Step) GuaranteedInputNames() []string {
	names := make([]string, 0, len(s.Inputs))
	for name, b := range s.Inputs {
		if b.Guaranteed() {
			names = append(names, name)
		}
	}
	return names
}

// Shape is the declared form of a pattern's output
type Shape string

const (
	ShapeList    Shape = "list"
	ShapeMapping Shape = "mapping"
	ShapePanels  Shape = "panels"
)

// MappingEntry is one named entry of a mapping output, in declaration order
type MappingEntry struct {
	Name string
	Key  string
}

// Panel is one entry of a panel output; panel order is display order
type Panel struct {
	ID     string `yaml:"id" json:"id" validate:"required"`
	Title  string `yaml:"title,omitempty" json:"title,omitempty"`
	Output string `yaml:"output" json:"output" validate:"required"`
}

// Output is the declared output shape. Exactly one form is set.
type Output struct {
	List    []string
	Mapping []MappingEntry
	Panels  []Panel
}

// Shape returns the declared form, or "" when none or several are set
func (o Output) Shape() Shape {
	var shapes []Shape
	if len(o.List) > 0 {
		shapes = append(shapes, ShapeList)
	}
	if len(o.Mapping) > 0 {
		shapes = append(shapes, ShapeMapping)
	}
	if len(o.Panels) > 0 {
		shapes = append(shapes, ShapePanels)
	}
	if len(shapes) != 1 {
		return ""
	}
	return shapes[0]
}

// Keys returns the referenced output keys in logical order
func (o Output) Keys() []string {
	switch o.Shape() {
	case ShapeList:
		return append([]string(nil), o.List...)
	case ShapeMapping:
		keys := make([]string, len(o.Mapping))
		for i, e := range o.Mapping {
			keys[i] = e.Key
		}
		return keys
	case ShapePanels:
		keys := make([]string, len(o.Panels))
		for i, p := range o.Panels {
			keys[i] = p.Output
		}
		return keys
	default:
		return nil
	}
}

// UnmarshalYAML implements yaml.Unmarshaler. Mapping entries keep their document order.
func (o *Output) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: output must be a mapping", node.Line)
	}
	for i := 0; i < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		switch Shape(key.Value) {
		case ShapeList:
			if err := val.Decode(&o.List); err != nil {
				return fmt.Errorf("line %d: invalid list output: %w", val.Line, err)
			}
		case ShapeMapping:
			if val.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: mapping output must be a mapping", val.Line)
			}
			for j := 0; j < len(val.Content); j += 2 {
				o.Mapping = append(o.Mapping, MappingEntry{
					Name: val.Content[j].Value,
					Key:  val.Content[j+1].Value,
				})
			}
		case ShapePanels:
			if err := val.Decode(&o.Panels); err != nil {
				return fmt.Errorf("line %d: invalid panels output: %w", val.Line, err)
			}
		default:
			return fmt.Errorf("line %d: unknown output shape %q", key.Line, key.Value)
		}
	}
	return nil
}

// Pattern is a declarative, named workflow. It is immutable once validated.
type Pattern struct {
	ID          string   `yaml:"id" validate:"required"`
	Version     string   `yaml:"version" validate:"required"`
	Description string   `yaml:"description,omitempty"`
	Triggers    []string `yaml:"triggers,omitempty"`
	Steps       []Step   `yaml:"steps" validate:"required,min=1,dive"`
	Output      Output   `yaml:"output"`

	plan *Plan
}

// Plan returns the dependency plan built during validation
func (p *Pattern) Plan() *Plan {
	return p.plan
}

// Capabilities returns the distinct capabilities the pattern references, in step order
func (p *Pattern) Capabilities() []string {
	seen := make(map[string]bool, len(p.Steps))
	var names []string
	for _, s := range p.Steps {
		if !seen[s.Capability] {
			seen[s.Capability] = true
			names = append(names, s.Capability)
		}
	}
	return names
}
