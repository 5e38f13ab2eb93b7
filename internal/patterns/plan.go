package patterns

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/riskflow/internal/domain"
)

// Plan is the dependency DAG of a pattern's steps, derived from step bindings
type Plan struct {
	steps      []Step
	index      map[string]int      // step id -> position in steps
	producers  map[string]string   // output key -> step id
	deps       map[string][]string // step id -> step ids it waits for
	dependents map[string][]string // step id -> step ids waiting for it
	order      []string
}

// NewPlan builds the dependency plan. It fails on duplicate step ids or output keys,
// references to unknown output keys and cycles.
func NewPlan(steps []Step) (*Plan, error) {
	p := &Plan{
		steps:      steps,
		index:      make(map[string]int, len(steps)),
		producers:  make(map[string]string, len(steps)),
		deps:       make(map[string][]string, len(steps)),
		dependents: make(map[string][]string, len(steps)),
	}

	for i, s := range steps {
		if _, dup := p.index[s.ID]; dup {
			return nil, &domain.ValidationError{Field: fmt.Sprintf("steps[%d].id", i), Reason: fmt.Sprintf("duplicate step id %q", s.ID)}
		}
		if producer, dup := p.producers[s.As]; dup {
			return nil, &domain.ValidationError{
				Field:  fmt.Sprintf("steps[%d].as", i),
				Reason: fmt.Sprintf("output key %q is already produced by step %q", s.As, producer),
			}
		}
		p.index[s.ID] = i
		p.producers[s.As] = s.ID
	}

	for i, s := range steps {
		seen := make(map[string]bool)
		names := s.InputNames()
		sort.Strings(names)
		for _, name := range names {
			b := s.Inputs[name]
			if b.Kind != BindStep {
				continue
			}
			producer, ok := p.producers[b.Ref]
			if !ok {
				return nil, &domain.ValidationError{
					Field:  fmt.Sprintf("steps[%d].inputs.%s", i, name),
					Reason: fmt.Sprintf("no step produces output key %q", b.Ref),
				}
			}
			if !seen[producer] {
				seen[producer] = true
				p.deps[s.ID] = append(p.deps[s.ID], producer)
				p.dependents[producer] = append(p.dependents[producer], s.ID)
			}
		}
	}

	order, err := p.topological()
	if err != nil {
		return nil, err
	}
	p.order = order
	return p, nil
}

// topological orders steps so every step follows its dependencies. Ties keep declaration order.
func (p *Plan) topological() ([]string, error) {
	remaining := make(map[string]int, len(p.steps))
	for _, s := range p.steps {
		remaining[s.ID] = len(p.deps[s.ID])
	}

	order := make([]string, 0, len(p.steps))
	for len(order) < len(p.steps) {
		progressed := false
		for _, s := range p.steps {
			if remaining[s.ID] != 0 {
				continue
			}
			remaining[s.ID] = -1
			order = append(order, s.ID)
			for _, dep := range p.dependents[s.ID] {
				remaining[dep]--
			}
			progressed = true
		}
		if !progressed {
			var cyclic []string
			for _, s := range p.steps {
				if remaining[s.ID] > 0 {
					cyclic = append(cyclic, s.ID)
				}
			}
			return nil, &domain.ValidationError{
				Field:  "steps",
				Reason: "dependency cycle between steps " + strings.Join(cyclic, ", "),
			}
		}
	}
	return order, nil
}

// Steps returns the steps in declaration order
func (p *Plan) Steps() []Step {
	return p.steps
}

// Step returns a step by id
func (p *Plan) Step(id string) (Step, bool) {
	i, ok := p.index[id]
	if !ok {
		return Step{}, false
	}
	return p.steps[i], true
}

// Producer returns the id of the step producing an output key
func (p *Plan) Producer(key string) (string, bool) {
	id, ok := p.producers[key]
	return id, ok
}

// Dependencies returns the ids of the steps a step waits for
func (p *Plan) Dependencies(id string) []string {
	return append([]string(nil), p.deps[id]...)
}

// Dependents returns the ids of the steps waiting for a step
func (p *Plan) Dependents(id string) []string {
	return append([]string(nil), p.dependents[id]...)
}

// Order returns a topological order of the step ids
func (p *Plan) Order() []string {
	return append([]string(nil), p.order...)
}

// Roots returns the steps without dependencies, in declaration order
func (p *Plan) Roots() []string {
	var roots []string
	for _, s := range p.steps {
		if len(p.deps[s.ID]) == 0 {
			roots = append(roots, s.ID)
		}
	}
	return roots
}
