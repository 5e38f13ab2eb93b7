package patterns

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/validation"
	"gopkg.in/yaml.v3"
)

// Parse decodes and validates one pattern document
func Parse(v *validation.Validator, data []byte) (*Pattern, error) {
	var p Pattern
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("invalid pattern document: %v", err)}
	}
	if err := Validate(v, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks a pattern's structure and wiring and builds its plan.
// Step ids default to their output key.
func Validate(v *validation.Validator, p *Pattern) error {
	for i := range p.Steps {
		if p.Steps[i].ID == "" {
			p.Steps[i].ID = p.Steps[i].As
		}
	}

	if err := v.Struct(p); err != nil {
		return withPattern(p.ID, err)
	}

	shape := p.Output.Shape()
	if shape == "" {
		return withPattern(p.ID, &domain.ValidationError{Field: "output", Reason: "exactly one of list, mapping or panels is required"})
	}
	if shape == ShapePanels {
		for i, panel := range p.Output.Panels {
			if err := v.Struct(panel); err != nil {
				return withPattern(p.ID, fmt.Errorf("output.panels[%d]: %w", i, err))
			}
		}
	}
	if shape == ShapeMapping {
		names := make(map[string]bool, len(p.Output.Mapping))
		for _, e := range p.Output.Mapping {
			if names[e.Name] {
				return withPattern(p.ID, &domain.ValidationError{Field: "output.mapping", Reason: fmt.Sprintf("duplicate name %q", e.Name)})
			}
			names[e.Name] = true
		}
	}

	plan, err := NewPlan(p.Steps)
	if err != nil {
		return withPattern(p.ID, err)
	}
	for _, key := range p.Output.Keys() {
		if _, ok := plan.Producer(key); !ok {
			return withPattern(p.ID, &domain.ValidationError{
				Field:  "output",
				Reason: fmt.Sprintf("no step produces output key %q", key),
			})
		}
	}

	p.plan = plan
	return nil
}

func withPattern(id string, err error) error {
	if id == "" {
		return err
	}
	return fmt.Errorf("pattern %s: %w", id, err)
}

// LoadFS parses every .yaml or .yml file in dir of fsys, in name order
func LoadFS(v *validation.Validator, fsys fs.FS, dir string) ([]*Pattern, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern directory %s: %w", dir, err)
	}

	var loaded []*Pattern
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read pattern %s: %w", name, err)
		}
		p, err := Parse(v, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		loaded = append(loaded, p)
	}
	return loaded, nil
}

// LoadDir parses every pattern document in a directory on disk
func LoadDir(v *validation.Validator, dir string) ([]*Pattern, error) {
	return LoadFS(v, os.DirFS(dir), ".")
}

// Catalog is an immutable set of validated patterns
type Catalog struct {
	patterns map[string]*Pattern
}

// NewCatalog builds a catalog. Every pattern must have been validated; ids must be unique.
func NewCatalog(patterns ...*Pattern) (*Catalog, error) {
	c := &Catalog{patterns: make(map[string]*Pattern, len(patterns))}
	var errs []error
	for _, p := range patterns {
		if p.plan == nil {
			errs = append(errs, fmt.Errorf("pattern %s has not been validated", p.ID))
			continue
		}
		if _, dup := c.patterns[p.ID]; dup {
			errs = append(errs, &domain.ValidationError{Field: "id", Reason: fmt.Sprintf("duplicate pattern id %q", p.ID)})
			continue
		}
		c.patterns[p.ID] = p
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns a pattern by id
func (c *Catalog) Get(id string) (*Pattern, error) {
	p, ok := c.patterns[id]
	if !ok {
		return nil, &domain.PatternNotFoundError{PatternID: id}
	}
	return p, nil
}

// IDs returns the pattern ids, sorted
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.patterns))
	for id := range c.patterns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns the patterns sorted by id
func (c *Catalog) All() []*Pattern {
	ids := c.IDs()
	all := make([]*Pattern, len(ids))
	for i, id := range ids {
		all[i] = c.patterns[id]
	}
	return all
}

// Len returns the number of patterns
func (c *Catalog) Len() int {
	return len(c.patterns)
}

// Match returns the patterns with a trigger phrase contained in phrase, case-insensitively.
// Patterns with a longer matching trigger come first.
func (c *Catalog) Match(phrase string) []*Pattern {
	phrase = strings.ToLower(phrase)
	type scored struct {
		p     *Pattern
		score int
	}
	var matches []scored
	for _, p := range c.All() {
		best := 0
		for _, trigger := range p.Triggers {
			t := strings.ToLower(strings.TrimSpace(trigger))
			if t != "" && strings.Contains(phrase, t) && len(t) > best {
				best = len(t)
			}
		}
		if best > 0 {
			matches = append(matches, scored{p: p, score: best})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	result := make([]*Pattern, len(matches))
	for i, m := range matches {
		result[i] = m.p
	}
	return result
}
