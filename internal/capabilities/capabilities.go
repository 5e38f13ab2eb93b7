// Package capabilities provides the capability registry: a table mapping each capability
// name to exactly one agent, filled once at assembly and read-only afterwards.
package capabilities

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/validation"
)

// Contract describes what a capability needs and whether its output can be cached
type Contract struct {
	// Name is the dotted capability name (e.g. "risk.dar")
	Name string

	// Required lists input names every binding must supply
	Required []string

	// CacheByPack marks outputs that depend only on their inputs and an immutable pack,
	// so they can be served from the graph store across runs
	CacheByPack bool

	// PackInput names the input holding the pack id for cacheable capabilities
	PackInput string
}

// Agent implements one capability
type Agent interface {
	Contract() Contract
	Execute(ctx context.Context, in Input) (any, error)
}

// OutputDecoder restores a cached output from its JSON payload. Agents whose contract is
// cacheable must implement it so cache hits return the same type as a live execution.
type OutputDecoder interface {
	DecodeOutput(payload []byte) (any, error)
}

// DuplicateCapabilityError reports a second registration under the same name
type DuplicateCapabilityError struct {
	Capability string
}

func (e *DuplicateCapabilityError) Error() string {
	return fmt.Sprintf("capability %q is already registered", e.Capability)
}

// Kind implements domain.KindedError
func (e *DuplicateCapabilityError) Kind() domain.ErrorKind { return domain.KindValidation }

// Registry maps capability names to agents
type Registry struct {
	agents map[string]Agent
	sealed bool
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds an agent under its contract name. A name may be registered once.
func (r *Registry) Register(agent Agent) error {
	return r.add(agent, false)
}

// Replace registers an agent, replacing any agent already registered under the same name
func (r *Registry) Replace(agent Agent) error {
	return r.add(agent, true)
}

func (r *Registry) add(agent Agent, replace bool) error {
	if agent == nil {
		return &domain.ValidationError{Field: "agent", Reason: "is required"}
	}
	contract := agent.Contract()
	if err := checkContract(contract); err != nil {
		return err
	}
	if contract.CacheByPack {
		if _, ok := agent.(OutputDecoder); !ok {
			return &domain.ValidationError{
				Field:  contract.Name,
				Reason: "cacheable capability must decode its cached output",
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("registry is sealed: cannot register %q", contract.Name)
	}
	if _, exists := r.agents[contract.Name]; exists && !replace {
		return &DuplicateCapabilityError{Capability: contract.Name}
	}
	r.agents[contract.Name] = agent
	return nil
}

func checkContract(c Contract) error {
	if c.Name == "" {
		return &domain.ValidationError{Field: "name", Reason: "capability name is required"}
	}
	if !validation.IsCapabilityName(c.Name) {
		return &domain.ValidationError{Field: "name", Reason: fmt.Sprintf("%q is not a dotted capability name", c.Name)}
	}
	if c.CacheByPack {
		if c.PackInput == "" {
			return &domain.ValidationError{Field: c.Name, Reason: "cacheable capability must name its pack input"}
		}
		found := false
		for _, name := range c.Required {
			if name == c.PackInput {
				found = true
				break
			}
		}
		if !found {
			return &domain.ValidationError{Field: c.Name, Reason: fmt.Sprintf("pack input %q must be a required input", c.PackInput)}
		}
	}
	return nil
}

// Seal freezes the table. Resolution is a plain read afterwards.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether the registry accepts further registrations
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Resolve returns the agent registered for name. It never returns nil without an error.
func (r *Registry) Resolve(name string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[name]
	if !ok {
		return nil, &domain.CapabilityNotFoundError{Capability: name}
	}
	return agent, nil
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[name]
	return ok
}

// Names returns all registered capability names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Contracts returns the contracts of all registered capabilities, sorted by name
func (r *Registry) Contracts() []Contract {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	contracts := make([]Contract, 0, len(names))
	for _, name := range names {
		if agent, ok := r.agents[name]; ok {
			contracts = append(contracts, agent.Contract())
		}
	}
	return contracts
}

// ValidateBindings checks that the bound input names cover the capability's required inputs
func (r *Registry) ValidateBindings(name string, bound []string) error {
	agent, err := r.Resolve(name)
	if err != nil {
		return err
	}

	have := make(map[string]bool, len(bound))
	for _, b := range bound {
		have[b] = true
	}
	var missing []string
	for _, req := range agent.Contract().Required {
		if !have[req] {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return &domain.ValidationError{
			Field:  name,
			Reason: fmt.Sprintf("missing required inputs %v", missing),
		}
	}
	return nil
}
