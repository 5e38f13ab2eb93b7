// Package orchestrator executes patterns: it resolves each step's capability, runs the step
// DAG on a bounded set of workers, serves cacheable steps from the knowledge graph and
// assembles the declared output shape.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/riskflow/internal/capabilities"
	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/events"
	"github.com/aristath/riskflow/internal/modules/graph"
	"github.com/aristath/riskflow/internal/patterns"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultMaxConcurrency bounds in-flight steps when Options leaves it unset
const DefaultMaxConcurrency = 4

// Query is the caller-supplied context that ctx bindings read from
type Query map[string]any

// Options configure an orchestrator
type Options struct {
	// MaxConcurrency is the number of steps of one run executing at the same time
	MaxConcurrency int

	// Events receives run lifecycle events. Optional.
	Events *events.Manager

	// Metrics records run, step and cache metrics. Optional.
	Metrics *Metrics
}

// Orchestrator runs patterns from a catalog against a sealed capability registry
type Orchestrator struct {
	registry       *capabilities.Registry
	store          graph.Store
	catalog        *patterns.Catalog
	maxConcurrency int
	events         *events.Manager
	metrics        *Metrics
	newRunID       func() string
	now            func() time.Time
	log            zerolog.Logger
}

// New validates the assembly and returns an orchestrator ready to accept runs.
// Every capability referenced by every catalog pattern must be registered and every
// step must bind the inputs its capability requires; all problems are reported together.
// The registry is sealed on success.
func New(registry *capabilities.Registry, store graph.Store, catalog *patterns.Catalog, opts Options, log zerolog.Logger) (*Orchestrator, error) {
	if registry == nil {
		return nil, errors.New("orchestrator requires a capability registry")
	}
	if store == nil {
		return nil, errors.New("orchestrator requires a knowledge graph store")
	}
	if catalog == nil {
		return nil, errors.New("orchestrator requires a pattern catalog")
	}
	if opts.MaxConcurrency == 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.MaxConcurrency < 0 {
		return nil, fmt.Errorf("max concurrency must be positive, got %d", opts.MaxConcurrency)
	}

	o := &Orchestrator{
		registry:       registry,
		store:          store,
		catalog:        catalog,
		maxConcurrency: opts.MaxConcurrency,
		events:         opts.Events,
		metrics:        opts.Metrics,
		newRunID:       uuid.NewString,
		now:            time.Now,
		log:            log.With().Str("component", "orchestrator").Logger(),
	}

	var problems []error
	for _, p := range catalog.All() {
		if err := o.Check(p); err != nil {
			problems = append(problems, err)
		}
	}
	if err := errors.Join(problems...); err != nil {
		return nil, fmt.Errorf("pattern assembly failed: %w", err)
	}

	registry.Seal()

	o.log.Info().
		Int("patterns", catalog.Len()).
		Strs("capabilities", registry.Names()).
		Int("max_concurrency", o.maxConcurrency).
		Msg("Orchestrator assembled")

	return o, nil
}

// Check verifies that a validated pattern can run against the registry
func (o *Orchestrator) Check(p *patterns.Pattern) error {
	if p == nil || p.Plan() == nil {
		return &domain.ValidationError{Field: "pattern", Reason: "pattern has not been validated"}
	}

	var problems []error
	for _, step := range p.Steps {
		if err := o.registry.ValidateBindings(step.Capability, step.GuaranteedInputNames()); err != nil {
			problems = append(problems, fmt.Errorf("pattern %s step %s: %w", p.ID, step.ID, err))
		}
	}
	return errors.Join(problems...)
}

// Catalog returns the pattern catalog
func (o *Orchestrator) Catalog() *patterns.Catalog {
	return o.catalog
}

// Run executes a catalog pattern by id
func (o *Orchestrator) Run(ctx context.Context, patternID string, query Query) (*Result, error) {
	p, err := o.catalog.Get(patternID)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, p, query)
}

// RunPattern executes a pattern that is not part of the catalog. It is checked against the
// registry first, the same way catalog patterns are checked at assembly.
func (o *Orchestrator) RunPattern(ctx context.Context, p *patterns.Pattern, query Query) (*Result, error) {
	if err := o.Check(p); err != nil {
		return nil, err
	}
	return o.execute(ctx, p, query)
}

func (o *Orchestrator) execute(ctx context.Context, p *patterns.Pattern, query Query) (*Result, error) {
	r := newRun(o, p, query)
	o.emit(&events.RunStartedData{RunID: r.id, PatternID: p.ID, Version: p.Version, Steps: len(p.Steps)})

	result, err := r.dispatch(ctx)
	duration := o.now().Sub(r.startedAt)

	if err != nil {
		o.metrics.observeRun(p.ID, outcomeOf(err))
		o.emitFailure(r, err)
		o.log.Warn().
			Err(err).
			Str("run_id", r.id).
			Str("pattern_id", p.ID).
			Dur("duration", duration).
			Msg("Pattern run failed")
		return nil, err
	}

	result.Duration = duration
	o.metrics.observeRun(p.ID, "success")
	o.emit(&events.RunCompletedData{
		RunID:      r.id,
		PatternID:  p.ID,
		DurationMs: duration.Milliseconds(),
		CacheHits:  result.CacheHits,
	})
	o.log.Info().
		Str("run_id", r.id).
		Str("pattern_id", p.ID).
		Int("steps", len(p.Steps)).
		Int("cache_hits", result.CacheHits).
		Dur("duration", duration).
		Msg("Pattern run completed")

	return result, nil
}

func (o *Orchestrator) emit(data events.EventData) {
	if o.events != nil {
		o.events.EmitTyped("orchestrator", data)
	}
}

func (o *Orchestrator) emitFailure(r *run, err error) {
	data := &events.RunFailedData{
		RunID:     r.id,
		PatternID: r.pattern.ID,
		Kind:      string(domain.KindOf(err)),
		Error:     err.Error(),
	}
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		data.StepID = stepErr.StepID
		data.Capability = stepErr.Capability
	}
	o.emit(data)
}

func outcomeOf(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "failure"
}
