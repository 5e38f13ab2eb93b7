package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/riskflow/internal/capabilities"
	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/events"
	"github.com/aristath/riskflow/internal/patterns"
	"github.com/rs/zerolog"
)

// run is the state of one pattern execution. Outputs are read and written only by the
// dispatching goroutine; workers hand results back over the completions channel.
type run struct {
	o         *Orchestrator
	id        string
	pattern   *patterns.Pattern
	plan      *patterns.Plan
	query     Query
	startedAt time.Time
	outputs   map[string]any
	cacheHits int
	log       zerolog.Logger
}

type outcome struct {
	step   patterns.Step
	output any
	cached bool
	err    error
}

func newRun(o *Orchestrator, p *patterns.Pattern, query Query) *run {
	id := o.newRunID()
	return &run{
		o:         o,
		id:        id,
		pattern:   p,
		plan:      p.Plan(),
		query:     query,
		startedAt: o.now(),
		outputs:   make(map[string]any, len(p.Steps)),
		log:       o.log.With().Str("run_id", id).Str("pattern_id", p.ID).Logger(),
	}
}

// dispatch schedules every step whose dependencies have produced output, up to the
// concurrency bound. The first failure stops scheduling and is returned immediately;
// steps already running finish in the background and their outputs are dropped.
func (r *run) dispatch(ctx context.Context) (*Result, error) {
	steps := r.plan.Steps()
	waiting := make(map[string]int, len(steps))
	var ready []string
	for _, s := range steps {
		waiting[s.ID] = len(r.plan.Dependencies(s.ID))
	}
	ready = append(ready, r.plan.Roots()...)

	// Buffered for every step so abandoned workers never block
	completions := make(chan outcome, len(steps))
	done := ctx.Done()
	inFlight := 0
	completed := 0

	for completed < len(steps) {
		for len(ready) > 0 && inFlight < r.o.maxConcurrency {
			if err := ctx.Err(); err != nil {
				return nil, r.cancelled(err)
			}
			step, _ := r.plan.Step(ready[0])
			ready = ready[1:]

			agent, in, err := r.prepare(step)
			if err != nil {
				return nil, r.stepError(step, err)
			}
			inFlight++
			go func() {
				completions <- r.execute(ctx, step, agent, in)
			}()
		}

		if inFlight == 0 {
			return nil, fmt.Errorf("run %s stalled with %d of %d steps completed", r.id, completed, len(steps))
		}

		select {
		case out := <-completions:
			inFlight--
			if out.err != nil {
				return nil, r.stepError(out.step, out.err)
			}
			completed++
			if out.cached {
				r.cacheHits++
			}
			r.outputs[out.step.As] = out.output
			for _, next := range r.plan.Dependents(out.step.ID) {
				waiting[next]--
				if waiting[next] == 0 {
					ready = append(ready, next)
				}
			}
		case <-done:
			return nil, r.cancelled(ctx.Err())
		}
	}

	entries, err := extract(r.pattern.Output, r.outputs)
	if err != nil {
		return nil, err
	}
	return &Result{
		RunID:     r.id,
		PatternID: r.pattern.ID,
		Version:   r.pattern.Version,
		Shape:     r.pattern.Output.Shape(),
		Entries:   entries,
		StartedAt: r.startedAt,
		CacheHits: r.cacheHits,
	}, nil
}

// prepare resolves the step's capability and builds its input from the bindings
func (r *run) prepare(step patterns.Step) (capabilities.Agent, capabilities.Input, error) {
	agent, err := r.o.registry.Resolve(step.Capability)
	if err != nil {
		return nil, nil, err
	}

	in := make(capabilities.Input, len(step.Inputs))
	for name, b := range step.Inputs {
		switch b.Kind {
		case patterns.BindValue:
			in[name] = b.Value
		case patterns.BindContext:
			v, ok := r.query[b.Ref]
			switch {
			case ok:
			case b.Default != nil:
				v = b.Default
			case b.Optional:
				continue
			default:
				return nil, nil, &domain.ValidationError{
					Field:  "query." + b.Ref,
					Reason: fmt.Sprintf("required by input %q of step %s", name, step.ID),
				}
			}
			in[name] = v
		case patterns.BindStep:
			v, ok := r.outputs[b.Ref]
			if !ok {
				return nil, nil, &domain.ValidationError{
					Field:  name,
					Reason: fmt.Sprintf("output %q of a prior step is not available", b.Ref),
				}
			}
			in[name] = v
		default:
			return nil, nil, &domain.ValidationError{Field: name, Reason: fmt.Sprintf("unknown binding kind %q", b.Kind)}
		}
	}
	return agent, in, nil
}

// execute runs one step on a worker goroutine, serving cacheable steps from the graph store
func (r *run) execute(ctx context.Context, step patterns.Step, agent capabilities.Agent, in capabilities.Input) (out outcome) {
	start := time.Now()
	out.step = step
	contract := agent.Contract()

	defer func() {
		if p := recover(); p != nil {
			out.output = nil
			out.err = fmt.Errorf("capability %s panicked: %v", contract.Name, p)
		}
		r.finish(out, time.Since(start))
	}()

	var entry *cacheEntry
	if contract.CacheByPack {
		var err error
		entry, err = newCacheEntry(contract, in)
		if err != nil {
			out.err = err
			return out
		}
		if cached, ok := r.o.lookup(ctx, agent, entry); ok {
			out.output = cached
			out.cached = true
			return out
		}
	}

	out.output, out.err = agent.Execute(ctx, in)
	if out.err == nil && entry != nil {
		r.o.record(ctx, entry, out.output)
	}
	return out
}

// finish records metrics and events for a completed step. It runs on the worker goroutine.
func (r *run) finish(out outcome, elapsed time.Duration) {
	r.o.metrics.observeStep(out.step.Capability, out.err, elapsed)

	data := &events.StepData{
		Type:       events.StepCompleted,
		RunID:      r.id,
		StepID:     out.step.ID,
		Capability: out.step.Capability,
		DurationMs: elapsed.Milliseconds(),
	}
	switch {
	case out.err != nil:
		data.Type = events.StepFailed
		data.Kind = string(domain.KindOf(out.err))
		data.Error = out.err.Error()
	case out.cached:
		data.Type = events.StepCacheHit
	}
	r.o.emit(data)

	r.log.Debug().
		Str("step_id", out.step.ID).
		Str("capability", out.step.Capability).
		Bool("cached", out.cached).
		Dur("elapsed", elapsed).
		AnErr("error", out.err).
		Msg("Step finished")
}

func (r *run) stepError(step patterns.Step, err error) error {
	return &StepError{
		RunID:      r.id,
		PatternID:  r.pattern.ID,
		StepID:     step.ID,
		Capability: step.Capability,
		Kind:       domain.KindOf(err),
		Err:        err,
	}
}

func (r *run) cancelled(err error) error {
	return fmt.Errorf("run %s of pattern %s cancelled: %w", r.id, r.pattern.ID, err)
}
