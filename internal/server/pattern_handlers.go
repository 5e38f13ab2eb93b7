package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/orchestrator"
	"github.com/aristath/riskflow/internal/patterns"
	"github.com/aristath/riskflow/internal/server/response"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// maxQueryBytes bounds the body of a run request
const maxQueryBytes = 1 << 20

// PatternRunner executes catalog patterns
type PatternRunner interface {
	Catalog() *patterns.Catalog
	Run(ctx context.Context, patternID string, query orchestrator.Query) (*orchestrator.Result, error)
}

// PatternHandlers serves the pattern catalog and runs patterns
type PatternHandlers struct {
	runner PatternRunner
	log    zerolog.Logger
}

// NewPatternHandlers creates pattern handlers
func NewPatternHandlers(runner PatternRunner, log zerolog.Logger) *PatternHandlers {
	return &PatternHandlers{
		runner: runner,
		log:    log.With().Str("handler", "patterns").Logger(),
	}
}

type stepView struct {
	ID         string   `json:"id"`
	Capability string   `json:"capability"`
	As         string   `json:"as"`
	DependsOn  []string `json:"depends_on"`
}

type patternView struct {
	ID           string         `json:"id"`
	Version      string         `json:"version"`
	Description  string         `json:"description,omitempty"`
	Triggers     []string       `json:"triggers,omitempty"`
	Shape        patterns.Shape `json:"shape"`
	Capabilities []string       `json:"capabilities"`
	Steps        []stepView     `json:"steps,omitempty"`
}

func toPatternView(p *patterns.Pattern, withSteps bool) patternView {
	view := patternView{
		ID:           p.ID,
		Version:      p.Version,
		Description:  p.Description,
		Triggers:     p.Triggers,
		Shape:        p.Output.Shape(),
		Capabilities: p.Capabilities(),
	}
	if !withSteps {
		return view
	}

	plan := p.Plan()
	for _, id := range plan.Order() {
		step, _ := plan.Step(id)
		deps := plan.Dependencies(id)
		if deps == nil {
			deps = []string{}
		}
		view.Steps = append(view.Steps, stepView{
			ID:         step.ID,
			Capability: step.Capability,
			As:         step.As,
			DependsOn:  deps,
		})
	}
	return view
}

type runView struct {
	RunID      string         `json:"run_id"`
	PatternID  string         `json:"pattern_id"`
	Version    string         `json:"version"`
	Shape      patterns.Shape `json:"shape"`
	CacheHits  int            `json:"cache_hits"`
	DurationMs int64          `json:"duration_ms"`
	Output     any            `json:"output"`
}

// HandleListPatterns handles GET /api/patterns
func (h *PatternHandlers) HandleListPatterns(w http.ResponseWriter, r *http.Request) {
	all := h.runner.Catalog().All()
	views := make([]patternView, 0, len(all))
	for _, p := range all {
		views = append(views, toPatternView(p, false))
	}
	response.JSON(w, h.log, http.StatusOK, views)
}

// HandleMatchPatterns handles GET /api/patterns/match?q=...
func (h *PatternHandlers) HandleMatchPatterns(w http.ResponseWriter, r *http.Request) {
	phrase := r.URL.Query().Get("q")
	if phrase == "" {
		response.Error(w, h.log, &domain.ValidationError{Field: "q", Reason: "is required"})
		return
	}

	matches := h.runner.Catalog().Match(phrase)
	views := make([]patternView, 0, len(matches))
	for _, p := range matches {
		views = append(views, toPatternView(p, false))
	}
	response.JSON(w, h.log, http.StatusOK, views)
}

// HandleGetPattern handles GET /api/patterns/{id}
func (h *PatternHandlers) HandleGetPattern(w http.ResponseWriter, r *http.Request, patternID string) {
	p, err := h.runner.Catalog().Get(patternID)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, h.log, http.StatusOK, toPatternView(p, true))
}

// HandleRunPattern handles POST /api/patterns/{id}/run. The body is the query context;
// an empty body runs the pattern with an empty context.
func (h *PatternHandlers) HandleRunPattern(w http.ResponseWriter, r *http.Request, patternID string) {
	query, err := decodeQuery(r)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}

	result, err := h.runner.Run(r.Context(), patternID, query)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}

	response.JSON(w, h.log, http.StatusOK, runView{
		RunID:      result.RunID,
		PatternID:  result.PatternID,
		Version:    result.Version,
		Shape:      result.Shape,
		CacheHits:  result.CacheHits,
		DurationMs: result.Duration.Milliseconds(),
		Output:     result.Body(),
	})
}

func decodeQuery(r *http.Request) (orchestrator.Query, error) {
	query := orchestrator.Query{}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxQueryBytes))
	if err := dec.Decode(&query); err != nil {
		if errors.Is(err, io.EOF) {
			return orchestrator.Query{}, nil
		}
		return nil, &domain.ValidationError{Field: "body", Reason: "query must be a JSON object: " + err.Error()}
	}
	if query == nil {
		query = orchestrator.Query{}
	}
	return query, nil
}

// RegisterRoutes registers pattern routes
func (h *PatternHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/patterns", func(r chi.Router) {
		r.Get("/", h.HandleListPatterns)
		r.Get("/match", h.HandleMatchPatterns)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetPattern(w, r, chi.URLParam(r, "id"))
			})
			r.Post("/run", func(w http.ResponseWriter, r *http.Request) {
				h.HandleRunPattern(w, r, chi.URLParam(r, "id"))
			})
		})
	})
}
