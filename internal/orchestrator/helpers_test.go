package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/aristath/riskflow/internal/capabilities"
	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/modules/graph"
	"github.com/aristath/riskflow/internal/patterns"
	"github.com/aristath/riskflow/internal/utils"
	"github.com/aristath/riskflow/internal/validation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// funcAgent is a test agent whose behaviour is a function of its input
type funcAgent struct {
	contract capabilities.Contract
	fn       func(ctx context.Context, in capabilities.Input) (any, error)

	mu    sync.Mutex
	calls int
}

func newFuncAgent(name string, required []string, fn func(ctx context.Context, in capabilities.Input) (any, error)) *funcAgent {
	return &funcAgent{
		contract: capabilities.Contract{Name: name, Required: required},
		fn:       fn,
	}
}

func (a *funcAgent) Contract() capabilities.Contract { return a.contract }

func (a *funcAgent) Execute(ctx context.Context, in capabilities.Input) (any, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return a.fn(ctx, in)
}

func (a *funcAgent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// cachedAgent is a funcAgent whose outputs are cached by pack
type cachedAgent struct {
	*funcAgent
}

func newCachedAgent(name string, fn func(ctx context.Context, in capabilities.Input) (any, error)) *cachedAgent {
	a := newFuncAgent(name, []string{"pack_id", "x"}, fn)
	a.contract.CacheByPack = true
	a.contract.PackInput = "pack_id"
	return &cachedAgent{funcAgent: a}
}

func (a *cachedAgent) DecodeOutput(payload []byte) (any, error) {
	var out map[string]float64
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// constant returns a function producing v
func constant(v any) func(context.Context, capabilities.Input) (any, error) {
	return func(context.Context, capabilities.Input) (any, error) { return v, nil }
}

// mockStore is a graph.Store driven by testify expectations
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Put(ctx context.Context, nodeType, key string, payload []byte, packID string) (int64, error) {
	args := m.Called(ctx, nodeType, key, payload, packID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) GetLatest(ctx context.Context, nodeType, key string) (*domain.GraphNode, error) {
	args := m.Called(ctx, nodeType, key)
	node, _ := args.Get(0).(*domain.GraphNode)
	return node, args.Error(1)
}

func (m *mockStore) GetLatestForPack(ctx context.Context, nodeType, key, packID string) (*domain.GraphNode, error) {
	args := m.Called(ctx, nodeType, key, packID)
	node, _ := args.Get(0).(*domain.GraphNode)
	return node, args.Error(1)
}

func (m *mockStore) History(ctx context.Context, nodeType, key string) ([]domain.GraphNode, error) {
	args := m.Called(ctx, nodeType, key)
	nodes, _ := args.Get(0).([]domain.GraphNode)
	return nodes, args.Error(1)
}

func mustParse(t *testing.T, doc string) *patterns.Pattern {
	t.Helper()
	p, err := patterns.Parse(validation.New(), []byte(doc))
	require.NoError(t, err)
	return p
}

func newRegistry(t *testing.T, agents ...capabilities.Agent) *capabilities.Registry {
	t.Helper()
	registry := capabilities.NewRegistry()
	for _, agent := range agents {
		require.NoError(t, registry.Register(agent))
	}
	return registry
}

func newCatalog(t *testing.T, docs ...string) *patterns.Catalog {
	t.Helper()
	parsed := make([]*patterns.Pattern, 0, len(docs))
	for _, doc := range docs {
		parsed = append(parsed, mustParse(t, doc))
	}
	catalog, err := patterns.NewCatalog(parsed...)
	require.NoError(t, err)
	return catalog
}

func newOrchestrator(t *testing.T, registry *capabilities.Registry, catalog *patterns.Catalog, opts Options) (*Orchestrator, *graph.MemoryStore) {
	t.Helper()
	store := graph.NewMemoryStore(utils.NewSequence(0))
	o, err := New(registry, store, catalog, opts, zerolog.Nop())
	require.NoError(t, err)
	return o, store
}
