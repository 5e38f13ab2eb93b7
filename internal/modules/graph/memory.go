package graph

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/utils"
)

type nodeKey struct {
	nodeType string
	key      string
}

// MemoryStore is an in-process Store. Nodes are appended and indexed by (type, key);
// ids come from the shared sequence so they stay monotonic across stores.
type MemoryStore struct {
	mu    sync.RWMutex
	seq   *utils.Sequence
	nodes []domain.GraphNode
	index map[nodeKey][]int // positions in nodes, ascending id
}

// NewMemoryStore creates an empty in-memory graph store
func NewMemoryStore(seq *utils.Sequence) *MemoryStore {
	return &MemoryStore{
		seq:   seq,
		index: make(map[nodeKey][]int),
	}
}

// Put appends a new node
func (s *MemoryStore) Put(ctx context.Context, nodeType, key string, payload []byte, packID string) (int64, error) {
	if err := validateNode(nodeType, key, payload); err != nil {
		return 0, err
	}

	stored := make([]byte, len(payload))
	copy(stored, payload)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Id is taken under the lock so slice order and id order agree
	node := domain.GraphNode{
		ID:        s.seq.Next(),
		Type:      nodeType,
		Key:       key,
		Payload:   stored,
		PackID:    packID,
		CreatedAt: time.Now().UTC(),
	}
	k := nodeKey{nodeType, key}
	s.index[k] = append(s.index[k], len(s.nodes))
	s.nodes = append(s.nodes, node)
	return node.ID, nil
}

// GetLatest returns the highest-id node for (type, key), or nil
func (s *MemoryStore) GetLatest(ctx context.Context, nodeType, key string) (*domain.GraphNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := s.index[nodeKey{nodeType, key}]
	if len(positions) == 0 {
		return nil, nil
	}
	node := s.nodes[positions[len(positions)-1]]
	return &node, nil
}

// GetLatestForPack returns the highest-id node for (type, key) computed from packID, or nil
func (s *MemoryStore) GetLatestForPack(ctx context.Context, nodeType, key, packID string) (*domain.GraphNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := s.index[nodeKey{nodeType, key}]
	for i := len(positions) - 1; i >= 0; i-- {
		if node := s.nodes[positions[i]]; node.PackID == packID {
			return &node, nil
		}
	}
	return nil, nil
}

// History returns every node for (type, key), oldest first
func (s *MemoryStore) History(ctx context.Context, nodeType, key string) ([]domain.GraphNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := s.index[nodeKey{nodeType, key}]
	history := make([]domain.GraphNode, 0, len(positions))
	for _, pos := range positions {
		history = append(history, s.nodes[pos])
	}
	return history, nil
}

// Len returns the number of stored nodes
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
