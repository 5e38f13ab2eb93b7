// Package graph provides the knowledge graph store: an append-only record of computed
// artifacts keyed by (type, key) and tagged with the pricing pack they were computed from.
package graph

import (
	"context"

	"github.com/aristath/riskflow/internal/domain"
)

// Node types written by the engine
const (
	NodeFactorBeta = "factor_beta"
)

// Store is the knowledge graph contract. Put always creates a new node; nothing is overwritten.
// Lookups for an absent (type, key) return nil without error.
type Store interface {
	Put(ctx context.Context, nodeType, key string, payload []byte, packID string) (int64, error)
	GetLatest(ctx context.Context, nodeType, key string) (*domain.GraphNode, error)
	GetLatestForPack(ctx context.Context, nodeType, key, packID string) (*domain.GraphNode, error)
	History(ctx context.Context, nodeType, key string) ([]domain.GraphNode, error)
}

func validateNode(nodeType, key string, payload []byte) error {
	if nodeType == "" {
		return &domain.ValidationError{Field: "type", Reason: "node type is required"}
	}
	if key == "" {
		return &domain.ValidationError{Field: "key", Reason: "node key is required"}
	}
	if len(payload) == 0 {
		return &domain.ValidationError{Field: "payload", Reason: "payload is required"}
	}
	return nil
}
