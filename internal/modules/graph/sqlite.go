package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/utils"
	"github.com/rs/zerolog"
)

// SQLiteStore persists graph nodes in an append-only table.
// The schema's triggers reject UPDATE and DELETE; this type only ever inserts.
type SQLiteStore struct {
	db  *sql.DB
	seq *utils.Sequence
	log zerolog.Logger
}

// NewSQLiteStore creates a store and advances the sequence past the highest stored id
func NewSQLiteStore(ctx context.Context, db *sql.DB, seq *utils.Sequence, log zerolog.Logger) (*SQLiteStore, error) {
	s := &SQLiteStore{
		db:  db,
		seq: seq,
		log: log.With().Str("repo", "graph").Logger(),
	}

	var maxID sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT MAX(id) FROM graph_nodes").Scan(&maxID); err != nil {
		return nil, fmt.Errorf("failed to read highest graph node id: %w", err)
	}
	if maxID.Valid {
		seq.AdvanceTo(maxID.Int64)
	}

	return s, nil
}

// Put inserts a new node
func (s *SQLiteStore) Put(ctx context.Context, nodeType, key string, payload []byte, packID string) (int64, error) {
	if err := validateNode(nodeType, key, payload); err != nil {
		return 0, err
	}

	id := s.seq.Next()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO graph_nodes (id, node_type, node_key, payload, pack_id, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, nodeType, key, payload, packID, time.Now().UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s node %s: %w", nodeType, key, err)
	}

	s.log.Debug().Int64("id", id).Str("type", nodeType).Str("key", key).Str("pack_id", packID).Msg("Graph node stored")
	return id, nil
}

// GetLatest returns the highest-id node for (type, key), or nil
func (s *SQLiteStore) GetLatest(ctx context.Context, nodeType, key string) (*domain.GraphNode, error) {
	row := s.db.QueryRowContext(ctx,
		selectNode+" WHERE node_type = ? AND node_key = ? ORDER BY id DESC LIMIT 1",
		nodeType, key)
	return scanNodeRow(row)
}

// GetLatestForPack returns the highest-id node for (type, key) computed from packID, or nil
func (s *SQLiteStore) GetLatestForPack(ctx context.Context, nodeType, key, packID string) (*domain.GraphNode, error) {
	row := s.db.QueryRowContext(ctx,
		selectNode+" WHERE node_type = ? AND node_key = ? AND pack_id = ? ORDER BY id DESC LIMIT 1",
		nodeType, key, packID)
	return scanNodeRow(row)
}

// History returns every node for (type, key), oldest first
func (s *SQLiteStore) History(ctx context.Context, nodeType, key string) ([]domain.GraphNode, error) {
	rows, err := s.db.QueryContext(ctx,
		selectNode+" WHERE node_type = ? AND node_key = ? ORDER BY id ASC",
		nodeType, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query graph history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.GraphNode, 0)
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan graph node: %w", err)
		}
		history = append(history, *node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating graph history: %w", err)
	}
	return history, nil
}

const selectNode = "SELECT id, node_type, node_key, payload, pack_id, created_at FROM graph_nodes"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNodeRow(row *sql.Row) (*domain.GraphNode, error) {
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query graph node: %w", err)
	}
	return node, nil
}

func scanNode(row rowScanner) (*domain.GraphNode, error) {
	var node domain.GraphNode
	var createdAt int64
	if err := row.Scan(&node.ID, &node.Type, &node.Key, &node.Payload, &node.PackID, &createdAt); err != nil {
		return nil, err
	}
	node.CreatedAt = time.Unix(0, createdAt).UTC()
	return &node, nil
}
