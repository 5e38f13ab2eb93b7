// Package handlers provides HTTP handlers for reading the knowledge graph.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/modules/graph"
	"github.com/aristath/riskflow/internal/server/response"
	"github.com/rs/zerolog"
)

// Handler handles knowledge graph HTTP requests
type Handler struct {
	store graph.Store
	log   zerolog.Logger
}

// NewHandler creates a new graph handler
func NewHandler(store graph.Store, log zerolog.Logger) *Handler {
	return &Handler{
		store: store,
		log:   log.With().Str("handler", "graph").Logger(),
	}
}

// nodeView renders the payload as embedded JSON rather than base64
type nodeView struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	PackID    string          `json:"pack_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

func toView(node domain.GraphNode) nodeView {
	return nodeView{
		ID:        node.ID,
		Type:      node.Type,
		Key:       node.Key,
		PackID:    node.PackID,
		CreatedAt: node.CreatedAt,
		Payload:   json.RawMessage(node.Payload),
	}
}

// HandleGetLatest handles GET /api/graph/{type}/{key}/latest
func (h *Handler) HandleGetLatest(w http.ResponseWriter, r *http.Request, nodeType, key string) {
	var (
		node *domain.GraphNode
		err  error
	)
	if packID := r.URL.Query().Get("pack_id"); packID != "" {
		node, err = h.store.GetLatestForPack(r.Context(), nodeType, key, packID)
	} else {
		node, err = h.store.GetLatest(r.Context(), nodeType, key)
	}
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	if node == nil {
		response.JSON(w, h.log, http.StatusNotFound, nil)
		return
	}
	response.JSON(w, h.log, http.StatusOK, toView(*node))
}

// HandleGetHistory handles GET /api/graph/{type}/{key}/history
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request, nodeType, key string) {
	history, err := h.store.History(r.Context(), nodeType, key)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}

	views := make([]nodeView, 0, len(history))
	for _, node := range history {
		views = append(views, toView(node))
	}
	response.JSON(w, h.log, http.StatusOK, map[string]interface{}{
		"nodes": views,
		"count": len(views),
	})
}
