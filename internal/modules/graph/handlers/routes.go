package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers knowledge graph routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/graph/{type}/{key}", func(r chi.Router) {
		r.Get("/latest", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetLatest(w, r, chi.URLParam(r, "type"), chi.URLParam(r, "key"))
		})
		r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetHistory(w, r, chi.URLParam(r, "type"), chi.URLParam(r, "key"))
		})
	})
}
