package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios/{id}", func(r chi.Router) {
		r.Get("/positions", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetPositions(w, r, chi.URLParam(r, "id"))
		})
		r.Get("/lots", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetLots(w, r, chi.URLParam(r, "id"))
		})
		r.Post("/trades", func(w http.ResponseWriter, r *http.Request) {
			h.HandleExecuteTrade(w, r, chi.URLParam(r, "id"))
		})
	})
}
