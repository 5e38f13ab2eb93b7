package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers pricing pack routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/packs", func(r chi.Router) {
		r.Get("/", h.HandleListPacks)
		r.Get("/latest", h.HandleGetLatestPack)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetPack(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/prices/{symbol}", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetPrice(w, r, chi.URLParam(r, "id"), chi.URLParam(r, "symbol"))
			})
		})
	})
}
