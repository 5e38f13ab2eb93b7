package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Get("/scenarios", h.HandleListScenarios)
		r.Get("/scenarios/{name}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetScenario(w, r, chi.URLParam(r, "name"))
		})

		r.Get("/securities/{symbol}/betas", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetBetas(w, r, chi.URLParam(r, "symbol"))
		})

		r.Route("/portfolios/{id}", func(r chi.Router) {
			r.Get("/exposure", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetExposure(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/dar", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetDaR(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/attribution", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetAttribution(w, r, chi.URLParam(r, "id"))
			})
		})
	})
}
