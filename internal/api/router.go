package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(h *Handlers, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/seedbanks", h.ListSeedbanks)

		r.Route("/scrapers", func(r chi.Router) {
			r.Post("/run", h.RunAll)
			r.Post("/{slug}/run", h.RunSeedbank)
		})

		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{runID}", h.GetRun)

		r.Route("/alerts", func(r chi.Router) {
			r.Post("/check", h.CheckAlerts)
			r.Post("/sweep", h.SweepAlerts)
		})
	})

	return r
}
