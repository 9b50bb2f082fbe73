package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	chiCors "github.com/go-chi/cors"

	"github.com/michaldziwisz/sygnalista/failure"
	"github.com/michaldziwisz/sygnalista/ratelimit"
)

func NewRouter(in *Intake) *chi.Mux {
	r := chi.NewRouter()
	// init cors middleware; the origin is mirrored back for any caller
	cors := chiCors.New(chiCors.Options{
		AllowOriginFunc:  func(r *http.Request, origin string) bool { return true },
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", AppTokenHeader},
		AllowCredentials: false,
		MaxAge:           86400,
	})
	// add middlewares
	r.Use(cors.Handler)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		failure.SendError(w, http.StatusNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		failure.SendError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	r.Get("/health", HealthHandler())

	r.Route("/v1/report", func(r chi.Router) {
		r.With(ratelimit.Middleware(in.Limiter)).Post("/", in.PostReportHandler())
		// bare OPTIONS (no preflight headers) still gets a CORS-friendly 204
		r.Options("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return r
}
