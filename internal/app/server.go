package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"studyvault/internal/api/handlers"
	appMiddleware "studyvault/internal/api/middlewares"
	"studyvault/internal/config"
	"studyvault/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, users *services.UserService, uploads *services.UploadService, materials *services.MaterialService, retrieval *services.RetrievalService, jobs *services.JobService) *Server {
	authHandler := handlers.NewAuthHandler(users)
	uploadHandler := handlers.NewUploadHandler(uploads, jobs)
	materialHandler := handlers.NewMaterialHandler(materials, retrieval)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware)

			protected.Post("/uploads", uploadHandler.Initiate)
			protected.Post("/uploads/{sessionID}/complete", uploadHandler.Complete)
			protected.Get("/jobs/{jobID}", uploadHandler.JobStatus)

			protected.Get("/materials", materialHandler.List)
			protected.Get("/materials/{materialID}", materialHandler.Get)
			protected.Get("/materials/{materialID}/outline", materialHandler.Outline)
			protected.Get("/materials/{materialID}/chunks", materialHandler.Chunks)
			protected.Delete("/materials/{materialID}", materialHandler.Delete)

			protected.Post("/search", materialHandler.Search)
			protected.Post("/materials/stats", materialHandler.Stats)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
