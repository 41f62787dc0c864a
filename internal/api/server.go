package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jibzus/enterprise-spendguard/internal/config"
	"github.com/jibzus/enterprise-spendguard/internal/corpus"
	"github.com/jibzus/enterprise-spendguard/internal/metrics"
)

// Server is the HTTP API server for spendguard.
type Server struct {
	router       chi.Router
	orchestrator *corpus.Orchestrator
	store        *corpus.Store
	met          *metrics.Metrics
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *corpus.Orchestrator, store *corpus.Store, met *metrics.Metrics, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		store:        store,
		met:          met,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.met.Handler())

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/evaluate", s.handleEvaluate)
		r.Post("/api/policy/search", s.handlePolicySearch)

		r.Post("/api/corpus", s.handleCorpusLoad)
		r.Get("/api/corpus/loads/{jobID}", s.handleLoadStatus)
		r.Get("/api/corpus/active", s.handleCorpusActive)
		r.Get("/api/corpus/versions", s.handleCorpusVersions)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
