package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/deckgest/internal/config"
	"github.com/dgallion1/deckgest/internal/export"
	"github.com/dgallion1/deckgest/internal/extract"
	"github.com/dgallion1/deckgest/internal/pipeline"
)

// Server is the HTTP API server for deckgest.
type Server struct {
	router   chi.Router
	sessions *pipeline.SessionStore
	exporter *export.Exporter
	stats    *extract.LLMStats
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server. stats may be nil.
func NewServer(sessions *pipeline.SessionStore, stats *extract.LLMStats, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		sessions: sessions,
		exporter: export.NewExporter(log),
		stats:    stats,
		log:      log,
		cfg:      cfg,
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

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/extract", s.handleExtract)
		r.Post("/process", s.handleProcess)
		r.Post("/download", s.handleDownload)
		r.Get("/stats/llm", s.handleLLMStats)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)

			r.Post("/files", s.handleUploadFiles)
			r.Get("/files", s.handleListFiles)
			r.Delete("/files/{fileID}", s.handleRemoveFile)
			r.Post("/files/{fileID}/retry", s.handleRetryFile)
			r.Get("/files/{fileID}/text", s.handleFileText)

			r.Get("/schema", s.handleGetSchema)
			r.Put("/schema", s.handleReplaceSchema)
			r.Post("/schema/fields", s.handleAddField)
			r.Patch("/schema/fields/{fieldID}", s.handleUpdateField)
			r.Delete("/schema/fields/{fieldID}", s.handleRemoveField)

			r.Post("/process", s.handleProcessSession)
			r.Get("/results", s.handleResults)
			r.Get("/export", s.handleExport)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}
