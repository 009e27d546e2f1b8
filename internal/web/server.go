package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/conorfennell/openingdrill/internal/session"
	"github.com/conorfennell/openingdrill/internal/storage"
	"github.com/conorfennell/openingdrill/internal/sync"
)

// Syncer runs a deck source sync on demand.
type Syncer interface {
	Run(ctx context.Context) (sync.Report, error)
}

// Options tune the HTTP surface.
type Options struct {
	CORSOrigins []string
	// RPS and Burst bound requests per learner.
	RPS         float64
	Burst       int
	DailyNewCap int
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	db       *storage.DB
	sessions *session.Manager
	syncer   Syncer
	opts     Options
	logger   *slog.Logger
	validate *validator.Validate
	limiter  *rateLimiter
	router   chi.Router
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, sessions *session.Manager, syncer Syncer, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RPS <= 0 {
		opts.RPS = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 20
	}
	s := &Server{
		db:       db,
		sessions: sessions,
		syncer:   syncer,
		opts:     opts,
		logger:   logger,
		validate: newValidator(),
		limiter:  newRateLimiter(rate.Limit(opts.RPS), opts.Burst),
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", userHeader},
		MaxAge:         300,
	}).Handler)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth())

	r.Route("/api", func(r chi.Router) {
		r.Use(requireUser)
		r.Use(s.limiter.middleware)

		r.Get("/decks", s.handleListDecks())
		r.Get("/settings", s.handleGetSettings())
		r.Put("/settings", s.handlePutSettings())

		r.Route("/session", func(r chi.Router) {
			r.Post("/", s.handleStartSession())
			r.Get("/", s.handleGetSession())
			r.Post("/moves", s.handlePlay())
			r.Post("/solution", s.handleShowSolution())
			r.Post("/repeat", s.handleRepeat())
			r.Post("/next", s.handleNext())
			r.Post("/remove", s.handleRemove())
			r.Post("/flush", s.handleFlush())
		})

		r.Get("/sources", s.handleListSources())
		r.Post("/sources", s.handleAddSource())
		r.Delete("/sources/{id}", s.handleDeleteSource())
		r.Post("/sync", s.handlePostSync())
	})
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(r.Context()); err != nil {
			s.logger.ErrorContext(r.Context(), "Health check failed", "error", err)
			http.Error(w, "Health check failed", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}
