package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"market-search/utils"
)

const apiPrefix = "/api/v1"

// NewRouter builds the HTTP API.
func NewRouter(h *Handler, stream *EventStream, origins []string, logger utils.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP, LoggerMiddleware(logger), middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Trace-ID"},
		ExposedHeaders: []string{"X-Trace-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route(apiPrefix, func(r chi.Router) {
		r.Get("/locations", h.SearchLocations)

		r.Route("/regions", func(r chi.Router) {
			r.Get("/", h.ListRegions)
			r.Post("/", h.AddRegion)
			r.Put("/", h.ReplaceRegions)
			r.Get("/groups", h.RegionGroups)
			r.Put("/active", h.SetActiveRegions)
			r.Post("/refresh", h.RefreshRegions)
			r.Delete("/{regionID}", h.RemoveRegion)
			r.Post("/{regionID}/refresh", h.RefreshRegion)
		})

		r.Route("/search", func(r chi.Router) {
			r.Post("/", h.StartSearch)
			r.Delete("/", h.ClearSearch)
			r.Get("/status", h.SearchStatus)
			r.Post("/stop", h.StopSearch)
			r.Post("/resume", h.ResumeSearch)
			r.Method(http.MethodGet, "/events", stream)
		})

		r.Route("/listings", func(r chi.Router) {
			r.Get("/", h.Listings)
			r.Put("/options", h.SaveViewOptions)
			r.Get("/export.csv", h.ExportCSV)
		})

		r.Route("/exclusions", func(r chi.Router) {
			r.Get("/", h.ListExclusions)
			r.Post("/", h.AddExclusion)
			r.Delete("/", h.RemoveExclusion)
		})
	})

	return r
}

// Server wraps http.Server with start and graceful stop.
type Server struct {
	httpServer *http.Server
	logger     utils.Logger
}

func NewServer(addr string, handler http.Handler, logger utils.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks until the server stops. A graceful shutdown is not an error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", utils.Fields{"addr": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("http server shutting down", nil)
	return s.httpServer.Shutdown(ctx)
}
