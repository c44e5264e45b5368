// Package web exposes the recognizer over HTTP.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/andresmejia3/facewatch/internal/gallery"
	"github.com/andresmejia3/facewatch/internal/pipeline"
	"github.com/andresmejia3/facewatch/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// SightingLister is the part of the sighting store the API reads from.
type SightingLister interface {
	ListSightings(ctx context.Context, label string, limit int) ([]store.Sighting, error)
}

// Options configures the server.
type Options struct {
	Addr string
	// CompareThreshold is the default threshold of the compare endpoint.
	CompareThreshold float64
	// MaxUploadBytes bounds request bodies.
	MaxUploadBytes int64
	// Sightings is optional; without it the sightings endpoint is not mounted.
	Sightings SightingLister
}

// Server serves identification requests against a fixed gallery.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	opts       Options
	logger     *zap.Logger

	gallery *gallery.Gallery

	// engineMu serializes access to the engine; its detector is not safe
	// for concurrent use.
	engineMu sync.Mutex
	engine   *pipeline.Engine
}

// NewServer creates a server for an initialized engine and a built gallery.
func NewServer(engine *pipeline.Engine, g *gallery.Gallery, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}

	r := chi.NewRouter()
	s := &Server{
		router:  r,
		opts:    opts,
		logger:  logger.Named("web"),
		gallery: g,
		engine:  engine,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(time.Minute))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthCheck)
		r.Get("/gallery", s.ListGallery)
		r.Post("/identify", s.Identify)
		r.Post("/compare", s.Compare)
		if s.opts.Sightings != nil {
			r.Get("/sightings", s.ListSightings)
		}
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting web server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// requestLogger logs each request with zap once it completes.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", chiMiddleware.GetReqID(r.Context())))
		})
	}
}
