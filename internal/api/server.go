// Package api serves the catalog to UI clients over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finelagusaz/ghost-launcher/internal/api/handlers"
	"github.com/finelagusaz/ghost-launcher/internal/app"
	"github.com/finelagusaz/ghost-launcher/internal/scheduler"
)

// shutdownTimeout bounds how long Run waits for in-flight requests.
const shutdownTimeout = 10 * time.Second

// Server holds the HTTP server and all handler dependencies.
type Server struct {
	addr    string
	srv     *http.Server
	handler http.Handler

	// bgCtx scopes work started by handlers that outlives its request.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// New wires all routes and returns a Server ready to Run.
// sched may be nil when no schedule is configured.
func New(addr string, a *app.App, sched *scheduler.Scheduler, version string) (*Server, error) {
	s := &Server{addr: addr}
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())

	searchH, err := handlers.NewSearchHandler(a)
	if err != nil {
		return nil, fmt.Errorf("search handler: %w", err)
	}
	thumbH, err := handlers.NewThumbnailHandler(a)
	if err != nil {
		return nil, fmt.Errorf("thumbnail handler: %w", err)
	}
	statusH := &handlers.StatusHandler{App: a, Sched: sched, Version: version}
	refreshH := &handlers.RefreshHandler{App: a}
	rangeH := &handlers.RangeHandler{PageSize: a.Config.Window.PageSize}
	configH := &handlers.ConfigHandler{
		App: a,
		// A new configuration is loaded in the background, as on startup.
		OnChange: func() {
			s.background(func(ctx context.Context) {
				if _, err := a.Refresh(ctx, false); err != nil {
					slog.Warn("refresh after config change failed", "error", err)
				}
			})
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", statusH.ServeHTTP)
		r.Post("/refresh", refreshH.ServeHTTP)
		r.Get("/search", searchH.ServeHTTP)
		r.Get("/range", rangeH.ServeHTTP)
		r.Get("/thumbnail", thumbH.ServeHTTP)
		r.Get("/config", configH.Get)
		r.Patch("/config", configH.Update)
	})
	r.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	s.handler = r
	return s, nil
}

// background runs fn in a goroutine that Run cancels and waits for on
// shutdown.
func (s *Server) background(fn func(ctx context.Context)) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn(s.bgCtx)
	}()
}

// stopBackground cancels background work and waits for it to return.
func (s *Server) stopBackground() {
	s.bgCancel()
	s.bg.Wait()
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the HTTP server and blocks until ctx is cancelled. Background
// work started by handlers has returned by the time Run does.
func (s *Server) Run(ctx context.Context) error {
	defer s.stopBackground()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
