// Package web provides the HTTP server and handlers for the admin data grid.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/GTFB/forlifely-sub001/internal/config"
	"github.com/GTFB/forlifely-sub001/internal/core"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Backend is the storage surface the web layer needs: the engine's store
// contract plus direct schema access for mutation validation.
type Backend interface {
	core.Store
	Schema(ctx context.Context, collection string) ([]core.ColumnSchema, error)
}

// Server is the HTTP server for the data grid API.
type Server struct {
	cfg     *config.Config
	backend Backend
	jobs    *core.ImportJobManager
	router  *chi.Mux
	server  *http.Server

	mu        sync.Mutex
	resolvers map[string]*core.Resolver
	sessions  map[string]*core.EditSession
	pagers    map[string]*core.PaginationController
	sorts     map[string]*core.SortCoordinator
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, backend Backend, jobs *core.ImportJobManager) *Server {
	s := &Server{
		cfg:       cfg,
		backend:   backend,
		jobs:      jobs,
		router:    chi.NewRouter(),
		resolvers: make(map[string]*core.Resolver),
		sessions:  make(map[string]*core.EditSession),
		pagers:    make(map[string]*core.PaginationController),
		sorts:     make(map[string]*core.SortCoordinator),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	// Security hardening
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		// Collection discovery
		r.Get("/collections", s.handleListCollections)

		// Grid state query
		r.Get("/collection/{collection}", s.handleGridState)

		// Row mutations
		r.Post("/collection/{collection}/rows", s.handleCreateRow)
		r.Patch("/collection/{collection}/rows/{key}", s.handleUpdateRow)
		r.Delete("/collection/{collection}/rows/{key}", s.handleDeleteRow)

		// Edit session
		r.Post("/collection/{collection}/edit", s.handleBeginEdit)
		r.Get("/collection/{collection}/edit", s.handlePendingEdits)
		r.Post("/collection/{collection}/edit/commit", s.handleCommitEdits)
		r.Post("/collection/{collection}/edit/discard", s.handleDiscardEdits)

		// Export download
		r.Get("/collection/{collection}/export", s.handleExport)

		// Import operations
		if s.cfg.Rate.Enabled {
			importLimiter := newRateLimiter(s.cfg.Rate.ImportLimit, time.Minute)
			r.With(importLimiter.middleware).Post("/collection/{collection}/import", s.handleImport)
		} else {
			r.Post("/collection/{collection}/import", s.handleImport)
		}
		r.Get("/import/{jobID}/progress", s.handleImportProgress)
		r.Get("/import/{jobID}/result", s.handleImportResult)
		r.Post("/import/{jobID}/cancel", s.handleCancelImport)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // zero keeps SSE streams open
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// resolver returns the per-collection resolver, creating it on first use.
func (s *Server) resolver(collection string) *core.Resolver {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resolvers[collection]
	if !ok {
		r = core.NewResolver(s.backend)
		s.resolvers[collection] = r
	}
	return r
}

// session returns the per-collection edit session, creating it on first use.
func (s *Server) session(collection string) *core.EditSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	es, ok := s.sessions[collection]
	if !ok {
		es = core.NewEditSession(s.backend, collection)
		s.sessions[collection] = es
	}
	return es
}

// pager returns the per-collection pagination controller, creating it on
// first use with the configured default page size.
func (s *Server) pager(collection string) *core.PaginationController {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pagers[collection]
	if !ok {
		p = core.NewPaginationController()
		p.SetPageSize(collection, s.cfg.Grid.DefaultPageSize)
		s.pagers[collection] = p
	}
	return p
}

// sort returns the per-collection sort coordinator, creating it on first use.
func (s *Server) sort(collection string) *core.SortCoordinator {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.sorts[collection]
	if !ok {
		c = core.NewSortCoordinator()
		s.sorts[collection] = c
	}
	return c
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// rateLimiter implements a simple token bucket rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	// Start cleanup goroutine
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every minute.
func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:    rl.rate - 1, // consume one token
			lastReset: time.Now(),
		}
		return true
	}

	// Reset tokens if window has passed
	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}

	// Check if we have tokens left
	if v.tokens <= 0 {
		return false
	}

	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by IP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		// Use X-Real-IP if set (by RealIP middleware)
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			ip = realIP
		}

		if !rl.allow(ip) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeError writes a JSON error response with a plain message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, message)
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", "error", err)
	}
}
