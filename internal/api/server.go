// Package api provides the versecite HTTP and WebSocket service.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/FocuswithJustin/versecite/core/cache"
	"github.com/FocuswithJustin/versecite/core/refscan"
	"github.com/FocuswithJustin/versecite/internal/citeindex"
	"github.com/FocuswithJustin/versecite/internal/logging"
	"github.com/gorilla/websocket"
)

const shutdownTimeout = 5 * time.Second

// Server serves the citation API. Create it with NewServer.
type Server struct {
	cfg      Config
	parser   *refscan.Parser
	scans    *cache.ScanCache
	index    *citeindex.Index
	limiter  *RateLimiter
	upgrader websocket.Upgrader
	handler  http.Handler
	started  time.Time
}

// NewServer builds a server from cfg, opening the citation index when
// cfg.DBPath is set.
func NewServer(cfg Config) (*Server, error) {
	cfg = cfg.normalize()
	s := &Server{
		cfg: cfg,
		parser: refscan.NewParser(
			refscan.WithMaxBookWords(cfg.MaxBookWords),
			refscan.WithMaxValue(cfg.MaxValue),
			refscan.WithLogger(logging.GetLogger()),
		),
		scans:   cache.NewScanCache(cache.Config{MaxSize: cfg.CacheSize, TTL: cfg.CacheTTL}),
		started: time.Now(),
	}

	if cfg.DBPath != "" {
		ix, err := citeindex.OpenWithTexts(cfg.DBPath, s.parser)
		if err != nil {
			return nil, fmt.Errorf("opening citation index: %w", err)
		}
		s.index = ix
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), cfg.AllowedOrigins)
		},
	}
	if cfg.RateLimitRequests > 0 {
		s.limiter = NewRateLimiter(RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimitRequests,
			BurstSize:         cfg.RateLimitBurst,
		})
	}
	s.handler = s.buildHandler()
	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/parse", s.handleParse)
	mux.HandleFunc("GET /api/expand", s.handleExpand)
	mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	mux.HandleFunc("POST /api/documents", s.handleAddDocument)
	mux.HandleFunc("GET /api/documents/{id}", s.handleGetDocument)
	mux.HandleFunc("GET /api/documents/{id}/text", s.handleDocumentText)
	mux.HandleFunc("DELETE /api/documents/{id}", s.handleRemoveDocument)
	mux.HandleFunc("GET /api/citations", s.handleCitations)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/ws", s.handleWebSocket)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
	})

	return mux
}

func (s *Server) buildHandler() http.Handler {
	var handler http.Handler = SecurityHeaders(s.routes())
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
		logging.Info("rate limiting enabled",
			"requests_per_minute", s.cfg.RateLimitRequests,
			"burst_size", s.cfg.RateLimitBurst)
	}
	handler = CORS(s.cfg.AllowedOrigins, handler)
	return logging.CombinedMiddleware(handler)
}

// ListenAndServe serves on cfg.Port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	port := 0
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	logging.ServerStartup("versecite_api", "http", port,
		"websocket_protocol", "ws",
		"index", s.cfg.DBPath,
		"cache_size", s.cfg.CacheSize)
	if len(s.cfg.AllowedOrigins) == 0 {
		logging.Warn("allowing all origins", "note", "set allowed origins for production")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logging.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// Close releases the citation index.
func (s *Server) Close() error {
	if s.index == nil {
		return nil
	}
	return s.index.Close()
}
