// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the puppet HTTP API: conversation storage routes
// and a streaming reverse proxy for chat completion endpoints.
//
// Endpoints:
//   - GET    /conversation        - List stored conversations
//   - POST   /conversation        - Store a conversation
//   - GET    /conversation/{id}   - Retrieve one conversation
//   - DELETE /conversation/{id}   - Delete one conversation
//   - POST   /chat/completions    - Streaming reverse proxy to the upstream
//   - POST   /v1/chat/completions - Same proxy, versioned path
//   - POST   /v1beta/models/{model} - Same proxy, Gemini-style path
//   - GET    /health              - Health check
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/jeranaias/puppet/internal/config"
	"github.com/jeranaias/puppet/internal/llm"
	"github.com/jeranaias/puppet/internal/store"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxRequestBodySize caps request bodies (8MB; inline attachments make
	// completion requests large).
	MaxRequestBodySize = 8 * 1024 * 1024

	// Version is the server version.
	Version = "0.3.0"
)

// ============================================================================
// SERVER
// ============================================================================

// Server is the puppet HTTP API server.
type Server struct {
	cfg     config.ServerConfig
	store   *store.Store
	proxy   *Proxy
	mux     *http.ServeMux
	server  *http.Server
	limiter *RateLimiter
}

// New creates a server from its configuration and an opened store.
func New(cfg config.ServerConfig, st *store.Store) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		proxy:   NewProxy(cfg.UpstreamURL, cfg.UpstreamAPIKey),
		mux:     http.NewServeMux(),
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
	}
	s.setupRoutes()
	return s
}

// WatchConfig reloads the proxy upstream settings whenever the
// configuration file changes. Blocks until ctx is done.
func (s *Server) WatchConfig(ctx context.Context, path string) error {
	return watchConfig(ctx, path, func(cfg *config.Config) {
		s.proxy.SetUpstream(cfg.Server.UpstreamURL, cfg.Server.UpstreamAPIKey)
	})
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /conversation", s.handleList)
	s.mux.HandleFunc("POST /conversation", s.handleCreate)
	s.mux.HandleFunc("GET /conversation/{id}", s.handleGet)
	s.mux.HandleFunc("DELETE /conversation/{id}", s.handleDelete)

	s.mux.HandleFunc("POST /chat/completions", s.proxy.Handle)
	s.mux.HandleFunc("POST /v1/chat/completions", s.proxy.Handle)
	s.mux.HandleFunc("POST /v1beta/models/{model}", s.proxy.Handle)

	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// ============================================================================
// CONVERSATION HANDLERS
// ============================================================================

// createRequest is the POST /conversation body.
type createRequest struct {
	Summary  string        `json:"summary"`
	Messages []llm.Message `json:"messages"`
}

// handleList handles GET /conversation.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	metas, err := s.store.List(r.Context())
	if err != nil {
		log.Printf("LIST_ERROR | error=%v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	s.writeJSON(w, http.StatusOK, metas)
}

// handleCreate handles POST /conversation.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		s.writeError(w, http.StatusBadRequest, "conversation must contain at least one message")
		return
	}

	id, err := s.store.Create(r.Context(), req.Summary, req.Messages)
	if err != nil {
		log.Printf("CREATE_ERROR | error=%v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to store conversation")
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// handleGet handles GET /conversation/{id}.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		log.Printf("GET_ERROR | error=%v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

// handleDelete handles DELETE /conversation/{id}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		log.Printf("DELETE_ERROR | error=%v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"version":            Version,
		"upstream_configured": s.proxy.IsConfigured(),
	})
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Handler returns the fully wrapped handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(),
		LoggingMiddleware(log.Default()),
		RateLimitMiddleware(s.limiter),
	)(s.mux)
}

// Start runs the HTTP server until it fails or is shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.cfg.Addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	log.Printf("SERVER_START | addr=%s version=%s", s.cfg.Addr, Version)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
