// Package server implements the HTTP transport layer for the KeyHub gateway.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	gateway "github.com/keyhub-gw/keyhub/internal"
	"github.com/keyhub-gw/keyhub/internal/balancer"
	"github.com/keyhub-gw/keyhub/internal/proxydial"
	"github.com/keyhub-gw/keyhub/internal/ratelimit"
	"github.com/keyhub-gw/keyhub/internal/storage"
	"github.com/keyhub-gw/keyhub/internal/telemetry"
)

// Authenticator resolves a bearer credential to a Token.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*gateway.Token, error)
	// Invalidate drops any cached entry for the token id.
	Invalidate(tokenID string)
}

// LogRecorder records relay outcomes asynchronously.
type LogRecorder interface {
	Record(gateway.RequestLog)
}

// CheckTrigger drives on-demand credential health checks.
type CheckTrigger interface {
	// TriggerAll starts a full check in the background.
	TriggerAll()
	// CheckOne probes a single key synchronously.
	CheckOne(ctx context.Context, keyID string) error
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Store       storage.Store
	Auth        Authenticator
	RateLimiter *ratelimit.Registry // nil = no rate limiting
	Balancer    *balancer.Balancer
	Dialer      *proxydial.Dialer
	Checks      CheckTrigger       // nil = check endpoints return 503
	Recorder    LogRecorder        // nil = no request logging
	Transport   http.RoundTripper  // nil = http.DefaultTransport
	Metrics     *telemetry.Metrics // nil = no metrics
	MetricsPage http.Handler       // nil = /metrics not mounted
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)

	// System endpoints (no auth)
	r.Get("/health", s.handleHealth)
	if deps.MetricsPage != nil {
		r.Handle("/metrics", deps.MetricsPage)
	}

	// OpenAI-compatible surface (bearer token required)
	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit)
		r.Post("/chat/completions", s.handleRelay)
		r.Post("/embeddings", s.handleRelay)
		r.Post("/images/generations", s.handleRelay)
		r.Get("/models", s.handleListModels)
	})

	// Management API
	r.Route("/api", func(r chi.Router) {
		r.Get("/channels", s.handleListChannels)
		r.Post("/channels", s.handleCreateChannel)
		r.Get("/channels/{id}", s.handleGetChannel)
		r.Put("/channels/{id}", s.handleUpdateChannel)
		r.Delete("/channels/{id}", s.handleDeleteChannel)

		r.Get("/keys", s.handleListKeys)
		r.Post("/keys", s.handleCreateKey)
		r.Post("/keys/import", s.handleImportKeys)
		r.Post("/keys/check-all", s.handleCheckAllKeys)
		r.Get("/keys/{id}", s.handleGetKey)
		r.Put("/keys/{id}", s.handleUpdateKey)
		r.Delete("/keys/{id}", s.handleDeleteKey)
		r.Post("/keys/{id}/check", s.handleCheckKey)

		r.Get("/proxies", s.handleListProxies)
		r.Post("/proxies", s.handleCreateProxy)
		r.Get("/proxies/{id}", s.handleGetProxy)
		r.Put("/proxies/{id}", s.handleUpdateProxy)
		r.Delete("/proxies/{id}", s.handleDeleteProxy)
		r.Post("/proxies/{id}/test", s.handleTestProxy)

		r.Get("/tokens", s.handleListTokens)
		r.Post("/tokens", s.handleCreateToken)
		r.Put("/tokens/{id}", s.handleUpdateToken)
		r.Delete("/tokens/{id}", s.handleDeleteToken)

		r.Get("/stats", s.handleStats)
		r.Get("/logs", s.handleQueryLogs)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
	})

	return r
}

type server struct {
	deps Deps
}

func (s *server) transport() http.RoundTripper {
	if s.deps.Transport != nil {
		return s.deps.Transport
	}
	return http.DefaultTransport
}
