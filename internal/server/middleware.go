package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	gateway "github.com/keyhub-gw/keyhub/internal"
	"github.com/keyhub-gw/keyhub/internal/auth"
)

// statusWriterPool eliminates 1 alloc/req from &statusWriter{} escaping to heap.
// Reset fields on Get, nil ResponseWriter on Put to avoid retaining references.
var statusWriterPool = sync.Pool{
	New: func() any { return &statusWriter{} },
}

// recovery catches panics and returns 500.
func (s *server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.LogAttrs(r.Context(), slog.LevelError, "panic recovered",
					slog.Any("error", rec),
					slog.String("path", r.URL.Path),
				)
				writeJSON(w, http.StatusInternalServerError, serverError("internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader uses the canonical MIME form so direct map access skips
// textproto.CanonicalMIMEHeaderKey on every request.
const requestIDHeader = "X-Request-Id"

// requestID adds a UUID v7 request ID to the response header.
func (s *server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if vals := r.Header[requestIDHeader]; len(vals) > 0 {
			id = vals[0]
		} else {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header()[requestIDHeader] = []string{id}
		next.ServeHTTP(w, r)
	})
}

// logging logs each request with method, path, status, and duration, and
// feeds the HTTP-level metrics when configured.
func (s *server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := statusWriterPool.Get().(*statusWriter)
		sw.ResponseWriter = w
		sw.status = http.StatusOK
		sw.wroteHeader = false

		if m := s.deps.Metrics; m != nil {
			m.ActiveRequests.Inc()
			defer m.ActiveRequests.Dec()
		}

		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		// LogAttrs with typed attrs keeps values on the stack on the hot path.
		slog.LogAttrs(r.Context(), slog.LevelInfo, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
		)

		if m := s.deps.Metrics; m != nil {
			// The chi route pattern keeps label cardinality bounded.
			pattern := chi.RouteContext(r.Context()).RoutePattern()
			m.RequestsTotal.WithLabelValues(r.Method, pattern, http.StatusText(sw.status)).Inc()
			m.RequestDuration.WithLabelValues(r.Method, pattern).Observe(elapsed.Seconds())
		}

		sw.ResponseWriter = nil
		statusWriterPool.Put(sw)
	})
}

// authenticate validates the bearer token and injects it into the context.
func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, err := s.deps.Auth.Authenticate(r.Context(), r)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrMissingHeader):
				writeJSON(w, http.StatusUnauthorized, authError("Missing or invalid Authorization header"))
			case errors.Is(err, gateway.ErrTokenDisabled):
				writeJSON(w, http.StatusForbidden, authError("Token is disabled"))
			case errors.Is(err, gateway.ErrUnauthorized):
				writeJSON(w, http.StatusUnauthorized, authError("Invalid token"))
			default:
				slog.LogAttrs(r.Context(), slog.LevelError, "auth lookup failed",
					slog.String("error", err.Error()),
				)
				writeJSON(w, http.StatusInternalServerError, serverError("internal server error"))
			}
			return
		}
		ctx := gateway.ContextWithToken(r.Context(), tok)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit enforces the token's per-minute budget over a fixed 60 s window.
func (s *server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := gateway.TokenFromContext(r.Context())
		if s.deps.RateLimiter != nil && tok != nil && tok.RateLimit > 0 {
			res := s.deps.RateLimiter.Allow(tok.ID, tok.RateLimit)
			if !res.Allowed {
				if m := s.deps.Metrics; m != nil {
					m.RateLimitRejects.Inc()
				}
				writeJSON(w, http.StatusTooManyRequests, rateLimitError("Rate limit exceeded"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps ResponseWriter to capture the HTTP status code.
// WriteHeader records only the first status code; subsequent calls are
// forwarded to the underlying writer but do not update the captured value,
// matching net/http semantics where only the first WriteHeader takes effect.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

// Flush delegates to the underlying ResponseWriter if it implements
// http.Flusher, so SSE streaming works through middleware.
func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter, allowing
// http.ResponseController and similar utilities to find interface
// implementations.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
