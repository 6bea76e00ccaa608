package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
)

// maxManagementBody is the maximum allowed management request body size (1 MB).
const maxManagementBody = 1 << 20

// decodeJSON limits body size, decodes JSON into v, and writes a 400 on error.
// Returns true if decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxManagementBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeStoreError logs the full error server-side and returns a sanitized
// message to the client to avoid leaking internal details (e.g. SQLite errors).
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	slog.LogAttrs(r.Context(), slog.LevelError, "management store error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	respondError(w, http.StatusInternalServerError, "internal error")
}

// validBaseURL accepts absolute http(s) URLs only.
func validBaseURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func oneOf(v string, valid []string) bool {
	return slices.Contains(valid, v)
}
