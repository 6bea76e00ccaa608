package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// apiError is the OpenAI-compatible error body.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func newAPIError(msg, typ string) apiError {
	var e apiError
	e.Error.Message = msg
	e.Error.Type = typ
	return e
}

func invalidRequestError(msg string) apiError { return newAPIError(msg, "invalid_request_error") }
func serverError(msg string) apiError         { return newAPIError(msg, "server_error") }
func rateLimitError(msg string) apiError      { return newAPIError(msg, "rate_limit_error") }

// authErrorBody is the flat error shape produced by the auth gate.
type authErrorBody struct {
	Error string `json:"error"`
}

func authError(msg string) authErrorBody { return authErrorBody{Error: msg} }

// envelope wraps every management API response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func respondData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func respondMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: true, Message: msg})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// jsonCT is a pre-allocated header value slice. Direct map assignment avoids
// the []string{v} alloc that Header.Set creates on every call.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
