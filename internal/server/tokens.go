package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

type tokenPayload struct {
	Name            *string   `json:"name"`
	AllowedChannels *[]string `json:"allowedChannels"`
	RateLimit       *int      `json:"rateLimit"`
	Enabled         *bool     `json:"enabled"`
}

func (s *server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.deps.Store.ListTokens(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, maskedTokens(tokens))
}

// handleCreateToken generates a fresh bearer value. The creation response is
// the only place the raw token ever appears.
func (s *server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var p tokenPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	if p.Name == nil || *p.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if p.RateLimit != nil && *p.RateLimit < 0 {
		respondError(w, http.StatusBadRequest, "rateLimit must not be negative")
		return
	}

	tok := &gateway.Token{
		ID:              gateway.NewID(),
		Name:            *p.Name,
		Token:           gateway.NewTokenValue(),
		AllowedChannels: []string{},
		Enabled:         true,
		CreatedAt:       gateway.Now(),
	}
	if p.AllowedChannels != nil {
		tok.AllowedChannels = *p.AllowedChannels
	}
	if p.RateLimit != nil {
		tok.RateLimit = *p.RateLimit
	}
	if p.Enabled != nil {
		tok.Enabled = *p.Enabled
	}

	if err := s.deps.Store.CreateToken(r.Context(), tok); err != nil {
		writeStoreError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, tok)
}

func (s *server) handleUpdateToken(w http.ResponseWriter, r *http.Request) {
	tok, err := s.deps.Store.GetToken(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if tok == nil {
		respondError(w, http.StatusNotFound, "token not found")
		return
	}

	var p tokenPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	if p.Name != nil {
		if *p.Name == "" {
			respondError(w, http.StatusBadRequest, "name is required")
			return
		}
		tok.Name = *p.Name
	}
	if p.AllowedChannels != nil {
		tok.AllowedChannels = *p.AllowedChannels
	}
	if p.RateLimit != nil {
		if *p.RateLimit < 0 {
			respondError(w, http.StatusBadRequest, "rateLimit must not be negative")
			return
		}
		tok.RateLimit = *p.RateLimit
	}
	if p.Enabled != nil {
		tok.Enabled = *p.Enabled
	}

	if err := s.deps.Store.UpdateToken(r.Context(), tok); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.deps.Auth.Invalidate(tok.ID)
	respondData(w, http.StatusOK, maskedToken(tok))
}

func (s *server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Store.DeleteToken(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.deps.Auth.Invalidate(id)
	respondMessage(w, http.StatusOK, "token deleted")
}
