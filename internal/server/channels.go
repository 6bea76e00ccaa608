package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

// channelPayload covers both create and update; nil pointers mean "unchanged"
// on update and "default" on create.
type channelPayload struct {
	Name                *string `json:"name"`
	Type                *string `json:"type"`
	BaseURL             *string `json:"baseUrl"`
	TestMethod          *string `json:"testMethod"`
	TestModel           *string `json:"testModel"`
	ProxyID             *string `json:"proxyId"`
	LoadBalanceStrategy *string `json:"loadBalanceStrategy"`
	Enabled             *bool   `json:"enabled"`
}

func (s *server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.deps.Store.ListChannels(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if channels == nil {
		channels = []*gateway.Channel{}
	}
	respondData(w, http.StatusOK, channels)
}

func (s *server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := s.deps.Store.GetChannel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if ch == nil {
		respondError(w, http.StatusNotFound, "channel not found")
		return
	}
	respondData(w, http.StatusOK, ch)
}

func (s *server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var p channelPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	if p.Name == nil || *p.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if p.Type == nil || !oneOf(*p.Type, gateway.ChannelTypes) {
		respondError(w, http.StatusBadRequest, "invalid channel type")
		return
	}
	if p.BaseURL == nil || !validBaseURL(*p.BaseURL) {
		respondError(w, http.StatusBadRequest, "baseUrl must be a valid absolute URL")
		return
	}

	now := gateway.Now()
	ch := &gateway.Channel{
		ID:                  gateway.NewID(),
		Name:                *p.Name,
		Type:                *p.Type,
		BaseURL:             *p.BaseURL,
		TestMethod:          gateway.TestChat,
		LoadBalanceStrategy: gateway.StrategyRoundRobin,
		Enabled:             true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if p.TestMethod != nil {
		if !oneOf(*p.TestMethod, gateway.TestMethods) {
			respondError(w, http.StatusBadRequest, "invalid test method")
			return
		}
		ch.TestMethod = *p.TestMethod
	}
	if p.LoadBalanceStrategy != nil {
		if !oneOf(*p.LoadBalanceStrategy, gateway.Strategies) {
			respondError(w, http.StatusBadRequest, "invalid load balance strategy")
			return
		}
		ch.LoadBalanceStrategy = *p.LoadBalanceStrategy
	}
	if p.TestModel != nil {
		ch.TestModel = *p.TestModel
	}
	if p.ProxyID != nil {
		ch.ProxyID = *p.ProxyID
	}
	if p.Enabled != nil {
		ch.Enabled = *p.Enabled
	}

	if err := s.deps.Store.CreateChannel(r.Context(), ch); err != nil {
		writeStoreError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, ch)
}

func (s *server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := s.deps.Store.GetChannel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if ch == nil {
		respondError(w, http.StatusNotFound, "channel not found")
		return
	}

	var p channelPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	if p.Name != nil {
		if *p.Name == "" {
			respondError(w, http.StatusBadRequest, "name is required")
			return
		}
		ch.Name = *p.Name
	}
	if p.Type != nil {
		if !oneOf(*p.Type, gateway.ChannelTypes) {
			respondError(w, http.StatusBadRequest, "invalid channel type")
			return
		}
		ch.Type = *p.Type
	}
	if p.BaseURL != nil {
		if !validBaseURL(*p.BaseURL) {
			respondError(w, http.StatusBadRequest, "baseUrl must be a valid absolute URL")
			return
		}
		ch.BaseURL = *p.BaseURL
	}
	if p.TestMethod != nil {
		if !oneOf(*p.TestMethod, gateway.TestMethods) {
			respondError(w, http.StatusBadRequest, "invalid test method")
			return
		}
		ch.TestMethod = *p.TestMethod
	}
	if p.LoadBalanceStrategy != nil {
		if !oneOf(*p.LoadBalanceStrategy, gateway.Strategies) {
			respondError(w, http.StatusBadRequest, "invalid load balance strategy")
			return
		}
		ch.LoadBalanceStrategy = *p.LoadBalanceStrategy
	}
	if p.TestModel != nil {
		ch.TestModel = *p.TestModel
	}
	if p.ProxyID != nil {
		ch.ProxyID = *p.ProxyID
	}
	if p.Enabled != nil {
		ch.Enabled = *p.Enabled
	}

	ch.UpdatedAt = gateway.Now()
	if err := s.deps.Store.UpdateChannel(r.Context(), ch); err != nil {
		writeStoreError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, ch)
}

func (s *server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteChannel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "channel deleted")
}
