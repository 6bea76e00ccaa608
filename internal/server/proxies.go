package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

type proxyPayload struct {
	Name     *string `json:"name"`
	Type     *string `json:"type"`
	Host     *string `json:"host"`
	Port     *int    `json:"port"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	Enabled  *bool   `json:"enabled"`
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

func (s *server) handleListProxies(w http.ResponseWriter, r *http.Request) {
	proxies, err := s.deps.Store.ListProxies(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, maskedProxies(proxies))
}

func (s *server) handleGetProxy(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Store.GetProxy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if p == nil {
		respondError(w, http.StatusNotFound, "proxy not found")
		return
	}
	respondData(w, http.StatusOK, maskedProxy(p))
}

func (s *server) handleCreateProxy(w http.ResponseWriter, r *http.Request) {
	var p proxyPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	if p.Name == nil || *p.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if p.Type == nil || !oneOf(*p.Type, gateway.ProxyTypes) {
		respondError(w, http.StatusBadRequest, "invalid proxy type")
		return
	}
	if p.Host == nil || *p.Host == "" {
		respondError(w, http.StatusBadRequest, "host is required")
		return
	}
	if p.Port == nil || !validPort(*p.Port) {
		respondError(w, http.StatusBadRequest, "port must be between 1 and 65535")
		return
	}

	now := gateway.Now()
	proxy := &gateway.Proxy{
		ID:        gateway.NewID(),
		Name:      *p.Name,
		Type:      *p.Type,
		Host:      *p.Host,
		Port:      *p.Port,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.Username != nil {
		proxy.Username = *p.Username
	}
	if p.Password != nil {
		proxy.Password = *p.Password
	}
	if p.Enabled != nil {
		proxy.Enabled = *p.Enabled
	}

	if err := s.deps.Store.CreateProxy(r.Context(), proxy); err != nil {
		writeStoreError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, maskedProxy(proxy))
}

func (s *server) handleUpdateProxy(w http.ResponseWriter, r *http.Request) {
	proxy, err := s.deps.Store.GetProxy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if proxy == nil {
		respondError(w, http.StatusNotFound, "proxy not found")
		return
	}

	var p proxyPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	if p.Name != nil {
		if *p.Name == "" {
			respondError(w, http.StatusBadRequest, "name is required")
			return
		}
		proxy.Name = *p.Name
	}
	if p.Type != nil {
		if !oneOf(*p.Type, gateway.ProxyTypes) {
			respondError(w, http.StatusBadRequest, "invalid proxy type")
			return
		}
		proxy.Type = *p.Type
	}
	if p.Host != nil {
		if *p.Host == "" {
			respondError(w, http.StatusBadRequest, "host is required")
			return
		}
		proxy.Host = *p.Host
	}
	if p.Port != nil {
		if !validPort(*p.Port) {
			respondError(w, http.StatusBadRequest, "port must be between 1 and 65535")
			return
		}
		proxy.Port = *p.Port
	}
	if p.Username != nil {
		proxy.Username = *p.Username
	}
	if p.Password != nil {
		proxy.Password = *p.Password
	}
	if p.Enabled != nil {
		proxy.Enabled = *p.Enabled
	}

	proxy.UpdatedAt = gateway.Now()
	if err := s.deps.Store.UpdateProxy(r.Context(), proxy); err != nil {
		writeStoreError(w, r, err)
		return
	}
	// Drop the pooled transport so the next relay sees the new settings.
	s.deps.Dialer.Invalidate(proxy.ID)
	respondData(w, http.StatusOK, maskedProxy(proxy))
}

func (s *server) handleDeleteProxy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Store.DeleteProxy(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.deps.Dialer.Invalidate(id)
	respondMessage(w, http.StatusOK, "proxy deleted")
}

type proxyTestResult struct {
	Latency int64 `json:"latency"` // ms
}

// handleTestProxy issues a probe through the proxy and reports the latency.
func (s *server) handleTestProxy(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Store.GetProxy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if p == nil {
		respondError(w, http.StatusNotFound, "proxy not found")
		return
	}
	latency, err := s.deps.Dialer.Test(r.Context(), p)
	if err != nil {
		respondError(w, http.StatusOK, err.Error())
		return
	}
	respondData(w, http.StatusOK, proxyTestResult{Latency: latency})
}
