package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

type keyPayload struct {
	ChannelID *string `json:"channelId"`
	Key       *string `json:"key"`
	Alias     *string `json:"alias"`
	Priority  *int    `json:"priority"`
	Weight    *int    `json:"weight"`
	Status    *string `json:"status"`
}

func validRange(v int) bool { return v >= 1 && v <= 100 }

func (s *server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.deps.Store.ListKeys(r.Context(), r.URL.Query().Get("channelId"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, maskedKeys(keys))
}

func (s *server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.deps.Store.GetKey(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if key == nil {
		respondError(w, http.StatusNotFound, "key not found")
		return
	}
	respondData(w, http.StatusOK, maskedKey(key))
}

func (s *server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var p keyPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	if p.ChannelID == nil || *p.ChannelID == "" {
		respondError(w, http.StatusBadRequest, "channelId is required")
		return
	}
	if p.Key == nil || *p.Key == "" {
		respondError(w, http.StatusBadRequest, "key is required")
		return
	}
	ch, err := s.deps.Store.GetChannel(r.Context(), *p.ChannelID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if ch == nil {
		respondError(w, http.StatusBadRequest, "channel does not exist")
		return
	}

	key := newKey(ch.ID, *p.Key)
	if p.Alias != nil {
		key.Alias = *p.Alias
	}
	if p.Priority != nil {
		if !validRange(*p.Priority) {
			respondError(w, http.StatusBadRequest, "priority must be between 1 and 100")
			return
		}
		key.Priority = *p.Priority
	}
	if p.Weight != nil {
		if !validRange(*p.Weight) {
			respondError(w, http.StatusBadRequest, "weight must be between 1 and 100")
			return
		}
		key.Weight = *p.Weight
	}

	if err := s.deps.Store.CreateKey(r.Context(), key); err != nil {
		writeStoreError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, maskedKey(key))
}

// newKey returns an APIKey with creation defaults applied.
func newKey(channelID, secret string) *gateway.APIKey {
	now := gateway.Now()
	return &gateway.APIKey{
		ID:        gateway.NewID(),
		ChannelID: channelID,
		Key:       secret,
		Status:    gateway.KeyUnknown,
		Priority:  gateway.DefaultPriority,
		Weight:    gateway.DefaultWeight,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

type importKeysRequest struct {
	ChannelID string `json:"channelId"`
	Keys      string `json:"keys"`
	Delimiter string `json:"delimiter"`
}

type importKeysResponse struct {
	Imported int               `json:"imported"`
	Keys     []*gateway.APIKey `json:"keys"`
}

// handleImportKeys splits the keys field by the delimiter (default newline),
// trims whitespace, drops empties, and creates all keys in one atomic unit.
func (s *server) handleImportKeys(w http.ResponseWriter, r *http.Request) {
	var req importKeysRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ChannelID == "" {
		respondError(w, http.StatusBadRequest, "channelId is required")
		return
	}
	ch, err := s.deps.Store.GetChannel(r.Context(), req.ChannelID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if ch == nil {
		respondError(w, http.StatusBadRequest, "channel does not exist")
		return
	}

	delim := req.Delimiter
	if delim == "" {
		delim = "\n"
	}

	var keys []*gateway.APIKey
	for _, part := range strings.Split(req.Keys, delim) {
		secret := strings.TrimSpace(part)
		if secret == "" {
			continue
		}
		keys = append(keys, newKey(ch.ID, secret))
	}
	if len(keys) == 0 {
		respondError(w, http.StatusBadRequest, "no keys to import")
		return
	}

	if err := s.deps.Store.CreateKeys(r.Context(), keys); err != nil {
		writeStoreError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, importKeysResponse{
		Imported: len(keys),
		Keys:     maskedKeys(keys),
	})
}

func (s *server) handleUpdateKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.deps.Store.GetKey(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if key == nil {
		respondError(w, http.StatusNotFound, "key not found")
		return
	}

	var p keyPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	if p.Key != nil && *p.Key != "" {
		key.Key = *p.Key
	}
	if p.Alias != nil {
		key.Alias = *p.Alias
	}
	if p.Priority != nil {
		if !validRange(*p.Priority) {
			respondError(w, http.StatusBadRequest, "priority must be between 1 and 100")
			return
		}
		key.Priority = *p.Priority
	}
	if p.Weight != nil {
		if !validRange(*p.Weight) {
			respondError(w, http.StatusBadRequest, "weight must be between 1 and 100")
			return
		}
		key.Weight = *p.Weight
	}
	// Management may only toggle disabled; health statuses are owned by the
	// checker.
	if p.Status != nil {
		switch gateway.KeyStatus(*p.Status) {
		case gateway.KeyDisabled, gateway.KeyUnknown:
			key.Status = gateway.KeyStatus(*p.Status)
		default:
			respondError(w, http.StatusBadRequest, "status can only be set to disabled or unknown")
			return
		}
	}

	key.UpdatedAt = gateway.Now()
	if err := s.deps.Store.UpdateKey(r.Context(), key); err != nil {
		writeStoreError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, maskedKey(key))
}

func (s *server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteKey(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "key deleted")
}

// handleCheckKey probes one key synchronously and returns its refreshed record.
func (s *server) handleCheckKey(w http.ResponseWriter, r *http.Request) {
	if s.deps.Checks == nil {
		respondError(w, http.StatusServiceUnavailable, "checker not available")
		return
	}
	id := chi.URLParam(r, "id")
	key, err := s.deps.Store.GetKey(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if key == nil {
		respondError(w, http.StatusNotFound, "key not found")
		return
	}
	if err := s.deps.Checks.CheckOne(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	key, err = s.deps.Store.GetKey(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if key == nil {
		respondError(w, http.StatusNotFound, "key not found")
		return
	}
	respondData(w, http.StatusOK, maskedKey(key))
}

// handleCheckAllKeys starts a full check in the background; clients poll the
// key records to observe progress.
func (s *server) handleCheckAllKeys(w http.ResponseWriter, r *http.Request) {
	if s.deps.Checks == nil {
		respondError(w, http.StatusServiceUnavailable, "checker not available")
		return
	}
	s.deps.Checks.TriggerAll()
	respondMessage(w, http.StatusAccepted, "key check started")
}
