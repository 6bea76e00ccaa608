// Package testutil provides in-memory fakes for package tests.
package testutil

import (
	"context"
	"sync"

	gateway "github.com/keyhub-gw/keyhub/internal"
	"github.com/keyhub-gw/keyhub/internal/storage"
)

// FakeStore is an in-memory implementation of storage.Store. Slices keep
// insertion order, matching the ordering the SQLite store guarantees.
type FakeStore struct {
	mu       sync.RWMutex
	channels []*gateway.Channel
	keys     []*gateway.APIKey
	proxies  []*gateway.Proxy
	tokens   []*gateway.Token
	logs     []gateway.RequestLog
	settings gateway.Settings
}

// NewFakeStore returns a FakeStore with default settings and no records.
func NewFakeStore() *FakeStore {
	return &FakeStore{settings: gateway.DefaultSettings()}
}

// --- ChannelStore ---

func (s *FakeStore) CreateChannel(_ context.Context, c *gateway.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.channels = append(s.channels, &cp)
	return nil
}

func (s *FakeStore) GetChannel(_ context.Context, id string) (*gateway.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.channels {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *FakeStore) ListChannels(context.Context) ([]*gateway.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*gateway.Channel, len(s.channels))
	for i, c := range s.channels {
		cp := *c
		out[i] = &cp
	}
	return out, nil
}

func (s *FakeStore) UpdateChannel(_ context.Context, c *gateway.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.channels {
		if existing.ID == c.ID {
			cp := *c
			cp.UpdatedAt = gateway.Now()
			s.channels[i] = &cp
			return nil
		}
	}
	return nil
}

func (s *FakeStore) DeleteChannel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	channels := s.channels[:0]
	for _, c := range s.channels {
		if c.ID != id {
			channels = append(channels, c)
		}
	}
	s.channels = channels
	keys := s.keys[:0]
	for _, k := range s.keys {
		if k.ChannelID != id {
			keys = append(keys, k)
		}
	}
	s.keys = keys
	return nil
}

// --- KeyStore ---

func (s *FakeStore) CreateKey(_ context.Context, k *gateway.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *k
	s.keys = append(s.keys, &cp)
	return nil
}

func (s *FakeStore) CreateKeys(ctx context.Context, keys []*gateway.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		cp := *k
		s.keys = append(s.keys, &cp)
	}
	return nil
}

func (s *FakeStore) GetKey(_ context.Context, id string) (*gateway.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if k.ID == id {
			cp := *k
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *FakeStore) ListKeys(_ context.Context, channelID string) ([]*gateway.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*gateway.APIKey
	for _, k := range s.keys {
		if channelID == "" || k.ChannelID == channelID {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *FakeStore) ActiveKeysFor(_ context.Context, channelID string) ([]*gateway.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*gateway.APIKey
	for _, k := range s.keys {
		if k.ChannelID == channelID && k.Status == gateway.KeyActive {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *FakeStore) UpdateKey(_ context.Context, k *gateway.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.keys {
		if existing.ID == k.ID {
			cp := *k
			cp.UpdatedAt = gateway.Now()
			s.keys[i] = &cp
			return nil
		}
	}
	return nil
}

func (s *FakeStore) DeleteKey(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.keys[:0]
	for _, k := range s.keys {
		if k.ID != id {
			keys = append(keys, k)
		}
	}
	s.keys = keys
	return nil
}

func (s *FakeStore) MarkKeyUsed(_ context.Context, id string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.ID == id {
			k.LastUsed = gateway.Now()
			k.TotalRequests++
			if success {
				k.ErrorCount = 0
			} else {
				k.ErrorCount++
			}
			return nil
		}
	}
	return nil
}

func (s *FakeStore) BumpKeyError(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.ID == id {
			k.ErrorCount++
			return nil
		}
	}
	return nil
}

func (s *FakeStore) ApplyCheckResult(_ context.Context, id string, status gateway.KeyStatus, balance *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.ID == id {
			k.Status = status
			if balance != nil {
				b := *balance
				k.Balance = &b
			}
			k.LastChecked = gateway.Now()
			if status == gateway.KeyActive {
				k.ErrorCount = 0
			} else {
				k.ErrorCount++
			}
			return nil
		}
	}
	return nil
}

// --- ProxyStore ---

func (s *FakeStore) CreateProxy(_ context.Context, p *gateway.Proxy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.proxies = append(s.proxies, &cp)
	return nil
}

func (s *FakeStore) GetProxy(_ context.Context, id string) (*gateway.Proxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.proxies {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *FakeStore) ListProxies(context.Context) ([]*gateway.Proxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*gateway.Proxy, len(s.proxies))
	for i, p := range s.proxies {
		cp := *p
		out[i] = &cp
	}
	return out, nil
}

func (s *FakeStore) UpdateProxy(_ context.Context, p *gateway.Proxy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.proxies {
		if existing.ID == p.ID {
			cp := *p
			cp.UpdatedAt = gateway.Now()
			s.proxies[i] = &cp
			return nil
		}
	}
	return nil
}

func (s *FakeStore) DeleteProxy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	proxies := s.proxies[:0]
	for _, p := range s.proxies {
		if p.ID != id {
			proxies = append(proxies, p)
		}
	}
	s.proxies = proxies
	for _, c := range s.channels {
		if c.ProxyID == id {
			c.ProxyID = ""
			c.UpdatedAt = gateway.Now()
		}
	}
	return nil
}

// --- TokenStore ---

func (s *FakeStore) CreateToken(_ context.Context, t *gateway.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tokens = append(s.tokens, &cp)
	return nil
}

func (s *FakeStore) GetToken(_ context.Context, id string) (*gateway.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tokens {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *FakeStore) GetTokenByValue(_ context.Context, value string) (*gateway.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tokens {
		if t.Token == value {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *FakeStore) ListTokens(context.Context) ([]*gateway.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*gateway.Token, len(s.tokens))
	for i, t := range s.tokens {
		cp := *t
		out[i] = &cp
	}
	return out, nil
}

func (s *FakeStore) UpdateToken(_ context.Context, t *gateway.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.tokens {
		if existing.ID == t.ID {
			cp := *t
			s.tokens[i] = &cp
			return nil
		}
	}
	return nil
}

func (s *FakeStore) DeleteToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := s.tokens[:0]
	for _, t := range s.tokens {
		if t.ID != id {
			tokens = append(tokens, t)
		}
	}
	s.tokens = tokens
	return nil
}

func (s *FakeStore) TouchTokenUsed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.ID == id {
			t.LastUsed = gateway.Now()
			return nil
		}
	}
	return nil
}

// --- LogStore ---

func (s *FakeStore) InsertLogs(_ context.Context, logs []gateway.RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, logs...)
	cutoff := gateway.Now() - s.settings.MaxLogsRetention
	kept := s.logs[:0]
	for _, l := range s.logs {
		if l.Timestamp >= cutoff {
			kept = append(kept, l)
		}
	}
	s.logs = kept
	return nil
}

func (s *FakeStore) QueryLogs(_ context.Context, f storage.LogFilter) ([]*gateway.RequestLog, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*gateway.RequestLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		l := s.logs[i]
		if f.ChannelID != "" && l.ChannelID != f.ChannelID {
			continue
		}
		if f.Status != 0 && l.Status != f.Status {
			continue
		}
		if f.StartTime != 0 && l.Timestamp < f.StartTime {
			continue
		}
		if f.EndTime != 0 && l.Timestamp > f.EndTime {
			continue
		}
		cp := l
		matched = append(matched, &cp)
	}

	total := len(matched)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if f.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[f.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *FakeStore) LogsSince(_ context.Context, ts int64) ([]*gateway.RequestLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*gateway.RequestLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].Timestamp >= ts {
			cp := s.logs[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- SettingsStore ---

func (s *FakeStore) GetSettings(context.Context) (gateway.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *FakeStore) UpdateSettings(_ context.Context, settings gateway.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

func (s *FakeStore) Ping(context.Context) error { return nil }
func (s *FakeStore) Close() error               { return nil }
