// Package storage defines persistence interfaces for the gateway.
//
// A missing id is not an error: getters return (nil, nil) and deletes of
// unknown ids are no-ops. Implementations must serialise mutations and never
// expose a partially applied one to readers.
package storage

import (
	"context"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

// ChannelStore manages channel persistence.
type ChannelStore interface {
	CreateChannel(ctx context.Context, c *gateway.Channel) error
	GetChannel(ctx context.Context, id string) (*gateway.Channel, error)
	ListChannels(ctx context.Context) ([]*gateway.Channel, error)
	UpdateChannel(ctx context.Context, c *gateway.Channel) error
	// DeleteChannel removes the channel and every key under it in one
	// atomic unit.
	DeleteChannel(ctx context.Context, id string) error
}

// KeyStore manages upstream credential persistence.
type KeyStore interface {
	CreateKey(ctx context.Context, k *gateway.APIKey) error
	// CreateKeys appends all keys in one atomic unit (bulk import).
	CreateKeys(ctx context.Context, keys []*gateway.APIKey) error
	GetKey(ctx context.Context, id string) (*gateway.APIKey, error)
	// ListKeys returns all keys, or only those of channelID when non-empty.
	ListKeys(ctx context.Context, channelID string) ([]*gateway.APIKey, error)
	// ActiveKeysFor returns the channel's keys with status "active".
	ActiveKeysFor(ctx context.Context, channelID string) ([]*gateway.APIKey, error)
	UpdateKey(ctx context.Context, k *gateway.APIKey) error
	DeleteKey(ctx context.Context, id string) error
	// MarkKeyUsed applies relay bookkeeping: lastUsed=now, totalRequests+1,
	// and errorCount reset on success or incremented on failure.
	MarkKeyUsed(ctx context.Context, id string, success bool) error
	// BumpKeyError increments errorCount only (transport failures).
	BumpKeyError(ctx context.Context, id string) error
	// ApplyCheckResult records a probe outcome: status, optional balance,
	// lastChecked=now, and errorCount reset when active else incremented.
	ApplyCheckResult(ctx context.Context, id string, status gateway.KeyStatus, balance *float64) error
}

// ProxyStore manages proxy persistence.
type ProxyStore interface {
	CreateProxy(ctx context.Context, p *gateway.Proxy) error
	GetProxy(ctx context.Context, id string) (*gateway.Proxy, error)
	ListProxies(ctx context.Context) ([]*gateway.Proxy, error)
	UpdateProxy(ctx context.Context, p *gateway.Proxy) error
	// DeleteProxy removes the proxy and clears proxyId on every referencing
	// channel in one atomic unit.
	DeleteProxy(ctx context.Context, id string) error
}

// TokenStore manages bearer token persistence.
type TokenStore interface {
	CreateToken(ctx context.Context, t *gateway.Token) error
	GetToken(ctx context.Context, id string) (*gateway.Token, error)
	GetTokenByValue(ctx context.Context, value string) (*gateway.Token, error)
	ListTokens(ctx context.Context) ([]*gateway.Token, error)
	UpdateToken(ctx context.Context, t *gateway.Token) error
	DeleteToken(ctx context.Context, id string) error
	TouchTokenUsed(ctx context.Context, id string) error
}

// LogFilter selects request logs. Zero values mean "no constraint";
// filters compose as AND.
type LogFilter struct {
	ChannelID string
	Status    int
	StartTime int64 // inclusive, ms
	EndTime   int64 // inclusive, ms
	Offset    int
	Limit     int // defaults to 50 when <= 0
}

// LogStore manages request log persistence.
type LogStore interface {
	// InsertLogs appends logs and garbage-collects rows older than the
	// configured retention in the same atomic unit.
	InsertLogs(ctx context.Context, logs []gateway.RequestLog) error
	// QueryLogs returns matching logs sorted by timestamp descending, plus
	// the filtered total before pagination.
	QueryLogs(ctx context.Context, f LogFilter) ([]*gateway.RequestLog, int, error)
	// LogsSince returns logs with timestamp >= ts, sorted descending.
	LogsSince(ctx context.Context, ts int64) ([]*gateway.RequestLog, error)
}

// SettingsStore manages the settings singleton.
type SettingsStore interface {
	GetSettings(ctx context.Context) (gateway.Settings, error)
	UpdateSettings(ctx context.Context, s gateway.Settings) error
}

// Store combines all storage interfaces.
type Store interface {
	ChannelStore
	KeyStore
	ProxyStore
	TokenStore
	LogStore
	SettingsStore
	Ping(ctx context.Context) error
	Close() error
}
