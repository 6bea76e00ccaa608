// Package gateway defines domain types and interfaces for the KeyHub LLM gateway.
// This package has no project imports -- it is the dependency root.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// --- Enumerations ---

// Channel types identify the upstream provider dialect.
const (
	ChannelOpenAI           = "openai"
	ChannelAnthropic        = "anthropic"
	ChannelGemini           = "gemini"
	ChannelOpenAICompatible = "openai-compatible"
)

// ChannelTypes lists all valid channel types.
var ChannelTypes = []string{ChannelOpenAI, ChannelAnthropic, ChannelGemini, ChannelOpenAICompatible}

// Test methods control the shape of a key health probe.
const (
	TestBalance = "balance"
	TestChat    = "chat"
	TestModels  = "models"
)

// TestMethods lists all valid probe methods.
var TestMethods = []string{TestBalance, TestChat, TestModels}

// KeyStatus classifies the health of an upstream credential.
type KeyStatus string

// Key statuses.
const (
	KeyActive        KeyStatus = "active"
	KeyInvalid       KeyStatus = "invalid"
	KeyQuotaExceeded KeyStatus = "quota_exceeded"
	KeyDisabled      KeyStatus = "disabled"
	KeyUnknown       KeyStatus = "unknown"
)

// Load-balance strategies.
const (
	StrategyRoundRobin = "round-robin"
	StrategyWeighted   = "weighted"
	StrategyPriority   = "priority"
	StrategyLeastUsed  = "least-used"
)

// Strategies lists all valid load-balance strategies.
var Strategies = []string{StrategyRoundRobin, StrategyWeighted, StrategyPriority, StrategyLeastUsed}

// Proxy types.
const (
	ProxySOCKS5  = "socks5"
	ProxySOCKS5H = "socks5h"
	ProxyHTTP    = "http"
	ProxyHTTPS   = "https"
)

// ProxyTypes lists all valid proxy types.
var ProxyTypes = []string{ProxySOCKS5, ProxySOCKS5H, ProxyHTTP, ProxyHTTPS}

// --- Entities ---

// Channel is a configured upstream provider endpoint.
type Channel struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Type                string `json:"type"`
	BaseURL             string `json:"baseUrl"`
	TestMethod          string `json:"testMethod"`
	TestModel           string `json:"testModel,omitempty"`
	ProxyID             string `json:"proxyId,omitempty"` // weak ref; cleared when the proxy is deleted
	LoadBalanceStrategy string `json:"loadBalanceStrategy"`
	Enabled             bool   `json:"enabled"`
	CreatedAt           int64  `json:"createdAt"`
	UpdatedAt           int64  `json:"updatedAt"`
}

// APIKey is one upstream credential belonging to a Channel.
// Deleting the parent Channel deletes the key.
type APIKey struct {
	ID            string    `json:"id"`
	ChannelID     string    `json:"channelId"`
	Key           string    `json:"key"` // secret; masked at the management boundary
	Alias         string    `json:"alias,omitempty"`
	Status        KeyStatus `json:"status"`
	Priority      int       `json:"priority"` // 1..100, higher wins under the priority strategy
	Weight        int       `json:"weight"`   // 1..100
	Balance       *float64  `json:"balance,omitempty"`
	LastChecked   int64     `json:"lastChecked,omitempty"`
	LastUsed      int64     `json:"lastUsed,omitempty"`
	ErrorCount    int64     `json:"errorCount"`
	TotalRequests int64     `json:"totalRequests"`
	CreatedAt     int64     `json:"createdAt"`
	UpdatedAt     int64     `json:"updatedAt"`
}

// Proxy is an outbound tunnel configuration.
type Proxy struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"` // secret; masked at the management boundary
	Enabled   bool   `json:"enabled"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Token is a gateway-issued bearer credential for the OpenAI-compatible surface.
type Token struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Token           string   `json:"token"` // secret; masked except in the creation response
	AllowedChannels []string `json:"allowedChannels"`
	RateLimit       int      `json:"rateLimit,omitempty"` // requests/minute; 0 = unlimited
	Enabled         bool     `json:"enabled"`
	CreatedAt       int64    `json:"createdAt"`
	LastUsed        int64    `json:"lastUsed,omitempty"`
}

// RequestLog records one relay outcome.
type RequestLog struct {
	ID           string `json:"id"`
	Timestamp    int64  `json:"timestamp"`
	TokenID      string `json:"tokenId,omitempty"`
	ChannelID    string `json:"channelId"`
	KeyID        string `json:"keyId"`
	Model        string `json:"model"`
	Path         string `json:"path"`
	Method       string `json:"method"`
	Status       int    `json:"status"` // HTTP status, or 500 on transport failure
	Latency      int64  `json:"latency"`
	InputTokens  int    `json:"inputTokens,omitempty"`
	OutputTokens int    `json:"outputTokens,omitempty"`
	Error        string `json:"error,omitempty"`
	Streaming    bool   `json:"streaming"`
}

// Settings is the singleton runtime configuration.
type Settings struct {
	CheckInterval    int64 `json:"checkInterval"`    // ms between scheduled key checks
	MaxLogsRetention int64 `json:"maxLogsRetention"` // ms before a request log is garbage-collected
}

// DefaultSettings returns the settings applied to a fresh installation.
func DefaultSettings() Settings {
	return Settings{
		CheckInterval:    3_600_000,   // 1 hour
		MaxLogsRetention: 604_800_000, // 7 days
	}
}

// Default field values for created keys.
const (
	DefaultPriority = 50
	DefaultWeight   = 50
)

// --- Identifier and credential generation ---

// TokenPrefix is the prefix of all KeyHub-issued bearer tokens.
const TokenPrefix = "kh-"

// NewID returns a time-ordered unique identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewTokenValue generates a bearer token: "kh-" followed by 48 lowercase hex
// characters from 24 random bytes.
func NewTokenValue() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic("gateway: crypto/rand unavailable: " + err.Error())
	}
	return TokenPrefix + hex.EncodeToString(b)
}

// Now returns the current time in millisecond Unix time, the unit used for
// every persisted timestamp.
func Now() int64 {
	return time.Now().UnixMilli()
}

// --- Context keys ---

type contextKey int

const ctxKeyToken contextKey = 0

// ContextWithToken returns a context carrying the authenticated token.
// The authenticate middleware is the sole producer.
func ContextWithToken(ctx context.Context, t *Token) context.Context {
	return context.WithValue(ctx, ctxKeyToken, t)
}

// TokenFromContext extracts the authenticated token from ctx, or nil.
func TokenFromContext(ctx context.Context) *Token {
	t, _ := ctx.Value(ctxKeyToken).(*Token)
	return t
}
