// Package provider implements per-dialect adapters for upstream LLM APIs.
//
// An Adapter knows how a provider wants to be spoken to: which header (or
// query parameter) carries the credential, where its endpoints live relative
// to a channel's base URL, and what a minimal health probe looks like.
// Response bytes are relayed verbatim in both directions.
package provider

import (
	"net/http"
	"strings"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

// Adapter describes one provider dialect.
type Adapter interface {
	// Type returns the channel type this adapter serves.
	Type() string
	// ApplyAuth injects the credential into an outbound request.
	ApplyAuth(req *http.Request, key string)
	// ChatURL returns the chat completion endpoint for the given base URL.
	// model is only meaningful for dialects that encode it in the path.
	ChatURL(baseURL, model string) string
	// ModelsURL returns the model listing endpoint.
	ModelsURL(baseURL string) string
	// BalanceURL returns the billing endpoint, or "" when the dialect has none.
	BalanceURL(baseURL string) string
	// EndpointURL maps a client-facing /v1/* path onto the upstream endpoint.
	EndpointURL(baseURL, path, model string) string
	// ProbeBody returns the minimal chat request body used by health probes.
	ProbeBody(model string) []byte
	// DefaultProbeModel is used when the channel declares no test model.
	DefaultProbeModel() string
}

var adapters = map[string]Adapter{
	gateway.ChannelOpenAI:           &openAIAdapter{channelType: gateway.ChannelOpenAI},
	gateway.ChannelOpenAICompatible: &openAIAdapter{channelType: gateway.ChannelOpenAICompatible},
	gateway.ChannelAnthropic:        &anthropicAdapter{},
	gateway.ChannelGemini:           &geminiAdapter{},
}

// ForType returns the adapter for a channel type, or nil when unknown.
func ForType(channelType string) Adapter {
	return adapters[channelType]
}

// trimBase strips trailing slashes before endpoint composition.
func trimBase(baseURL string) string {
	return strings.TrimRight(baseURL, "/")
}
