package provider

import (
	"encoding/json"
	"net/http"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

const anthropicVersion = "2023-06-01"

type anthropicAdapter struct{}

func (a *anthropicAdapter) Type() string { return gateway.ChannelAnthropic }

func (a *anthropicAdapter) ApplyAuth(req *http.Request, key string) {
	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", anthropicVersion)
}

func (a *anthropicAdapter) ChatURL(baseURL, _ string) string {
	return trimBase(baseURL) + "/v1/messages"
}

func (a *anthropicAdapter) ModelsURL(baseURL string) string {
	return trimBase(baseURL) + "/v1/models"
}

func (a *anthropicAdapter) BalanceURL(string) string { return "" }

func (a *anthropicAdapter) EndpointURL(baseURL, path, model string) string {
	if path == "/v1/chat/completions" {
		return a.ChatURL(baseURL, model)
	}
	return trimBase(baseURL) + path
}

// ProbeBody uses the OpenAI chat shape; the Messages API accepts the same
// role/content structure for a minimal request.
func (a *anthropicAdapter) ProbeBody(model string) []byte {
	b, _ := json.Marshal(map[string]any{
		"model":      model,
		"messages":   []map[string]string{{"role": "user", "content": "hi"}},
		"max_tokens": 1,
	})
	return b
}

func (a *anthropicAdapter) DefaultProbeModel() string { return "claude-3-haiku-20240307" }
