package provider

import (
	"encoding/json"
	"net/http"
)

// openAIAdapter serves both the "openai" and "openai-compatible" channel
// types; the dialect is identical, only the base URL differs.
type openAIAdapter struct {
	channelType string
}

func (a *openAIAdapter) Type() string { return a.channelType }

func (a *openAIAdapter) ApplyAuth(req *http.Request, key string) {
	req.Header.Set("Authorization", "Bearer "+key)
}

func (a *openAIAdapter) ChatURL(baseURL, _ string) string {
	return trimBase(baseURL) + "/v1/chat/completions"
}

func (a *openAIAdapter) ModelsURL(baseURL string) string {
	return trimBase(baseURL) + "/v1/models"
}

func (a *openAIAdapter) BalanceURL(baseURL string) string {
	return trimBase(baseURL) + "/dashboard/billing/credit_grants"
}

func (a *openAIAdapter) EndpointURL(baseURL, path, model string) string {
	// The OpenAI dialect mirrors the client-facing surface one-to-one.
	return trimBase(baseURL) + path
}

func (a *openAIAdapter) ProbeBody(model string) []byte {
	b, _ := json.Marshal(map[string]any{
		"model":      model,
		"messages":   []map[string]string{{"role": "user", "content": "hi"}},
		"max_tokens": 1,
	})
	return b
}

func (a *openAIAdapter) DefaultProbeModel() string { return "gpt-3.5-turbo" }
