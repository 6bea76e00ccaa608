package provider

import (
	"encoding/json"
	"net/http"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

type geminiAdapter struct{}

func (a *geminiAdapter) Type() string { return gateway.ChannelGemini }

// ApplyAuth appends ?key={key} to the request URL; Gemini carries the
// credential in the query string rather than a header.
func (a *geminiAdapter) ApplyAuth(req *http.Request, key string) {
	q := req.URL.Query()
	q.Set("key", key)
	req.URL.RawQuery = q.Encode()
}

func (a *geminiAdapter) ChatURL(baseURL, model string) string {
	return trimBase(baseURL) + "/v1beta/models/" + model + ":generateContent"
}

func (a *geminiAdapter) ModelsURL(baseURL string) string {
	return trimBase(baseURL) + "/v1beta/models"
}

func (a *geminiAdapter) BalanceURL(string) string { return "" }

func (a *geminiAdapter) EndpointURL(baseURL, path, model string) string {
	if path == "/v1/chat/completions" {
		return a.ChatURL(baseURL, model)
	}
	return trimBase(baseURL) + path
}

func (a *geminiAdapter) ProbeBody(_ string) []byte {
	b, _ := json.Marshal(map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": "hi"}}},
		},
		"generationConfig": map[string]int{"maxOutputTokens": 1},
	})
	return b
}

func (a *geminiAdapter) DefaultProbeModel() string { return "gemini-pro" }
