package server

import (
	"net/http"
	"slices"
	"strings"
	"time"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

// modelEntry maps a model name prefix to the channel types that can serve it.
type modelEntry struct {
	ID    string
	Types []string
}

var (
	openAITypes    = []string{gateway.ChannelOpenAI, gateway.ChannelOpenAICompatible}
	anthropicTypes = []string{gateway.ChannelAnthropic}
	geminiTypes    = []string{gateway.ChannelGemini}
)

// modelTable is the fixed model-to-provider map. Resolution is by longest
// matching prefix; unknown models fall back to the OpenAI dialects.
var modelTable = []modelEntry{
	{"gpt-4", openAITypes},
	{"gpt-4-turbo", openAITypes},
	{"gpt-4o", openAITypes},
	{"gpt-4o-mini", openAITypes},
	{"gpt-3.5-turbo", openAITypes},
	{"o1", openAITypes},
	{"o1-mini", openAITypes},
	{"o1-preview", openAITypes},
	{"claude-3-opus", anthropicTypes},
	{"claude-3-sonnet", anthropicTypes},
	{"claude-3-haiku", anthropicTypes},
	{"claude-3.5-sonnet", anthropicTypes},
	{"claude-3-5-sonnet", anthropicTypes},
	{"gemini-pro", geminiTypes},
	{"gemini-1.5-pro", geminiTypes},
	{"gemini-1.5-flash", geminiTypes},
}

// typesForModel resolves a model name to the set of channel types that can
// serve it.
func typesForModel(model string) []string {
	best := -1
	for i, e := range modelTable {
		if strings.HasPrefix(model, e.ID) && (best < 0 || len(e.ID) > len(modelTable[best].ID)) {
			best = i
		}
	}
	if best < 0 {
		return openAITypes
	}
	return modelTable[best].Types
}

type modelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string      `json:"object"`
	Data   []modelInfo `json:"data"`
}

// handleListModels enumerates the models the caller's token can reach through
// at least one enabled channel.
func (s *server) handleListModels(w http.ResponseWriter, r *http.Request) {
	tok := gateway.TokenFromContext(r.Context())

	channels, err := s.deps.Store.ListChannels(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, serverError("failed to list channels"))
		return
	}

	eligible := channels[:0:0]
	for _, ch := range channels {
		if !ch.Enabled {
			continue
		}
		if tok != nil && len(tok.AllowedChannels) > 0 && !slices.Contains(tok.AllowedChannels, ch.ID) {
			continue
		}
		eligible = append(eligible, ch)
	}

	now := time.Now().Unix()
	out := modelList{Object: "list", Data: []modelInfo{}}
	for _, e := range modelTable {
		for _, ch := range eligible {
			if slices.Contains(e.Types, ch.Type) {
				out.Data = append(out.Data, modelInfo{
					ID:      e.ID,
					Object:  "model",
					Created: now,
					OwnedBy: ch.Type,
				})
				break
			}
		}
	}

	writeJSON(w, http.StatusOK, out)
}
